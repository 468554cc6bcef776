// Package present renders activities and summaries as plain text.
package present

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/joshdurbin/strava-stats/internal/cache"
	"github.com/joshdurbin/strava-stats/internal/query"
	"github.com/joshdurbin/strava-stats/internal/stats"
	"github.com/joshdurbin/strava-stats/internal/strava"
)

// NoResults is printed when a query matches nothing.
const NoResults = "There are no activities that matched your query."

const dateLayout = "2006-01-02 15:04:05"

// Activities renders each activity as a block, blocks separated by a blank line.
func Activities(activities []strava.Activity, loc *time.Location) string {
	if len(activities) == 0 {
		return NoResults
	}
	blocks := make([]string, len(activities))
	for i, a := range activities {
		blocks[i] = Activity(a, loc)
	}
	return strings.Join(blocks, "\n\n")
}

// Activity renders one activity. Runs show pace, everything else shows speed.
func Activity(a strava.Activity, loc *time.Location) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Name: %s\n", a.Name)
	fmt.Fprintf(&sb, "Type: %s\n", a.Type)
	fmt.Fprintf(&sb, "Date: %s\n", a.LocalStart(loc).Format(dateLayout))
	fmt.Fprintf(&sb, "Distance: %s\n", Distance(a.Distance))

	if a.ActivityType() == strava.TypeRun {
		fmt.Fprintf(&sb, "Moving pace: %s\n", Pace(a.Distance, a.MovingTime))
		fmt.Fprintf(&sb, "Elapsed pace: %s\n", Pace(a.Distance, a.ElapsedTime))
	} else {
		fmt.Fprintf(&sb, "Moving speed: %s\n", Speed(a.Distance, a.MovingTime))
		fmt.Fprintf(&sb, "Elapsed speed: %s\n", Speed(a.Distance, a.ElapsedTime))
	}

	fmt.Fprintf(&sb, "Elevation gain: %s", Elevation(a.TotalElevationGain))
	return sb.String()
}

// Summary renders the requested metrics followed by any non-zero milestones.
func Summary(s stats.Summary) string {
	if s.Empty() {
		return NoResults
	}

	var lines []string
	for _, m := range s.Metrics {
		switch m {
		case query.MetricCount:
			lines = append(lines, fmt.Sprintf("Count: %d", s.Count))
		case query.MetricDistance:
			lines = append(lines, "Distance: "+Distance(s.Distance))
		case query.MetricTime:
			lines = append(lines, "Time: "+Duration(s.MovingTime))
		case query.MetricElevation:
			lines = append(lines, "Elevation gain: "+Elevation(s.Elevation))
		}
	}

	var milestones []string
	for _, mc := range s.Milestones {
		if mc.Count > 0 {
			milestones = append(milestones, fmt.Sprintf("%s: %d", MilestoneLabel(mc.Distance), mc.Count))
		}
	}
	if len(milestones) > 0 {
		lines = append(lines, "Milestones:")
		for _, m := range milestones {
			lines = append(lines, "  "+m)
		}
	}
	return strings.Join(lines, "\n")
}

// CacheStatus renders what the activity cache holds, one covered interval
// per line.
func CacheStatus(st cache.Status, loc *time.Location) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Cached activities: %d\n", st.Activities)
	fmt.Fprintf(&sb, "Full history: %s\n", yesNo(st.Everything))
	fmt.Fprintf(&sb, "Hits: %d, fetches: %d", st.Hits, st.Fetches)

	if len(st.Covered) > 0 {
		sb.WriteString("\nCovered:")
		for _, iv := range st.Covered {
			start := "beginning"
			if !iv.Start.IsZero() {
				start = iv.Start.In(loc).Format(dateLayout)
			}
			fmt.Fprintf(&sb, "\n  %s to %s", start, iv.End.In(loc).Format(dateLayout))
		}
	}
	return sb.String()
}

// RateLimit reports the Strava API usage seen on the last response.
func RateLimit(info strava.RateLimitInfo) string {
	if info.Limit15Min == 0 && info.LimitDaily == 0 {
		return "API usage: no requests yet"
	}

	line := fmt.Sprintf("API usage: %d/%d (15 min), %d/%d (daily)",
		info.Usage15Min, info.Limit15Min, info.UsageDaily, info.LimitDaily)
	if info.IsRateLimited {
		line += fmt.Sprintf(", rate limited for %s", info.RecommendedWait.Round(time.Second))
	}
	return line
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// Distance formats meters as kilometers with two decimals.
func Distance(meters float64) string {
	return fmt.Sprintf("%.2fkm", meters/1000)
}

// Pace formats minutes and seconds per kilometer.
func Pace(meters float64, seconds int) string {
	if meters <= 0 || seconds <= 0 {
		return "-"
	}
	secPerKm := int(float64(seconds) * 1000 / meters)
	return fmt.Sprintf("%d:%02dmin/km", secPerKm/60, secPerKm%60)
}

// Speed formats kilometers per hour with two decimals.
func Speed(meters float64, seconds int) string {
	if seconds <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.2fkm/hr", meters/float64(seconds)*3.6)
}

// Elevation rounds to the nearest meter.
func Elevation(meters float64) string {
	return fmt.Sprintf("%dm", int64(math.Round(meters)))
}

// Duration formats seconds as "1h 5m", "12m 3s" or "40s".
func Duration(seconds int64) string {
	if seconds <= 0 {
		return "0s"
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, secs)
	}
	return fmt.Sprintf("%ds", secs)
}

// MilestoneLabel turns 21097.5 into "21.0975k".
func MilestoneLabel(meters float64) string {
	return strconv.FormatFloat(meters/1000, 'f', -1, 64) + "k"
}
