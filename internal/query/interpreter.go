package query

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joshdurbin/strava-stats/internal/logging"
	"github.com/joshdurbin/strava-stats/internal/strava"
)

// ErrNoActivityType is returned when a query names no run, ride, or walk.
var ErrNoActivityType = fmt.Errorf("expecting an activity of either run, ride, or walk")

// ParseError wraps a parse failure together with the offending query.
type ParseError struct {
	Query string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing query %q: %v", e.Query, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Canonical distances in meters.
const (
	Marathon     = 42195.0
	HalfMarathon = 21097.5
	Century      = 100000.0
)

var (
	rankPattern       = regexp.MustCompile(`(?:\b(\d+)\s+)?\b(longest|fastest|max(?:imum)?\s+elevation)\b`)
	statsPattern      = regexp.MustCompile(`\bstats\b`)
	totalPattern      = regexp.MustCompile(`\btotal((?:\s+(?:and\s+)?(?:distance|time|elevation))*)\b`)
	distancePattern   = regexp.MustCompile(`\b(?:(half[\s-]?marathon)|(marathon)|(century)|(\d+(?:\.\d+)?)\s?km?)\b`)
	activityPattern   = regexp.MustCompile(`\b(run|ride|walk)s?\b`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// clause looks for one kind of fragment in text. On a match it returns p with
// the fragment's effect applied and text with the fragment blanked out, so no
// later clause can match the same words.
type clause func(text string, p Params, now time.Time) (Params, string, bool)

// clauses run in this order, each at most once.
var clauses = []struct {
	name  string
	match clause
}{
	{"rank", rankClause},
	{"aggregate", aggregateClause},
	{"distance", distanceClause},
	{"window", windowClause},
	{"activity", activityClause},
}

// Parse turns a free-text query into Params. now anchors relative time
// phrases such as "last month".
func Parse(raw string, now time.Time) (Params, error) {
	text := normalize(raw)

	var p Params
	for _, c := range clauses {
		var matched bool
		p, text, matched = c.match(text, p, now)
		if matched {
			logging.Logger.Debug().Str("clause", c.name).Str("remaining", text).Msg("query clause matched")
		}
	}

	if p.Type == "" {
		return Params{}, &ParseError{Query: raw, Err: ErrNoActivityType}
	}
	return p, nil
}

func normalize(s string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(strings.ToLower(s), " "))
}

// consume blanks out text[start:end].
func consume(text string, start, end int) string {
	return text[:start] + " " + text[end:]
}

func rankClause(text string, p Params, _ time.Time) (Params, string, bool) {
	m := rankPattern.FindStringSubmatchIndex(text)
	if m == nil {
		return p, text, false
	}

	p.Count = 1
	if m[2] >= 0 {
		if n, err := strconv.Atoi(text[m[2]:m[3]]); err == nil && n > 0 {
			p.Count = n
		}
	}

	switch word := text[m[4]:m[5]]; {
	case word == "longest":
		p.Rank = RankDistance
	case word == "fastest":
		p.Rank = RankSpeed
	default:
		p.Rank = RankElevation
	}
	return p, consume(text, m[0], m[1]), true
}

func aggregateClause(text string, p Params, _ time.Time) (Params, string, bool) {
	if loc := statsPattern.FindStringIndex(text); loc != nil {
		p.Aggregate = &Aggregation{
			Metrics:    append([]Metric(nil), StatsMetrics...),
			Milestones: true,
		}
		return p, consume(text, loc[0], loc[1]), true
	}

	m := totalPattern.FindStringSubmatchIndex(text)
	if m == nil {
		return p, text, false
	}

	agg := &Aggregation{}
	seen := make(map[Metric]bool)
	for _, word := range strings.Fields(text[m[2]:m[3]]) {
		metric := Metric(word)
		if word == "and" || seen[metric] {
			continue
		}
		seen[metric] = true
		agg.Metrics = append(agg.Metrics, metric)
	}
	if len(agg.Metrics) == 0 {
		agg.Metrics = []Metric{MetricCount}
	}
	p.Aggregate = agg
	return p, consume(text, m[0], m[1]), true
}

func distanceClause(text string, p Params, _ time.Time) (Params, string, bool) {
	m := distancePattern.FindStringSubmatchIndex(text)
	if m == nil {
		return p, text, false
	}

	switch {
	case m[2] >= 0:
		p.MinDistance = HalfMarathon
	case m[4] >= 0:
		p.MinDistance = Marathon
	case m[6] >= 0:
		p.MinDistance = Century
	default:
		km, err := strconv.ParseFloat(text[m[8]:m[9]], 64)
		if err != nil {
			return p, text, false
		}
		p.MinDistance = km * 1000
	}
	return p, consume(text, m[0], m[1]), true
}

func windowClause(text string, p Params, now time.Time) (Params, string, bool) {
	w, span, ok := ResolveWindow(text, now)
	if !ok {
		return p, text, false
	}
	p.Window = w
	return p, consume(text, span[0], span[1]), true
}

func activityClause(text string, p Params, _ time.Time) (Params, string, bool) {
	m := activityPattern.FindStringSubmatchIndex(text)
	if m == nil {
		return p, text, false
	}
	t, ok := strava.ParseActivityType(text[m[2]:m[3]])
	if !ok {
		return p, text, false
	}
	p.Type = t
	return p, consume(text, m[0], m[1]), true
}
