package strava

import (
	"strings"
	"time"
)

// ActivityType is the Strava activity type this tool understands.
type ActivityType string

const (
	TypeRun  ActivityType = "Run"
	TypeRide ActivityType = "Ride"
	TypeWalk ActivityType = "Walk"
)

// ParseActivityType maps "run", "Rides", "WALK" and friends onto an ActivityType.
func ParseActivityType(s string) (ActivityType, bool) {
	s = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "s")
	switch s {
	case "run":
		return TypeRun, true
	case "ride":
		return TypeRide, true
	case "walk":
		return TypeWalk, true
	}
	return "", false
}

// Activity represents a Strava activity from the API
type Activity struct {
	ID                 int64     `json:"id"`
	Name               string    `json:"name"`
	Distance           float64   `json:"distance"`
	MovingTime         int       `json:"moving_time"`
	ElapsedTime        int       `json:"elapsed_time"`
	TotalElevationGain float64   `json:"total_elevation_gain"`
	Type               string    `json:"type"`
	SportType          string    `json:"sport_type"`
	StartDate          time.Time `json:"start_date"`
	StartDateLocal     time.Time `json:"start_date_local"`
	Timezone           string    `json:"timezone"`
	AverageSpeed       float64   `json:"average_speed"`
	MaxSpeed           float64   `json:"max_speed"`
}

// ActivityType returns the activity's type.
func (a Activity) ActivityType() ActivityType {
	return ActivityType(a.Type)
}

// LocalStart returns the athlete's local start time placed in loc.
//
// Strava encodes start_date_local as a wall-clock time with a bogus "Z"
// suffix, so the wall-clock fields are kept and the zone is replaced.
func (a Activity) LocalStart(loc *time.Location) time.Time {
	t := a.StartDateLocal
	if t.IsZero() {
		t = a.StartDate.In(loc)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
}
