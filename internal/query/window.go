package query

import (
	"regexp"
	"time"
)

// Window is a closed [After, Before] interval. A zero bound is unbounded.
type Window struct {
	After  time.Time
	Before time.Time
}

// IsUnbounded reports whether neither bound is set.
func (w Window) IsUnbounded() bool {
	return w.After.IsZero() && w.Before.IsZero()
}

// Contains reports whether t falls inside the window, bounds inclusive.
func (w Window) Contains(t time.Time) bool {
	if !w.After.IsZero() && t.Before(w.After) {
		return false
	}
	if !w.Before.IsZero() && t.After(w.Before) {
		return false
	}
	return true
}

var windowPattern = regexp.MustCompile(
	`\b(?:(last|this)\s+(month|year)|` +
		`(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|` +
		`sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?))\b`)

var monthsByPrefix = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// ResolveWindow finds the first time phrase in text and turns it into a
// concrete window relative to now. text must already be lower case. The
// returned span is the byte range of the phrase; ok is false when text
// holds no time phrase.
func ResolveWindow(text string, now time.Time) (w Window, span [2]int, ok bool) {
	m := windowPattern.FindStringSubmatchIndex(text)
	if m == nil {
		return Window{}, span, false
	}
	span = [2]int{m[0], m[1]}

	if m[2] >= 0 {
		relative, unit := text[m[2]:m[3]], text[m[4]:m[5]]
		return relativeWindow(relative, unit, now), span, true
	}

	month := monthsByPrefix[text[m[6]:m[6]+3]]
	return monthWindow(now.Year(), month, now.Location()), span, true
}

func relativeWindow(relative, unit string, now time.Time) Window {
	loc := now.Location()
	today := endOfDay(now)

	switch {
	case relative == "last" && unit == "month":
		// time.Date normalizes month 0 to December of the previous year.
		first := time.Date(now.Year(), now.Month()-1, 1, 0, 0, 0, 0, loc)
		return monthWindow(first.Year(), first.Month(), loc)
	case relative == "last" && unit == "year":
		return Window{
			After:  time.Date(now.Year()-1, time.January, 1, 0, 0, 0, 0, loc),
			Before: time.Date(now.Year()-1, time.December, 31, 23, 59, 59, 0, loc),
		}
	case relative == "this" && unit == "month":
		return Window{
			After:  time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc),
			Before: today,
		}
	default: // this year
		return Window{
			After:  time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, loc),
			Before: today,
		}
	}
}

// monthWindow spans 00:00:00 on the first through 23:59:59 on the last day.
func monthWindow(year int, month time.Month, loc *time.Location) Window {
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	last := first.AddDate(0, 1, -1)
	return Window{After: first, Before: endOfDay(last)}
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
}
