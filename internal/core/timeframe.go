package core

import (
	"fmt"
	"time"
)

// Timeframe names a bar interval from the static registry.
type Timeframe string

const (
	M1  Timeframe = "M1"
	M5  Timeframe = "M5"
	M15 Timeframe = "M15"
	M30 Timeframe = "M30"
	H1  Timeframe = "H1"
	H4  Timeframe = "H4"
	D1  Timeframe = "D1"
)

type timeframeSpec struct {
	minutes      int
	resampleRule string
	sortIndex    int
}

// Static registry. All alignment math is UTC wall clock; DST never applies.
var timeframeRegistry = map[Timeframe]timeframeSpec{
	M1:  {minutes: 1, resampleRule: "1min", sortIndex: 0},
	M5:  {minutes: 5, resampleRule: "5min", sortIndex: 1},
	M15: {minutes: 15, resampleRule: "15min", sortIndex: 2},
	M30: {minutes: 30, resampleRule: "30min", sortIndex: 3},
	H1:  {minutes: 60, resampleRule: "1h", sortIndex: 4},
	H4:  {minutes: 240, resampleRule: "4h", sortIndex: 5},
	D1:  {minutes: 1440, resampleRule: "1d", sortIndex: 6},
}

// AllTimeframes returns every registered timeframe in ascending order.
func AllTimeframes() []Timeframe {
	return []Timeframe{M1, M5, M15, M30, H1, H4, D1}
}

// ParseTimeframe validates a timeframe name.
func ParseTimeframe(name string) (Timeframe, error) {
	tf := Timeframe(name)
	if _, ok := timeframeRegistry[tf]; !ok {
		return "", fmt.Errorf("unknown timeframe %q", name)
	}
	return tf, nil
}

// TimeframeMinutes returns the interval length in minutes. Unknown
// timeframes return 0.
func TimeframeMinutes(tf Timeframe) int {
	return timeframeRegistry[tf].minutes
}

// TimeframeDuration returns the interval length as a time.Duration.
func TimeframeDuration(tf Timeframe) time.Duration {
	return time.Duration(timeframeRegistry[tf].minutes) * time.Minute
}

// ResampleRule returns the store's resample rule string for a timeframe.
func ResampleRule(tf Timeframe) string {
	return timeframeRegistry[tf].resampleRule
}

// TimeframeSortIndex orders timeframes ascending by interval length.
func TimeframeSortIndex(tf Timeframe) int {
	return timeframeRegistry[tf].sortIndex
}

// SortTimeframes sorts a slice ascending in place and returns it.
func SortTimeframes(tfs []Timeframe) []Timeframe {
	for i := 1; i < len(tfs); i++ {
		for j := i; j > 0 && TimeframeSortIndex(tfs[j]) < TimeframeSortIndex(tfs[j-1]); j-- {
			tfs[j], tfs[j-1] = tfs[j-1], tfs[j]
		}
	}
	return tfs
}

// AlignBarOpen floors a UTC timestamp to the open of its containing bar.
// Inputs must already be UTC; the result is UTC-stable year round.
func AlignBarOpen(t time.Time, tf Timeframe) time.Time {
	return t.UTC().Truncate(TimeframeDuration(tf))
}

// AlignKey identifies one aligned bar interval. It is the cache key used
// by AlignCache so repeated ticks inside the same interval skip the floor.
type AlignKey struct {
	Year      int
	Month     time.Month
	Day       int
	Hour      int
	Minute    int
	Timeframe Timeframe
}

func alignKeyFor(t time.Time, tf Timeframe) AlignKey {
	u := t.UTC()
	m := TimeframeMinutes(tf)
	minute := 0
	if m < 60 {
		minute = (u.Minute() / m) * m
	}
	hour := u.Hour()
	if m >= 60 && m < 1440 {
		h := m / 60
		hour = (hour / h) * h
	}
	if m >= 1440 {
		hour = 0
	}
	return AlignKey{Year: u.Year(), Month: u.Month(), Day: u.Day(), Hour: hour, Minute: minute, Timeframe: tf}
}

// AlignCache memoizes AlignBarOpen per interval. It is scenario-local and
// not safe for concurrent writers; each bar controller owns one.
type AlignCache struct {
	entries map[AlignKey]time.Time
}

// NewAlignCache creates an empty cache.
func NewAlignCache() *AlignCache {
	return &AlignCache{entries: make(map[AlignKey]time.Time)}
}

// BarOpen returns the cached aligned open for t, computing it on miss.
func (c *AlignCache) BarOpen(t time.Time, tf Timeframe) time.Time {
	key := alignKeyFor(t, tf)
	if open, ok := c.entries[key]; ok {
		return open
	}
	open := AlignBarOpen(t, tf)
	c.entries[key] = open
	return open
}

// IsBarComplete reports whether a bar opened at barOpen is closed as of
// now: the current time has moved past the bar's interval.
func IsBarComplete(barOpen, now time.Time, tf Timeframe) bool {
	return AlignBarOpen(now, tf).After(barOpen)
}
