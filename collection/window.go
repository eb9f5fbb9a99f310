package collection

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidWindow is returned for windows whose start is not before their end, and for
// pre/post window pairs that overlap.
var ErrInvalidWindow = errors.New("collection: invalid time window")

// timeLayouts are tried in order by ParseTime.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTime parses a timestamp as written in configuration files. Values without a zone
// are interpreted in UTC.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("collection: unrecognised timestamp %q", s)
}

// TimeWindow is the half-open interval [Start, End).
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// NewWindow validates and returns the window [start, end).
func NewWindow(start, end time.Time) (TimeWindow, error) {
	w := TimeWindow{Start: start.UTC(), End: end.UTC()}
	if err := w.Validate(); err != nil {
		return TimeWindow{}, err
	}
	return w, nil
}

// ParseWindow parses both bounds with ParseTime.
func ParseWindow(start, end string) (TimeWindow, error) {
	s, err := ParseTime(start)
	if err != nil {
		return TimeWindow{}, err
	}
	e, err := ParseTime(end)
	if err != nil {
		return TimeWindow{}, err
	}
	return NewWindow(s, e)
}

// Validate reports whether the window is non-empty.
func (w TimeWindow) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return fmt.Errorf("%w: missing bound", ErrInvalidWindow)
	}
	if !w.Start.Before(w.End) {
		return fmt.Errorf("%w: start %s is not before end %s", ErrInvalidWindow,
			w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
	}
	return nil
}

// Contains reports whether t falls inside [Start, End).
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

func (w TimeWindow) String() string {
	return w.Start.Format(time.RFC3339) + "/" + w.End.Format(time.RFC3339)
}

// CheckSequence validates both windows and requires post to start no earlier than pre ends.
func CheckSequence(pre, post TimeWindow) error {
	if err := pre.Validate(); err != nil {
		return fmt.Errorf("pre-event window: %w", err)
	}
	if err := post.Validate(); err != nil {
		return fmt.Errorf("post-event window: %w", err)
	}
	if post.Start.Before(pre.End) {
		return fmt.Errorf("%w: post-event window %s overlaps pre-event window %s", ErrInvalidWindow, post, pre)
	}
	return nil
}
