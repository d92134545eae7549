// Package holiday provides read-only public-holiday lookups used by the
// weekend/holiday rule. All calendars are safe for concurrent use.
package holiday

import (
	"sort"

	"cloud.google.com/go/civil"
)

// Calendar answers whether a calendar date is a public holiday.
type Calendar interface {
	IsHoliday(d civil.Date) bool
}

// Set is a fixed collection of holiday dates with names.
type Set struct {
	names map[civil.Date]string
}

// NewSet builds a calendar from explicit dates, e.g. for tests or one-off closures.
func NewSet(dates ...civil.Date) *Set {
	s := &Set{names: make(map[civil.Date]string, len(dates))}
	for _, d := range dates {
		s.names[d] = ""
	}
	return s
}

// IsHoliday implements Calendar.
func (s *Set) IsHoliday(d civil.Date) bool {
	if s == nil || !d.IsValid() {
		return false
	}
	_, ok := s.names[d]
	return ok
}

// Name returns the holiday name for d, if any.
func (s *Set) Name(d civil.Date) (string, bool) {
	if s == nil {
		return "", false
	}
	name, ok := s.names[d]
	return name, ok
}

// Entry is a named holiday date.
type Entry struct {
	Date civil.Date `json:"date"`
	Name string     `json:"name"`
}

// Between lists holidays in [from, to], in date order.
func (s *Set) Between(from, to civil.Date) []Entry {
	if s == nil {
		return nil
	}
	var out []Entry
	for d, name := range s.names {
		if d.Before(from) || d.After(to) {
			continue
		}
		out = append(out, Entry{Date: d, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// None is a calendar without holidays; only weekends are flagged when it is used.
type None struct{}

// IsHoliday implements Calendar.
func (None) IsHoliday(civil.Date) bool { return false }
