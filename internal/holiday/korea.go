package holiday

import (
	"sort"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/6tail/lunar-go/calendar"
)

// Korean holiday names.
const (
	NameNewYear         = "신정"
	NameSeollalEve      = "설날 전날"
	NameSeollal         = "설날"
	NameSeollalAfter    = "설날 다음날"
	NameIndependence    = "삼일절"
	NameChildren        = "어린이날"
	NameBuddha          = "부처님오신날"
	NameMemorial        = "현충일"
	NameLiberation      = "광복절"
	NameChuseokEve      = "추석 전날"
	NameChuseok         = "추석"
	NameChuseokAfter    = "추석 다음날"
	NameFoundation      = "개천절"
	NameHangul          = "한글날"
	NameChristmas       = "기독탄신일"
	NameSubstitute      = "대체공휴일"
	NameExtraClosureDay = "임시공휴일"
)

// lunarYear holds the solar dates of the lunar-calendar holidays of one year:
// lunar 1/1 (Seollal), 4/8 (Buddha's Birthday) and 8/15 (Chuseok).
type lunarYear struct {
	seollal, buddha, chuseok [2]int // month, day
}

// lunarTable is the official Korean almanac for the years it lists.
var lunarTable = map[int]lunarYear{
	2010: {seollal: [2]int{2, 14}, buddha: [2]int{5, 21}, chuseok: [2]int{9, 22}},
	2011: {seollal: [2]int{2, 3}, buddha: [2]int{5, 10}, chuseok: [2]int{9, 12}},
	2012: {seollal: [2]int{1, 23}, buddha: [2]int{5, 28}, chuseok: [2]int{9, 30}},
	2013: {seollal: [2]int{2, 10}, buddha: [2]int{5, 17}, chuseok: [2]int{9, 19}},
	2014: {seollal: [2]int{1, 31}, buddha: [2]int{5, 6}, chuseok: [2]int{9, 8}},
	2015: {seollal: [2]int{2, 19}, buddha: [2]int{5, 25}, chuseok: [2]int{9, 27}},
	2016: {seollal: [2]int{2, 8}, buddha: [2]int{5, 14}, chuseok: [2]int{9, 15}},
	2017: {seollal: [2]int{1, 28}, buddha: [2]int{5, 3}, chuseok: [2]int{10, 4}},
	2018: {seollal: [2]int{2, 16}, buddha: [2]int{5, 22}, chuseok: [2]int{9, 24}},
	2019: {seollal: [2]int{2, 5}, buddha: [2]int{5, 12}, chuseok: [2]int{9, 13}},
	2020: {seollal: [2]int{1, 25}, buddha: [2]int{4, 30}, chuseok: [2]int{10, 1}},
	2021: {seollal: [2]int{2, 12}, buddha: [2]int{5, 19}, chuseok: [2]int{9, 21}},
	2022: {seollal: [2]int{2, 1}, buddha: [2]int{5, 8}, chuseok: [2]int{9, 10}},
	2023: {seollal: [2]int{1, 22}, buddha: [2]int{5, 27}, chuseok: [2]int{9, 29}},
	2024: {seollal: [2]int{2, 10}, buddha: [2]int{5, 15}, chuseok: [2]int{9, 17}},
	2025: {seollal: [2]int{1, 29}, buddha: [2]int{5, 5}, chuseok: [2]int{10, 6}},
	2026: {seollal: [2]int{2, 17}, buddha: [2]int{5, 24}, chuseok: [2]int{9, 25}},
	2027: {seollal: [2]int{2, 7}, buddha: [2]int{5, 13}, chuseok: [2]int{9, 15}},
	2028: {seollal: [2]int{1, 26}, buddha: [2]int{5, 2}, chuseok: [2]int{10, 3}},
	2029: {seollal: [2]int{2, 13}, buddha: [2]int{5, 20}, chuseok: [2]int{9, 22}},
	2030: {seollal: [2]int{2, 3}, buddha: [2]int{5, 9}, chuseok: [2]int{9, 12}},
	2031: {seollal: [2]int{1, 23}, buddha: [2]int{5, 28}, chuseok: [2]int{10, 1}},
}

// LunarYears reports the range of years whose lunar holidays come from the
// official table. Other years in ComputedFirstYear..ComputedLastYear are
// converted from the Chinese lunisolar calendar, which can land a day off
// the Korean one in rare years.
func LunarYears() (first, last int) {
	first, last = 1<<31-1, 0
	for y := range lunarTable {
		if y < first {
			first = y
		}
		if y > last {
			last = y
		}
	}
	return first, last
}

// Years outside this span get fixed-date holidays only.
const (
	ComputedFirstYear = 1901
	ComputedLastYear  = 2099
)

// LunarKnown reports whether lunar holidays can be placed in year y.
func LunarKnown(y int) bool {
	if _, ok := lunarTable[y]; ok {
		return true
	}
	return y >= ComputedFirstYear && y <= ComputedLastYear
}

// The lunar-go calendar package caches its last computed year globally.
var lunarMu sync.Mutex

func lunarDates(y int) (lunarYear, bool) {
	if ly, ok := lunarTable[y]; ok {
		return ly, true
	}
	if !LunarKnown(y) {
		return lunarYear{}, false
	}

	lunarMu.Lock()
	defer lunarMu.Unlock()
	return lunarYear{
		seollal: toSolar(y, 1, 1),
		buddha:  toSolar(y, 4, 8),
		chuseok: toSolar(y, 8, 15),
	}, true
}

func toSolar(y, m, d int) [2]int {
	s := calendar.NewLunarFromYmd(y, m, d).GetSolar()
	return [2]int{s.GetMonth(), s.GetDay()}
}

// substitution describes a holiday (or 3-day block) that earns a substitute
// weekday when it collides with a weekend or another holiday.
type substitution struct {
	days           []civil.Date
	since          int
	onSaturday     bool
	onOtherHoliday bool
}

// Korea is the South Korean public-holiday calendar, substitute holidays
// included. Each year is built on first use and cached, so any year can be
// queried. Safe for concurrent use.
type Korea struct {
	extra map[int][]civil.Date

	mu    sync.Mutex
	years map[int]*Set
}

// NewKorea creates the calendar plus any extra one-off closure dates.
func NewKorea(extra ...civil.Date) *Korea {
	k := &Korea{extra: make(map[int][]civil.Date), years: make(map[int]*Set)}
	for _, d := range extra {
		if d.IsValid() {
			k.extra[d.Year] = append(k.extra[d.Year], d)
		}
	}
	return k
}

// IsHoliday implements Calendar.
func (k *Korea) IsHoliday(d civil.Date) bool {
	if k == nil || !d.IsValid() {
		return false
	}
	return k.year(d.Year).IsHoliday(d)
}

// Name returns the holiday name for d, if any.
func (k *Korea) Name(d civil.Date) (string, bool) {
	if k == nil || !d.IsValid() {
		return "", false
	}
	return k.year(d.Year).Name(d)
}

// Between lists holidays in [from, to], in date order.
func (k *Korea) Between(from, to civil.Date) []Entry {
	if k == nil {
		return nil
	}
	var out []Entry
	for y := from.Year; y <= to.Year; y++ {
		out = append(out, k.year(y).Between(from, to)...)
	}
	return out
}

func (k *Korea) year(y int) *Set {
	k.mu.Lock()
	defer k.mu.Unlock()

	s, ok := k.years[y]
	if !ok {
		s = buildYear(y, k.extra[y])
		k.years[y] = s
	}
	return s
}

func buildYear(y int, extra []civil.Date) *Set {
	names := make(map[civil.Date][]string)
	add := func(d civil.Date, name string) {
		names[d] = append(names[d], name)
	}
	date := func(m, d int) civil.Date {
		return civil.Date{Year: y, Month: time.Month(m), Day: d}
	}

	add(date(1, 1), NameNewYear)
	add(date(3, 1), NameIndependence)
	add(date(5, 5), NameChildren)
	add(date(6, 6), NameMemorial)
	add(date(8, 15), NameLiberation)
	add(date(10, 3), NameFoundation)
	if y >= 2013 {
		add(date(10, 9), NameHangul)
	}
	add(date(12, 25), NameChristmas)

	subs := []substitution{
		{days: []civil.Date{date(5, 5)}, since: 2014, onSaturday: true, onOtherHoliday: true},
		{days: []civil.Date{date(3, 1)}, since: 2021, onSaturday: true},
		{days: []civil.Date{date(8, 15)}, since: 2021, onSaturday: true},
		{days: []civil.Date{date(10, 3)}, since: 2021, onSaturday: true},
		{days: []civil.Date{date(10, 9)}, since: 2021, onSaturday: true},
		{days: []civil.Date{date(12, 25)}, since: 2023, onSaturday: true},
	}

	if lunar, ok := lunarDates(y); ok {
		seollal := date(lunar.seollal[0], lunar.seollal[1])
		add(seollal.AddDays(-1), NameSeollalEve)
		add(seollal, NameSeollal)
		add(seollal.AddDays(1), NameSeollalAfter)

		buddha := date(lunar.buddha[0], lunar.buddha[1])
		add(buddha, NameBuddha)

		chuseok := date(lunar.chuseok[0], lunar.chuseok[1])
		add(chuseok.AddDays(-1), NameChuseokEve)
		add(chuseok, NameChuseok)
		add(chuseok.AddDays(1), NameChuseokAfter)

		subs = append(subs,
			substitution{days: []civil.Date{seollal.AddDays(-1), seollal, seollal.AddDays(1)}, since: 2014, onOtherHoliday: true},
			substitution{days: []civil.Date{chuseok.AddDays(-1), chuseok, chuseok.AddDays(1)}, since: 2014, onOtherHoliday: true},
			substitution{days: []civil.Date{buddha}, since: 2023, onSaturday: true},
		)
	}

	sort.SliceStable(subs, func(i, j int) bool {
		return subs[i].days[len(subs[i].days)-1].Before(subs[j].days[len(subs[j].days)-1])
	})

	for _, s := range subs {
		if !s.triggered(names) {
			continue
		}
		d := s.days[len(s.days)-1].AddDays(1)
		for isWeekend(d) || len(names[d]) > 0 {
			d = d.AddDays(1)
		}
		add(d, NameSubstitute)
	}

	for _, d := range extra {
		add(d, NameExtraClosureDay)
	}

	set := &Set{names: make(map[civil.Date]string, len(names))}
	for d, ns := range names {
		set.names[d] = strings.Join(ns, ", ")
	}
	return set
}

func (s substitution) triggered(names map[civil.Date][]string) bool {
	if s.days[0].Year < s.since {
		return false
	}
	for _, d := range s.days {
		switch wd := d.In(time.UTC).Weekday(); {
		case wd == time.Sunday:
			return true
		case wd == time.Saturday && s.onSaturday:
			return true
		case s.onOtherHoliday && len(names[d]) > 1:
			return true
		}
	}
	return false
}

func isWeekend(d civil.Date) bool {
	wd := d.In(time.UTC).Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
