package services

import (
	"sort"
	"time"

	"github.com/6tail/lunar-go/HolidayUtil"
	"github.com/6tail/lunar-go/calendar"
	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/au"
	"github.com/rickar/cal/v2/ca"
	"github.com/rickar/cal/v2/de"
	"github.com/rickar/cal/v2/fr"
	"github.com/rickar/cal/v2/gb"
	"github.com/rickar/cal/v2/jp"
	"github.com/rickar/cal/v2/nl"
	"github.com/rickar/cal/v2/us"
)

// CountryNone means weekdays are workdays and nothing else is observed.
const CountryNone = "NONE"

// HolidayService answers workday questions for the overdue report.
type HolidayService struct {
	calendars map[string]*cal.BusinessCalendar
}

type CountryInfo struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

var countryNames = map[string]string{
	"AU":        "Australia",
	"CA":        "Canada",
	"CN":        "China",
	"DE":        "Germany",
	"FR":        "France",
	"GB":        "United Kingdom",
	"JP":        "Japan",
	"NL":        "Netherlands",
	"US":        "United States",
	CountryNone: "Weekdays only (Mon-Fri)",
}

func NewHolidayService() *HolidayService {
	s := &HolidayService{
		calendars: make(map[string]*cal.BusinessCalendar),
	}
	s.calendars["AU"] = newCalendar("AU", au.HolidaysNSW...)
	s.calendars["CA"] = newCalendar("CA", ca.Holidays...)
	s.calendars["DE"] = newCalendar("DE", de.Holidays...)
	s.calendars["FR"] = newCalendar("FR", fr.Holidays...)
	s.calendars["GB"] = newCalendar("GB", gb.Holidays...)
	s.calendars["JP"] = newCalendar("JP", jp.Holidays...)
	s.calendars["NL"] = newCalendar("NL", nl.Holidays...)
	s.calendars["US"] = newCalendar("US", us.Holidays...)
	return s
}

func newCalendar(code string, holidays ...*cal.Holiday) *cal.BusinessCalendar {
	c := cal.NewBusinessCalendar()
	c.Name = countryNames[code]
	c.AddHoliday(holidays...)
	return c
}

// IsWorkday falls back to plain weekdays for unknown country codes.
func (s *HolidayService) IsWorkday(t time.Time, countryCode string) bool {
	switch countryCode {
	case "CN":
		return isWorkdayChina(t)
	case CountryNone, "":
		return !cal.IsWeekend(t)
	}

	c, ok := s.calendars[countryCode]
	if !ok {
		return !cal.IsWeekend(t)
	}
	return c.IsWorkday(t)
}

// isWorkdayChina honours the official adjusted working weekends.
func isWorkdayChina(t time.Time) bool {
	solar := calendar.NewSolarFromDate(t)
	holiday := HolidayUtil.GetHolidayByYmd(solar.GetYear(), solar.GetMonth(), solar.GetDay())
	if holiday != nil {
		return holiday.IsWork()
	}
	return !cal.IsWeekend(t)
}

// WorkdaysBetween counts workdays after from up to and including to. It is
// zero when to is not after from.
func (s *HolidayService) WorkdaysBetween(from, to time.Time, countryCode string) int {
	start := dateOf(from).AddDate(0, 0, 1)
	end := dateOf(to)
	days := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if s.IsWorkday(d, countryCode) {
			days++
		}
	}
	return days
}

func (s *HolidayService) GetSupportedCountries() []CountryInfo {
	countries := make([]CountryInfo, 0, len(countryNames))
	for code, name := range countryNames {
		countries = append(countries, CountryInfo{Code: code, Name: name})
	}
	sort.Slice(countries, func(i, j int) bool { return countries[i].Code < countries[j].Code })
	return countries
}

func (s *HolidayService) Supports(countryCode string) bool {
	_, ok := countryNames[countryCode]
	return ok
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
