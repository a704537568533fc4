package services

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHolidayService_IsWorkday(t *testing.T) {
	s := NewHolidayService()
	tests := []struct {
		name    string
		date    time.Time
		country string
		want    bool
	}{
		{"weekday without calendar", day(2025, 7, 4, 0), CountryNone, true},
		{"saturday without calendar", day(2025, 7, 5, 0), CountryNone, false},
		{"empty code is weekdays only", day(2025, 7, 4, 0), "", true},
		{"unknown code is weekdays only", day(2025, 7, 4, 0), "XX", true},
		{"us independence day", day(2025, 7, 4, 0), "US", false},
		{"us ordinary day", day(2025, 7, 8, 0), "US", true},
		{"gb christmas", day(2025, 12, 25, 0), "GB", false},
		{"cn national day", day(2024, 10, 1, 0), "CN", false},
		{"cn adjusted working sunday", day(2024, 9, 29, 0), "CN", true},
		{"cn ordinary sunday", day(2024, 9, 22, 0), "CN", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.IsWorkday(tt.date, tt.country))
		})
	}
}

func TestHolidayService_WorkdaysBetween(t *testing.T) {
	s := NewHolidayService()

	// Friday 09:00 to the next Wednesday: Mon, Tue, Wed.
	assert.Equal(t, 3, s.WorkdaysBetween(day(2026, 1, 9, 9), day(2026, 1, 14, 10), CountryNone))
	// Same day is not late yet.
	assert.Equal(t, 0, s.WorkdaysBetween(day(2026, 1, 14, 8), day(2026, 1, 14, 18), CountryNone))
	assert.Equal(t, 0, s.WorkdaysBetween(day(2026, 1, 14, 8), day(2026, 1, 12, 8), CountryNone))
	// July 4th 2025 is a Friday and a US holiday.
	assert.Equal(t, 1, s.WorkdaysBetween(day(2025, 7, 3, 9), day(2025, 7, 7, 9), "US"))
	assert.Equal(t, 2, s.WorkdaysBetween(day(2025, 7, 3, 9), day(2025, 7, 7, 9), CountryNone))
}

func TestHolidayService_Countries(t *testing.T) {
	s := NewHolidayService()
	countries := s.GetSupportedCountries()

	assert.Len(t, countries, len(countryNames))
	assert.True(t, sort.SliceIsSorted(countries, func(i, j int) bool { return countries[i].Code < countries[j].Code }))
	for _, c := range countries {
		assert.NotEmpty(t, c.Name, c.Code)
		assert.True(t, s.Supports(c.Code))
	}
	assert.False(t, s.Supports("XX"))
	assert.False(t, s.Supports("us"))
}
