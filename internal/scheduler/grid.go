package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/timetable-api/internal/models"
)

// Period is one daily teaching window, e.g. 09:00-10:00.
type Period struct {
	Start string
	End   string
}

// DefaultDays is the teaching week used when none is configured.
var DefaultDays = []models.Weekday{
	models.Monday,
	models.Tuesday,
	models.Wednesday,
	models.Thursday,
	models.Friday,
}

// DefaultPeriods are eight one-hour periods between 09:00 and 18:00 with a lunch gap at 13:00.
var DefaultPeriods = []Period{
	{Start: "09:00", End: "10:00"},
	{Start: "10:00", End: "11:00"},
	{Start: "11:00", End: "12:00"},
	{Start: "12:00", End: "13:00"},
	{Start: "14:00", End: "15:00"},
	{Start: "15:00", End: "16:00"},
	{Start: "16:00", End: "17:00"},
	{Start: "17:00", End: "18:00"},
}

// DefaultGrid returns the default weekly grid in placement order.
func DefaultGrid() []models.TimeSlot {
	return BuildGrid(DefaultDays, DefaultPeriods)
}

// BuildGrid expands days × periods into a day-major list of time slots.
func BuildGrid(days []models.Weekday, periods []Period) []models.TimeSlot {
	grid := make([]models.TimeSlot, 0, len(days)*len(periods))
	for _, day := range days {
		for _, period := range periods {
			grid = append(grid, models.TimeSlot{Day: day, StartTime: period.Start, EndTime: period.End})
		}
	}
	return grid
}

// ParseDays converts configured day names into weekdays, preserving order and dropping duplicates.
func ParseDays(raw []string) ([]models.Weekday, error) {
	seen := make(map[models.Weekday]bool, len(raw))
	days := make([]models.Weekday, 0, len(raw))
	for _, item := range raw {
		day := models.ParseWeekday(item)
		if day == "" {
			return nil, fmt.Errorf("unknown weekday %q", item)
		}
		if seen[day] {
			continue
		}
		seen[day] = true
		days = append(days, day)
	}
	return days, nil
}

// ParsePeriods converts HH:MM-HH:MM strings into periods.
func ParsePeriods(raw []string) ([]Period, error) {
	periods := make([]Period, 0, len(raw))
	var prevEnd time.Time
	for idx, item := range raw {
		parts := strings.SplitN(strings.TrimSpace(item), "-", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("period %q must look like HH:MM-HH:MM", item)
		}
		start, err := time.Parse("15:04", strings.TrimSpace(parts[0]))
		if err != nil {
			return nil, fmt.Errorf("period %q start: %w", item, err)
		}
		end, err := time.Parse("15:04", strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, fmt.Errorf("period %q end: %w", item, err)
		}
		if !end.After(start) {
			return nil, fmt.Errorf("period %q ends before it starts", item)
		}
		if idx > 0 && start.Before(prevEnd) {
			return nil, fmt.Errorf("period %q overlaps the previous period", item)
		}
		prevEnd = end
		periods = append(periods, Period{Start: start.Format("15:04"), End: end.Format("15:04")})
	}
	return periods, nil
}

// gridIndex looks up grid cells by day and start time.
type gridIndex map[models.Weekday]map[string]models.TimeSlot

func indexGrid(grid []models.TimeSlot) gridIndex {
	idx := make(gridIndex)
	for _, slot := range grid {
		if idx[slot.Day] == nil {
			idx[slot.Day] = make(map[string]models.TimeSlot)
		}
		idx[slot.Day][slot.StartTime] = slot
	}
	return idx
}

func (g gridIndex) lookup(day models.Weekday, start string) (models.TimeSlot, bool) {
	byStart, ok := g[day]
	if !ok {
		return models.TimeSlot{}, false
	}
	slot, ok := byStart[start]
	return slot, ok
}
