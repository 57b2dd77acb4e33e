package models

import "strings"

// Weekday names a teaching day using upper-case English names.
type Weekday string

const (
	Monday    Weekday = "MONDAY"
	Tuesday   Weekday = "TUESDAY"
	Wednesday Weekday = "WEDNESDAY"
	Thursday  Weekday = "THURSDAY"
	Friday    Weekday = "FRIDAY"
	Saturday  Weekday = "SATURDAY"
	Sunday    Weekday = "SUNDAY"
)

var weekdayAliases = map[string]Weekday{
	"MONDAY":    Monday,
	"MON":       Monday,
	"TUESDAY":   Tuesday,
	"TUE":       Tuesday,
	"WEDNESDAY": Wednesday,
	"WED":       Wednesday,
	"THURSDAY":  Thursday,
	"THU":       Thursday,
	"FRIDAY":    Friday,
	"FRI":       Friday,
	"SATURDAY":  Saturday,
	"SAT":       Saturday,
	"SUNDAY":    Sunday,
	"SUN":       Sunday,
}

// ParseWeekday normalises day names and three letter abbreviations. Unknown values return "".
func ParseWeekday(raw string) Weekday {
	return weekdayAliases[strings.ToUpper(strings.TrimSpace(raw))]
}

// TimeSlot is one cell of the daily teaching grid.
type TimeSlot struct {
	Day       Weekday `json:"day"`
	StartTime string  `json:"startTime"`
	EndTime   string  `json:"endTime"`
}

// Key renders the slot as DAY-HH:MM.
func (t TimeSlot) Key() string {
	return string(t.Day) + "-" + t.StartTime
}

// OccupiedSlot is a room already committed by another pending or approved timetable.
type OccupiedSlot struct {
	Day         Weekday `db:"day_of_week" json:"day"`
	StartTime   string  `db:"start_time" json:"startTime"`
	ClassroomID int64   `db:"classroom_id" json:"classroomId"`
}
