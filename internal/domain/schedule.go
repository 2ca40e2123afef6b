package domain

import "time"

type Batch struct {
	ID   string
	Name string
}

type Student struct {
	ID        string
	RollNo    string
	Name      string
	Email     string
	GoogleSub string
	BatchID   string
}

type Subject struct {
	ID   string
	Code string
	Name string
}

// TimetableEntry is one recurring slot in a batch's weekly schedule. Times are
// local "HH:MM" strings compared lexically, matching the seeded schedule data.
type TimetableEntry struct {
	ID        string
	BatchID   string
	SubjectID string
	DayOfWeek int
	StartTime string
	EndTime   string
	Lat       float64
	Lon       float64

	Subject Subject
}

// SlotEnd resolves the entry's end time on the given day in the given zone.
func (t TimetableEntry) SlotEnd(day time.Time, loc *time.Location) time.Time {
	end, err := time.ParseInLocation("15:04", t.EndTime, loc)
	if err != nil {
		return day
	}
	return time.Date(day.Year(), day.Month(), day.Day(), end.Hour(), end.Minute(), 0, 0, loc)
}

// HistoryItem is one verified attendance entry in a student's per-subject history.
type HistoryItem struct {
	ID        string
	ClassName string
	Status    string
	Timestamp time.Time
}
