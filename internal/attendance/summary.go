package attendance

import "time"

// Summary counts the records of a session or user by status.
type Summary struct {
	Present int `json:"present"`
	Absent  int `json:"absent"`
	Late    int `json:"late"`
	Excused int `json:"excused"`
	Total   int `json:"total"`
}

// UserSummary adds the participation percentage to a Summary.
type UserSummary struct {
	Summary
	Percentage int `json:"percentage"`
}

// Summarize folds grouped counts into a Summary. Missing statuses count as
// zero and unknown ones are ignored.
func Summarize(c Counts) Summary {
	s := Summary{
		Present: c[StatusPresent],
		Absent:  c[StatusAbsent],
		Late:    c[StatusLate],
		Excused: c[StatusExcused],
	}
	s.Total = s.Present + s.Absent + s.Late + s.Excused
	return s
}

// Add returns the element-wise sum of s and o.
func (s Summary) Add(o Summary) Summary {
	return Summary{
		Present: s.Present + o.Present,
		Absent:  s.Absent + o.Absent,
		Late:    s.Late + o.Late,
		Excused: s.Excused + o.Excused,
		Total:   s.Total + o.Total,
	}
}

// Attended is the number of present and late records.
func (s Summary) Attended() int { return s.Present + s.Late }

// Rate is the rounded percentage of attended records, 0 when empty.
func (s Summary) Rate() int { return Percentage(s.Attended(), s.Total) }

// WithPercentage converts s to a UserSummary.
func (s Summary) WithPercentage() UserSummary {
	return UserSummary{Summary: s, Percentage: s.Rate()}
}

// Percentage returns round(part/total*100) with halves rounded up, or 0 when
// total is 0.
func Percentage(part, total int) int {
	if total <= 0 {
		return 0
	}
	return (part*200 + total) / (total * 2)
}

// SessionBreakdown is the summary of one session inside Analytics.
type SessionBreakdown struct {
	SessionID string    `json:"sessionId"`
	Title     string    `json:"title"`
	Date      time.Time `json:"date"`
	Summary
}

// Analytics aggregates attendance over the sessions in a date range.
type Analytics struct {
	From           *time.Time         `json:"startDate,omitempty"`
	To             *time.Time         `json:"endDate,omitempty"`
	TotalSessions  int                `json:"totalSessions"`
	TotalRecords   int                `json:"totalRecords"`
	Overall        Summary            `json:"overall"`
	BySession      []SessionBreakdown `json:"bySession"`
	AttendanceRate int                `json:"attendanceRate"`
}
