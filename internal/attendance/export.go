package attendance

import (
	"context"
	"encoding/csv"
	"io"
	"strings"
	"time"
)

// ExportHeader is the header row of an attendance export.
var ExportHeader = []string{"Name", "Email", "Batch", "Status", "Check-in Time", "Notes"}

// isoMillis matches the ISO 8601 form browsers produce for Date values.
const isoMillis = "2006-01-02T15:04:05.000Z"

// Export is a prepared CSV download.
type Export struct {
	Filename string
	Rows     [][]string
}

// Write writes the header and rows as CSV.
func (e Export) Write(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ExportHeader); err != nil {
		return err
	}
	return cw.WriteAll(e.Rows)
}

// ExportSession builds the CSV export of a session, one row per record.
func (s *Service) ExportSession(ctx context.Context, sessionID string) (Export, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return Export{}, err
	}
	entries, err := s.entries(ctx, sess.ID)
	if err != nil {
		return Export{}, err
	}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		var name, email, batch string
		if e.User != nil {
			name, email, batch = e.User.Name, e.User.Email, e.User.Batch
		}
		checkIn := ""
		if e.CheckInTime != nil {
			checkIn = e.CheckInTime.UTC().Format(isoMillis)
		}
		rows = append(rows, []string{name, email, batch, string(e.Status), checkIn, e.Notes})
	}
	return Export{Filename: ExportFilename(sess.Title, sess.Date.In(s.loc)), Rows: rows}, nil
}

// ExportFilename is attendance-<title with spaces as dashes>-<YYYY-MM-DD>.csv.
func ExportFilename(title string, date time.Time) string {
	slug := strings.Join(strings.Fields(title), "-")
	slug = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', '"', ':', '*', '?', '<', '>', '|':
			return -1
		}
		return r
	}, slug)
	return "attendance-" + slug + "-" + date.Format(time.DateOnly) + ".csv"
}
