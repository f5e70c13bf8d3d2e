package mess

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

const timestampLayout = "2006-01-02 15:04:05"

var exportHeader = []string{
	"Scan ID",
	"Scanned At",
	"Valid Date",
	"Slot",
	"Success",
	"Message",
	"Member Name",
	"Roll / ID",
}

// RecentScans returns up to limit scans, newest first.
func (s *Service) RecentScans(ctx context.Context, limit int) ([]LogEntry, error) {
	logs, err := s.repo.RecentScans(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]LogEntry, 0, len(logs))
	for _, l := range logs {
		out = append(out, LogEntry{
			ID:        l.ID,
			ScannedAt: l.ScannedAt.In(s.loc).Format(timestampLayout),
			Name:      l.Name,
			Slot:      l.Slot,
			Success:   l.Success,
			Message:   l.Message,
		})
	}
	return out, nil
}

// ExportLogs renders every scan as CSV, oldest first, and then deletes them
// all. Export is a one-shot drain: the caller must keep the file. The CSV is
// lossy: fields are joined by commas without quoting, and any
// comma inside a value becomes a space. It returns the CSV and the number of
// scans drained.
func (s *Service) ExportLogs(ctx context.Context) ([]byte, int, error) {
	var rows []ExportRow
	err := s.repo.InTx(ctx, func(tx *Repository) error {
		var err error
		if rows, err = tx.ExportRows(ctx); err != nil {
			return err
		}
		_, err = tx.DeleteAllScans(ctx)
		return err
	})
	if err != nil {
		return nil, 0, err
	}

	lines := make([]string, 0, len(rows)+1)
	lines = append(lines, csvLine(exportHeader))
	for _, r := range rows {
		success := "0"
		if r.Success {
			success = "1"
		}
		lines = append(lines, csvLine([]string{
			strconv.FormatInt(r.ID, 10),
			r.ScannedAt.In(s.loc).Format(timestampLayout),
			r.ValidDate,
			r.Slot,
			success,
			r.Message,
			r.Name,
			r.RollOrID,
		}))
	}

	s.log.Info("scan log exported", zap.Int("rows", len(rows)))
	return []byte(strings.Join(lines, "\n")), len(rows), nil
}

func csvLine(fields []string) string {
	clean := make([]string, len(fields))
	for i, f := range fields {
		clean[i] = strings.ReplaceAll(f, ",", " ")
	}
	return strings.Join(clean, ",")
}

// Status returns a member's quota summary; an unknown member reads as all zeros.
func (s *Service) Status(ctx context.Context, memberID int64) (Status, error) {
	m, err := s.repo.GetMember(ctx, memberID)
	if err != nil || m == nil {
		return Status{}, err
	}
	return Status{
		UsedDays:     m.UsedDays,
		Remaining:    m.Remaining,
		CarryForward: m.CarryForward,
		PaidDays:     m.UsedDays + m.Remaining,
	}, nil
}

// Overview lists every member's counters ordered by name.
func (s *Service) Overview(ctx context.Context) ([]Counters, error) {
	return s.repo.ListCounters(ctx)
}
