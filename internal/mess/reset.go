package mess

import (
	"context"
	"time"

	"go.uber.org/zap"

	"canteen/internal/metrics"
)

// DaysInMonth returns the number of days in the given month.
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// MaybeReset advances the quota month. It does nothing unless today is the
// 1st and the stored marker is from an earlier (year, month). Running it
// again the same month is a no-op, so it is safe to call before every
// request and from a periodic job.
func (s *Service) MaybeReset(ctx context.Context) (bool, error) {
	now := s.Now()
	if now.Day() != 1 {
		return false, nil
	}
	today := now.Format(DateLayout)
	days := DaysInMonth(now.Year(), now.Month())

	var done bool
	err := s.repo.InTx(ctx, func(tx *Repository) error {
		last, err := tx.LastReset(ctx)
		if err != nil {
			return err
		}
		if sameMonth(last, now) {
			return nil
		}
		if err := tx.ResetCounters(ctx, days); err != nil {
			return err
		}
		done = true
		return tx.StampReset(ctx, today)
	})
	if err != nil {
		return false, err
	}
	if done {
		metrics.Resets.WithLabelValues("auto").Inc()
		s.log.Info("monthly reset", zap.String("trigger", "auto"), zap.String("day", today), zap.Int("days_in_month", days))
	}
	return done, nil
}

// ResetMonth resets every member's counters now, whatever the date, and
// stamps the marker so the automatic reset skips the rest of this month.
// It returns the number of days in the current month.
func (s *Service) ResetMonth(ctx context.Context) (int, error) {
	now := s.Now()
	today := now.Format(DateLayout)
	days := DaysInMonth(now.Year(), now.Month())

	err := s.repo.InTx(ctx, func(tx *Repository) error {
		if err := tx.ResetCounters(ctx, days); err != nil {
			return err
		}
		return tx.StampReset(ctx, today)
	})
	if err != nil {
		return 0, err
	}
	metrics.Resets.WithLabelValues("manual").Inc()
	s.log.Info("monthly reset", zap.String("trigger", "manual"), zap.String("day", today), zap.Int("days_in_month", days))
	return days, nil
}

// LastReset returns the stored marker date, "" if the month was never reset.
func (s *Service) LastReset(ctx context.Context) (string, error) {
	return s.repo.LastReset(ctx)
}

func sameMonth(stamp string, now time.Time) bool {
	if stamp == "" {
		return false
	}
	t, err := time.Parse(DateLayout, stamp)
	if err != nil {
		return false
	}
	return t.Year() == now.Year() && t.Month() == now.Month()
}
