package mess

import (
	"context"
	"errors"

	"canteen/internal/metrics"
)

// errSlotTaken means a concurrent scan marked the slot first.
var errSlotTaken = errors.New("slot already marked")

// RecordUsage marks slot as used on the member's day record and charges the
// day against the monthly quota the first time any slot is used that day.
// A member eating twice in one day consumes one mess-day, not two.
// remaining may go negative; that means over quota, not an error. Marking a
// slot that is already set fails with errSlotTaken.
func (s *Service) RecordUsage(ctx context.Context, memberID int64, slotName, day string) (bool, error) {
	var counted bool
	err := s.repo.InTx(ctx, func(tx *Repository) error {
		if err := tx.EnsureDay(ctx, memberID, day); err != nil {
			return err
		}
		marked, err := tx.MarkSlot(ctx, memberID, day, slotName, s.clock())
		if err != nil {
			return err
		}
		if !marked {
			return errSlotTaken
		}
		flipped, err := tx.ConsumeDay(ctx, memberID, day)
		if err != nil {
			return err
		}
		if !flipped {
			return nil
		}
		counted = true
		return tx.ChargeDay(ctx, memberID)
	})
	if err != nil {
		return false, err
	}
	if counted {
		metrics.MessDaysConsumed.Inc()
	}
	return counted, nil
}
