package mess

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"canteen/internal/slot"
	"canteen/internal/store"
)

// NewMember is the admin input for registering a member.
type NewMember struct {
	Name         string
	RollOrID     string
	AllowedSlots string
}

// CreateMember registers a member with a full quota for the current month.
func (s *Service) CreateMember(ctx context.Context, in NewMember) (int64, error) {
	name := strings.TrimSpace(in.Name)
	roll := strings.TrimSpace(in.RollOrID)
	if name == "" || roll == "" || strings.TrimSpace(in.AllowedSlots) == "" {
		return 0, ErrMissingFields
	}
	slots, err := s.normalizeSlots(in.AllowedSlots)
	if err != nil {
		return 0, err
	}

	now := s.Now()
	id, err := s.repo.InsertMember(ctx, Member{
		Name:         name,
		RollOrID:     roll,
		AllowedSlots: slots,
		Remaining:    DaysInMonth(now.Year(), now.Month()),
	})
	if err != nil {
		if store.IsUniqueViolation(err) {
			return 0, ErrDuplicateRoll
		}
		return 0, err
	}
	s.log.Info("member created", zap.Int64("member_id", id), zap.String("slots", slots))
	return id, nil
}

// normalizeSlots trims and de-duplicates a comma list, keeping the given
// order, and rejects names the resolver does not know.
func (s *Service) normalizeSlots(raw string) (string, error) {
	var out []string
	seen := map[string]bool{}
	for _, name := range slot.SplitList(strings.ToLower(raw)) {
		if !s.slots.Valid(name) {
			return "", fmt.Errorf("%w: %q", ErrUnknownSlot, name)
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	if len(out) == 0 {
		return "", ErrMissingFields
	}
	return strings.Join(out, ","), nil
}

// ListMembers returns every member.
func (s *Service) ListMembers(ctx context.Context) ([]Member, error) {
	return s.repo.ListMembers(ctx)
}

// GetMember returns a member, or nil when absent.
func (s *Service) GetMember(ctx context.Context, id int64) (*Member, error) {
	return s.repo.GetMember(ctx, id)
}

// DeleteMember removes a member and everything keyed to it except scan history.
func (s *Service) DeleteMember(ctx context.Context, id int64) (bool, error) {
	var deleted bool
	err := s.repo.InTx(ctx, func(tx *Repository) error {
		var err error
		deleted, err = tx.DeleteMember(ctx, id)
		return err
	})
	if err == nil && deleted {
		s.log.Info("member deleted", zap.Int64("member_id", id))
	}
	return deleted, err
}
