package mess

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"go.uber.org/zap"

	"canteen/internal/metrics"
	"canteen/internal/slot"
)

// newToken returns 16 random bytes as unpadded base64url (22 chars).
func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// SlotToken returns the shared token for the slot-day, creating it on first
// use. Every caller during the slot-day gets the same token.
func (s *Service) SlotToken(ctx context.Context, slotName, day string) (string, error) {
	if cached, err := s.cache.Get(ctx, slotName, day); err != nil {
		s.log.Warn("slot token cache read failed", zap.Error(err))
	} else if cached != "" {
		return cached, nil
	}

	token, err := s.repo.FindSlotToken(ctx, slotName, day)
	if err != nil {
		return "", err
	}
	if token == "" {
		fresh, err := newToken()
		if err != nil {
			return "", err
		}
		created, err := s.repo.InsertToken(ctx, nil, fresh, slotName, day)
		if err != nil {
			return "", err
		}
		if created {
			metrics.TokensIssued.WithLabelValues("slot").Inc()
			s.log.Info("slot token created", zap.String("slot", slotName), zap.String("day", day))
			token = fresh
		} else {
			// lost the race to a concurrent first load
			if token, err = s.repo.FindSlotToken(ctx, slotName, day); err != nil {
				return "", err
			}
			if token == "" {
				return "", fmt.Errorf("slot token for %s %s vanished", slotName, day)
			}
		}
	}

	if day == s.Today() {
		if err := s.cache.Set(ctx, slotName, day, token, s.untilMidnight()); err != nil {
			s.log.Warn("slot token cache write failed", zap.Error(err))
		}
	}
	return token, nil
}

// CurrentSlotToken returns the shared token for the current slot and the slot name.
func (s *Service) CurrentSlotToken(ctx context.Context) (string, string, error) {
	now := s.Now()
	slotName := s.slots.Resolve(now)
	token, err := s.SlotToken(ctx, slotName, now.Format(DateLayout))
	return token, slotName, err
}

// MemberTokens mints one legacy token per allowed slot of the member, valid
// today. There is no reuse check. An unknown member yields no tokens.
func (s *Service) MemberTokens(ctx context.Context, memberID int64) ([]IssuedToken, error) {
	m, err := s.repo.GetMember(ctx, memberID)
	if err != nil || m == nil {
		return nil, err
	}
	day := s.Today()
	var out []IssuedToken
	for _, slotName := range slot.SplitList(m.AllowedSlots) {
		token, err := s.insertMemberToken(ctx, m.ID, slotName, day)
		if err != nil {
			return nil, err
		}
		out = append(out, IssuedToken{Slot: slotName, Token: token})
	}
	return out, nil
}

// GenerateAll creates a legacy token for every (member, allowed slot) that
// has none today and returns how many were created.
func (s *Service) GenerateAll(ctx context.Context) (int, error) {
	members, err := s.repo.ListMembers(ctx)
	if err != nil {
		return 0, err
	}
	day := s.Today()
	count := 0
	for _, m := range members {
		for _, slotName := range slot.SplitList(m.AllowedSlots) {
			exists, err := s.repo.MemberTokenExists(ctx, m.ID, slotName, day)
			if err != nil {
				return count, err
			}
			if exists {
				continue
			}
			if _, err := s.insertMemberToken(ctx, m.ID, slotName, day); err != nil {
				return count, err
			}
			count++
		}
	}
	s.log.Info("member tokens generated", zap.Int("count", count), zap.String("day", day))
	return count, nil
}

func (s *Service) insertMemberToken(ctx context.Context, memberID int64, slotName, day string) (string, error) {
	token, err := newToken()
	if err != nil {
		return "", err
	}
	created, err := s.repo.InsertToken(ctx, &memberID, token, slotName, day)
	if err != nil {
		return "", err
	}
	if !created {
		return "", fmt.Errorf("token collision for member %d", memberID)
	}
	metrics.TokensIssued.WithLabelValues("member").Inc()
	return token, nil
}
