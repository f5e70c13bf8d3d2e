package mess

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestValidateScenario(t *testing.T) {
	s, clock := setupTestService(t)
	ctx := context.Background()
	id := mustCreateMember(t, s, "Asha", "R1", "morning,evening")

	token, slotName, err := s.CurrentSlotToken(ctx)
	if err != nil {
		t.Fatalf("slot token: %v", err)
	}
	if slotName != "morning" {
		t.Fatalf("slot = %q, want morning", slotName)
	}

	res, err := s.Validate(ctx, token, id)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !res.Success || !res.Counted || res.Name != "Asha" {
		t.Fatalf("first scan = %+v", res)
	}
	m := mustMember(t, s, id)
	if m.UsedDays != 1 || m.Remaining != 30 {
		t.Errorf("after first scan used/remaining = %d/%d, want 1/30", m.UsedDays, m.Remaining)
	}

	clock.Set(at(2024, time.May, 1, 8, 5))
	res, err = s.Validate(ctx, token, id)
	if err != nil {
		t.Fatalf("validate again: %v", err)
	}
	if res.Success || res.Message != MsgAlreadyScanned {
		t.Errorf("second scan = %+v, want %q", res, MsgAlreadyScanned)
	}

	// evening of the same day is a second meal, not a second mess-day
	clock.Set(at(2024, time.May, 1, 16, 0))
	evening, _, err := s.CurrentSlotToken(ctx)
	if err != nil {
		t.Fatalf("evening token: %v", err)
	}
	res, err = s.Validate(ctx, evening, id)
	if err != nil {
		t.Fatalf("validate evening: %v", err)
	}
	if !res.Success || res.Counted {
		t.Errorf("evening scan = %+v, want success without charge", res)
	}
	m = mustMember(t, s, id)
	if m.UsedDays != 1 || m.Remaining != 30 {
		t.Errorf("after evening used/remaining = %d/%d, want 1/30", m.UsedDays, m.Remaining)
	}
	if n, _ := s.repo.CountDailyRecords(ctx, id); n != 1 {
		t.Errorf("day records = %d, want 1", n)
	}

	clock.Set(at(2024, time.May, 2, 7, 0))
	next, _, err := s.CurrentSlotToken(ctx)
	if err != nil {
		t.Fatalf("next day token: %v", err)
	}
	if next == token {
		t.Error("next day reused yesterday's token")
	}
	if res, _ := s.Validate(ctx, next, id); !res.Success || !res.Counted {
		t.Errorf("next day scan = %+v", res)
	}
	if m := mustMember(t, s, id); m.UsedDays != 2 || m.Remaining != 29 {
		t.Errorf("day two used/remaining = %d/%d, want 2/29", m.UsedDays, m.Remaining)
	}
}

func TestValidateRejections(t *testing.T) {
	s, clock := setupTestService(t)
	ctx := context.Background()
	id := mustCreateMember(t, s, "Asha", "R1", "evening")

	if _, err := s.Validate(ctx, "", id); err != ErrMissingData {
		t.Errorf("empty token err = %v", err)
	}
	if _, err := s.Validate(ctx, "abc", 0); err != ErrMissingData {
		t.Errorf("zero member err = %v", err)
	}

	token, _, err := s.CurrentSlotToken(ctx)
	if err != nil {
		t.Fatalf("slot token: %v", err)
	}

	tests := []struct {
		name   string
		token  string
		member int64
		want   string
	}{
		{"unknown token", "nope", id, MsgInvalidQR},
		{"unknown member", token, 999, MsgUnknownMember},
		{"slot not allowed", token, id, MsgSlotNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := s.Validate(ctx, tt.token, tt.member)
			if err != nil {
				t.Fatalf("validate: %v", err)
			}
			if res.Success || res.Message != tt.want {
				t.Errorf("result = %+v, want %q", res, tt.want)
			}
		})
	}

	// yesterday's morning token is not valid in today's morning
	clock.Set(at(2024, time.May, 2, 8, 0))
	if res, _ := s.Validate(ctx, token, id); res.Message != MsgInvalidQR {
		t.Errorf("stale token = %+v", res)
	}

	logs, err := s.RecentScans(ctx, 200)
	if err != nil {
		t.Fatalf("recent scans: %v", err)
	}
	if len(logs) != 4 {
		t.Fatalf("scan log rows = %d, want 4", len(logs))
	}
	for _, l := range logs {
		if l.Success {
			t.Errorf("rejected scan logged as success: %+v", l)
		}
	}
	if logs[1].Message != logSlotNotAllowed {
		t.Errorf("audit message = %q, want %q", logs[1].Message, logSlotNotAllowed)
	}
	if m := mustMember(t, s, id); m.UsedDays != 0 {
		t.Errorf("rejections charged the quota: used=%d", m.UsedDays)
	}
}

func TestMemberTokenAcceptedForAnyMember(t *testing.T) {
	s, _ := setupTestService(t)
	ctx := context.Background()
	asha := mustCreateMember(t, s, "Asha", "R1", "morning")
	ravi := mustCreateMember(t, s, "Ravi", "R2", "morning")

	tokens, err := s.MemberTokens(ctx, asha)
	if err != nil || len(tokens) != 1 {
		t.Fatalf("member tokens = %v, %v", tokens, err)
	}
	res, err := s.Validate(ctx, tokens[0].Token, ravi)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !res.Success {
		t.Errorf("legacy token rejected for other member: %+v", res)
	}
}

func TestConcurrentScansChargeOnce(t *testing.T) {
	s, _ := setupTestService(t)
	ctx := context.Background()
	id := mustCreateMember(t, s, "Asha", "R1", "morning")
	token, _, err := s.CurrentSlotToken(ctx)
	if err != nil {
		t.Fatalf("slot token: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.Validate(ctx, token, id)
			if err != nil {
				t.Errorf("validate: %v", err)
				return
			}
			if res.Success {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if accepted != 1 {
		t.Errorf("accepted scans = %d, want 1", accepted)
	}
	if m := mustMember(t, s, id); m.UsedDays != 1 {
		t.Errorf("used_days = %d, want 1", m.UsedDays)
	}
}

func TestValidateOverQuota(t *testing.T) {
	s, clock := setupTestService(t)
	ctx := context.Background()
	id := mustCreateMember(t, s, "Asha", "R1", "morning")
	if _, err := s.repo.exec(ctx, "UPDATE members SET remaining = 0 WHERE id = ?", id); err != nil {
		t.Fatalf("zero quota: %v", err)
	}

	for _, day := range []time.Time{at(2024, time.May, 1, 8, 0), at(2024, time.May, 2, 8, 0)} {
		clock.Set(day)
		token := mustSlotToken(t, s, "morning", day.Format("2006-01-02"))
		res, err := s.Validate(ctx, token, id)
		if err != nil {
			t.Fatalf("validate %s: %v", day.Format("2006-01-02"), err)
		}
		if !res.Success || !res.Counted {
			t.Errorf("%s: result = %+v, want counted success", day.Format("2006-01-02"), res)
		}
	}

	m := mustMember(t, s, id)
	if m.UsedDays != 2 || m.Remaining != -2 {
		t.Errorf("used=%d remaining=%d, want used=2 remaining=-2", m.UsedDays, m.Remaining)
	}
	st, err := s.Status(ctx, id)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.PaidDays != 0 {
		t.Errorf("paid_days = %d, want 0", st.PaidDays)
	}
}
