package mess

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"canteen/internal/metrics"
	"canteen/internal/slot"
)

// Replies sent to the scanning member, and the audit messages stored with each scan.
const (
	MsgMissingData    = "Missing data"
	MsgInvalidQR      = "Invalid or expired QR"
	MsgUnknownMember  = "Unknown member"
	MsgSlotNotAllowed = "You are not allowed for this slot"
	MsgAlreadyScanned = "Already scanned for this slot today"

	logSlotNotAllowed = "Slot not allowed"
	logAlreadyScanned = "Already scanned today"
	logOK             = "OK"
)

// ScanResult is the outcome of a scan. Rejections are results, not errors.
type ScanResult struct {
	Success  bool
	Message  string
	Slot     string
	MemberID int64
	Name     string
	Counted  bool // this scan charged a new mess-day
}

// Validate checks a presented token for the member at the service clock's
// time. Each check short-circuits; every outcome after the input check is
// appended to the scan log. Validity is scoped to (slot, day), not to the
// member, so one posted code serves everyone; per-member one-shot
// enforcement lives in the day record.
func (s *Service) Validate(ctx context.Context, token string, memberID int64) (ScanResult, error) {
	if token == "" || memberID <= 0 {
		return ScanResult{Message: MsgMissingData}, ErrMissingData
	}

	now := s.Now()
	slotName := s.slots.Resolve(now)
	day := now.Format(DateLayout)

	reject := func(result, reply, audit string) (ScanResult, error) {
		metrics.Scans.WithLabelValues(slotName, result).Inc()
		if err := s.logScan(ctx, memberID, token, slotName, day, false, audit); err != nil {
			return ScanResult{}, err
		}
		return ScanResult{Message: reply, Slot: slotName, MemberID: memberID}, nil
	}

	valid, err := s.repo.TokenValid(ctx, token, slotName, day)
	if err != nil {
		return ScanResult{}, err
	}
	if !valid {
		return reject("invalid_qr", MsgInvalidQR, MsgInvalidQR)
	}

	m, err := s.repo.GetMember(ctx, memberID)
	if err != nil {
		return ScanResult{}, err
	}
	if m == nil {
		return reject("unknown_member", MsgUnknownMember, MsgUnknownMember)
	}

	if !slot.Contains(m.AllowedSlots, slotName) {
		return reject("slot_not_allowed", MsgSlotNotAllowed, logSlotNotAllowed)
	}

	rec, err := s.repo.GetDailyRecord(ctx, memberID, day)
	if err != nil {
		return ScanResult{}, err
	}
	if rec.Scanned(slotName) {
		return reject("already_scanned", MsgAlreadyScanned, logAlreadyScanned)
	}

	counted, err := s.RecordUsage(ctx, memberID, slotName, day)
	if errors.Is(err, errSlotTaken) {
		return reject("already_scanned", MsgAlreadyScanned, logAlreadyScanned)
	}
	if err != nil {
		return ScanResult{}, err
	}
	if err := s.logScan(ctx, memberID, token, slotName, day, true, logOK); err != nil {
		return ScanResult{}, err
	}
	metrics.Scans.WithLabelValues(slotName, "ok").Inc()
	s.log.Info("scan accepted",
		zap.Int64("member_id", memberID),
		zap.String("slot", slotName),
		zap.String("day", day),
		zap.Bool("counted", counted),
	)

	return ScanResult{
		Success:  true,
		Message:  logOK,
		Slot:     slotName,
		MemberID: memberID,
		Name:     m.Name,
		Counted:  counted,
	}, nil
}

func (s *Service) logScan(ctx context.Context, memberID int64, token, slotName, day string, success bool, message string) error {
	return s.repo.InsertScan(ctx, ScanEvent{
		MemberID:  &memberID,
		Token:     token,
		Slot:      slotName,
		ValidDate: day,
		Success:   success,
		Message:   message,
		ScannedAt: s.clock(),
	})
}
