package mess

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

const (
	MsgInvalidRoll  = "Invalid roll number"
	MsgDeviceInUse  = "This account is already used on another device. Contact admin."
	maxLockAttempts = 2
)

// LoginResult answers a roll-number login.
type LoginResult struct {
	Success  bool
	MemberID int64
	Name     string
	Locked   bool
	Message  string
}

// Login looks a member up by roll number and enforces the device lock: the
// first non-empty device id seen is bound for good, and later logins must
// present exactly that id. An empty device id skips the lock entirely.
func (s *Service) Login(ctx context.Context, roll, deviceID string) (LoginResult, error) {
	roll = strings.TrimSpace(roll)
	if roll == "" {
		return LoginResult{Message: MsgInvalidRoll}, nil
	}

	for attempt := 0; attempt < maxLockAttempts; attempt++ {
		m, err := s.repo.GetMemberByRoll(ctx, roll)
		if err != nil {
			return LoginResult{}, err
		}
		if m == nil {
			return LoginResult{Message: MsgInvalidRoll}, nil
		}
		ok := LoginResult{Success: true, MemberID: m.ID, Name: m.Name, Locked: m.DeviceLocked()}

		switch {
		case deviceID == "":
			return ok, nil
		case m.DeviceLocked() && *m.DeviceID == deviceID:
			return ok, nil
		case m.DeviceLocked():
			s.log.Warn("login from foreign device", zap.Int64("member_id", m.ID))
			return LoginResult{Locked: true, Message: MsgDeviceInUse}, nil
		}

		locked, err := s.repo.LockDevice(ctx, m.ID, deviceID)
		if err != nil {
			return LoginResult{}, err
		}
		if locked {
			s.log.Info("device locked", zap.Int64("member_id", m.ID))
			ok.Locked = true
			return ok, nil
		}
		// another login bound a device in between; re-read and judge again
	}
	return LoginResult{Locked: true, Message: MsgDeviceInUse}, nil
}

// ResetDevice clears a member's device binding so the next login can claim it.
func (s *Service) ResetDevice(ctx context.Context, memberID int64) (bool, error) {
	cleared, err := s.repo.ClearDevice(ctx, memberID)
	if err == nil && cleared {
		s.log.Info("device lock cleared", zap.Int64("member_id", memberID))
	}
	return cleared, err
}
