package mess

import "time"

// DateLayout is how calendar dates are stored and compared.
const DateLayout = "2006-01-02"

// Member is a canteen subscriber with a monthly mess-day quota.
type Member struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	RollOrID     string    `json:"roll_or_id"`
	AllowedSlots string    `json:"allowed_slots"`
	DeviceID     *string   `json:"device_id"`
	UsedDays     int       `json:"used_days"`
	Remaining    int       `json:"remaining"`
	CarryForward int       `json:"carry_forward"`
	CreatedAt    time.Time `json:"created_at"`
}

// DeviceLocked reports whether a device is bound to the member.
func (m Member) DeviceLocked() bool {
	return m.DeviceID != nil && *m.DeviceID != ""
}

// DailyRecord tracks which slots a member scanned on one date and whether
// that date has been charged against the quota.
type DailyRecord struct {
	MemberID int64
	Day      string
	Consumed bool
	Slots    map[string]bool
}

// Scanned reports whether slot was already used on this record's date.
func (d *DailyRecord) Scanned(slot string) bool {
	return d != nil && d.Slots[slot]
}

// ScanEvent is one audit row per validation attempt.
type ScanEvent struct {
	ID        int64
	MemberID  *int64
	Token     string
	Slot      string
	ValidDate string
	Success   bool
	Message   string
	ScannedAt time.Time
}

// ScanLog is a scan event with the member's name, if the member still exists.
type ScanLog struct {
	ScanEvent
	Name *string
}

// LogEntry is a scan as shown on the admin log page.
type LogEntry struct {
	ID        int64   `json:"id"`
	ScannedAt string  `json:"scanned_at"`
	Name      *string `json:"name"`
	Slot      string  `json:"slot"`
	Success   bool    `json:"success"`
	Message   string  `json:"message"`
}

// ExportRow is a scan joined with member identity for CSV export.
type ExportRow struct {
	ID        int64
	ScannedAt time.Time
	ValidDate string
	Slot      string
	Success   bool
	Message   string
	Name      string
	RollOrID  string
}

// Counters is a member's monthly usage summary.
type Counters struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	UsedDays     int    `json:"used_days"`
	Remaining    int    `json:"remaining"`
	CarryForward int    `json:"carry_forward"`
}

// Status is the student-facing quota view.
type Status struct {
	UsedDays     int `json:"used_days"`
	Remaining    int `json:"remaining"`
	CarryForward int `json:"carry_forward"`
	PaidDays     int `json:"paid_days"`
}

// MenuItem is a line of the text menu.
type MenuItem struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Available   bool   `json:"available"`
}

// IssuedToken is a freshly minted legacy per-member token.
type IssuedToken struct {
	Slot  string
	Token string
}
