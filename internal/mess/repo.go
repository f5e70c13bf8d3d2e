package mess

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"canteen/internal/store"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repository persists members, tokens, day records and scans. Queries are
// written with '?' placeholders and rebound for the active dialect.
type Repository struct {
	db *store.DB
	q  querier
}

// NewRepository creates a repo.
func NewRepository(db *store.DB) *Repository {
	return &Repository{db: db, q: db.Client}
}

// InTx runs fn against a repository bound to a single transaction.
func (r *Repository) InTx(ctx context.Context, fn func(tx *Repository) error) error {
	tx, err := r.db.Client.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&Repository{db: r.db, q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *Repository) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return r.q.ExecContext(ctx, r.db.Rebind(query), args...)
}

func (r *Repository) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return r.q.QueryContext(ctx, r.db.Rebind(query), args...)
}

func (r *Repository) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return r.q.QueryRowContext(ctx, r.db.Rebind(query), args...)
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// -------- Members --------

const memberColumns = `id, name, roll_or_id, allowed_slots, device_id, used_days, remaining, carry_forward, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMember(row rowScanner) (Member, error) {
	var m Member
	var device sql.NullString
	if err := row.Scan(&m.ID, &m.Name, &m.RollOrID, &m.AllowedSlots, &device, &m.UsedDays, &m.Remaining, &m.CarryForward, &m.CreatedAt); err != nil {
		return Member{}, err
	}
	if device.Valid {
		m.DeviceID = &device.String
	}
	return m, nil
}

// InsertMember writes a new member and returns its id.
func (r *Repository) InsertMember(ctx context.Context, m Member) (int64, error) {
	var id int64
	err := r.queryRow(ctx, `
		INSERT INTO members (name, roll_or_id, allowed_slots, used_days, remaining, carry_forward, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`, m.Name, m.RollOrID, m.AllowedSlots, m.UsedDays, m.Remaining, m.CarryForward, time.Now().UTC()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert member: %w", err)
	}
	return id, nil
}

// ListMembers returns all members by id.
func (r *Repository) ListMembers(ctx context.Context) ([]Member, error) {
	rows, err := r.query(ctx, `SELECT `+memberColumns+` FROM members ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// GetMember returns a member by id, or nil when absent.
func (r *Repository) GetMember(ctx context.Context, id int64) (*Member, error) {
	m, err := scanMember(r.queryRow(ctx, `SELECT `+memberColumns+` FROM members WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get member %d: %w", id, err)
	}
	return &m, nil
}

// GetMemberByRoll returns a member by roll number, or nil when absent.
func (r *Repository) GetMemberByRoll(ctx context.Context, roll string) (*Member, error) {
	m, err := scanMember(r.queryRow(ctx, `SELECT `+memberColumns+` FROM members WHERE roll_or_id = ?`, roll))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get member by roll: %w", err)
	}
	return &m, nil
}

// DeleteMember removes a member with its day records and legacy tokens.
// Scan history is kept; exports show it with a blank name.
func (r *Repository) DeleteMember(ctx context.Context, id int64) (bool, error) {
	for _, q := range []string{
		`DELETE FROM mess_day_slots WHERE member_id = ?`,
		`DELETE FROM mess_days WHERE member_id = ?`,
		`DELETE FROM qr_tokens WHERE member_id = ?`,
	} {
		if _, err := r.exec(ctx, q, id); err != nil {
			return false, fmt.Errorf("delete member %d dependents: %w", id, err)
		}
	}
	res, err := r.exec(ctx, `DELETE FROM members WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete member %d: %w", id, err)
	}
	return affected(res)
}

// LockDevice binds deviceID to the member if no device is bound yet. It
// reports false when another writer got there first.
func (r *Repository) LockDevice(ctx context.Context, id int64, deviceID string) (bool, error) {
	res, err := r.exec(ctx, `
		UPDATE members SET device_id = ?
		WHERE id = ? AND (device_id IS NULL OR device_id = '')
	`, deviceID, id)
	if err != nil {
		return false, fmt.Errorf("lock device: %w", err)
	}
	return affected(res)
}

// ClearDevice removes a member's device binding.
func (r *Repository) ClearDevice(ctx context.Context, id int64) (bool, error) {
	res, err := r.exec(ctx, `UPDATE members SET device_id = NULL WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("clear device: %w", err)
	}
	return affected(res)
}

// ListCounters returns every member's counters ordered by name.
func (r *Repository) ListCounters(ctx context.Context) ([]Counters, error) {
	rows, err := r.query(ctx, `
		SELECT id, name, used_days, remaining, carry_forward
		FROM members
		ORDER BY name, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list counters: %w", err)
	}
	defer rows.Close()

	var out []Counters
	for rows.Next() {
		var c Counters
		if err := rows.Scan(&c.ID, &c.Name, &c.UsedDays, &c.Remaining, &c.CarryForward); err != nil {
			return nil, fmt.Errorf("scan counters: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ChargeDay spends one mess-day of the member's quota.
func (r *Repository) ChargeDay(ctx context.Context, id int64) error {
	_, err := r.exec(ctx, `
		UPDATE members
		SET used_days = used_days + 1,
		    remaining = remaining - 1
		WHERE id = ?
	`, id)
	if err != nil {
		return fmt.Errorf("charge day: %w", err)
	}
	return nil
}

// -------- Tokens --------

// FindSlotToken returns the slot-wide token for (slot, day), or "" if none.
func (r *Repository) FindSlotToken(ctx context.Context, slotName, day string) (string, error) {
	var token string
	err := r.queryRow(ctx, `
		SELECT token FROM qr_tokens
		WHERE member_id IS NULL AND slot = ? AND valid_date = ?
		ORDER BY id
		LIMIT 1
	`, slotName, day).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("find slot token: %w", err)
	}
	return token, nil
}

// InsertToken stores a token. memberID nil makes it slot-wide. It reports
// false when a conflicting row (same token, or an existing slot-wide token
// for the slot-day) already exists.
func (r *Repository) InsertToken(ctx context.Context, memberID *int64, token, slotName, day string) (bool, error) {
	var member any
	if memberID != nil {
		member = *memberID
	}
	res, err := r.exec(ctx, `
		INSERT INTO qr_tokens (member_id, token, slot, valid_date, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, member, token, slotName, day, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("insert token: %w", err)
	}
	return affected(res)
}

// MemberTokenExists reports whether a legacy token exists for (member, slot, day).
func (r *Repository) MemberTokenExists(ctx context.Context, memberID int64, slotName, day string) (bool, error) {
	var id int64
	err := r.queryRow(ctx, `
		SELECT id FROM qr_tokens
		WHERE member_id = ? AND slot = ? AND valid_date = ?
		LIMIT 1
	`, memberID, slotName, day).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("member token exists: %w", err)
	}
	return true, nil
}

// TokenValid reports whether token exists for (slot, day), whichever member it names.
func (r *Repository) TokenValid(ctx context.Context, token, slotName, day string) (bool, error) {
	var id int64
	err := r.queryRow(ctx, `
		SELECT id FROM qr_tokens
		WHERE token = ? AND slot = ? AND valid_date = ?
		LIMIT 1
	`, token, slotName, day).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("token lookup: %w", err)
	}
	return true, nil
}

// -------- Day records --------

// GetDailyRecord loads the record for (member, day), or nil when absent.
func (r *Repository) GetDailyRecord(ctx context.Context, memberID int64, day string) (*DailyRecord, error) {
	rec := DailyRecord{MemberID: memberID, Day: day, Slots: map[string]bool{}}
	err := r.queryRow(ctx, `SELECT consumed FROM mess_days WHERE member_id = ? AND day = ?`, memberID, day).Scan(&rec.Consumed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get day record: %w", err)
	}

	rows, err := r.query(ctx, `SELECT slot FROM mess_day_slots WHERE member_id = ? AND day = ?`, memberID, day)
	if err != nil {
		return nil, fmt.Errorf("get day slots: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan day slot: %w", err)
		}
		rec.Slots[s] = true
	}
	return &rec, rows.Err()
}

// EnsureDay creates the (member, day) record with no slots set if missing.
func (r *Repository) EnsureDay(ctx context.Context, memberID int64, day string) error {
	_, err := r.exec(ctx, `
		INSERT INTO mess_days (member_id, day, consumed)
		VALUES (?, ?, ?)
		ON CONFLICT (member_id, day) DO NOTHING
	`, memberID, day, false)
	if err != nil {
		return fmt.Errorf("ensure day: %w", err)
	}
	return nil
}

// MarkSlot sets the slot flag on the (member, day) record. It reports false
// when the flag was already set.
func (r *Repository) MarkSlot(ctx context.Context, memberID int64, day, slotName string, at time.Time) (bool, error) {
	res, err := r.exec(ctx, `
		INSERT INTO mess_day_slots (member_id, day, slot, scanned_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (member_id, day, slot) DO NOTHING
	`, memberID, day, slotName, at.UTC())
	if err != nil {
		return false, fmt.Errorf("mark slot: %w", err)
	}
	return affected(res)
}

// ConsumeDay flips consumed false->true when at least one slot is set. It
// reports whether this call performed the flip.
func (r *Repository) ConsumeDay(ctx context.Context, memberID int64, day string) (bool, error) {
	res, err := r.exec(ctx, `
		UPDATE mess_days SET consumed = ?
		WHERE member_id = ? AND day = ? AND consumed = ?
		  AND EXISTS (SELECT 1 FROM mess_day_slots s WHERE s.member_id = mess_days.member_id AND s.day = mess_days.day)
	`, true, memberID, day, false)
	if err != nil {
		return false, fmt.Errorf("consume day: %w", err)
	}
	return affected(res)
}

// CountDailyRecords counts day records, optionally for one member (id > 0).
func (r *Repository) CountDailyRecords(ctx context.Context, memberID int64) (int, error) {
	var n int
	var err error
	if memberID > 0 {
		err = r.queryRow(ctx, `SELECT COUNT(*) FROM mess_days WHERE member_id = ?`, memberID).Scan(&n)
	} else {
		err = r.queryRow(ctx, `SELECT COUNT(*) FROM mess_days`).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("count day records: %w", err)
	}
	return n, nil
}

// -------- Scans --------

// InsertScan appends an audit row.
func (r *Repository) InsertScan(ctx context.Context, e ScanEvent) error {
	var member any
	if e.MemberID != nil {
		member = *e.MemberID
	}
	if e.ScannedAt.IsZero() {
		e.ScannedAt = time.Now()
	}
	_, err := r.exec(ctx, `
		INSERT INTO scans (member_id, token, slot, valid_date, success, message, scanned_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, member, e.Token, e.Slot, e.ValidDate, e.Success, e.Message, e.ScannedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert scan: %w", err)
	}
	return nil
}

// RecentScans returns the newest scans first, joined with member names.
func (r *Repository) RecentScans(ctx context.Context, limit int) ([]ScanLog, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.query(ctx, `
		SELECT s.id, s.member_id, s.slot, s.valid_date, s.success, s.message, s.scanned_at, m.name
		FROM scans s
		LEFT JOIN members m ON m.id = s.member_id
		ORDER BY s.scanned_at DESC, s.id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent scans: %w", err)
	}
	defer rows.Close()

	var out []ScanLog
	for rows.Next() {
		var l ScanLog
		var member sql.NullInt64
		var name sql.NullString
		if err := rows.Scan(&l.ID, &member, &l.Slot, &l.ValidDate, &l.Success, &l.Message, &l.ScannedAt, &name); err != nil {
			return nil, fmt.Errorf("scan log row: %w", err)
		}
		if member.Valid {
			l.MemberID = &member.Int64
		}
		if name.Valid {
			l.Name = &name.String
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// ExportRows returns every scan oldest first, joined with member identity.
func (r *Repository) ExportRows(ctx context.Context) ([]ExportRow, error) {
	rows, err := r.query(ctx, `
		SELECT s.id, s.scanned_at, s.valid_date, s.slot, s.success, s.message, m.name, m.roll_or_id
		FROM scans s
		LEFT JOIN members m ON m.id = s.member_id
		ORDER BY s.scanned_at ASC, s.id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("export scans: %w", err)
	}
	defer rows.Close()

	var out []ExportRow
	for rows.Next() {
		var e ExportRow
		var name, roll sql.NullString
		if err := rows.Scan(&e.ID, &e.ScannedAt, &e.ValidDate, &e.Slot, &e.Success, &e.Message, &name, &roll); err != nil {
			return nil, fmt.Errorf("scan export row: %w", err)
		}
		e.Name = name.String
		e.RollOrID = roll.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteAllScans clears the scan log.
func (r *Repository) DeleteAllScans(ctx context.Context) (int64, error) {
	res, err := r.exec(ctx, `DELETE FROM scans`)
	if err != nil {
		return 0, fmt.Errorf("delete scans: %w", err)
	}
	return res.RowsAffected()
}

// -------- Monthly reset --------

// LastReset returns the stored last reset date, or "" when never reset.
func (r *Repository) LastReset(ctx context.Context) (string, error) {
	var last sql.NullString
	err := r.queryRow(ctx, `SELECT last_reset FROM app_meta WHERE id = 1`).Scan(&last)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read last reset: %w", err)
	}
	return last.String, nil
}

// StampReset records day as the last reset, creating the marker row if needed.
func (r *Repository) StampReset(ctx context.Context, day string) error {
	_, err := r.exec(ctx, `
		INSERT INTO app_meta (id, last_reset) VALUES (1, ?)
		ON CONFLICT (id) DO UPDATE SET last_reset = excluded.last_reset
	`, day)
	if err != nil {
		return fmt.Errorf("stamp reset: %w", err)
	}
	return nil
}

// ResetCounters zeroes usage, sets every quota to days and drops all day records.
func (r *Repository) ResetCounters(ctx context.Context, days int) error {
	if _, err := r.exec(ctx, `
		UPDATE members
		SET used_days = 0,
		    remaining = ?,
		    carry_forward = 0
	`, days); err != nil {
		return fmt.Errorf("reset members: %w", err)
	}
	if _, err := r.exec(ctx, `DELETE FROM mess_day_slots`); err != nil {
		return fmt.Errorf("clear day slots: %w", err)
	}
	if _, err := r.exec(ctx, `DELETE FROM mess_days`); err != nil {
		return fmt.Errorf("clear day records: %w", err)
	}
	return nil
}

// -------- Menu --------

// ListMenu returns available menu items.
func (r *Repository) ListMenu(ctx context.Context) ([]MenuItem, error) {
	rows, err := r.query(ctx, `SELECT id, title, description, available FROM menu WHERE available = ? ORDER BY id`, true)
	if err != nil {
		return nil, fmt.Errorf("list menu: %w", err)
	}
	defer rows.Close()

	var items []MenuItem
	for rows.Next() {
		var it MenuItem
		if err := rows.Scan(&it.ID, &it.Title, &it.Description, &it.Available); err != nil {
			return nil, fmt.Errorf("scan menu item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// InsertMenuItem adds an available menu item.
func (r *Repository) InsertMenuItem(ctx context.Context, title, description string) (int64, error) {
	var id int64
	err := r.queryRow(ctx, `
		INSERT INTO menu (title, description, available) VALUES (?, ?, ?)
		RETURNING id
	`, title, description, true).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert menu item: %w", err)
	}
	return id, nil
}

// DeleteMenuItem removes a menu item.
func (r *Repository) DeleteMenuItem(ctx context.Context, id int64) (bool, error) {
	res, err := r.exec(ctx, `DELETE FROM menu WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete menu item: %w", err)
	}
	return affected(res)
}
