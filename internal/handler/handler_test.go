package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"canteen/internal/assets"
	"canteen/internal/auth"
	"canteen/internal/mess"
	"canteen/internal/qr"
	"canteen/internal/slot"
	"canteen/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type recordingRemover struct {
	mu   sync.Mutex
	keys []string
}

func (r *recordingRemover) ScheduleRemoval(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, key)
	return nil
}

type testServer struct {
	router  *gin.Engine
	svc     *mess.Service
	remover *recordingRemover
	now     *time.Time
}

func setupTestServer(t *testing.T, admin auth.Issuer) *testServer {
	t.Helper()
	db, err := store.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	now := time.Date(2024, time.May, 1, 8, 0, 0, 0, time.UTC)
	ts := &testServer{now: &now, remover: &recordingRemover{}}
	ts.svc = mess.NewService(mess.NewRepository(db), slot.Default(),
		mess.WithClock(func() time.Time { return *ts.now }),
		mess.WithLocation(time.UTC),
	)

	dir := t.TempDir()
	photos, err := assets.NewLocal(dir, "/static")
	if err != nil {
		t.Fatalf("asset store: %v", err)
	}
	h := New(Deps{
		Service:        ts.svc,
		Photos:         photos,
		Remover:        ts.remover,
		QR:             qr.New("https://mess.example", 128),
		Admin:          admin,
		MaxUploadBytes: 1 << 10,
	})
	ts.router = NewRouter(h, RouterConfig{
		Resetter:  ts.svc,
		StaticDir: dir,
		Health:    map[string]HealthCheck{"db": db.Healthy},
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	switch b := body.(type) {
	case nil:
		r = httptest.NewRequest(method, path, nil)
	case *multipartBody:
		r = httptest.NewRequest(method, path, &b.buf)
		r.Header.Set("Content-Type", b.contentType)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		r = httptest.NewRequest(method, path, bytes.NewReader(raw))
		r.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		r.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, r)
	return w
}

type multipartBody struct {
	buf         bytes.Buffer
	contentType string
}

func newMultipart(t *testing.T, fields map[string]string, filename string, data []byte) *multipartBody {
	t.Helper()
	mb := &multipartBody{}
	w := multipart.NewWriter(&mb.buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if filename != "" {
		part, err := w.CreateFormFile("photo", filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		part.Write(data)
	}
	w.Close()
	mb.contentType = w.FormDataContentType()
	return mb
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func createMember(t *testing.T, ts *testServer, name, roll, slots string) int64 {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/api/members", map[string]string{"name": name, "roll_or_id": roll, "allowed_slots": slots})
	if w.Code != http.StatusOK {
		t.Fatalf("create member: %d %s", w.Code, w.Body)
	}
	return int64(decode[map[string]any](t, w)["member_id"].(float64))
}

func TestValidateFlow(t *testing.T) {
	ts := setupTestServer(t, auth.Issuer{})
	id := createMember(t, ts, "Asha", "R1", "morning,evening")

	w := ts.do(t, http.MethodGet, "/api/get-slot-qr", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get-slot-qr: %d", w.Code)
	}
	qrResp := decode[map[string]string](t, w)
	if qrResp["slot"] != "morning" || !strings.HasPrefix(qrResp["qr"], "data:image/png;base64,") {
		t.Errorf("get-slot-qr = %v", qrResp["slot"])
	}

	token, _, err := ts.svc.CurrentSlotToken(context.Background())
	if err != nil {
		t.Fatalf("slot token: %v", err)
	}

	w = ts.do(t, http.MethodPost, "/api/validate", map[string]any{"token": token})
	if w.Code != http.StatusBadRequest || decode[map[string]any](t, w)["message"] != "Missing data" {
		t.Errorf("missing member_id: %d %s", w.Code, w.Body)
	}

	w = ts.do(t, http.MethodPost, "/api/validate", map[string]any{"token": token, "member_id": id})
	got := decode[map[string]any](t, w)
	if got["success"] != true || got["name"] != "Asha" || got["photo"] != nil {
		t.Errorf("first scan = %v", got)
	}

	// member ids sent as strings are accepted too
	w = ts.do(t, http.MethodPost, "/api/validate", map[string]any{"token": token, "member_id": "1"})
	got = decode[map[string]any](t, w)
	if w.Code != http.StatusOK || got["success"] != false || got["message"] != mess.MsgAlreadyScanned {
		t.Errorf("second scan = %d %v", w.Code, got)
	}

	w = ts.do(t, http.MethodGet, "/api/mess-status", nil)
	status := decode[mess.Status](t, w)
	if status != (mess.Status{UsedDays: 1, Remaining: 30, PaidDays: 31}) {
		t.Errorf("mess-status = %+v", status)
	}

	w = ts.do(t, http.MethodGet, "/api/logs", nil)
	logs := decode[[]mess.LogEntry](t, w)
	if len(logs) != 2 || logs[0].Success || !logs[1].Success {
		t.Errorf("logs = %+v", logs)
	}
}

func TestLoginRoute(t *testing.T) {
	ts := setupTestServer(t, auth.Issuer{})
	createMember(t, ts, "Asha", "R1", "morning")

	got := decode[map[string]any](t, ts.do(t, http.MethodGet, "/api/login?roll=R1&device_id=phone-a", nil))
	if got["success"] != true || got["locked"] != true || got["name"] != "Asha" {
		t.Errorf("first login = %v", got)
	}
	got = decode[map[string]any](t, ts.do(t, http.MethodGet, "/api/login?roll=R1&device_id=phone-b", nil))
	if got["success"] != false || got["locked"] != true || got["message"] != mess.MsgDeviceInUse {
		t.Errorf("foreign device = %v", got)
	}
	got = decode[map[string]any](t, ts.do(t, http.MethodGet, "/api/login?roll=nope", nil))
	if got["success"] != false || got["message"] != mess.MsgInvalidRoll {
		t.Errorf("unknown roll = %v", got)
	}

	if w := ts.do(t, http.MethodPost, "/api/member/1/reset-device", nil); w.Code != http.StatusOK {
		t.Fatalf("reset-device: %d %s", w.Code, w.Body)
	}
	got = decode[map[string]any](t, ts.do(t, http.MethodGet, "/api/login?roll=R1&device_id=phone-b", nil))
	if got["success"] != true {
		t.Errorf("login after reset = %v", got)
	}
}

func TestMembersRoutes(t *testing.T) {
	ts := setupTestServer(t, auth.Issuer{})

	mb := newMultipart(t, map[string]string{"name": "Asha", "roll_or_id": "R1", "allowed_slots": "morning"}, "face.PNG", []byte("png"))
	w := ts.do(t, http.MethodPost, "/api/members", mb)
	if w.Code != http.StatusOK {
		t.Fatalf("multipart create: %d %s", w.Code, w.Body)
	}
	id := int64(decode[map[string]any](t, w)["member_id"].(float64))

	w = ts.do(t, http.MethodPost, "/api/members", map[string]string{"name": "Dup", "roll_or_id": "R1", "allowed_slots": "night"})
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate roll: %d", w.Code)
	}
	w = ts.do(t, http.MethodPost, "/api/members", map[string]string{"name": "X", "roll_or_id": "R2"})
	if w.Code != http.StatusBadRequest || decode[map[string]any](t, w)["message"] != "Missing fields" {
		t.Errorf("missing fields: %d %s", w.Code, w.Body)
	}
	w = ts.do(t, http.MethodPost, "/api/members", map[string]string{"name": "X", "roll_or_id": "R2", "allowed_slots": "brunch"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown slot: %d", w.Code)
	}
	mb = newMultipart(t, map[string]string{"name": "Y", "roll_or_id": "R3", "allowed_slots": "night"}, "face.gif", []byte("gif"))
	if w := ts.do(t, http.MethodPost, "/api/members", mb); w.Code != http.StatusBadRequest {
		t.Errorf("gif photo: %d", w.Code)
	}

	w = ts.do(t, http.MethodGet, "/api/members", nil)
	members := decode[[]map[string]any](t, w)
	if len(members) != 1 || members[0]["photo"] != "/static/members/1.png" || members[0]["roll_or_id"] != "R1" {
		t.Fatalf("members = %v", members)
	}
	if w := ts.do(t, http.MethodGet, "/static/members/1.png", nil); w.Code != http.StatusOK || w.Body.String() != "png" {
		t.Errorf("static photo: %d %q", w.Code, w.Body)
	}

	w = ts.do(t, http.MethodGet, "/api/member/generate/1", nil)
	qrs := decode[[]map[string]string](t, w)
	if len(qrs) != 1 || qrs[0]["slot"] != "morning" || !strings.HasPrefix(qrs[0]["qr_data"], "data:image/png") {
		t.Errorf("member generate = %d entries", len(qrs))
	}
	if got := decode[[]map[string]string](t, ts.do(t, http.MethodGet, "/api/member/generate/99", nil)); len(got) != 0 {
		t.Errorf("unknown member generate = %v", got)
	}

	got := decode[map[string]any](t, ts.do(t, http.MethodGet, "/api/generate_all", nil))
	if got["count"] != float64(0) || got["message"] != "Generated 0 QR tokens" {
		t.Errorf("generate_all after member generate = %v", got)
	}

	if w := ts.do(t, http.MethodDelete, "/api/member/1", nil); w.Code != http.StatusOK {
		t.Fatalf("delete: %d", w.Code)
	}
	if len(ts.remover.keys) != 1 || ts.remover.keys[0] != assets.MemberKey(id) {
		t.Errorf("scheduled removals = %v", ts.remover.keys)
	}
	overview := decode[[]mess.Counters](t, ts.do(t, http.MethodGet, "/api/mess-overview", nil))
	if len(overview) != 0 {
		t.Errorf("overview after delete = %v", overview)
	}
}

func TestMenuRoutes(t *testing.T) {
	ts := setupTestServer(t, auth.Issuer{})

	if w := ts.do(t, http.MethodPost, "/api/menu", map[string]string{"description": "x"}); w.Code != http.StatusBadRequest {
		t.Errorf("menu without title: %d", w.Code)
	}
	if w := ts.do(t, http.MethodPost, "/api/menu", map[string]string{"title": "Lunch", "description": "Rice"}); w.Code != http.StatusOK {
		t.Fatalf("add menu: %d", w.Code)
	}
	items := decode[[]mess.MenuItem](t, ts.do(t, http.MethodGet, "/api/menu", nil))
	if len(items) != 1 || items[0].Title != "Lunch" {
		t.Fatalf("menu = %+v", items)
	}
	if got := decode[map[string]string](t, ts.do(t, http.MethodDelete, "/api/menu/1", nil)); got["status"] != "deleted" {
		t.Errorf("delete menu = %v", got)
	}

	if got := decode[map[string]any](t, ts.do(t, http.MethodGet, "/api/menu-photo", nil)); got["photo"] != nil {
		t.Errorf("menu photo before upload = %v", got)
	}
	tests := []struct {
		name     string
		filename string
		data     []byte
		want     int
	}{
		{"no file", "", nil, http.StatusBadRequest},
		{"no extension", "menu", []byte("x"), http.StatusBadRequest},
		{"pdf", "menu.pdf", []byte("x"), http.StatusBadRequest},
		{"too large", "menu.jpg", bytes.Repeat([]byte("x"), 2<<10), http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		mb := newMultipart(t, nil, tt.filename, tt.data)
		if w := ts.do(t, http.MethodPost, "/api/upload-menu-photo", mb); w.Code != tt.want {
			t.Errorf("%s: status = %d, want %d (%s)", tt.name, w.Code, tt.want, w.Body)
		}
	}

	w := ts.do(t, http.MethodPost, "/api/upload-menu-photo", newMultipart(t, nil, "today.JPEG", []byte("jpeg")))
	got := decode[map[string]any](t, w)
	if got["success"] != true || got["url"] != "/static/menu.jpeg" {
		t.Fatalf("upload = %v", got)
	}
	if got := decode[map[string]any](t, ts.do(t, http.MethodGet, "/api/menu-photo", nil)); got["photo"] != "/static/menu.jpeg" {
		t.Errorf("menu photo = %v", got)
	}
}

func TestExportAndReset(t *testing.T) {
	ts := setupTestServer(t, auth.Issuer{})
	id := createMember(t, ts, "Asha", "R1", "morning")
	token, _, _ := ts.svc.CurrentSlotToken(context.Background())
	ts.do(t, http.MethodPost, "/api/validate", map[string]any{"token": token, "member_id": id})

	w := ts.do(t, http.MethodGet, "/api/export-logs", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("export: %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("content type = %q", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); cd != "attachment; filename=scan_logs.csv" {
		t.Errorf("content disposition = %q", cd)
	}
	if lines := strings.Split(w.Body.String(), "\n"); len(lines) != 2 || !strings.Contains(lines[1], ",OK,Asha,R1") {
		t.Errorf("csv = %q", w.Body)
	}
	w = ts.do(t, http.MethodGet, "/api/export-logs", nil)
	if strings.Contains(w.Body.String(), "\n") {
		t.Errorf("second export = %q, want header only", w.Body)
	}

	*ts.now = time.Date(2024, time.May, 20, 9, 0, 0, 0, time.UTC)
	got := decode[map[string]any](t, ts.do(t, http.MethodPost, "/api/reset-month", nil))
	if got["status"] != "reset_done" || got["days_in_month"] != float64(31) {
		t.Errorf("reset-month = %v", got)
	}
	st := decode[mess.Status](t, ts.do(t, http.MethodGet, "/api/mess-status?id=1", nil))
	if st.UsedDays != 0 || st.Remaining != 31 {
		t.Errorf("status after reset = %+v", st)
	}
	if st := decode[mess.Status](t, ts.do(t, http.MethodGet, "/api/mess-status?id=abc", nil)); st != (mess.Status{}) {
		t.Errorf("bad id status = %+v", st)
	}
}

func TestAdminAuthRoutes(t *testing.T) {
	ts := setupTestServer(t, auth.Issuer{Password: "pw", Issuer: "canteen", Key: "k", TTL: time.Hour})

	if w := ts.do(t, http.MethodGet, "/api/members", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("members without token: %d", w.Code)
	}
	if w := ts.do(t, http.MethodGet, "/api/current-slot", nil); w.Code != http.StatusOK {
		t.Errorf("current-slot: %d", w.Code)
	}
	if w := ts.do(t, http.MethodPost, "/api/admin/login", map[string]string{"password": "nope"}); w.Code != http.StatusUnauthorized {
		t.Errorf("bad password: %d", w.Code)
	}

	w := ts.do(t, http.MethodPost, "/api/admin/login", map[string]string{"password": "pw"})
	if w.Code != http.StatusOK {
		t.Fatalf("admin login: %d %s", w.Code, w.Body)
	}
	token := decode[map[string]any](t, w)["access_token"].(string)
	if w := ts.do(t, http.MethodGet, "/api/members", nil, "Authorization", "Bearer "+token); w.Code != http.StatusOK {
		t.Errorf("members with token: %d", w.Code)
	}
}

func TestHealthz(t *testing.T) {
	ts := setupTestServer(t, auth.Issuer{})
	w := ts.do(t, http.MethodGet, "/healthz", nil)
	got := decode[map[string]any](t, w)
	if w.Code != http.StatusOK || got["db"] != true {
		t.Errorf("healthz = %d %v", w.Code, got)
	}
}
