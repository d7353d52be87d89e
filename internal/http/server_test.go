package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"scavenger-hunt-api/internal/config"
	"scavenger-hunt-api/internal/models"
	"scavenger-hunt-api/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	return newTestServerWithConfig(t, testutil.Config())
}

func newTestServerWithConfig(t *testing.T, cfg *config.Config) (*gin.Engine, *gorm.DB) {
	t.Helper()
	db := testutil.NewDBWithConfig(t, cfg)
	return NewServer(cfg, db), db
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type loginResponse struct {
	Token string              `json:"token"`
	User  *models.Participant `json:"user"`
	Admin *models.Admin       `json:"admin"`
}

func participantToken(t *testing.T, r *gin.Engine, email string) (string, *models.Participant) {
	t.Helper()
	w := serve(r, testutil.MakeRequest("POST", "/api/auth/login", map[string]string{"email": email}, ""))
	testutil.AssertStatus(t, w, http.StatusOK)
	var res loginResponse
	testutil.DecodeJSON(t, w, &res)
	return res.Token, res.User
}

func adminToken(t *testing.T, r *gin.Engine) string {
	t.Helper()
	body := map[string]string{"username": testutil.AdminUsername, "password": testutil.AdminPassword}
	w := serve(r, testutil.MakeRequest("POST", "/api/auth/admin-login", body, ""))
	testutil.AssertStatus(t, w, http.StatusOK)
	var res loginResponse
	testutil.DecodeJSON(t, w, &res)
	return res.Token
}

func TestHealth(t *testing.T) {
	r, _ := newTestServer(t)

	for _, path := range []string{"/health", "/api/health"} {
		w := serve(r, testutil.MakeRequest("GET", path, nil, ""))
		testutil.AssertStatus(t, w, http.StatusOK)
		var body map[string]string
		testutil.DecodeJSON(t, w, &body)
		if body["status"] != "healthy" || body["service"] != "scavenger-hunt-api" {
			t.Errorf("%s: unexpected body %v", path, body)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	r, _ := newTestServer(t)
	w := serve(r, testutil.MakeRequest("OPTIONS", "/api/hunt/scan-qr", nil, ""))
	testutil.AssertStatus(t, w, http.StatusNoContent)
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("missing CORS header")
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Errorf("missing request id")
	}
}

func TestLogin(t *testing.T) {
	r, db := newTestServer(t)

	token, user := participantToken(t, r, "player@example.com")
	if token == "" || user == nil || user.CurrentStep != 1 {
		t.Fatalf("unexpected login result %q %+v", token, user)
	}

	_, again := participantToken(t, r, "player@example.com")
	if again.ID != user.ID {
		t.Errorf("second login created a new participant")
	}

	w := serve(r, testutil.MakeRequest("POST", "/api/auth/login", map[string]string{"phone": "+15551234567"}, ""))
	testutil.AssertStatus(t, w, http.StatusOK)

	var n int64
	db.Model(&models.Participant{}).Count(&n)
	if n != 2 {
		t.Errorf("expected 2 participants, got %d", n)
	}
}

func TestLoginRequiresIdentifier(t *testing.T) {
	r, _ := newTestServer(t)

	w := serve(r, testutil.MakeRequest("POST", "/api/auth/login", map[string]string{}, ""))
	testutil.AssertStatus(t, w, http.StatusBadRequest)

	req := httptest.NewRequest("POST", "/api/auth/login", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	testutil.AssertStatus(t, serve(r, req), http.StatusBadRequest)
}

func TestAdminLoginWrongPassword(t *testing.T) {
	r, db := newTestServer(t)

	body := map[string]string{"username": testutil.AdminUsername, "password": "wrong"}
	w := serve(r, testutil.MakeRequest("POST", "/api/auth/admin-login", body, ""))
	testutil.AssertStatus(t, w, http.StatusUnauthorized)
	if strings.Contains(w.Body.String(), "token") {
		t.Errorf("failed login must not return a token: %s", w.Body.String())
	}

	var participants, events int64
	db.Model(&models.Participant{}).Count(&participants)
	db.Model(&models.ScanEvent{}).Count(&events)
	if participants != 0 || events != 0 {
		t.Errorf("failed admin login had side effects: %d participants, %d events", participants, events)
	}
}

func TestMe(t *testing.T) {
	r, db := newTestServer(t)
	ptoken, p := participantToken(t, r, "me@example.com")
	atoken := adminToken(t, r)

	w := serve(r, testutil.MakeRequest("GET", "/api/auth/me", nil, ptoken))
	testutil.AssertStatus(t, w, http.StatusOK)
	if !strings.Contains(w.Body.String(), `"user"`) || !strings.Contains(w.Body.String(), p.ID) {
		t.Errorf("unexpected participant identity %s", w.Body.String())
	}

	w = serve(r, testutil.MakeRequest("GET", "/api/auth/me", nil, atoken))
	testutil.AssertStatus(t, w, http.StatusOK)
	if !strings.Contains(w.Body.String(), `"admin"`) || strings.Contains(w.Body.String(), "password") {
		t.Errorf("unexpected admin identity %s", w.Body.String())
	}

	testutil.AssertStatus(t, serve(r, testutil.MakeRequest("GET", "/api/auth/me", nil, "")), http.StatusUnauthorized)
	testutil.AssertStatus(t, serve(r, testutil.MakeRequest("GET", "/api/auth/me", nil, "garbage")), http.StatusUnauthorized)

	db.Exec("DELETE FROM participants WHERE id = ?", p.ID)
	testutil.AssertStatus(t, serve(r, testutil.MakeRequest("GET", "/api/auth/me", nil, ptoken)), http.StatusNotFound)
}

func TestLogout(t *testing.T) {
	r, _ := newTestServer(t)
	w := serve(r, testutil.MakeRequest("POST", "/api/auth/logout", nil, ""))
	testutil.AssertStatus(t, w, http.StatusOK)
}

func TestGuards(t *testing.T) {
	r, _ := newTestServer(t)
	ptoken, _ := participantToken(t, r, "guard@example.com")
	atoken := adminToken(t, r)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"hunt without token", "GET", "/api/hunt/current-step", "", http.StatusUnauthorized},
		{"hunt with bad token", "GET", "/api/hunt/progress", "not-a-jwt", http.StatusUnauthorized},
		{"hunt with admin token", "POST", "/api/hunt/reveal-location", atoken, http.StatusForbidden},
		{"admin without token", "GET", "/api/admin/users", "", http.StatusUnauthorized},
		{"admin with participant token", "GET", "/api/admin/stats", ptoken, http.StatusForbidden},
		{"admin skip with participant token", "POST", "/api/admin/user/x/skip-step", ptoken, http.StatusForbidden},
		{"stream with participant token", "GET", "/api/admin/notifications/stream", ptoken, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(r, testutil.MakeRequest(tt.method, tt.path, nil, tt.token))
			testutil.AssertStatus(t, w, tt.want)
		})
	}
}

func TestHuntFlow(t *testing.T) {
	r, db := newTestServer(t)
	token, p := participantToken(t, r, "flow@example.com")

	w := serve(r, testutil.MakeRequest("GET", "/api/hunt/current-step", nil, token))
	testutil.AssertStatus(t, w, http.StatusOK)
	if strings.Contains(w.Body.String(), "qr_code_value") || strings.Contains(w.Body.String(), "BLACKCAT_ALLEY_001") {
		t.Fatalf("current step leaked the code: %s", w.Body.String())
	}

	w = serve(r, testutil.MakeRequest("POST", "/api/hunt/reveal-location", nil, token))
	testutil.AssertStatus(t, w, http.StatusOK)
	var reveal struct {
		Revealed bool   `json:"revealed"`
		Location string `json:"location"`
	}
	testutil.DecodeJSON(t, w, &reveal)
	if !reveal.Revealed || reveal.Location != "Black Cat Alley" {
		t.Errorf("unexpected reveal %+v", reveal)
	}

	w = serve(r, testutil.MakeRequest("POST", "/api/hunt/scan-qr", map[string]string{"qr_value": "WRONG"}, token))
	testutil.AssertStatus(t, w, http.StatusOK)
	var miss struct {
		Success bool `json:"success"`
	}
	testutil.DecodeJSON(t, w, &miss)
	if miss.Success {
		t.Errorf("wrong code accepted")
	}

	code := testutil.StepCode(t, db, 1)
	w = serve(r, testutil.MakeRequest("POST", "/api/hunt/scan-qr", map[string]string{"qr_value": code}, token))
	testutil.AssertStatus(t, w, http.StatusOK)
	var hit struct {
		Success       bool `json:"success"`
		CompletedHunt bool `json:"completed_hunt"`
		NextStep      *struct {
			ID int `json:"id"`
		} `json:"next_step"`
	}
	testutil.DecodeJSON(t, w, &hit)
	if !hit.Success || hit.CompletedHunt || hit.NextStep == nil || hit.NextStep.ID != 2 {
		t.Errorf("unexpected scan result %+v", hit)
	}

	w = serve(r, testutil.MakeRequest("GET", "/api/hunt/progress", nil, token))
	testutil.AssertStatus(t, w, http.StatusOK)
	var prog struct {
		CurrentStep    int `json:"current_step"`
		CompletedCount int `json:"completed_count"`
		Steps          []struct {
			ID   int    `json:"id"`
			Clue string `json:"clue"`
		} `json:"steps"`
	}
	testutil.DecodeJSON(t, w, &prog)
	if prog.CurrentStep != 2 || prog.CompletedCount != 1 || len(prog.Steps) != 13 {
		t.Errorf("unexpected progress %+v", prog)
	}
	if prog.Steps[2].Clue != "" {
		t.Errorf("future clue exposed for step 3")
	}

	if n := testutil.CountScanEvents(t, db, p.ID); n != 2 {
		t.Errorf("expected 2 scan events, got %d", n)
	}
}

func TestScanQRRequiresValue(t *testing.T) {
	r, _ := newTestServer(t)
	token, _ := participantToken(t, r, "blank@example.com")

	w := serve(r, testutil.MakeRequest("POST", "/api/hunt/scan-qr", map[string]string{}, token))
	testutil.AssertStatus(t, w, http.StatusBadRequest)
}

func TestAdminUsersAndEvents(t *testing.T) {
	r, db := newTestServer(t)
	token, p := participantToken(t, r, "watched@example.com")
	atoken := adminToken(t, r)

	serve(r, testutil.MakeRequest("POST", "/api/hunt/scan-qr", map[string]string{"qr_value": "nope"}, token))
	serve(r, testutil.MakeRequest("POST", "/api/hunt/scan-qr", map[string]string{"qr_value": testutil.StepCode(t, db, 1)}, token))

	w := serve(r, testutil.MakeRequest("GET", "/api/admin/users", nil, atoken))
	testutil.AssertStatus(t, w, http.StatusOK)
	var users struct {
		Users []struct {
			ID                 string  `json:"id"`
			CompletedCount     int     `json:"completed_count"`
			ProgressPercentage float64 `json:"progress_percentage"`
			LatestScan         *struct {
				Success bool `json:"success"`
			} `json:"latest_scan"`
		} `json:"users"`
	}
	testutil.DecodeJSON(t, w, &users)
	if len(users.Users) != 1 || users.Users[0].ID != p.ID || users.Users[0].CompletedCount != 1 {
		t.Fatalf("unexpected users %+v", users)
	}
	if users.Users[0].ProgressPercentage != 7.7 || users.Users[0].LatestScan == nil {
		t.Errorf("unexpected summary %+v", users.Users[0])
	}

	w = serve(r, testutil.MakeRequest("GET", "/api/admin/events?success_only=true&user_id="+p.ID, nil, atoken))
	testutil.AssertStatus(t, w, http.StatusOK)
	var events struct {
		Events []struct {
			StepID    int     `json:"step_id"`
			Success   bool    `json:"success"`
			UserEmail *string `json:"user_email"`
			StepName  *string `json:"step_name"`
		} `json:"events"`
	}
	testutil.DecodeJSON(t, w, &events)
	if len(events.Events) != 1 || !events.Events[0].Success || events.Events[0].StepName == nil {
		t.Errorf("unexpected events %+v", events)
	}

	w = serve(r, testutil.MakeRequest("GET", "/api/admin/events?limit=abc", nil, atoken))
	testutil.AssertStatus(t, w, http.StatusBadRequest)
}

func TestAdminResetAndSkip(t *testing.T) {
	r, db := newTestServer(t)
	_, p := participantToken(t, r, "fixme@example.com")
	atoken := adminToken(t, r)

	w := serve(r, testutil.MakeRequest("POST", "/api/admin/user/"+p.ID+"/skip-step", nil, atoken))
	testutil.AssertStatus(t, w, http.StatusOK)
	if got := testutil.LoadParticipant(t, db, p.ID); got.CurrentStep != 2 {
		t.Errorf("expected step 2 after skip, got %d", got.CurrentStep)
	}

	w = serve(r, testutil.MakeRequest("POST", "/api/admin/user/"+p.ID+"/reset", nil, atoken))
	testutil.AssertStatus(t, w, http.StatusOK)
	if got := testutil.LoadParticipant(t, db, p.ID); got.CurrentStep != 1 || got.CompletedSteps.Len() != 0 {
		t.Errorf("expected reset participant, got %+v", got)
	}

	stored := testutil.LoadParticipant(t, db, p.ID)
	testutil.SetProgress(t, db, stored, 13, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13)
	w = serve(r, testutil.MakeRequest("POST", "/api/admin/user/"+p.ID+"/skip-step", nil, atoken))
	testutil.AssertStatus(t, w, http.StatusBadRequest)

	w = serve(r, testutil.MakeRequest("POST", "/api/admin/user/missing/reset", nil, atoken))
	testutil.AssertStatus(t, w, http.StatusNotFound)
}

func TestAdminSteps(t *testing.T) {
	r, _ := newTestServer(t)
	atoken := adminToken(t, r)

	w := serve(r, testutil.MakeRequest("GET", "/api/admin/steps", nil, atoken))
	testutil.AssertStatus(t, w, http.StatusOK)
	if !strings.Contains(w.Body.String(), "BLACKCAT_ALLEY_001") {
		t.Errorf("admin catalog should include codes")
	}

	w = serve(r, testutil.MakeRequest("PUT", "/api/admin/steps/2", map[string]string{"qr_code_url": "https://cdn.example.com/2.png"}, atoken))
	testutil.AssertStatus(t, w, http.StatusOK)
	var res struct {
		Step models.Step `json:"step"`
	}
	testutil.DecodeJSON(t, w, &res)
	if res.Step.QRCodeURL != "https://cdn.example.com/2.png" || res.Step.QRCodeValue != "ART_MUSEUM_002" {
		t.Errorf("unexpected step %+v", res.Step)
	}

	tests := []struct {
		name string
		path string
		body map[string]string
		want int
	}{
		{"duplicate code", "/api/admin/steps/2", map[string]string{"qr_code_value": "BLACKCAT_ALLEY_001"}, http.StatusConflict},
		{"empty code", "/api/admin/steps/2", map[string]string{"qr_code_value": ""}, http.StatusBadRequest},
		{"unknown step", "/api/admin/steps/99", map[string]string{"qr_code_url": "x"}, http.StatusNotFound},
		{"bad id", "/api/admin/steps/two", map[string]string{"qr_code_url": "x"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(r, testutil.MakeRequest("PUT", tt.path, tt.body, atoken))
			testutil.AssertStatus(t, w, tt.want)
		})
	}
}

func TestAdminStats(t *testing.T) {
	r, _ := newTestServer(t)
	participantToken(t, r, "one@example.com")
	atoken := adminToken(t, r)

	w := serve(r, testutil.MakeRequest("GET", "/api/admin/stats", nil, atoken))
	testutil.AssertStatus(t, w, http.StatusOK)
	var st struct {
		TotalUsers int               `json:"total_users"`
		StepStats  []json.RawMessage `json:"step_stats"`
	}
	testutil.DecodeJSON(t, w, &st)
	if st.TotalUsers != 1 || len(st.StepStats) != 13 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestNotificationStream(t *testing.T) {
	cfg := testutil.Config()
	cfg.HeartbeatInterval = 10 * time.Millisecond
	r, _ := newTestServerWithConfig(t, cfg)
	atoken := adminToken(t, r)

	ctx, cancel := context.WithTimeout(context.Background(), 55*time.Millisecond)
	defer cancel()
	req := testutil.MakeRequest("GET", "/api/admin/notifications/stream", nil, atoken).WithContext(ctx)

	w := serve(r, req)
	testutil.AssertStatus(t, w, http.StatusOK)
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("unexpected content type %q", ct)
	}

	var beats int
	for _, line := range strings.Split(w.Body.String(), "\n") {
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		var hb struct {
			Type      string `json:"type"`
			Timestamp string `json:"timestamp"`
		}
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data:")), &hb); err != nil {
			t.Fatalf("bad event payload %q: %v", line, err)
		}
		if hb.Type != "heartbeat" || hb.Timestamp == "" {
			t.Errorf("unexpected heartbeat %+v", hb)
		}
		beats++
	}
	if beats < 2 {
		t.Errorf("expected at least 2 heartbeats, got %d", beats)
	}
}
