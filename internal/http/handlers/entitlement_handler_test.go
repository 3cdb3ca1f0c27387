package handlers

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/course-platform-backend/internal/domain"
	"github.com/tbourn/course-platform-backend/internal/repo"
	"github.com/tbourn/course-platform-backend/internal/services"
)

func newEntitlementRouter(t *testing.T, id identity, ents *stubEntitlements, sweeps *stubSweeps) *gin.Engine {
	t.Helper()
	h := New(Services{Entitlements: ents, Sweeps: sweeps}, Options{})
	r := newEngine(t, id)
	r.GET("/me/entitlements", h.MyEntitlements)
	r.POST("/admin/users/:id/entitlements", h.GrantEntitlement)
	r.DELETE("/admin/users/:id/entitlements/:categoryId", h.RevokeEntitlement)
	r.POST("/admin/entitlements/sweep", h.RunSweep)
	r.GET("/admin/entitlements/stats", h.EntitlementStats)
	return r
}

func TestMyEntitlements_ActiveReflectsExpiry(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(24 * time.Hour)
	ents := &stubEntitlements{rows: []domain.Entitlement{
		{ID: "e1", CategoryID: "c1", IsActive: true, ExpiresAt: &future},
		{ID: "e2", CategoryID: "c2", IsActive: true, ExpiresAt: &past},
		{ID: "e3", CategoryID: "c3", IsActive: true},
		{ID: "e4", CategoryID: "c4", IsActive: false},
	}}
	r := newEntitlementRouter(t, student, ents, nil)

	w := doJSON(r, http.MethodGet, "/me/entitlements", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var out []struct {
		ID       string `json:"id"`
		IsActive bool   `json:"is_active"`
		Active   bool   `json:"active"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	want := map[string]bool{"e1": true, "e2": false, "e3": true, "e4": false}
	if len(out) != len(want) {
		t.Fatalf("len=%d", len(out))
	}
	for _, e := range out {
		if e.Active != want[e.ID] {
			t.Fatalf("%s active=%v", e.ID, e.Active)
		}
	}
	if !out[1].IsActive {
		t.Fatalf("stored flag must be passed through unchanged")
	}
}

func TestGrantEntitlement(t *testing.T) {
	ents := &stubEntitlements{}
	r := newEntitlementRouter(t, admin, ents, nil)

	w := doJSON(r, http.MethodPost, "/admin/users/u7/entitlements", map[string]any{
		"category_id": "c1", "amount": 0, "currency": "ARS", "method": "manual",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if len(ents.granted) != 1 || ents.granted[0].UserID != "u7" || ents.granted[0].CategoryID != "c1" {
		t.Fatalf("granted=%+v", ents.granted)
	}

	w = doJSON(r, http.MethodPost, "/admin/users/u7/entitlements", map[string]any{"category_id": "c1", "currency": "EUR"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad currency: status=%d", w.Code)
	}
}

func TestRevokeEntitlement(t *testing.T) {
	ents := &stubEntitlements{}
	r := newEntitlementRouter(t, admin, ents, nil)

	if w := doJSON(r, http.MethodDelete, "/admin/users/u7/entitlements/c1", nil); w.Code != http.StatusNoContent {
		t.Fatalf("status=%d", w.Code)
	}
	if len(ents.revoked) != 1 || ents.revoked[0] != [2]string{"u7", "c1"} {
		t.Fatalf("revoked=%v", ents.revoked)
	}

	ents.err = services.ErrEntitlementNotFound
	if w := doJSON(r, http.MethodDelete, "/admin/users/u7/entitlements/c9", nil); w.Code != http.StatusNotFound {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestSweepAndStats(t *testing.T) {
	sweeps := &stubSweeps{
		res: services.SweepResult{Deactivated: 3, NotificationsPurged: 7},
		st:  repo.EntitlementCounts{Total: 10, Active: 6, ExpiredButActive: 1, ExpiringSoon: 2},
	}
	r := newEntitlementRouter(t, admin, &stubEntitlements{}, sweeps)

	w := doJSON(r, http.MethodPost, "/admin/entitlements/sweep", nil)
	var res services.SweepResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil || res.Deactivated != 3 || res.NotificationsPurged != 7 {
		t.Fatalf("sweep=%+v err=%v", res, err)
	}

	w = doJSON(r, http.MethodGet, "/admin/entitlements/stats", nil)
	var st repo.EntitlementCounts
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil || st != sweeps.st {
		t.Fatalf("stats=%+v err=%v", st, err)
	}
}
