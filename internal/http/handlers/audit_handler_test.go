package handlers

import (
	"net/http"
	"testing"
)

func TestListAuditLogs_MapsQuery(t *testing.T) {
	audit := &stubAudit{}
	h := New(Services{Audit: audit}, Options{})
	r := newEngine(t, admin)
	r.GET("/admin/audit-logs", h.ListAuditLogs)

	w := doJSON(r, http.MethodGet, "/admin/audit-logs?page=2&limit=5&entity=video&entityId=v1&user_id=a1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	q := audit.q
	if q.Page != 2 || q.Limit != 5 || q.Entity != "video" || q.EntityID != "v1" || q.UserID != "a1" {
		t.Fatalf("query=%+v", q)
	}

	if w := doJSON(r, http.MethodGet, "/admin/audit-logs?page=x", nil); w.Code != http.StatusOK || audit.q.Page != defaultAuditPage {
		t.Fatalf("default page: %d %+v", w.Code, audit.q)
	}
}
