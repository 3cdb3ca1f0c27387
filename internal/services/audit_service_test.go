package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tbourn/course-platform-backend/internal/domain"
)

func TestAudit_RecordAndList(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	s := NewAuditService(db)
	t0 := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

	for i, e := range []domain.AuditLog{
		{UserID: "a1", Action: "CREATE", Entity: domain.AuditEntityCategory, EntityID: "c1"},
		{UserID: "a1", Action: "UPDATE", Entity: domain.AuditEntityCategory, EntityID: "c1"},
		{UserID: "a2", Action: "DELETE", Entity: domain.AuditEntityVideo, UserAgent: strings.Repeat("x", 600)},
	} {
		s.Now = fixedClock(t0.Add(time.Duration(i) * time.Minute))
		if err := s.Record(ctx, e); err != nil {
			t.Fatalf("Record #%d: %v", i, err)
		}
	}
	if err := s.Record(ctx, domain.AuditLog{Entity: domain.AuditEntityVideo}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("want ErrInvalidInput, got %v", err)
	}

	all, err := s.List(ctx, AuditQuery{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if all.Meta.Total != 3 || all.Data[0].Action != "DELETE" {
		t.Fatalf("unexpected page: %+v", all)
	}
	if all.Data[0].EntityID != "unknown" || len(all.Data[0].UserAgent) != maxAuditUserAgent {
		t.Fatalf("entry not normalised: %+v", all.Data[0])
	}

	cat, _ := s.List(ctx, AuditQuery{Entity: domain.AuditEntityCategory, EntityID: "c1", Limit: 1})
	if cat.Meta.Total != 2 || len(cat.Data) != 1 || !cat.Meta.HasNextPage || cat.Data[0].Action != "UPDATE" {
		t.Fatalf("unexpected filtered page: %+v", cat)
	}
	none, _ := s.List(ctx, AuditQuery{UserID: "nobody"})
	if none.Meta.Total != 0 || none.Data == nil {
		t.Fatalf("empty listing should carry an empty slice: %+v", none)
	}
}
