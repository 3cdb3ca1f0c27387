package repo

import (
	"context"
	"testing"
	"time"

	"github.com/tbourn/course-platform-backend/internal/domain"
)

func TestNotifications_MarkSeenPurge(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	now := time.Now().UTC()
	rec := domain.ProcessedNotification{Key: "payment-123", Topic: "payment", ResourceID: "123"}

	if seen, err := NotificationSeen(ctx, db, rec.Key, now); err != nil || seen {
		t.Fatalf("expected unseen, got seen=%v err=%v", seen, err)
	}
	inserted, err := MarkNotification(ctx, db, rec, time.Hour, now)
	if err != nil || !inserted {
		t.Fatalf("MarkNotification: inserted=%v err=%v", inserted, err)
	}
	inserted, err = MarkNotification(ctx, db, rec, time.Hour, now)
	if err != nil || inserted {
		t.Fatalf("second MarkNotification: inserted=%v err=%v", inserted, err)
	}
	if seen, _ := NotificationSeen(ctx, db, rec.Key, now); !seen {
		t.Fatalf("expected seen after mark")
	}

	later := now.Add(2 * time.Hour)
	if seen, _ := NotificationSeen(ctx, db, rec.Key, later); seen {
		t.Fatalf("expired mark must not count as seen")
	}
	n, err := PurgeNotifications(ctx, db, later)
	if err != nil || n != 1 {
		t.Fatalf("PurgeNotifications: n=%d err=%v", n, err)
	}
}
