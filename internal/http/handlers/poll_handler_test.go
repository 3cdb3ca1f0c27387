package handlers

import (
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/course-platform-backend/internal/services"
)

func newPollRouter(t *testing.T, id identity, polls *stubPolls) *gin.Engine {
	t.Helper()
	h := New(Services{Polls: polls}, Options{})
	r := newEngine(t, id)
	r.GET("/presenciales/polls", h.ListPolls)
	r.POST("/presenciales/polls", h.CreatePoll)
	r.GET("/presenciales/polls/:id", h.GetPoll)
	r.POST("/presenciales/polls/:id/vote", h.VotePoll)
	r.PATCH("/presenciales/polls/:id/close", h.ClosePoll)
	r.GET("/presenciales/polls/:id/stats", h.PollStats)
	r.PUT("/presenciales/polls/:id", h.UpdatePoll)
	r.GET("/presenciales/polls/:id/votes", h.PollVotes)
	return r
}

func TestCreatePoll_MapsRequest(t *testing.T) {
	polls := &stubPolls{}
	r := newPollRouter(t, admin, polls)

	w := doJSON(r, http.MethodPost, "/presenciales/polls", map[string]any{
		"title":      "Knife skills workshop",
		"course_ids": []string{"c1", "c2"},
		"user_overrides": []map[string]any{
			{"email": " guest@example.com ", "allowed": true},
		},
		"options": []map[string]any{
			{"date": "2026-10-20", "start_time": "10:30", "duration_minutes": 120},
			{"date": "2026-10-21", "start_time": "16:00"},
		},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	in := polls.created
	if in.Title != "Knife skills workshop" || len(in.Options) != 2 || len(in.Eligibility.CourseIDs) != 2 {
		t.Fatalf("input=%+v", in)
	}
	if in.Options[0].StartTime != "10:30" || in.Options[0].DurationMinutes != 120 || in.Options[1].DurationMinutes != 0 {
		t.Fatalf("options=%+v", in.Options)
	}
	if len(in.Eligibility.UserOverrides) != 1 || in.Eligibility.UserOverrides[0].Email != "guest@example.com" {
		t.Fatalf("overrides=%+v", in.Eligibility.UserOverrides)
	}
}

func TestCreatePoll_Validation(t *testing.T) {
	cases := []struct {
		name string
		body map[string]any
	}{
		{"no options", map[string]any{"title": "x"}},
		{"bad time", map[string]any{"title": "x", "options": []map[string]any{{"date": "2026-10-20", "start_time": "9:30"}}}},
		{"bad date", map[string]any{"title": "x", "options": []map[string]any{{"date": "20/10/2026", "start_time": "10:00"}}}},
		{"bad hour", map[string]any{"title": "x", "options": []map[string]any{{"date": "2026-10-20", "start_time": "25:00"}}}},
		{"short duration", map[string]any{"title": "x", "options": []map[string]any{{"date": "2026-10-20", "start_time": "10:00", "duration_minutes": 5}}}},
		{"bad override email", map[string]any{
			"title":          "x",
			"options":        []map[string]any{{"date": "2026-10-20", "start_time": "10:00"}},
			"user_overrides": []map[string]any{{"email": "not-an-email"}},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			polls := &stubPolls{}
			r := newPollRouter(t, admin, polls)
			if w := doJSON(r, http.MethodPost, "/presenciales/polls", tc.body); w.Code != http.StatusBadRequest {
				t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
			}
			if polls.created.Title != "" {
				t.Fatalf("service must not be called")
			}
		})
	}
}

func TestVotePoll(t *testing.T) {
	polls := &stubPolls{}
	r := newPollRouter(t, student, polls)

	w := doJSON(r, http.MethodPost, "/presenciales/polls/p1/vote", map[string]string{"option_id": " o2 "})
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if polls.voted != [2]string{"p1", "o2"} {
		t.Fatalf("voted=%v", polls.voted)
	}

	if w := doJSON(r, http.MethodPost, "/presenciales/polls/p1/vote", map[string]string{}); w.Code != http.StatusBadRequest {
		t.Fatalf("missing option: status=%d", w.Code)
	}
}

func TestVotePoll_ServiceErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{services.ErrNotEligible, http.StatusForbidden},
		{services.ErrPollClosed, http.StatusBadRequest},
		{services.ErrInvalidPollOption, http.StatusBadRequest},
		{services.ErrPollNotFound, http.StatusNotFound},
	}
	for _, tc := range cases {
		r := newPollRouter(t, student, &stubPolls{err: tc.err})
		if w := doJSON(r, http.MethodPost, "/presenciales/polls/p1/vote", map[string]string{"option_id": "o1"}); w.Code != tc.status {
			t.Fatalf("%v: status=%d", tc.err, w.Code)
		}
	}
}

func TestPollReadAndAdminRoutes(t *testing.T) {
	r := newPollRouter(t, admin, &stubPolls{})

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/presenciales/polls"},
		{http.MethodGet, "/presenciales/polls/p1"},
		{http.MethodPatch, "/presenciales/polls/p1/close"},
		{http.MethodGet, "/presenciales/polls/p1/stats"},
	} {
		if w := doJSON(r, tc.method, tc.path, nil); w.Code != http.StatusOK {
			t.Fatalf("%s %s: status=%d", tc.method, tc.path, w.Code)
		}
	}
}

func TestUpdatePoll_MapsPatch(t *testing.T) {
	polls := &stubPolls{}
	r := newPollRouter(t, admin, polls)

	w := doJSON(r, http.MethodPut, "/presenciales/polls/p1", map[string]any{
		"title":          "Knife skills II",
		"clear_deadline": true,
		"status":         "closed",
		"eligibility":    map[string]any{"course_ids": []string{"c9"}, "user_overrides": []map[string]any{{"email": " vip@example.com ", "allowed": true}}},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	p := polls.patched
	if p.Title == nil || *p.Title != "Knife skills II" || !p.ClearDeadline || p.Status == nil || *p.Status != "closed" {
		t.Fatalf("patch=%+v", p)
	}
	if p.Eligibility == nil || p.Eligibility.CourseIDs[0] != "c9" || p.Eligibility.UserOverrides[0].Email != "vip@example.com" {
		t.Fatalf("eligibility=%+v", p.Eligibility)
	}
	if p.Options != nil {
		t.Fatalf("options should stay untouched: %+v", p.Options)
	}

	w = doJSON(r, http.MethodPut, "/presenciales/polls/p1", map[string]any{
		"options": []map[string]any{{"date": "2026-10-22", "start_time": "16:00"}},
	})
	if w.Code != http.StatusOK || len(polls.patched.Options) != 1 || polls.patched.Options[0].StartTime != "16:00" {
		t.Fatalf("options patch: %d %+v", w.Code, polls.patched)
	}

	for name, body := range map[string]map[string]any{
		"unknown status": {"status": "draft"},
		"short title":    {"title": "ab"},
		"empty options":  {"options": []any{}},
		"bad option":     {"options": []map[string]any{{"date": "22/10/2026", "start_time": "16:00"}}},
	} {
		if w := doJSON(r, http.MethodPut, "/presenciales/polls/p1", body); w.Code != http.StatusBadRequest {
			t.Fatalf("%s: status=%d", name, w.Code)
		}
	}

	polls.err = services.ErrPollNotFound
	if w := doJSON(r, http.MethodPut, "/presenciales/polls/p1", map[string]any{"title": "Missing"}); w.Code != http.StatusNotFound {
		t.Fatalf("missing: status=%d", w.Code)
	}
}

func TestPollVotes(t *testing.T) {
	polls := &stubPolls{}
	r := newPollRouter(t, admin, polls)

	w := doJSON(r, http.MethodGet, "/presenciales/polls/p1/votes", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"meta":{"total":2}`) {
		t.Fatalf("got %d %s", w.Code, w.Body.String())
	}

	polls.err = services.ErrPollNotFound
	if w := doJSON(r, http.MethodGet, "/presenciales/polls/p1/votes", nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing: status=%d", w.Code)
	}
}
