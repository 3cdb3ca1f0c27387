package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/course-platform-backend/internal/domain"
	"github.com/tbourn/course-platform-backend/internal/repo"
	"github.com/tbourn/course-platform-backend/internal/services"
)

//
// Stub services. Nil funcs return zero values.
//

type stubVideos struct {
	list           func(services.VideoQuery, services.Viewer) (*services.VideoPage, error)
	get            func(string, services.Viewer) (*services.VideoResponse, error)
	create         func(services.VideoInput) (*services.VideoResponse, error)
	update         func(string, services.VideoPatch) (*services.VideoResponse, error)
	del            func(string) error
	upload         func(services.UploadInput) (*services.VideoResponse, error)
	uploadStatus   func(string) (*services.UploadStatusView, error)
	updateProgress func(userID, videoID string, secs int, done bool) (*services.Progress, error)
	getProgress    func(userID, videoID string) (*services.Progress, error)
}

func (s *stubVideos) List(_ context.Context, q services.VideoQuery, v services.Viewer) (*services.VideoPage, error) {
	if s.list == nil {
		return &services.VideoPage{}, nil
	}
	return s.list(q, v)
}

func (s *stubVideos) Get(_ context.Context, id string, v services.Viewer) (*services.VideoResponse, error) {
	if s.get == nil {
		return &services.VideoResponse{ID: id}, nil
	}
	return s.get(id, v)
}

func (s *stubVideos) Create(_ context.Context, in services.VideoInput, _ services.Viewer) (*services.VideoResponse, error) {
	if s.create == nil {
		return &services.VideoResponse{Title: in.Title}, nil
	}
	return s.create(in)
}

func (s *stubVideos) Update(_ context.Context, id string, p services.VideoPatch, _ services.Viewer) (*services.VideoResponse, error) {
	if s.update == nil {
		return &services.VideoResponse{ID: id}, nil
	}
	return s.update(id, p)
}

func (s *stubVideos) Delete(_ context.Context, id string) error {
	if s.del == nil {
		return nil
	}
	return s.del(id)
}

func (s *stubVideos) Upload(_ context.Context, in services.UploadInput) (*services.VideoResponse, error) {
	if s.upload == nil {
		return &services.VideoResponse{Title: in.Title}, nil
	}
	return s.upload(in)
}

func (s *stubVideos) UploadStatus(_ context.Context, id string) (*services.UploadStatusView, error) {
	if s.uploadStatus == nil {
		return &services.UploadStatusView{Status: "available", Progress: 100}, nil
	}
	return s.uploadStatus(id)
}

func (s *stubVideos) UpdateProgress(_ context.Context, userID, videoID string, secs int, done bool) (*services.Progress, error) {
	if s.updateProgress == nil {
		return &services.Progress{WatchedSeconds: secs, Completed: done}, nil
	}
	return s.updateProgress(userID, videoID, secs, done)
}

func (s *stubVideos) GetProgress(_ context.Context, userID, videoID string) (*services.Progress, error) {
	if s.getProgress == nil {
		return &services.Progress{}, nil
	}
	return s.getProgress(userID, videoID)
}

type stubAccess struct {
	stream func(string, services.Viewer) (*services.StreamURL, error)
}

func (s *stubAccess) Stream(_ context.Context, id string, v services.Viewer) (*services.StreamURL, error) {
	return s.stream(id, v)
}

type stubCarts struct {
	calls  []string
	add    func(userID, categoryID string) (*services.CartView, error)
	remove func(userID, itemID string) (*services.CartView, error)
}

func (s *stubCarts) Get(_ context.Context, userID string) (*services.CartView, error) {
	s.calls = append(s.calls, "get:"+userID)
	return &services.CartView{UserID: userID}, nil
}

func (s *stubCarts) Add(_ context.Context, userID, categoryID string) (*services.CartView, error) {
	s.calls = append(s.calls, "add:"+userID+":"+categoryID)
	if s.add != nil {
		return s.add(userID, categoryID)
	}
	return &services.CartView{UserID: userID, ItemCount: 1}, nil
}

func (s *stubCarts) Remove(_ context.Context, userID, itemID string) (*services.CartView, error) {
	s.calls = append(s.calls, "remove:"+userID+":"+itemID)
	if s.remove != nil {
		return s.remove(userID, itemID)
	}
	return &services.CartView{UserID: userID}, nil
}

func (s *stubCarts) Clear(_ context.Context, userID string) error {
	s.calls = append(s.calls, "clear:"+userID)
	return nil
}

func (s *stubCarts) Summary(_ context.Context, userID string) (*services.CartSummary, error) {
	s.calls = append(s.calls, "summary:"+userID)
	return &services.CartSummary{ItemCount: 2, TotalARS: 90000, TotalUSD: 90}, nil
}

type stubEntitlements struct {
	rows    []domain.Entitlement
	granted []services.ManualGrant
	revoked [][2]string
	err     error
}

func (s *stubEntitlements) ListForUser(_ context.Context, _ string) ([]domain.Entitlement, error) {
	return s.rows, s.err
}

func (s *stubEntitlements) GrantManual(_ context.Context, in services.ManualGrant) (*domain.Entitlement, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.granted = append(s.granted, in)
	return &domain.Entitlement{UserID: in.UserID, CategoryID: in.CategoryID, IsActive: true}, nil
}

func (s *stubEntitlements) Revoke(_ context.Context, userID, categoryID string) error {
	if s.err != nil {
		return s.err
	}
	s.revoked = append(s.revoked, [2]string{userID, categoryID})
	return nil
}

type stubSweeps struct {
	res services.SweepResult
	st  repo.EntitlementCounts
}

func (s *stubSweeps) DeactivateExpired(context.Context) (services.SweepResult, error) {
	return s.res, nil
}

func (s *stubSweeps) Stats(context.Context) (repo.EntitlementCounts, error) { return s.st, nil }

type stubPolls struct {
	created services.PollInput
	patched services.PollPatch
	voted   [2]string
	err     error
}

func (s *stubPolls) Create(_ context.Context, in services.PollInput) (*domain.Poll, error) {
	s.created = in
	return &domain.Poll{ID: "p1", Title: in.Title, Status: domain.PollStatusOpen}, s.err
}

func (s *stubPolls) ListFor(_ context.Context, _ services.Viewer) ([]domain.Poll, error) {
	return []domain.Poll{{ID: "p1"}}, s.err
}

func (s *stubPolls) Get(_ context.Context, id string, _ services.Viewer) (*domain.Poll, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Poll{ID: id}, nil
}

func (s *stubPolls) Vote(_ context.Context, pollID, optionID string, v services.Viewer) (*domain.PollVote, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.voted = [2]string{pollID, optionID}
	return &domain.PollVote{PollID: pollID, OptionID: optionID, UserID: v.UserID}, nil
}

func (s *stubPolls) Close(_ context.Context, id string) (*domain.Poll, error) {
	return &domain.Poll{ID: id, Status: domain.PollStatusClosed}, s.err
}

func (s *stubPolls) Stats(_ context.Context, id string) (*services.PollStats, error) {
	return &services.PollStats{PollID: id, TotalVotes: 3}, s.err
}

func (s *stubPolls) Update(_ context.Context, id string, p services.PollPatch) (*domain.Poll, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.patched = p
	return &domain.Poll{ID: id, Status: domain.PollStatusOpen}, nil
}

func (s *stubPolls) Votes(_ context.Context, id string) (*services.PollVotes, error) {
	if s.err != nil {
		return nil, s.err
	}
	votes := []domain.PollVote{{PollID: id, UserID: "u2"}, {PollID: id, UserID: "u1"}}
	return &services.PollVotes{Data: votes, Meta: services.PollVotesMeta{Total: len(votes)}}, nil
}

type stubAudit struct {
	q services.AuditQuery
}

func (s *stubAudit) List(_ context.Context, q services.AuditQuery) (*services.AuditPage, error) {
	s.q = q
	return &services.AuditPage{Data: []domain.AuditLog{{ID: "l1", Action: "DELETE"}}}, nil
}

type stubAuth struct {
	login func(email, password string) (*services.LoginResult, error)
}

func (s *stubAuth) Login(_ context.Context, email, password string) (*services.LoginResult, error) {
	return s.login(email, password)
}

func (s *stubAuth) Me(_ context.Context, userID string) (*domain.User, error) {
	if userID == "" {
		return nil, services.ErrUserNotFound
	}
	return &domain.User{ID: userID, Email: userID + "@example.com", Role: domain.RoleUser}, nil
}

type stubCategories struct {
	created services.CategoryInput
	patched services.CategoryPatch
	deleted string
	err     error
}

func (s *stubCategories) Create(_ context.Context, in services.CategoryInput) (*domain.Category, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.created = in
	return &domain.Category{ID: "c1", Name: in.Name, Slug: in.Slug}, nil
}

func (s *stubCategories) Get(_ context.Context, idOrSlug string) (*domain.Category, error) {
	if idOrSlug == "missing" {
		return nil, services.ErrCategoryNotFound
	}
	return &domain.Category{ID: "c1", Slug: idOrSlug}, nil
}

func (s *stubCategories) ListActive(context.Context) ([]domain.Category, error) {
	return []domain.Category{{ID: "c1", Name: "Pastelería"}}, nil
}

func (s *stubCategories) ListAll(context.Context) ([]domain.Category, error) {
	return nil, s.err
}

func (s *stubCategories) Update(_ context.Context, id string, p services.CategoryPatch) (*domain.Category, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.patched = p
	return &domain.Category{ID: id}, nil
}

func (s *stubCategories) Delete(_ context.Context, id string) error {
	if s.err != nil {
		return s.err
	}
	s.deleted = id
	return nil
}

type stubDispatcher struct {
	got []services.Notification
	err error
}

func (s *stubDispatcher) Dispatch(_ context.Context, n services.Notification) error {
	s.got = append(s.got, n)
	return s.err
}

type stubVerifier struct {
	valid bool
	err   error
	sigs  []string
}

func (s *stubVerifier) Verify(_ []byte, sig string) (bool, error) {
	s.sigs = append(s.sigs, sig)
	return s.valid, s.err
}

// syncRunner runs tasks inline so tests can assert on their effects.
type syncRunner struct {
	names []string
	errs  []error
}

func (r *syncRunner) Go(ctx context.Context, name string, fn func(context.Context) error) {
	r.names = append(r.names, name)
	if err := fn(context.WithoutCancel(ctx)); err != nil {
		r.errs = append(r.errs, err)
	}
}

//
// Router helpers
//

type identity struct {
	userID, email, role string
}

// withIdentity mimics middleware.Authenticate for handler tests.
func withIdentity(id identity) gin.HandlerFunc {
	return func(c *gin.Context) {
		if id.userID != "" {
			c.Set("userID", id.userID)
			c.Set("email", id.email)
			c.Set("role", id.role)
		}
		c.Next()
	}
}

var (
	student = identity{userID: "u1", email: "u1@example.com", role: domain.RoleUser}
	admin   = identity{userID: "a1", email: "admin@example.com", role: domain.RoleAdmin}
)

func newEngine(t *testing.T, id identity) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if err := RegisterValidators(); err != nil {
		t.Fatalf("RegisterValidators: %v", err)
	}
	r := gin.New()
	r.Use(withIdentity(id))
	return r
}

func doJSON(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = bytes.NewBufferString(b)
	default:
		raw, _ := json.Marshal(b)
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	if rdr != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("error body: %v (%s)", err, w.Body.String())
	}
	return er
}
