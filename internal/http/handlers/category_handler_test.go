package handlers

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/course-platform-backend/internal/services"
)

func newCategoryRouter(t *testing.T, cats *stubCategories) *gin.Engine {
	t.Helper()
	h := New(Services{Categories: cats}, Options{})
	r := newEngine(t, admin)
	r.GET("/categories", h.ListCategories)
	r.GET("/categories/:id", h.GetCategory)
	r.POST("/categories", h.CreateCategory)
	return r
}

func TestCategories_ReadRoutes(t *testing.T) {
	r := newCategoryRouter(t, &stubCategories{})

	if w := doJSON(r, http.MethodGet, "/categories", nil); w.Code != http.StatusOK {
		t.Fatalf("list status=%d", w.Code)
	}
	if w := doJSON(r, http.MethodGet, "/categories/pasteleria", nil); w.Code != http.StatusOK {
		t.Fatalf("get status=%d", w.Code)
	}
	if w := doJSON(r, http.MethodGet, "/categories/missing", nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing status=%d", w.Code)
	}
}

func TestCreateCategory(t *testing.T) {
	cats := &stubCategories{}
	r := newCategoryRouter(t, cats)

	w := doJSON(r, http.MethodPost, "/categories", map[string]any{
		"name": "Pastelería inicial", "price_ars": 45000, "price_usd": 45, "is_active": false,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if cats.created.Name != "Pastelería inicial" || cats.created.IsActive == nil || *cats.created.IsActive {
		t.Fatalf("input=%+v", cats.created)
	}

	if w := doJSON(r, http.MethodPost, "/categories", map[string]any{"name": "x", "price_ars": -1}); w.Code != http.StatusBadRequest {
		t.Fatalf("negative price: status=%d", w.Code)
	}

	cats.err = services.ErrSlugTaken
	if w := doJSON(r, http.MethodPost, "/categories", map[string]any{"name": "Dup"}); w.Code != http.StatusConflict {
		t.Fatalf("dup status=%d", w.Code)
	}
}

func TestCategories_AdminRoutes(t *testing.T) {
	cats := &stubCategories{}
	h := New(Services{Categories: cats}, Options{})
	r := newEngine(t, admin)
	r.GET("/categories/all", h.ListAllCategories)
	r.GET("/categories/:id", h.GetCategory)
	r.PATCH("/categories/:id", h.UpdateCategory)
	r.DELETE("/categories/:id", h.DeleteCategory)

	w := doJSON(r, http.MethodGet, "/categories/all", nil)
	if w.Code != http.StatusOK || w.Body.String() != "[]" {
		t.Fatalf("list all: %d %s", w.Code, w.Body.String())
	}

	w = doJSON(r, http.MethodPatch, "/categories/c1", map[string]any{"price_ars": 0, "is_active": false})
	if w.Code != http.StatusOK {
		t.Fatalf("update status=%d body=%s", w.Code, w.Body.String())
	}
	p := cats.patched
	if p.Name != nil || p.PriceARS == nil || *p.PriceARS != 0 || p.IsActive == nil || *p.IsActive {
		t.Fatalf("patch=%+v", p)
	}
	if w := doJSON(r, http.MethodPatch, "/categories/c1", map[string]any{"price_usd": -3}); w.Code != http.StatusBadRequest {
		t.Fatalf("negative price: status=%d", w.Code)
	}

	if w := doJSON(r, http.MethodDelete, "/categories/c1", nil); w.Code != http.StatusNoContent || cats.deleted != "c1" {
		t.Fatalf("delete: %d deleted=%q", w.Code, cats.deleted)
	}

	cases := []struct {
		err    error
		method string
		status int
	}{
		{services.ErrCategoryHasVideos, http.MethodDelete, http.StatusConflict},
		{services.ErrCategoryNotFound, http.MethodDelete, http.StatusNotFound},
		{services.ErrSlugTaken, http.MethodPatch, http.StatusConflict},
		{services.ErrCategoryNotFound, http.MethodPatch, http.StatusNotFound},
	}
	for _, tc := range cases {
		cats.err = tc.err
		if w := doJSON(r, tc.method, "/categories/c1", map[string]any{"name": "x"}); w.Code != tc.status {
			t.Fatalf("%s with %v: status=%d want %d", tc.method, tc.err, w.Code, tc.status)
		}
	}
}
