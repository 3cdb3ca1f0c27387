package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

// apiPosture mirrors what the router installs in front of the API.
var apiPosture = SecurityOptions{EnablePolicy: true}

func serveSecured(t *testing.T, opt SecurityOptions, prep func(*http.Request), pre ...gin.HandlerFunc) http.Header {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(pre...)
	r.Use(SecurityHeaders(opt))
	r.GET("/api/v1/videos", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/api/v1/videos", nil)
	if prep != nil {
		prep(req)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Header()
}

func overTLS(r *http.Request) { r.TLS = &tls.ConnectionState{} }

func TestSecurityHeaders_Postures(t *testing.T) {
	defaultHSTS := "max-age=" + strconv.Itoa(int(defaultHSTSMaxAge.Seconds())) + "; includeSubDomains; preload"

	cases := []struct {
		name   string
		opt    SecurityOptions
		prep   func(*http.Request)
		want   map[string]string
		absent []string
	}{
		{
			name: "api posture over plain http",
			opt:  apiPosture,
			want: map[string]string{
				"X-Content-Type-Options":            "nosniff",
				"X-Frame-Options":                   "DENY",
				"Referrer-Policy":                   "no-referrer",
				"X-Permitted-Cross-Domain-Policies": "none",
				"Permissions-Policy":                "geolocation=(), microphone=(), camera=(), payment=()",
			},
			absent: []string{"Strict-Transport-Security", "Cache-Control", "Pragma", "Expires"},
		},
		{
			name:   "bare options send only the baseline",
			opt:    SecurityOptions{},
			want:   map[string]string{"X-Content-Type-Options": "nosniff"},
			absent: []string{"Permissions-Policy", "X-Permitted-Cross-Domain-Policies", "Cache-Control"},
		},
		{
			name:   "hsts enabled but request is http",
			opt:    SecurityOptions{EnableHSTS: true},
			absent: []string{"Strict-Transport-Security"},
		},
		{
			name: "hsts over tls with configured max age",
			opt:  SecurityOptions{EnableHSTS: true, HSTSMaxAge: 24 * time.Hour},
			prep: overTLS,
			want: map[string]string{"Strict-Transport-Security": "max-age=86400; includeSubDomains; preload"},
		},
		{
			name: "hsts behind a tls-terminating proxy uses the default max age",
			opt:  SecurityOptions{EnableHSTS: true},
			prep: func(r *http.Request) { r.Header.Set("X-Forwarded-Proto", "https") },
			want: map[string]string{"Strict-Transport-Security": defaultHSTS},
		},
		{
			name: "global no-store",
			opt:  SecurityOptions{NoStore: true},
			want: map[string]string{"Cache-Control": "no-store", "Pragma": "no-cache", "Expires": "0"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := serveSecured(t, tc.opt, tc.prep)
			for k, v := range tc.want {
				if got := h.Get(k); got != v {
					t.Fatalf("%s = %q, want %q", k, got, v)
				}
			}
			for _, k := range tc.absent {
				if got := h.Get(k); got != "" {
					t.Fatalf("%s should be absent, got %q", k, got)
				}
			}
		})
	}
}

func TestSecurityHeaders_ExposesRequestID(t *testing.T) {
	cases := []struct {
		name     string
		existing string
		want     string
	}{
		{"nothing exposed yet", "", "X-Request-ID"},
		{"appended to cors list", "Content-Length, Retry-After", "Content-Length, Retry-After, X-Request-ID"},
		{"already exposed", "X-Request-ID, Retry-After", "X-Request-ID, Retry-After"},
		{"canonicalized by cors", "X-Request-Id,Retry-After", "X-Request-Id,Retry-After"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pre := func(c *gin.Context) {
				c.Header(requestIDHeader, "rid-1")
				if tc.existing != "" {
					c.Header("Access-Control-Expose-Headers", tc.existing)
				}
				c.Next()
			}
			h := serveSecured(t, apiPosture, nil, pre)
			if got := h.Get("Access-Control-Expose-Headers"); got != tc.want {
				t.Fatalf("expose = %q, want %q", got, tc.want)
			}
		})
	}

	// Without a request id nothing is added.
	if got := serveSecured(t, apiPosture, nil).Get("Access-Control-Expose-Headers"); got != "" {
		t.Fatalf("unexpected expose header %q", got)
	}
}

func TestSecurityHeaders_SurviveAuthRejection(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SecurityHeaders(apiPosture))
	r.GET("/api/v1/cart", Authenticate(testSecret, true), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("code = %d", w.Code)
	}
	if w.Header().Get("X-Frame-Options") != "DENY" || w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("401 lost hardening headers: %#v", w.Header())
	}
}

func Test_isHTTPS(t *testing.T) {
	cases := []struct {
		name string
		prep func(*http.Request)
		want bool
	}{
		{"plain", nil, false},
		{"tls", overTLS, true},
		{"proxy https", func(r *http.Request) { r.Header.Set("X-Forwarded-Proto", "https") }, true},
		{"proxy uppercase", func(r *http.Request) { r.Header.Set("X-Forwarded-Proto", "HTTPS") }, true},
		{"proxy http", func(r *http.Request) { r.Header.Set("X-Forwarded-Proto", "http") }, false},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.prep != nil {
			tc.prep(req)
		}
		if got := isHTTPS(req); got != tc.want {
			t.Fatalf("%s: isHTTPS = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestNoStore_RouteScoped(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SecurityHeaders(apiPosture))
	r.GET("/videos/:id/stream", NoStore(), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/videos", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/videos/v1/stream", nil))
	if w.Header().Get("Cache-Control") != "no-store" || w.Header().Get("Pragma") != "no-cache" {
		t.Fatalf("stream route missing no-store: %#v", w.Header())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/videos", nil))
	if w.Header().Get("Cache-Control") != "" {
		t.Fatalf("listing should stay cacheable, got %q", w.Header().Get("Cache-Control"))
	}
}
