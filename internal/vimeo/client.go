// Package vimeo is a small client for the Vimeo REST API: video metadata,
// secure player URLs, privacy settings, processing status and resumable
// (tus) uploads.
package vimeo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://api.vimeo.com"

// Errors returned by the client. Every failed API call wraps ErrProvider;
// a 404 additionally wraps ErrNotFound.
var (
	ErrProvider = errors.New("vimeo: provider error")
	ErrNotFound = errors.New("vimeo: video not found")
	ErrNoEmbed  = errors.New("vimeo: video has no player embed url")
)

// PictureSize is one rendition of a video thumbnail.
type PictureSize struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Link   string `json:"link"`
}

// Video is the subset of the video resource the platform consumes.
type Video struct {
	URI            string `json:"uri"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	Duration       int    `json:"duration"`
	Link           string `json:"link"`
	PlayerEmbedURL string `json:"player_embed_url"`
	Pictures       struct {
		Sizes []PictureSize `json:"sizes"`
	} `json:"pictures"`
	Upload struct {
		Status     string `json:"status"`
		UploadLink string `json:"upload_link"`
		Approach   string `json:"approach"`
	} `json:"upload"`
	Transcode struct {
		Status string `json:"status"`
	} `json:"transcode"`
}

// ID returns the numeric id at the end of URI ("/videos/{id}").
func (v *Video) ID() string {
	i := strings.LastIndex(v.URI, "/")
	return v.URI[i+1:]
}

// Client is an authenticated API client.
type Client struct {
	BaseURL      string
	Token        string
	HTTPClient   *http.Client
	EmbedDomains []string

	// UploadClient sends tus PATCH bodies. A chunk can take far longer than
	// an API call, so it carries no timeout and is bounded by the context.
	UploadClient *http.Client

	// ChunkSize bounds each tus PATCH body.
	ChunkSize int64
	// RetryDelays are the waits before re-attempting a failed chunk.
	RetryDelays []time.Duration
}

// New returns a client for baseURL (DefaultBaseURL when empty).
func New(baseURL, token string, timeout time.Duration, embedDomains []string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		Token:        token,
		HTTPClient:   &http.Client{Timeout: timeout},
		UploadClient: &http.Client{},
		EmbedDomains: embedDomains,
		ChunkSize:    128 << 20,
		RetryDelays:  []time.Duration{0, 3 * time.Second, 5 * time.Second, 10 * time.Second, 20 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	target := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		target = c.BaseURL + path
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "bearer "+c.Token)
	req.Header.Set("Accept", "application/vnd.vimeo.*+json;version=3.4")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrProvider, method, path, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %w: %s", ErrProvider, ErrNotFound, path)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s %s: status=%d body=%s", ErrProvider, method, path, resp.StatusCode, string(raw))
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("%w: decode %s: %v", ErrProvider, path, err)
		}
	}
	return nil
}

// GetVideo fetches the video resource.
func (c *Client) GetVideo(ctx context.Context, id string) (*Video, error) {
	var v Video
	if err := c.do(ctx, http.MethodGet, "/videos/"+url.PathEscape(id), nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// ClosestThumbnail picks the picture whose width is closest to width, or "".
func ClosestThumbnail(v *Video, width int) string {
	best, bestDiff := "", -1
	for _, s := range v.Pictures.Sizes {
		d := s.Width - width
		if d < 0 {
			d = -d
		}
		if bestDiff < 0 || d < bestDiff {
			best, bestDiff = s.Link, d
		}
	}
	return best
}

// Thumbnail returns the thumbnail closest to width. Errors yield "".
func (c *Client) Thumbnail(ctx context.Context, id string, width int) string {
	v, err := c.GetVideo(ctx, id)
	if err != nil {
		return ""
	}
	return ClosestThumbnail(v, width)
}

// SecurePlayerURL returns the private embed URL stamped with the current unix
// time. Domain whitelisting on the provider side enforces where it plays.
func (c *Client) SecurePlayerURL(ctx context.Context, id string) (string, error) {
	v, err := c.GetVideo(ctx, id)
	if err != nil {
		return "", err
	}
	if v.PlayerEmbedURL == "" {
		return "", ErrNoEmbed
	}
	sep := "?"
	if strings.Contains(v.PlayerEmbedURL, "?") {
		sep = "&"
	}
	return v.PlayerEmbedURL + sep + "t=" + strconv.FormatInt(time.Now().Unix(), 10), nil
}

// UpdatePrivacy sets the view privacy and keeps embedding whitelisted.
func (c *Client) UpdatePrivacy(ctx context.Context, id, view string) error {
	body := map[string]any{"privacy": map[string]string{"view": view, "embed": "whitelist"}}
	return c.do(ctx, http.MethodPatch, "/videos/"+url.PathEscape(id), body, nil)
}

// Delete removes the video from the provider.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/videos/"+url.PathEscape(id), nil, nil)
}

// AllowEmbedDomain whitelists domain for embedding the video.
func (c *Client) AllowEmbedDomain(ctx context.Context, id, domain string) error {
	path := "/videos/" + url.PathEscape(id) + "/privacy/domains/" + url.PathEscape(domain)
	return c.do(ctx, http.MethodPut, path, nil, nil)
}
