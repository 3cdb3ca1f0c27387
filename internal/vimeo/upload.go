package vimeo

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"
)

const tusVersion = "1.0.0"

// ProgressFunc receives the bytes acknowledged by the server so far.
type ProgressFunc func(sent, total int64)

type createRequest struct {
	Upload struct {
		Approach string `json:"approach"`
		Size     string `json:"size"`
	} `json:"upload"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Privacy     struct {
		View  string `json:"view"`
		Embed string `json:"embed"`
	} `json:"privacy"`
}

// Upload creates a private, embed-whitelisted video and streams the file at
// path to it with the tus protocol. It returns the provider video id.
// Whitelisting the configured embed domains afterwards is best effort.
func (c *Client) Upload(ctx context.Context, path, name, description string, onProgress ProgressFunc) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	size := info.Size()

	var req createRequest
	req.Upload.Approach = "tus"
	req.Upload.Size = strconv.FormatInt(size, 10)
	req.Name = name
	req.Description = description
	req.Privacy.View = "disable"
	req.Privacy.Embed = "whitelist"

	var created Video
	if err := c.do(ctx, http.MethodPost, "/me/videos", req, &created); err != nil {
		return "", err
	}
	if created.Upload.UploadLink == "" || created.URI == "" {
		return "", fmt.Errorf("%w: create response without upload link", ErrProvider)
	}

	if err := c.tusUpload(ctx, created.Upload.UploadLink, f, size, onProgress); err != nil {
		return "", err
	}

	id := created.ID()
	for _, d := range c.EmbedDomains {
		_ = c.AllowEmbedDomain(ctx, id, d)
	}
	return id, nil
}

func (c *Client) tusUpload(ctx context.Context, link string, f io.ReaderAt, size int64, onProgress ProgressFunc) error {
	chunk := c.ChunkSize
	if chunk <= 0 {
		chunk = 128 << 20
	}

	var offset int64
	for offset < size {
		n := chunk
		if rem := size - offset; rem < n {
			n = rem
		}

		next, err := c.patchChunk(ctx, link, io.NewSectionReader(f, offset, n), offset, n)
		for attempt := 0; err != nil && attempt < len(c.RetryDelays); attempt++ {
			if werr := sleepCtx(ctx, c.RetryDelays[attempt]); werr != nil {
				return werr
			}
			// Resume from whatever the server already stored.
			if cur, herr := c.headOffset(ctx, link); herr == nil {
				offset = cur
				if offset >= size {
					err = nil
					next = offset
					break
				}
				if rem := size - offset; rem < n {
					n = rem
				}
			}
			next, err = c.patchChunk(ctx, link, io.NewSectionReader(f, offset, n), offset, n)
		}
		if err != nil {
			return err
		}
		if next <= offset {
			return fmt.Errorf("%w: tus offset did not advance (%d)", ErrProvider, next)
		}
		offset = next
		if onProgress != nil {
			onProgress(offset, size)
		}
	}
	return nil
}

func (c *Client) patchChunk(ctx context.Context, link string, body io.Reader, offset, n int64) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, link, body)
	if err != nil {
		return 0, err
	}
	req.ContentLength = n
	req.Header.Set("Tus-Resumable", tusVersion)
	req.Header.Set("Upload-Offset", strconv.FormatInt(offset, 10))
	req.Header.Set("Content-Type", "application/offset+octet-stream")

	hc := c.UploadClient
	if hc == nil {
		hc = c.HTTPClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: tus patch: %v", ErrProvider, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("%w: tus patch: status=%d", ErrProvider, resp.StatusCode)
	}
	return parseOffset(resp)
}

func (c *Client) headOffset(ctx context.Context, link string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, link, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Tus-Resumable", tusVersion)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("%w: tus head: status=%d", ErrProvider, resp.StatusCode)
	}
	return parseOffset(resp)
}

func parseOffset(resp *http.Response) (int64, error) {
	v, err := strconv.ParseInt(resp.Header.Get("Upload-Offset"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad Upload-Offset %q", ErrProvider, resp.Header.Get("Upload-Offset"))
	}
	return v, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
