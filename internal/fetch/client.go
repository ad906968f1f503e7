package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Phil-Grim/london-properties-analysis/internal/models"
)

// maxBodyBytes caps how much of a page is read into memory.
const maxBodyBytes = 8 << 20

// Client performs GET requests against the source site with a browser
// User-Agent and a bounded per-request timeout.
type Client struct {
	client    *http.Client
	userAgent string
}

func NewClient(timeout time.Duration, userAgent string) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// Get fetches url and returns the body. Every failure is a *models.FetchError.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &models.FetchError{URL: url, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "en-GB,en;q=0.9")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &models.FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, &models.FetchError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &models.FetchError{URL: url, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	return body, nil
}

// IsTemporary reports whether err is a fetch failure worth retrying.
func IsTemporary(err error) bool {
	var fe *models.FetchError
	return errors.As(err, &fe) && fe.Temporary()
}
