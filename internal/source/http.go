package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/resilience"
)

// HTTP fetches a payload with a GET request.
type HTTP struct {
	url    string
	client *http.Client
}

func NewHTTP(url string, timeout time.Duration) *HTTP {
	return &HTTP{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (h *HTTP) Fetch(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return nil, resilience.Permanent(fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("Accept", "application/json, application/javascript, */*")
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %v", apperrors.ErrSourceUnavailable, h.url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		err := fmt.Errorf("%w: GET %s: status %d", apperrors.ErrSourceUnavailable, h.url, resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, resilience.Permanent(err)
		}
		return nil, err
	}
	return resp.Body, nil
}

func (h *HTTP) String() string {
	return h.url
}
