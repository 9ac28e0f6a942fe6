// Package transcript resolves embedded video transcripts.
package transcript

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/starford/synapse/internal/apperr"
)

// Provider returns the transcript of a video. A missing transcript is
// reported as ("", false, nil).
type Provider interface {
	Transcript(ctx context.Context, videoID string) (string, bool, error)
}

// HTTPProvider fetches plain-text transcripts from <baseURL>/<videoID>.
type HTTPProvider struct {
	client *resty.Client
}

// NewHTTPProvider returns a provider for the transcript API at baseURL.
func NewHTTPProvider(baseURL string, timeout time.Duration) *HTTPProvider {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "text/plain").
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second)
	client.AddRetryCondition(func(r *resty.Response, err error) bool {
		return err != nil || r.StatusCode() >= http.StatusInternalServerError
	})
	return &HTTPProvider{client: client}
}

// Transcript implements Provider.
func (p *HTTPProvider) Transcript(ctx context.Context, videoID string) (string, bool, error) {
	resp, err := p.client.R().
		SetContext(ctx).
		Get("/" + url.PathEscape(videoID))
	if err != nil {
		return "", false, &apperr.ProviderError{Provider: "transcript", Err: err}
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return "", false, nil
	case resp.IsError():
		return "", false, &apperr.ProviderError{
			Provider: "transcript",
			Err:      fmt.Errorf("video %s: status %d", videoID, resp.StatusCode()),
		}
	}
	text := strings.TrimSpace(resp.String())
	if text == "" {
		return "", false, nil
	}
	return text, true, nil
}
