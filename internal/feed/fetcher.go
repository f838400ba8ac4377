package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mtatracker-data/internal/common/config"
	"github.com/mtatracker-data/internal/common/logger"
)

const userAgent = "mtatracker-data/1.0"

// Payload is one feed group's raw protobuf body.
type Payload struct {
	Group string
	Body  []byte
}

// Fetcher retrieves realtime feeds over HTTP, one group at a time. Each
// group is fetched independently; a failure is logged and reported without
// touching the other groups. No retry happens here, the next cycle is the
// retry.
type Fetcher struct {
	httpClient *http.Client
	timeout    time.Duration
	logger     logger.Logger
}

func NewFetcher(timeout time.Duration, log logger.Logger) *Fetcher {
	client := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 5,
			IdleConnTimeout:     30 * time.Second,
		},
	}

	return &Fetcher{
		httpClient: client,
		timeout:    timeout,
		logger:     log,
	}
}

// FetchAll fetches every group and returns the successful payloads plus the
// names of the groups that failed.
func (f *Fetcher) FetchAll(ctx context.Context, groups []config.Group) ([]Payload, []string) {
	payloads := make([]Payload, 0, len(groups))
	var failed []string

	for _, group := range groups {
		body, err := f.fetch(ctx, group)
		if err != nil {
			f.logger.Warn("Feed fetch failed", "group", group.Name, "error", err)
			failed = append(failed, group.Name)
			continue
		}
		payloads = append(payloads, Payload{Group: group.Name, Body: body})
		f.logger.Debug("Fetched feed", "group", group.Name, "bytes", len(body))
	}

	return payloads, failed
}

func (f *Fetcher) fetch(ctx context.Context, group config.Group) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, group.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/x-protobuf")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	return body, nil
}
