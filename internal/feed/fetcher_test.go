package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtatracker-data/internal/common/config"
	"github.com/mtatracker-data/internal/common/logger"
)

func TestFetchAllIsolatesFailures(t *testing.T) {
	okServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/x-protobuf", r.Header.Get("Accept"))
		w.Write([]byte("payload-bytes"))
	}))
	defer okServer.Close()

	failServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer failServer.Close()

	fetcher := NewFetcher(5*time.Second, logger.Nop())
	groups := []config.Group{
		{Name: "ACE", URL: okServer.URL},
		{Name: "BDFM", URL: failServer.URL},
		{Name: "G", URL: "http://127.0.0.1:1/unreachable"},
	}

	payloads, failed := fetcher.FetchAll(context.Background(), groups)

	require.Len(t, payloads, 1)
	assert.Equal(t, "ACE", payloads[0].Group)
	assert.Equal(t, []byte("payload-bytes"), payloads[0].Body)
	assert.ElementsMatch(t, []string{"BDFM", "G"}, failed)
}

func TestFetchAllTimeoutIsFailure(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer slow.Close()

	fetcher := NewFetcher(50*time.Millisecond, logger.Nop())
	payloads, failed := fetcher.FetchAll(context.Background(), []config.Group{{Name: "L", URL: slow.URL}})

	assert.Empty(t, payloads)
	assert.Equal(t, []string{"L"}, failed)
}

func TestFetchAllEmptyGroups(t *testing.T) {
	fetcher := NewFetcher(time.Second, logger.Nop())
	payloads, failed := fetcher.FetchAll(context.Background(), nil)
	assert.Empty(t, payloads)
	assert.Empty(t, failed)
}
