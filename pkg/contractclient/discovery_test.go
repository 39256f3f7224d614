package contractclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPPositionDiscovery_CandidatesBelowHF(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1.25", r.URL.Query().Get("max_hf"))
		assert.Equal(t, "0", r.URL.Query().Get("page"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"users": [
				{"user": "0x1111111111111111111111111111111111111111", "health_factor": 1.01},
				{"user": "0x2222222222222222222222222222222222222222", "health_factor": 1.10}
			],
			"has_more": false
		}`))
	}))
	defer server.Close()

	discovery := NewHTTPPositionDiscovery(server.URL, nil)
	candidates, hasMore, err := discovery.CandidatesBelowHF(context.Background(), 1.25, 0, 100)

	require.NoError(t, err)
	assert.False(t, hasMore)
	assert.Len(t, candidates, 2)
	assert.InDelta(t, 1.01, candidates[0].HF, 0.0001)
}

func TestHTTPPositionDiscovery_NonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	discovery := NewHTTPPositionDiscovery(server.URL, nil)
	_, _, err := discovery.CandidatesBelowHF(context.Background(), 1.25, 0, 100)
	assert.Error(t, err)
}
