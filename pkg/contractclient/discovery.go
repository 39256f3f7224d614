package contractclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"sentinel/internal/adapter"
)

// HTTPPositionDiscovery implements adapter.PositionDiscovery against an HTTP
// position-discovery API; its JSON schema is protocol-specific and out of
// this engine's specified scope (spec.md §1), so the response shape below
// is this engine's own minimal contract for that adapter.
type HTTPPositionDiscovery struct {
	baseURL string
	client  *http.Client
}

// NewHTTPPositionDiscovery returns a PositionDiscovery querying baseURL.
func NewHTTPPositionDiscovery(baseURL string, client *http.Client) *HTTPPositionDiscovery {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPPositionDiscovery{baseURL: baseURL, client: client}
}

type candidatesResponse struct {
	Users   []candidateJSON `json:"users"`
	HasMore bool            `json:"has_more"`
}

type candidateJSON struct {
	User common.Address `json:"user"`
	HF   float64        `json:"health_factor"`
}

// CandidatesBelowHF returns one page of users at or below maxHF.
func (h *HTTPPositionDiscovery) CandidatesBelowHF(ctx context.Context, maxHF float64, page int, pageSize int) ([]adapter.CandidateUser, bool, error) {
	u, err := url.Parse(h.baseURL)
	if err != nil {
		return nil, false, fmt.Errorf("contractclient: parse discovery url: %w", err)
	}
	q := u.Query()
	q.Set("max_hf", strconv.FormatFloat(maxHF, 'f', -1, 64))
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, false, fmt.Errorf("contractclient: build discovery request: %w", err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("contractclient: discovery request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("contractclient: discovery returned status %d", resp.StatusCode)
	}

	var decoded candidatesResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, false, fmt.Errorf("contractclient: decode discovery response: %w", err)
	}

	candidates := make([]adapter.CandidateUser, 0, len(decoded.Users))
	for _, u := range decoded.Users {
		candidates = append(candidates, adapter.CandidateUser{User: u.User, HF: u.HF})
	}
	return candidates, decoded.HasMore, nil
}
