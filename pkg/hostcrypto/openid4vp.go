package hostcrypto

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"mdljarm/pkg/coreerr"
	"mdljarm/pkg/hostctx"
)

// maxTrackedRequests bounds the in-memory store the same way the teacher's
// InMemoryRepo does: evict the oldest entry rather than grow unbounded.
const maxTrackedRequests = 100

// OpenID4VPStore is an in-memory hostctx.OpenID4VPContext: it tracks
// authorization requests by the state value jarm.Process correlates a
// response against. Suitable for development and single-process
// deployments; a production host would back this with shared storage
// instead.
type OpenID4VPStore struct {
	mu     sync.Mutex
	order  []string
	params map[string]map[string]any
}

var _ hostctx.OpenID4VPContext = (*OpenID4VPStore)(nil)

// NewOpenID4VPStore constructs an empty store.
func NewOpenID4VPStore() *OpenID4VPStore {
	return &OpenID4VPStore{params: make(map[string]map[string]any)}
}

// RegisterAuthRequest records the parameters of an outgoing authorization
// request, assigning it a fresh state value, and returns that state for the
// caller to embed in the request it sends to the wallet.
func (s *OpenID4VPStore) RegisterAuthRequest(requestParams map[string]any) string {
	state := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.order) >= maxTrackedRequests {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.params, oldest)
	}

	stored := make(map[string]any, len(requestParams)+1)
	for k, v := range requestParams {
		stored[k] = v
	}
	stored["state"] = state

	s.params[state] = stored
	s.order = append(s.order, state)
	return state
}

// GetAuthRequestParams implements hostctx.OpenID4VPContext.
func (s *OpenID4VPStore) GetAuthRequestParams(_ context.Context, state string) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	params, ok := s.params[state]
	if !ok {
		return nil, coreerr.New(coreerr.KindMissingField, "no authorization request tracked for state "+state)
	}
	return params, nil
}
