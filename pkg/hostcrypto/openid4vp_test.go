package hostcrypto

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenID4VPStoreRoundTrip(t *testing.T) {
	store := NewOpenID4VPStore()
	state := store.RegisterAuthRequest(map[string]any{"client_id": "verifier.example"})

	params, err := store.GetAuthRequestParams(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, "verifier.example", params["client_id"])
	assert.Equal(t, state, params["state"])
}

func TestOpenID4VPStoreUnknownState(t *testing.T) {
	store := NewOpenID4VPStore()
	_, err := store.GetAuthRequestParams(context.Background(), "missing")
	assert.Error(t, err)
}

func TestOpenID4VPStoreEvictsOldestBeyondCapacity(t *testing.T) {
	store := NewOpenID4VPStore()
	var first string
	for i := 0; i < maxTrackedRequests+1; i++ {
		state := store.RegisterAuthRequest(map[string]any{"i": i})
		if i == 0 {
			first = state
		}
	}

	_, err := store.GetAuthRequestParams(context.Background(), first)
	assert.Error(t, err, "oldest entry should have been evicted")
}
