package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/course-scheduler/pkg/errors"
)

func TestCacheEntryRoundTrip(t *testing.T) {
	raw, err := encodeEntry(map[string]int{"version": 3})
	require.NoError(t, err)
	assert.Equal(t, `v1:{"version":3}`, string(raw))

	var out map[string]int
	require.NoError(t, decodeEntry(raw, &out))
	assert.Equal(t, 3, out["version"])
}

func TestDecodeEntryRejectsForeignFormat(t *testing.T) {
	var out map[string]int
	assert.Error(t, decodeEntry([]byte(`{"version":3}`), &out))
	assert.Error(t, decodeEntry([]byte(`v1:{broken`), &out))
}

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	ctx := context.Background()

	var out string
	assert.ErrorIs(t, repo.Get(ctx, "k", &out), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(ctx, "k", "v", time.Minute))
	assert.NoError(t, repo.Delete(ctx, "k"))
	assert.NoError(t, repo.Close())
}
