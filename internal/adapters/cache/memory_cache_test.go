package cache

import (
	"context"
	"testing"
	"time"

	"github.com/mikey/llm-mail-triage/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(nil, 0)
	defer c.Stop()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	_, err := c.Get(ctx, "m1")
	assert.ErrorIs(t, err, core.ErrCacheMiss)

	cls := core.Classification{Category: core.CategoryPromo, Confidence: 0.9, SuggestedAction: core.ActionArchive}
	require.NoError(t, c.Set(ctx, &core.CacheEntry{MessageID: "m1", Classification: cls, StoredAt: now, ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, c.Set(ctx, &core.CacheEntry{MessageID: "m2", Classification: cls, StoredAt: now, ExpiresAt: now.Add(time.Minute)}))

	entry, err := c.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, cls, entry.Classification)

	now = now.Add(10 * time.Minute)
	_, err = c.Get(ctx, "m2")
	assert.ErrorIs(t, err, core.ErrCacheMiss)

	require.NoError(t, c.Cleanup(ctx))
	assert.Equal(t, 1, c.Len())

	require.NoError(t, c.Delete(ctx, "m1"))
	_, err = c.Get(ctx, "m1")
	assert.ErrorIs(t, err, core.ErrCacheMiss)
}

func TestMemoryCacheStopTwice(t *testing.T) {
	c := NewMemoryCache(nil, time.Millisecond)
	c.Stop()
	c.Stop()
}
