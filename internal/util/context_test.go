package util

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartTimeFromContext(t *testing.T) {
	t.Parallel()

	assert.True(t, StartTimeFromContext(context.Background()).IsZero())
	assert.Zero(t, ElapsedTime(context.Background()))

	start := time.Now().Add(-time.Second)
	ctx := ContextWithStartTime(context.Background(), start)

	assert.Equal(t, start, StartTimeFromContext(ctx))
	assert.GreaterOrEqual(t, ElapsedTime(ctx), time.Second)
}

func TestRequestInfo(t *testing.T) {
	t.Parallel()

	ctx, info := ContextWithRequestInfo(context.Background())
	require.NotNil(t, info)

	info.SetRoute("forecast")
	info.SetCacheOutcome("hit")

	got := RequestInfoFromContext(ctx)
	require.Same(t, info, got)
	assert.Equal(t, "forecast", got.Route())
	assert.Equal(t, "hit", got.CacheOutcome())

	// A second call reuses the existing record.
	ctx2, info2 := ContextWithRequestInfo(ctx)
	assert.Same(t, info, info2)
	assert.Equal(t, ctx, ctx2)
}

func TestRequestInfo_Nil(t *testing.T) {
	t.Parallel()

	info := RequestInfoFromContext(context.Background())
	assert.Nil(t, info)

	assert.NotPanics(t, func() {
		info.SetRoute("ping")
		info.SetCacheOutcome("miss")
	})
	assert.Empty(t, info.Route())
	assert.Empty(t, info.CacheOutcome())
}
