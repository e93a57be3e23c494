package cache

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/threadmem/core"
	"github.com/hupe1980/threadmem/embedder/mock"
	"github.com/hupe1980/threadmem/logging"
)

func TestEmbedder_CachesByText(t *testing.T) {
	ctx := context.Background()
	inner := mock.NewKeyword("kw", []string{"pizza"})
	e, err := New(inner)
	require.NoError(t, err)
	t.Cleanup(e.Close)

	first, err := e.Embed(ctx, "pizza pizza")
	require.NoError(t, err)
	e.Wait()

	second, err := e.Embed(ctx, "pizza pizza")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, inner.Calls())

	second[0] = 99
	third, err := e.Embed(ctx, "pizza pizza")
	require.NoError(t, err)
	assert.Equal(t, float32(2), third[0], "callers receive copies")

	_, err = e.Embed(ctx, "something else")
	require.NoError(t, err)
	assert.EqualValues(t, 2, inner.Calls())

	assert.Equal(t, "kw", e.Model())
	assert.Equal(t, 2, e.Dimensions())
}

func TestEmbedder_DoesNotCacheErrors(t *testing.T) {
	e, err := New(mock.NewFailing(nil))
	require.NoError(t, err)
	t.Cleanup(e.Close)

	_, err = e.Embed(context.Background(), "x")
	assert.True(t, core.IsTransient(err))
}

func TestNew_RequiresEmbedder(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}

func TestEmbedder_LogsMissesOnly(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelDebug, Format: "json", Output: &buf})
	e, err := New(mock.NewKeyword("kw", []string{"pizza"}), func(o *Options) { o.Logger = logger })
	require.NoError(t, err)
	t.Cleanup(e.Close)

	_, err = e.Embed(context.Background(), "pizza")
	require.NoError(t, err)
	e.Wait()
	_, err = e.Embed(context.Background(), "pizza")
	require.NoError(t, err)

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, `"msg":"embedder.call.success"`))
	assert.Equal(t, 1, strings.Count(out, `"msg":"embedder.cache.hit"`))
}
