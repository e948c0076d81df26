package diagnostic_test

import (
	"context"
	"testing"

	"github.com/odpf/salt/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raystack/scale/core/messaging"
	"github.com/raystack/scale/core/messaging/diagnostic"
)

func TestDiagnostic(t *testing.T) {
	ctx := context.Background()
	logger := log.NewNoop()

	t.Run("chain emits echo messages", func(t *testing.T) {
		ok, next, err := diagnostic.NewChain(3, logger).Execute(ctx)

		require.NoError(t, err)
		assert.True(t, ok)
		require.Len(t, next, 3)
		assert.Equal(t, "chain message 3 of 3", next[2].(*diagnostic.Echo).Message)
	})
	t.Run("failing is never acked", func(t *testing.T) {
		ok, next, err := (&diagnostic.Failing{}).Execute(ctx)

		assert.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, next)
	})
	t.Run("Register makes every message decodable", func(t *testing.T) {
		registry := messaging.NewRegistry()
		require.NoError(t, diagnostic.Register(registry, logger))

		body, err := messaging.Encode(diagnostic.NewEcho("hello", logger))
		require.NoError(t, err)
		decoded, err := registry.Decode(body)
		require.NoError(t, err)

		ok, _, err := decoded.Execute(ctx)
		assert.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []string{"chain", "echo", "failing"}, registry.Types())
		assert.Error(t, diagnostic.Register(registry, logger))
	})
}
