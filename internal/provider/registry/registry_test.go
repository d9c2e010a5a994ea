package registry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shilvister/devochat/internal/domain"
	"github.com/shilvister/devochat/internal/pipeline"
	"github.com/shilvister/devochat/internal/provider/registry"
)

type stubAdapter struct {
	name string
}

func (a *stubAdapter) Name() string { return a.name }

func (a *stubAdapter) Run(ctx context.Context, q *pipeline.Queue, req *domain.ChatRequest, history []domain.Message) {
	pipeline.NewEmitter(q).Finish(ctx)
}

func TestRegistry(t *testing.T) {
	t.Run("should register and retrieve an adapter", func(t *testing.T) {
		reg := registry.NewRegistry()
		adapter := &stubAdapter{name: "stub"}

		require.NoError(t, reg.Register(adapter))

		got, err := reg.Get("stub")
		require.NoError(t, err)
		require.Same(t, adapter, got)
	})

	t.Run("should reject a nil adapter", func(t *testing.T) {
		reg := registry.NewRegistry()
		require.Error(t, reg.Register(nil))
	})

	t.Run("should reject an empty adapter name", func(t *testing.T) {
		reg := registry.NewRegistry()
		require.Error(t, reg.Register(&stubAdapter{}))
	})

	t.Run("should reject a duplicate registration", func(t *testing.T) {
		reg := registry.NewRegistry()
		require.NoError(t, reg.Register(&stubAdapter{name: "stub"}))
		require.Error(t, reg.Register(&stubAdapter{name: "stub"}))
	})

	t.Run("should error on an unknown endpoint", func(t *testing.T) {
		reg := registry.NewRegistry()
		_, err := reg.Get("missing")
		require.Error(t, err)
	})

	t.Run("should list endpoint names sorted", func(t *testing.T) {
		reg := registry.NewRegistry()
		for _, name := range []string{"grok", "claude", "echo"} {
			require.NoError(t, reg.Register(&stubAdapter{name: name}))
		}
		require.Equal(t, []string{"claude", "echo", "grok"}, reg.List())
	})
}
