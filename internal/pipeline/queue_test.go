package pipeline_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shilvister/devochat/internal/pipeline"
)

func TestQueue(t *testing.T) {
	t.Run("should deliver events in push order", func(t *testing.T) {
		q := pipeline.NewQueue()
		ctx := context.Background()

		for _, text := range []string{"one", "two", "three"} {
			require.True(t, q.Push(ctx, pipeline.Event{Kind: pipeline.KindTextDelta, Text: text}))
		}

		for _, want := range []string{"one", "two", "three"} {
			require.Equal(t, want, (<-q.Events()).Text)
		}
	})

	t.Run("should refuse pushes once the consumer is gone", func(t *testing.T) {
		q := pipeline.NewQueue()

		// Fill the buffer so the cancelled-context branch is the only
		// one that can fire.
		for i := 0; i < 256; i++ {
			require.True(t, q.Push(context.Background(), pipeline.Event{Kind: pipeline.KindTextDelta, Text: "x"}))
		}

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		require.False(t, q.Push(ctx, pipeline.Event{Kind: pipeline.KindTextDelta, Text: "lost"}))
	})

	t.Run("should drop the sentinel instead of blocking on a full queue", func(t *testing.T) {
		q := pipeline.NewQueue()
		for i := 0; i < 256; i++ {
			q.Push(context.Background(), pipeline.Event{Kind: pipeline.KindTextDelta})
		}

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		q.End(ctx) // must return, not deadlock
	})
}
