package domain_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shilvister/devochat/internal/domain"
)

func TestCost(t *testing.T) {
	rate := domain.BillingRate{InBilling: 3, OutBilling: 15}

	t.Run("should bill input and output at their own rates", func(t *testing.T) {
		usage := domain.TokenUsage{InputTokens: 1_000_000, OutputTokens: 1_000_000}
		require.InDelta(t, 18.0, domain.Cost(usage, rate), 1e-9)
	})

	t.Run("should bill reasoning tokens at the output rate", func(t *testing.T) {
		usage := domain.TokenUsage{InputTokens: 0, OutputTokens: 100_000, ReasoningTokens: 100_000}
		require.InDelta(t, 3.0, domain.Cost(usage, rate), 1e-9)
	})

	t.Run("should cost nothing on zero usage", func(t *testing.T) {
		require.Zero(t, domain.Cost(domain.TokenUsage{}, rate))
	})
}
