package domain

// Token ceilings the normalized request levels scale against.
const (
	MaxVerbosityTokens = 8192
	MaxReasonTokens    = 16384
)

// Discrete tiers providers understand.
const (
	TierLow    = "low"
	TierMedium = "medium"
	TierHigh   = "high"
)

// TokenBudget maps a normalized level in [0,1] to a token count against max.
// Zero means the feature is disabled and no parameter should be emitted.
func TokenBudget(level float64, maxTokens int) int {
	if level == 0 {
		return 0
	}
	return int(level * float64(maxTokens))
}

// BinaryTier maps a normalized level to low/high. Zero disables the feature.
func BinaryTier(level float64) string {
	if level == 0 {
		return ""
	}
	if level <= 0.5 {
		return TierLow
	}
	return TierHigh
}

// Tier maps a normalized level to low/medium/high. Zero disables the feature.
func Tier(level float64) string {
	switch {
	case level == 0:
		return ""
	case level <= 0.33:
		return TierLow
	case level <= 0.66:
		return TierMedium
	default:
		return TierHigh
	}
}
