package domain

const tokensPerMillion = 1_000_000.0

// Cost computes the USD-equivalent cost of one exchange. Reasoning tokens are
// billed at the output rate.
func Cost(usage TokenUsage, rate BillingRate) float64 {
	inputCost := float64(usage.InputTokens) * rate.InBilling / tokensPerMillion
	outputCost := float64(usage.OutputTokens+usage.ReasoningTokens) * rate.OutBilling / tokensPerMillion
	return inputCost + outputCost
}
