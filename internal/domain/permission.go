package domain

// Gate thresholds.
const (
	// premiumRateThreshold is the per-million input rate at or above which a
	// model requires admin access.
	premiumRateThreshold = 10

	// maxMCPServers is the tool-server selection limit for non-admins.
	maxMCPServers = 3
)

// Gate error messages surfaced to the client as a single SSE error frame.
const (
	ErrMsgInvalidModel   = "invalid model"
	ErrMsgTrialExhausted = "trial exhausted"
	ErrMsgModelForbidden = "insufficient privilege for this model"
	ErrMsgTooManyMCP     = "at most 3 MCP servers may be selected"
	ErrMsgEmptyMessage   = "message is empty"
)

// BillingTable maps model names to their static billing rates.
type BillingTable map[string]BillingRate

// Rate looks up the billing rate for a model.
func (t BillingTable) Rate(model string) (BillingRate, bool) {
	rate, ok := t[model]
	return rate, ok
}

// PermissionGate validates a chat request against quota, trial, and
// model-access rules before any provider is invoked. Pure validation, no
// side effects.
type PermissionGate struct {
	rates BillingTable
}

// NewPermissionGate creates a permission gate over the static billing table.
func NewPermissionGate(rates BillingTable) *PermissionGate {
	return &PermissionGate{rates: rates}
}

// Check validates the request for the user. On failure it returns the
// user-facing message and ok=false; on success the model's billing rate.
func (g *PermissionGate) Check(user User, req *ChatRequest) (string, BillingRate, bool) {
	rate, known := g.rates.Rate(req.Model)
	if !known {
		return ErrMsgInvalidModel, BillingRate{}, false
	}

	if user.Trial && user.TrialRemaining <= 0 {
		return ErrMsgTrialExhausted, BillingRate{}, false
	}

	if !user.Admin && rate.InBilling >= premiumRateThreshold {
		return ErrMsgModelForbidden, BillingRate{}, false
	}

	if !user.Admin && len(req.MCP) > maxMCPServers {
		return ErrMsgTooManyMCP, BillingRate{}, false
	}

	if len(req.UserMessage) == 0 {
		return ErrMsgEmptyMessage, BillingRate{}, false
	}

	return "", rate, true
}
