package pipeline

import (
	"context"

	"github.com/shilvister/devochat/internal/domain"
)

// Adapter is a provider stream adapter: it invokes one vendor API and
// translates the vendor's stream protocol into canonical events on the queue.
//
// Run must terminate by pushing exactly one End, through a deferred cleanup
// path, regardless of vendor errors or cancellation. history already includes
// the new user message as its last element; ctx cancellation signals client
// disconnect and must be honored at every blocking point.
type Adapter interface {
	// Name returns the adapter identifier used in endpoint routing.
	Name() string

	// Run produces the canonical event stream for one request.
	Run(ctx context.Context, q *Queue, req *domain.ChatRequest, history []domain.Message)
}
