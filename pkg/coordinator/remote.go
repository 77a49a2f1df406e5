package coordinator

import (
	"context"

	"tableflip.dev/sandlab/pkg/ledger"
)

// Remote is the storage engine a coordinator reconciles with.
type Remote interface {
	// Fetch returns the record for key, or nil when none exists yet.
	Fetch(ctx context.Context, key ledger.Key) (*ledger.Record, error)
	// Submit sends the delta of one table. A nil error means the storage
	// engine accepted the request.
	Submit(ctx context.Context, key ledger.Key, p ledger.Payload) (Result, error)
}

// Result is the storage engine's answer to a submission.
type Result struct {
	Table   int    `json:"tableNum"`
	Message string `json:"message"`

	// Rejected lists locations the engine refused because they were already
	// set by someone else.
	Rejected []string `json:"rejected,omitempty"`
}
