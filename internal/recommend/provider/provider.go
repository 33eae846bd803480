// Package provider defines external ranking backends and the registry chain nodes resolve
// them from.
package provider

import (
	"context"

	"github.com/yungbote/neurobridge-recommender/internal/recommend/prompt"
)

type Request struct {
	Prompt       prompt.Prompt
	CandidateIDs []int64
	Limit        int
	UserID       string
	TraceID      string
}

// Provider returns the raw model output; parsing and id checks happen in the validator.
type Provider interface {
	Name() string
	Rank(ctx context.Context, req Request) (string, error)
}
