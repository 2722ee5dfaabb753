package tryon

import (
	"context"
	"fmt"

	"github.com/sakif/tryon-studio/internal/apperror"
	"github.com/sakif/tryon-studio/internal/model"
)

// Phase is the state of the generation trigger.
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePending
	PhaseSucceeded
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseSucceeded:
		return "succeeded"
	case PhaseFailed:
		return "failed"
	default:
		return "idle"
	}
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(text []byte) error {
	switch string(text) {
	case "idle":
		*p = PhaseIdle
	case "pending":
		*p = PhasePending
	case "succeeded":
		*p = PhaseSucceeded
	case "failed":
		*p = PhaseFailed
	default:
		return fmt.Errorf("tryon: unknown phase %q", text)
	}
	return nil
}

// Generator runs one try-on synthesis. *backend.Client satisfies it.
type Generator interface {
	TryOn(ctx context.Context, cred model.Credential, req model.GenerationRequest) (model.ResultRef, error)
}

// Requestor tracks one generation at a time.
//
// Begin and Finish run on the controller loop; Generate is the network call
// and may run anywhere.
type Requestor struct {
	gen    Generator
	phase  Phase
	result model.ResultRef
	err    error
}

func NewRequestor(gen Generator) *Requestor {
	return &Requestor{gen: gen}
}

// Generate sends the request. Only the request's shape is checked here.
func (r *Requestor) Generate(ctx context.Context, cred model.Credential, req model.GenerationRequest) (model.ResultRef, error) {
	if !cred.Present() {
		return "", apperror.LoginRequired()
	}
	if req.UserID == 0 || req.PersonPhotoID == 0 || req.ClothPhotoID == 0 {
		return "", apperror.ValidationFailed("request", "user, person photo and cloth photo are required")
	}
	ref, err := r.gen.TryOn(ctx, cred, req)
	if err != nil {
		return "", fmt.Errorf("tryon: generate: %w", err)
	}
	return ref, nil
}

// Begin moves to Pending. A second Begin while Pending is a conflict.
func (r *Requestor) Begin() error {
	if r.phase == PhasePending {
		return apperror.Conflict("A try-on is already being generated.")
	}
	r.phase = PhasePending
	r.result = ""
	r.err = nil
	return nil
}

// Finish records the outcome of the pending generation.
func (r *Requestor) Finish(ref model.ResultRef, err error) {
	if err != nil {
		r.phase = PhaseFailed
		r.err = err
		r.result = ""
		return
	}
	r.phase = PhaseSucceeded
	r.result = ref
	r.err = nil
}

// Reset returns to Idle, forgetting the last outcome.
func (r *Requestor) Reset() {
	r.phase = PhaseIdle
	r.result = ""
	r.err = nil
}

func (r *Requestor) Phase() Phase { return r.phase }
func (r *Requestor) Result() model.ResultRef { return r.result }
func (r *Requestor) Err() error { return r.err }
