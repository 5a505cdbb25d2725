// Package llm defines the contract between the answer orchestrator and a generation backend.
package llm

import "context"

// FailureMessage is the single fragment shown to users when generation fails.
// It carries no backend detail.
const FailureMessage = "Sorry, I couldn't generate a response right now. Please try again."

// FragmentStream is a finite, lazily pulled, non-restartable sequence of text fragments.
//
//	for s.Next() {
//		use(s.Fragment())
//	}
//	if err := s.Err(); err != nil { ... }
//
// Callers must Close the stream when they stop pulling early.
type FragmentStream interface {
	// Next advances to the next fragment, blocking until it arrives.
	// It returns false when the stream has ended.
	Next() bool

	// Fragment returns the current fragment.
	Fragment() string

	// Err reports why the stream ended early. It is nil after a complete stream.
	// A stream that failed may still have yielded FailureMessage as its last fragment.
	Err() error

	// Close releases the underlying connection. It is safe to call more than once.
	Close() error
}

// Generator produces a fragment stream for a prompt.
type Generator interface {
	Stream(ctx context.Context, prompt string) FragmentStream
}
