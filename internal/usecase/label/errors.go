// Package label classifies articles in batches with an LLM and drives the
// label status state machine.
package label

import "errors"

var (
	// ErrNoResult means the classifier produced no usable answer after all retries.
	ErrNoResult = errors.New("no classification result")

	// ErrUndecodable means the classifier answer matched none of the accepted shapes.
	ErrUndecodable = errors.New("undecodable classification response")
)

const (
	noLabelsReason = "No labels returned for this article"
)
