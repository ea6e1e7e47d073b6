package entity

import "fmt"

// LabelStatus is the lifecycle state of an article's AI labels.
//
//	pending -> processing -> done | error
//	error   -> processing -> done | error
//
// processing is transient. A run that fails mid-batch resets it to the
// status the row came from (pending, or error on a retry pass).
type LabelStatus string

const (
	LabelPending    LabelStatus = "pending"
	LabelProcessing LabelStatus = "processing"
	LabelDone       LabelStatus = "done"
	LabelError      LabelStatus = "error"
)

var labelTransitions = map[LabelStatus][]LabelStatus{
	LabelPending:    {LabelProcessing},
	LabelError:      {LabelProcessing},
	LabelProcessing: {LabelDone, LabelError, LabelPending},
}

// IsValid reports whether s is a known label status.
func (s LabelStatus) IsValid() bool {
	switch s {
	case LabelPending, LabelProcessing, LabelDone, LabelError:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving from s to next is a legal transition.
func (s LabelStatus) CanTransitionTo(next LabelStatus) bool {
	for _, allowed := range labelTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsClaimable reports whether a labeling pass may pick up a row in this status.
func (s LabelStatus) IsClaimable() bool {
	return s == LabelPending || s == LabelError
}

// SummaryStatus is the lifecycle state of an article's AI summary.
//
//	pending | error -> processing -> success | error | ignored
//	pending | error -> ignored (skip rule)
//
// ignored is terminal.
type SummaryStatus string

const (
	SummaryPending    SummaryStatus = "pending"
	SummaryProcessing SummaryStatus = "processing"
	SummarySuccess    SummaryStatus = "success"
	SummaryError      SummaryStatus = "error"
	SummaryIgnored    SummaryStatus = "ignored"
)

var summaryTransitions = map[SummaryStatus][]SummaryStatus{
	SummaryPending:    {SummaryProcessing, SummaryIgnored},
	SummaryError:      {SummaryProcessing, SummaryIgnored},
	SummaryProcessing: {SummarySuccess, SummaryError, SummaryIgnored},
}

// IsValid reports whether s is a known summary status.
func (s SummaryStatus) IsValid() bool {
	switch s {
	case SummaryPending, SummaryProcessing, SummarySuccess, SummaryError, SummaryIgnored:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving from s to next is a legal transition.
func (s SummaryStatus) CanTransitionTo(next SummaryStatus) bool {
	for _, allowed := range summaryTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsClaimable reports whether a summarization pass may pick up a row in this status.
func (s SummaryStatus) IsClaimable() bool {
	return s == SummaryPending || s == SummaryError
}

// ClaimableSummaryStatuses lists the statuses a summary CAS update may start from.
func ClaimableSummaryStatuses() []SummaryStatus {
	return []SummaryStatus{SummaryPending, SummaryError}
}

// CheckLabelTransition returns ErrInvalidTransition when from -> to is not allowed.
func CheckLabelTransition(from, to LabelStatus) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: label %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// CheckSummaryTransition returns ErrInvalidTransition when from -> to is not allowed.
func CheckSummaryTransition(from, to SummaryStatus) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: summary %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
