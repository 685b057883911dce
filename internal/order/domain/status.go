package domain

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusPendingPayment     Status = "PENDING_PAYMENT"
	StatusPaid               Status = "PAID"
	StatusReadyForProcessing Status = "READY_FOR_PROCESSING"
	StatusInProgress         Status = "IN_PROGRESS"
	StatusCompleted          Status = "COMPLETED"
	StatusCancelled          Status = "CANCELLED"
)

func ParseStatus(value string) (Status, bool) {
	status := Status(strings.ToUpper(strings.TrimSpace(value)))
	switch status {
	case StatusPendingPayment, StatusPaid, StatusReadyForProcessing,
		StatusInProgress, StatusCompleted, StatusCancelled:
		return status, true
	default:
		return "", false
	}
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// sources lists, per target, the only statuses an order may leave to reach it.
var sources = map[Status][]Status{
	StatusPaid:               {StatusPendingPayment},
	StatusReadyForProcessing: {StatusPaid},
	StatusInProgress:         {StatusReadyForProcessing},
	StatusCompleted:          {StatusInProgress},
	StatusCancelled:          {StatusPendingPayment, StatusPaid, StatusReadyForProcessing, StatusInProgress},
}

// RequiredFor returns the statuses from which target is reachable.
func RequiredFor(target Status) []Status {
	out := make([]Status, len(sources[target]))
	copy(out, sources[target])
	return out
}

func CanTransition(from, to Status) bool {
	for _, s := range sources[to] {
		if s == from {
			return true
		}
	}
	return false
}

// TransitionError reports a rejected transition together with the state the
// order was actually in, so callers can tell "already done" from "not yet
// eligible".
type TransitionError struct {
	OrderID  snowflake.ID
	Current  Status
	Required []Status
	Target   Status
}

func (e *TransitionError) Error() string {
	required := make([]string, 0, len(e.Required))
	for _, s := range e.Required {
		required = append(required, string(s))
	}
	return fmt.Sprintf("order %s is %s; moving to %s requires %s",
		e.OrderID, e.Current, e.Target, strings.Join(required, " or "))
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrTransitionConflict
}

// AlreadyApplied reports whether the order is already in the target status.
func (e *TransitionError) AlreadyApplied() bool {
	return e.Current == e.Target
}
