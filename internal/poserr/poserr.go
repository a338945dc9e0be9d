// Package poserr classifies the outcomes the reconcilers report to the UI.
package poserr

import (
	"fmt"
	"strings"

	"MozoPOS/internal/mozoapi/models"

	"github.com/pkg/errors"
)

type Kind string

const (
	// Validation: missing staff, table or lines. Never retried.
	Validation Kind = "validation"
	// StateConflict: the table state forbids the action. Never retried.
	StateConflict Kind = "state_conflict"
	// PartialInvalidity: some referenced orders went stale. Narrowed and
	// retried once by the payment reconciler, never surfaced on its own.
	PartialInvalidity Kind = "partial_invalidity"
	// Ambiguous: a mutating call whose effect is unknown. Resolved by
	// verification before anything is shown to the user.
	Ambiguous Kind = "ambiguous"
	// HardFailure: definite rejection, or verification found nothing.
	// Retryable on user request.
	HardFailure Kind = "hard_failure"
)

type Reason string

const (
	MissingStaff         Reason = "missing_staff"
	MissingTable         Reason = "missing_table"
	NoLines              Reason = "no_lines"
	InvalidLine          Reason = "invalid_line"
	TableReserved        Reason = "table_reserved"
	TableOccupiedByOther Reason = "table_occupied_by_other"
	SubmissionInFlight   Reason = "submission_in_flight"
	TableUnavailable     Reason = "table_unavailable"
	NoPayableOrders      Reason = "no_payable_orders"
	InvalidOrders        Reason = "invalid_orders"
	CustomerUnavailable  Reason = "customer_unavailable"
	NotApplied           Reason = "not_applied"
	Rejected             Reason = "rejected"
)

type Error struct {
	Kind    Kind
	Reason  Reason
	Detail  string
	Invalid []models.InvalidOrder
	Err     error
}

func New(kind Kind, reason Reason, detail string) *Error {
	return &Error{Kind: kind, Reason: reason, Detail: detail}
}

func Newf(kind Kind, reason Reason, format string, args ...interface{}) *Error {
	return New(kind, reason, fmt.Sprintf(format, args...))
}

// Wrap keeps err as the cause.
func Wrap(err error, kind Kind, reason Reason, detail string) *Error {
	return &Error{Kind: kind, Reason: reason, Detail: detail, Err: err}
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Kind, e.Reason)
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if len(e.Invalid) > 0 {
		var invalid []string
		for _, o := range e.Invalid {
			invalid = append(invalid, o.String())
		}
		fmt.Fprintf(&b, " [%s]", strings.Join(invalid, "; "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether offering the user a retry makes sense.
func (e *Error) Retryable() bool {
	return e.Kind == HardFailure
}

func From(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func KindOf(err error) Kind {
	if e, ok := From(err); ok {
		return e.Kind
	}
	if err == nil {
		return ""
	}
	return HardFailure
}

func ReasonOf(err error) Reason {
	if e, ok := From(err); ok {
		return e.Reason
	}
	return ""
}
