package models

import (
	"fmt"
	"strings"
)

const (
	ErrorCodeInvalidOrders = "COMANDAS_INVALIDAS"
	ErrorCodeConflict      = "CONFLICTO"
)

type InvalidReason string

const (
	ReasonDeleted    InvalidReason = "eliminada"
	ReasonPaid       InvalidReason = "pagada"
	ReasonNoLines    InvalidReason = "sin_platos"
	ReasonOtherTable InvalidReason = "otra_mesa"
)

type InvalidOrder struct {
	ID     string        `json:"id"`
	Number int           `json:"comandaNumber,omitempty"`
	Reason InvalidReason `json:"motivo"`
}

func (i InvalidOrder) String() string {
	if i.Number > 0 {
		return fmt.Sprintf("#%d (%s): %s", i.Number, i.ID, i.Reason)
	}
	return fmt.Sprintf("%s: %s", i.ID, i.Reason)
}

// ErrorAPI is the error body the backend sends with every 4xx/5xx.
type ErrorAPI struct {
	Status        int            `json:"-"`
	Code          string         `json:"code"`
	Message       string         `json:"message"`
	ValidOrders   []string       `json:"comandasValidas,omitempty"`
	InvalidOrders []InvalidOrder `json:"comandasInvalidas,omitempty"`
}

func (e *ErrorAPI) Error() string {
	var invalid []string
	for _, o := range e.InvalidOrders {
		invalid = append(invalid, o.String())
	}
	return fmt.Sprintf("status:%d; code:%s; message:%s; invalid:[%s];",
		e.Status,
		e.Code,
		e.Message,
		strings.Join(invalid, ", "),
	)
}

// PartiallyInvalid reports whether the backend rejected a voucher because some
// of the referenced orders are no longer payable.
func (e *ErrorAPI) PartiallyInvalid() bool {
	return e.Code == ErrorCodeInvalidOrders || len(e.InvalidOrders) > 0
}
