package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type VoucherItem struct {
	Name        string          `json:"nombre"`
	UnitPrice   decimal.Decimal `json:"precio"`
	Quantity    int             `json:"cantidad"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	OrderNumber int             `json:"comandaNumber"`
}

type Voucher struct {
	ID        string              `json:"_id"`
	VoucherID string              `json:"voucherId"`
	Number    int                 `json:"boucherNumber"`
	Table     Ref                 `json:"mesa"`
	Staff     Ref                 `json:"mozo"`
	Customer  *Ref                `json:"cliente,omitempty"`
	Orders    []string            `json:"comandas"`
	Items     []VoucherItem       `json:"platos"`
	Subtotal  decimal.NullDecimal `json:"subtotal"`
	Tax       decimal.NullDecimal `json:"igv"`
	Total     decimal.NullDecimal `json:"total"`
	Note      string              `json:"observaciones"`
	PaidAt    string              `json:"fechaPago"`
	CreatedAt string              `json:"createdAt"`
}

// Created prefers the payment timestamp and falls back to the document creation time.
func (v *Voucher) Created() (time.Time, error) {
	if v.PaidAt != "" {
		return parseTimestamp(v.PaidAt)
	}
	return parseTimestamp(v.CreatedAt)
}

type VoucherCreate struct {
	TableID    string   `json:"mesa"`
	StaffID    string   `json:"mozo"`
	CustomerID string   `json:"cliente,omitempty"`
	OrderIDs   []string `json:"comandas"`
	Note       string   `json:"observaciones,omitempty"`
}
