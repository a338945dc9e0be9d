package models

import (
	"time"

	"github.com/araddon/dateparse"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderWaiting   OrderStatus = "en_espera"
	OrderDelivered OrderStatus = "entregado"
	OrderCompleted OrderStatus = "completado"
	OrderPaid      OrderStatus = "pagado"
)

type LineStatus string

const (
	LineWaiting LineStatus = "en_espera"
	LineReady   LineStatus = "recoger"
)

type Dish struct {
	ID    string          `json:"_id"`
	Name  string          `json:"nombre"`
	Price decimal.Decimal `json:"precio"`
}

type OrderLine struct {
	Dish     Dish       `json:"plato"`
	Quantity int        `json:"cantidad"`
	Status   LineStatus `json:"estado"`
}

type Order struct {
	ID        string      `json:"_id"`
	Number    int         `json:"comandaNumber"`
	Table     Ref         `json:"mesas"`
	Staff     Ref         `json:"mozos"`
	Lines     []OrderLine `json:"platos"`
	Note      string      `json:"observaciones"`
	Status    OrderStatus `json:"status"`
	Active    bool        `json:"IsActive"`
	Deleted   bool        `json:"eliminada"`
	CreatedAt string      `json:"createdAt"`
}

// Created parses CreatedAt. The backend has emitted both RFC3339 and
// locale-formatted dates over time.
func (o *Order) Created() (time.Time, error) {
	return parseTimestamp(o.CreatedAt)
}

type OrderLineCreate struct {
	DishID   string `json:"plato"`
	Quantity int    `json:"cantidad"`
}

type OrderCreate struct {
	TableID string            `json:"mesas"`
	StaffID string            `json:"mozos"`
	Lines   []OrderLineCreate `json:"platos"`
	Note    string            `json:"observaciones,omitempty"`
}

func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "failed to parse timestamp %q", s)
	}
	return t, nil
}
