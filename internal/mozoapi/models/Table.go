package models

type TableStatus string

const (
	TableFree     TableStatus = "libre"
	TableWaiting  TableStatus = "esperando"
	TableOrdered  TableStatus = "pedido"
	TablePrepared TableStatus = "preparado"
	TablePaying   TableStatus = "pagando"
	TablePaid     TableStatus = "pagado"
	TableReserved TableStatus = "reservado"
)

type Table struct {
	ID     string      `json:"_id"`
	Number int         `json:"nummesa"`
	Status TableStatus `json:"estado"`
	Staff  *Ref        `json:"mozo,omitempty"`
	Active bool        `json:"isActive"`
}

// OwnerID returns the staff member the backend reports as holding the table.
func (t *Table) OwnerID() string {
	if t == nil || t.Staff == nil {
		return ""
	}
	return t.Staff.ID
}

type TableStatusUpdate struct {
	Status TableStatus `json:"estado"`
}
