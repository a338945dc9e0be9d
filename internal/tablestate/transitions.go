package tablestate

import "MozoPOS/internal/mozoapi/models"

// reservado has no edges here: it is entered and left by staff actions
// outside the ordering and payment flows.
var transitions = map[models.TableStatus][]models.TableStatus{
	models.TableFree:     {models.TableWaiting, models.TableOrdered},
	models.TableWaiting:  {models.TableOrdered},
	models.TableOrdered:  {models.TablePrepared, models.TablePaying, models.TablePaid},
	models.TablePrepared: {models.TableOrdered, models.TablePaying, models.TablePaid},
	models.TablePaying:   {models.TablePaid},
	models.TablePaid:     {models.TableFree},
}

// CanTransition reports whether from -> to is a legal table move. Staying in
// the same state is always legal except for reservado.
func CanTransition(from, to models.TableStatus) bool {
	if from == models.TableReserved || to == models.TableReserved {
		return false
	}
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
