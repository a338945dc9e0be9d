package tablestate

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"MozoPOS/internal/config"
	"MozoPOS/internal/mozoapi/models"
	"MozoPOS/internal/mozoapi/options"
	"MozoPOS/internal/poserr"
	"MozoPOS/pkg/logging"

	"github.com/sirupsen/logrus"
)

// Reader is the part of the backend the gate needs.
type Reader interface {
	TableGet(ctx context.Context, ID string) (*models.Table, error)
	OrderList(ctx context.Context, opts ...options.Option) ([]*models.Order, error)
}

// Snapshot is what the gate decided on.
type Snapshot struct {
	Table models.Table
	Owner string
	// OpenOrders holds the ids of the table's open orders seen during the check.
	OpenOrders []string
	// Stale is set when the decision came from the cache after a failed refresh.
	Stale bool
}

type entry struct {
	seen       models.Table
	owner      string
	timeUpdate time.Time
	advisory   models.TableStatus
}

// Gate arbitrates which staff member may act on a table. The backend re-checks
// everything; the gate only avoids sending requests bound to fail.
type Gate struct {
	api Reader
	ttl time.Duration
	now func() time.Time

	mu     sync.Mutex
	tables map[string]*entry
}

func NewGate(api Reader, cfg *config.Config) *Gate {
	return &Gate{
		api:    api,
		ttl:    cfg.TableCacheTTL(),
		now:    time.Now,
		tables: make(map[string]*entry),
	}
}

// Get returns the table, from cache while it is within its validity window.
// For display only: mutating decisions go through CheckOrder/CheckPayment.
func (g *Gate) Get(ctx context.Context, tableID string) (*models.Table, error) {
	g.mu.Lock()
	e, ok := g.tables[tableID]
	if ok && e.advisory == "" && g.now().Sub(e.timeUpdate) <= g.ttl {
		t := e.seen
		g.mu.Unlock()
		return &t, nil
	}
	g.mu.Unlock()

	t, err := g.api.TableGet(ctx, tableID)
	if err != nil {
		return nil, err
	}
	g.store(t, "")
	return t, nil
}

// Status is the last known status, including optimistic local advances.
func (g *Gate) Status(tableID string) (models.TableStatus, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.tables[tableID]
	if !ok {
		return "", false
	}
	if e.advisory != "" {
		return e.advisory, true
	}
	return e.seen.Status, true
}

// CheckOrder decides whether staffID may open a new order on tableID.
func (g *Gate) CheckOrder(ctx context.Context, tableID, staffID string) (*Snapshot, error) {
	logger := logging.GetLogger().WithFields(logrus.Fields{"table": tableID, "staff": staffID})
	logger.Debug("Start Gate.CheckOrder")
	defer logger.Debug("End Gate.CheckOrder")

	table, err := g.api.TableGet(ctx, tableID)
	if err != nil {
		if snap, ok := g.degraded(tableID, staffID); ok {
			logger.WithError(err).Warn("table refresh failed, allowing from cached preparado state")
			return snap, nil
		}
		return nil, poserr.Wrap(err, poserr.HardFailure, poserr.TableUnavailable, "could not refresh table state")
	}
	g.store(table, "")

	switch table.Status {
	case models.TableReserved:
		return nil, poserr.Newf(poserr.StateConflict, poserr.TableReserved, "table %d is reserved", table.Number)
	case models.TableFree:
		return &Snapshot{Table: *table}, nil
	}

	orders, err := g.api.OrderList(ctx, options.Table(tableID))
	if err != nil {
		if table.Status == models.TablePrepared && g.owner(tableID, table) == staffID {
			logger.WithError(err).Warn("order refresh failed, allowing owner on preparado table")
			return &Snapshot{Table: *table, Owner: staffID, Stale: true}, nil
		}
		return nil, poserr.Wrap(err, poserr.HardFailure, poserr.TableUnavailable, "could not read the table's open orders")
	}

	open := OpenOrders(orders, tableID)
	snap := &Snapshot{Table: *table}
	for _, o := range open {
		snap.OpenOrders = append(snap.OpenOrders, o.ID)
	}

	if len(open) == 0 {
		owner := g.owner(tableID, table)
		if table.Status == models.TablePrepared && owner != "" && owner == staffID {
			snap.Owner = owner
			return snap, nil
		}
		return nil, poserr.Newf(poserr.StateConflict, poserr.TableOccupiedByOther,
			"table %d is %s with no open orders of yours", table.Number, table.Status)
	}

	others := otherOwners(open, staffID)
	if len(others) > 0 {
		return nil, poserr.Newf(poserr.StateConflict, poserr.TableOccupiedByOther,
			"table %d has open orders of %s", table.Number, strings.Join(others, ", "))
	}

	snap.Owner = staffID
	g.store(table, staffID)
	return snap, nil
}

// CheckPayment refuses reserved tables. A failed refresh does not block:
// the payment reconciler reads the orders itself and the backend decides.
func (g *Gate) CheckPayment(ctx context.Context, tableID string) (*Snapshot, error) {
	logger := logging.GetLogger().WithField("table", tableID)

	table, err := g.api.TableGet(ctx, tableID)
	if err != nil {
		logger.WithError(err).Warn("table refresh failed before payment, continuing")
		g.mu.Lock()
		defer g.mu.Unlock()
		if e, ok := g.tables[tableID]; ok {
			if e.seen.Status == models.TableReserved {
				return nil, poserr.Newf(poserr.StateConflict, poserr.TableReserved, "table %d is reserved", e.seen.Number)
			}
			return &Snapshot{Table: e.seen, Owner: e.owner, Stale: true}, nil
		}
		return &Snapshot{Table: models.Table{ID: tableID}, Stale: true}, nil
	}
	g.store(table, "")
	if table.Status == models.TableReserved {
		return nil, poserr.Newf(poserr.StateConflict, poserr.TableReserved, "table %d is reserved", table.Number)
	}
	return &Snapshot{Table: *table, Owner: table.OwnerID()}, nil
}

// Advance records an optimistic local status. It is advisory: the next
// CheckOrder/CheckPayment/Get re-reads the backend regardless.
func (g *Gate) Advance(tableID, staffID string, to models.TableStatus) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.tables[tableID]
	if !ok {
		e = &entry{seen: models.Table{ID: tableID, Status: models.TableFree}}
		g.tables[tableID] = e
	}
	from := e.seen.Status
	if e.advisory != "" {
		from = e.advisory
	}
	if !CanTransition(from, to) {
		logging.GetLogger().WithFields(logrus.Fields{"table": tableID, "from": from, "to": to}).
			Debug("skipping illegal local table transition")
		return false
	}
	e.advisory = to
	if staffID != "" {
		e.owner = staffID
	}
	return true
}

// Forget drops the cached entry so the next read goes to the backend.
func (g *Gate) Forget(tableID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.tables, tableID)
}

func (g *Gate) store(t *models.Table, owner string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.tables[t.ID]
	if !ok {
		e = new(entry)
		g.tables[t.ID] = e
	}
	e.seen = *t
	e.timeUpdate = g.now()
	e.advisory = ""
	switch {
	case owner != "":
		e.owner = owner
	case t.OwnerID() != "":
		e.owner = t.OwnerID()
	case t.Status == models.TableFree:
		e.owner = ""
	}
}

func (g *Gate) owner(tableID string, t *models.Table) string {
	if id := t.OwnerID(); id != "" {
		return id
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if e, ok := g.tables[tableID]; ok {
		return e.owner
	}
	return ""
}

// degraded allows staffID when the last authoritative read showed the table
// preparado and held by staffID.
func (g *Gate) degraded(tableID, staffID string) (*Snapshot, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.tables[tableID]
	if !ok || e.seen.Status != models.TablePrepared || e.owner == "" || e.owner != staffID {
		return nil, false
	}
	return &Snapshot{Table: e.seen, Owner: staffID, Stale: true}, true
}

// OpenOrders keeps the orders of tableID that are active, not deleted and not paid.
func OpenOrders(orders []*models.Order, tableID string) []*models.Order {
	var open []*models.Order
	for _, o := range orders {
		if o == nil || o.Table.ID != tableID || !o.Active || o.Deleted || o.Status == models.OrderPaid {
			continue
		}
		open = append(open, o)
	}
	return open
}

func otherOwners(orders []*models.Order, staffID string) []string {
	seen := make(map[string]bool)
	var others []string
	for _, o := range orders {
		id := o.Staff.ID
		if id == staffID || seen[id] {
			continue
		}
		seen[id] = true
		// An order without a known owner cannot be proven to be ours.
		if id == "" {
			others = append(others, "an unknown staff member")
			continue
		}
		if o.Staff.Name != "" {
			others = append(others, fmt.Sprintf("%s (%s)", o.Staff.Name, id))
		} else {
			others = append(others, id)
		}
	}
	sort.Strings(others)
	return others
}
