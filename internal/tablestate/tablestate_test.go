package tablestate

import (
	"context"
	"testing"
	"time"

	"MozoPOS/internal/mozoapi"
	"MozoPOS/internal/mozoapi/models"
	"MozoPOS/internal/mozoapi/mozotest"
	"MozoPOS/internal/poserr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGate(t *testing.T) (*mozotest.Server, *Gate) {
	t.Helper()
	srv := mozotest.NewServer()
	t.Cleanup(srv.Close)
	srv.AddDish("lomo", "Lomo Saltado", "12.00")
	return srv, NewGate(mozoapi.NewAPI(srv.Config()), srv.Config())
}

func TestCheckOrderReservedRejectsEveryone(t *testing.T) {
	srv, gate := newGate(t)
	srv.AddTable("t1", 1, models.TableReserved, "m1")

	for _, staff := range []string{"m1", "m2", "m3"} {
		_, err := gate.CheckOrder(context.Background(), "t1", staff)
		require.Error(t, err, staff)
		assert.Equal(t, poserr.StateConflict, poserr.KindOf(err))
		assert.Equal(t, poserr.TableReserved, poserr.ReasonOf(err))
	}
}

func TestCheckOrderFreeTable(t *testing.T) {
	srv, gate := newGate(t)
	srv.AddTable("t1", 1, models.TableFree, "")

	snap, err := gate.CheckOrder(context.Background(), "t1", "m1")
	require.NoError(t, err)
	assert.Equal(t, models.TableFree, snap.Table.Status)
	assert.Empty(t, snap.OpenOrders)
	assert.Equal(t, 0, srv.Calls(mozotest.RouteOrderList))
}

func TestCheckOrderOwnerOverride(t *testing.T) {
	srv, gate := newGate(t)
	srv.AddTable("t1", 1, models.TablePrepared, "m1")
	o := srv.AddOrder("t1", "m1", time.Now(), models.OrderLineCreate{DishID: "lomo", Quantity: 1})

	snap, err := gate.CheckOrder(context.Background(), "t1", "m1")
	require.NoError(t, err)
	assert.Equal(t, "m1", snap.Owner)
	assert.Equal(t, []string{o.ID}, snap.OpenOrders)

	_, err = gate.CheckOrder(context.Background(), "t1", "m2")
	require.Error(t, err)
	assert.Equal(t, poserr.StateConflict, poserr.KindOf(err))
	assert.Equal(t, poserr.TableOccupiedByOther, poserr.ReasonOf(err))
}

func TestCheckOrderUnknownOwnerIsConflict(t *testing.T) {
	srv, gate := newGate(t)
	srv.AddTable("t1", 1, models.TableOrdered, "")
	srv.AddOrder("t1", "", time.Now(), models.OrderLineCreate{DishID: "lomo", Quantity: 1})
	srv.AddOrder("t1", "m1", time.Now(), models.OrderLineCreate{DishID: "lomo", Quantity: 1})

	_, err := gate.CheckOrder(context.Background(), "t1", "m1")
	require.Error(t, err)
	assert.Equal(t, poserr.TableOccupiedByOther, poserr.ReasonOf(err))
	assert.Contains(t, err.Error(), "an unknown staff member")
}

func TestCheckOrderIgnoresPaidAndDeletedOrders(t *testing.T) {
	srv, gate := newGate(t)
	srv.AddTable("t1", 1, models.TableOrdered, "")
	paid := srv.AddOrder("t1", "m2", time.Now(), models.OrderLineCreate{DishID: "lomo", Quantity: 1})
	srv.MarkOrderPaid(paid.ID)
	deleted := srv.AddOrder("t1", "m2", time.Now(), models.OrderLineCreate{DishID: "lomo", Quantity: 1})
	srv.DeleteOrder(deleted.ID)
	mine := srv.AddOrder("t1", "m1", time.Now(), models.OrderLineCreate{DishID: "lomo", Quantity: 1})

	snap, err := gate.CheckOrder(context.Background(), "t1", "m1")
	require.NoError(t, err)
	assert.Equal(t, []string{mine.ID}, snap.OpenOrders)
}

func TestCheckOrderPreparadoWithoutVisibleOrders(t *testing.T) {
	srv, gate := newGate(t)
	srv.AddTable("t1", 1, models.TablePrepared, "m1")

	_, err := gate.CheckOrder(context.Background(), "t1", "m1")
	assert.NoError(t, err)

	_, err = gate.CheckOrder(context.Background(), "t1", "m2")
	assert.Equal(t, poserr.TableOccupiedByOther, poserr.ReasonOf(err))
}

func TestCheckOrderPedidoWithoutVisibleOrdersIsRejected(t *testing.T) {
	srv, gate := newGate(t)
	srv.AddTable("t1", 1, models.TableOrdered, "m1")

	_, err := gate.CheckOrder(context.Background(), "t1", "m1")
	assert.Equal(t, poserr.TableOccupiedByOther, poserr.ReasonOf(err))
}

func TestCheckOrderDegradesOnRefreshFailure(t *testing.T) {
	srv, gate := newGate(t)
	srv.AddTable("t1", 1, models.TablePrepared, "m1")
	srv.AddOrder("t1", "m1", time.Now(), models.OrderLineCreate{DishID: "lomo", Quantity: 1})

	_, err := gate.CheckOrder(context.Background(), "t1", "m1")
	require.NoError(t, err)

	srv.Fail(mozotest.RouteTableGet, mozotest.FaultServerError)
	snap, err := gate.CheckOrder(context.Background(), "t1", "m1")
	require.NoError(t, err)
	assert.True(t, snap.Stale)

	srv.Fail(mozotest.RouteTableGet, mozotest.FaultServerError)
	_, err = gate.CheckOrder(context.Background(), "t1", "m2")
	require.Error(t, err)
	assert.Equal(t, poserr.HardFailure, poserr.KindOf(err))
	assert.Equal(t, poserr.TableUnavailable, poserr.ReasonOf(err))
}

func TestCheckOrderRefreshFailureWithoutHistory(t *testing.T) {
	srv, gate := newGate(t)
	srv.AddTable("t1", 1, models.TableFree, "")
	srv.Fail(mozotest.RouteTableGet, mozotest.FaultServerError)

	_, err := gate.CheckOrder(context.Background(), "t1", "m1")
	assert.Equal(t, poserr.TableUnavailable, poserr.ReasonOf(err))
}

func TestCheckPayment(t *testing.T) {
	srv, gate := newGate(t)
	srv.AddTable("t1", 1, models.TableReserved, "")
	srv.AddTable("t2", 2, models.TablePrepared, "m1")

	_, err := gate.CheckPayment(context.Background(), "t1")
	assert.Equal(t, poserr.TableReserved, poserr.ReasonOf(err))

	snap, err := gate.CheckPayment(context.Background(), "t2")
	require.NoError(t, err)
	assert.Equal(t, "m1", snap.Owner)

	srv.Fail(mozotest.RouteTableGet, mozotest.FaultServerError)
	snap, err = gate.CheckPayment(context.Background(), "t2")
	require.NoError(t, err)
	assert.True(t, snap.Stale)
}

func TestGetUsesCacheWithinWindow(t *testing.T) {
	srv, gate := newGate(t)
	srv.AddTable("t1", 1, models.TableFree, "")
	now := time.Now()
	gate.now = func() time.Time { return now }

	_, err := gate.Get(context.Background(), "t1")
	require.NoError(t, err)
	_, err = gate.Get(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, srv.Calls(mozotest.RouteTableGet))

	now = now.Add(gate.ttl + time.Second)
	_, err = gate.Get(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, 2, srv.Calls(mozotest.RouteTableGet))
}

func TestForgetDropsCachedTable(t *testing.T) {
	srv, gate := newGate(t)
	srv.AddTable("t1", 1, models.TableFree, "")

	_, err := gate.Get(context.Background(), "t1")
	require.NoError(t, err)
	gate.Forget("t1")
	_, ok := gate.Status("t1")
	assert.False(t, ok)

	_, err = gate.Get(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, 2, srv.Calls(mozotest.RouteTableGet))
}

func TestAdvanceIsAdvisory(t *testing.T) {
	srv, gate := newGate(t)
	srv.AddTable("t1", 1, models.TableFree, "")

	_, err := gate.CheckOrder(context.Background(), "t1", "m1")
	require.NoError(t, err)

	assert.True(t, gate.Advance("t1", "m1", models.TableOrdered))
	status, ok := gate.Status("t1")
	require.True(t, ok)
	assert.Equal(t, models.TableOrdered, status)

	assert.False(t, gate.Advance("t1", "m1", models.TableFree))

	// an advisory entry never serves a read
	calls := srv.Calls(mozotest.RouteTableGet)
	table, err := gate.Get(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, models.TableFree, table.Status)
	assert.Equal(t, calls+1, srv.Calls(mozotest.RouteTableGet))
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to models.TableStatus
		want     bool
	}{
		{models.TableFree, models.TableOrdered, true},
		{models.TableFree, models.TableWaiting, true},
		{models.TableOrdered, models.TablePrepared, true},
		{models.TablePrepared, models.TablePaid, true},
		{models.TablePaying, models.TablePaid, true},
		{models.TablePaid, models.TableFree, true},
		{models.TableOrdered, models.TableOrdered, true},
		{models.TableFree, models.TablePaid, false},
		{models.TablePaid, models.TableOrdered, false},
		{models.TableReserved, models.TableOrdered, false},
		{models.TableFree, models.TableReserved, false},
		{models.TableReserved, models.TableReserved, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, CanTransition(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}
