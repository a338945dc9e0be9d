package payment

import (
	"context"
	"net/http"
	"sort"
	"testing"
	"time"

	"MozoPOS/internal/metrics"
	"MozoPOS/internal/mozoapi"
	"MozoPOS/internal/mozoapi/models"
	"MozoPOS/internal/mozoapi/mozotest"
	"MozoPOS/internal/poserr"
	"MozoPOS/internal/tablestate"
	"MozoPOS/internal/verify"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hookAPI runs beforeVoucher once, right before the first voucher request.
// A set reject answers the first voucher request instead of the backend.
type hookAPI struct {
	mozoapi.API
	beforeVoucher func()
	reject        *models.ErrorAPI
}

func (h *hookAPI) VoucherCreate(ctx context.Context, v *models.VoucherCreate) (*models.Voucher, error) {
	if h.beforeVoucher != nil {
		h.beforeVoucher()
		h.beforeVoucher = nil
	}
	if h.reject != nil {
		err := h.reject
		h.reject = nil
		return nil, err
	}
	return h.API.VoucherCreate(ctx, v)
}

type alertsMock struct {
	sent []string
}

func (a *alertsMock) SendMessageWithLogError(text string) {
	a.sent = append(a.sent, text)
}

type harness struct {
	srv    *mozotest.Server
	api    *hookAPI
	gate   *tablestate.Gate
	alerts *alertsMock
	r      *Reconciler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	srv := mozotest.NewServer()
	t.Cleanup(srv.Close)
	srv.AddDish("lomo", "Lomo Saltado", "12.00")
	srv.AddDish("inca", "Inca Kola", "5.00")
	srv.AddTable("t1", 1, models.TableOrdered, "m1")

	cfg := srv.Config()
	api := &hookAPI{API: mozoapi.NewAPI(cfg)}
	h := &harness{
		srv:    srv,
		api:    api,
		gate:   tablestate.NewGate(api, cfg),
		alerts: &alertsMock{},
	}
	h.r = New(cfg, Deps{
		API:     api,
		Gate:    h.gate,
		Oracle:  verify.New(api, cfg),
		Metrics: metrics.New(),
		Alerts:  h.alerts,
	})
	return h
}

var (
	lomo = models.OrderLineCreate{DishID: "lomo", Quantity: 1}
	inca = models.OrderLineCreate{DishID: "inca", Quantity: 1}
)

func TestPayLomoSaltadoScenario(t *testing.T) {
	h := newHarness(t)
	order := h.srv.AddOrder("t1", "m1", time.Now(), models.OrderLineCreate{DishID: "lomo", Quantity: 2}, inca)

	s, err := h.r.Pay(context.Background(), Input{StaffID: "m1", TableID: "t1"})
	require.NoError(t, err)
	v := s.Voucher
	assert.Equal(t, "29.00", v.Subtotal.Decimal.StringFixed(2))
	assert.Equal(t, "5.22", v.Tax.Decimal.StringFixed(2))
	assert.Equal(t, "34.22", v.Total.Decimal.StringFixed(2))
	assert.Equal(t, []string{order.ID}, s.Settled)
	assert.False(t, s.Verified)

	require.NotNil(t, v.Customer)
	customers := h.srv.Customers()
	require.Len(t, customers, 1)
	assert.True(t, customers[0].Guest)
	assert.Equal(t, customers[0].ID, v.Customer.ID)

	assert.Equal(t, models.TablePaid, h.srv.Table("t1").Status)
	assert.Equal(t, 1, h.srv.Calls(mozotest.RouteTableStatusUpdate))
	status, ok := h.gate.Status("t1")
	require.True(t, ok)
	assert.Equal(t, models.TablePaid, status)
}

func TestPayComputesMissingTotals(t *testing.T) {
	h := newHarness(t)
	h.srv.OmitTotals = true
	h.srv.AddOrder("t1", "m1", time.Now(), models.OrderLineCreate{DishID: "lomo", Quantity: 2}, inca)

	s, err := h.r.Pay(context.Background(), Input{StaffID: "m1", TableID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, "29.00", s.Voucher.Subtotal.Decimal.StringFixed(2))
	assert.Equal(t, "34.22", s.Voucher.Total.Decimal.StringFixed(2))
	assert.Equal(t, "5.22", s.Voucher.Tax.Decimal.StringFixed(2))
}

func TestPayKeepsServerTotalVerbatim(t *testing.T) {
	h := newHarness(t)
	h.srv.TotalOverride = decimal.NewNullDecimal(decimal.RequireFromString("34.20"))
	h.srv.AddOrder("t1", "m1", time.Now(), models.OrderLineCreate{DishID: "lomo", Quantity: 2}, inca)

	s, err := h.r.Pay(context.Background(), Input{StaffID: "m1", TableID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, "34.20", s.Voucher.Total.Decimal.StringFixed(2))
	assert.Equal(t, "5.20", s.Voucher.Tax.Decimal.StringFixed(2))
}

func TestPayExcludesOrderDeletedAfterDisplay(t *testing.T) {
	h := newHarness(t)
	kept := h.srv.AddOrder("t1", "m1", time.Now(), lomo)
	gone := h.srv.AddOrder("t1", "m1", time.Now(), inca)
	h.srv.DeleteOrder(gone.ID)

	s, err := h.r.Pay(context.Background(), Input{StaffID: "m1", TableID: "t1", OrderIDs: []string{kept.ID, gone.ID}})
	require.NoError(t, err)
	assert.Equal(t, []string{kept.ID}, s.Voucher.Orders)
	assert.Equal(t, []string{kept.ID}, s.Attempted)
	require.Len(t, s.Dropped, 1)
	assert.Equal(t, gone.ID, s.Dropped[0].ID)
	assert.Equal(t, models.ReasonDeleted, s.Dropped[0].Reason)
}

func TestPayOnlyOrderDeletedIsNoPayableOrders(t *testing.T) {
	h := newHarness(t)
	gone := h.srv.AddOrder("t1", "m1", time.Now(), lomo)
	h.srv.DeleteOrder(gone.ID)

	_, err := h.r.Pay(context.Background(), Input{StaffID: "m1", TableID: "t1", OrderIDs: []string{gone.ID}})
	require.Error(t, err)
	e, ok := poserr.From(err)
	require.True(t, ok)
	assert.Equal(t, poserr.NoPayableOrders, e.Reason)
	assert.Equal(t, "all orders were deleted", e.Detail)
	assert.Equal(t, 0, h.srv.Calls(mozotest.RouteVoucherCreate))
	assert.Empty(t, h.srv.Vouchers())
}

func TestPayNoPayableOrdersDiagnostics(t *testing.T) {
	cases := []struct {
		name   string
		setup  func(srv *mozotest.Server)
		detail string
	}{
		{"nothing", func(srv *mozotest.Server) {}, "no orders match the table"},
		{"all paid", func(srv *mozotest.Server) {
			srv.MarkOrderPaid(srv.AddOrder("t1", "m1", time.Now(), lomo).ID)
		}, "all orders were already paid"},
		{"no lines", func(srv *mozotest.Server) {
			srv.ClearOrderLines(srv.AddOrder("t1", "m1", time.Now(), lomo).ID)
		}, "all orders have no line items"},
		{"mixed", func(srv *mozotest.Server) {
			srv.MarkOrderPaid(srv.AddOrder("t1", "m1", time.Now(), lomo).ID)
			srv.DeleteOrder(srv.AddOrder("t1", "m1", time.Now(), lomo).ID)
		}, "no payable orders: 1 pagada, 1 eliminada"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			h := newHarness(t)
			c.setup(h.srv)
			_, err := h.r.Pay(context.Background(), Input{StaffID: "m1", TableID: "t1"})
			e, ok := poserr.From(err)
			require.True(t, ok)
			assert.Equal(t, poserr.NoPayableOrders, e.Reason)
			assert.Equal(t, c.detail, e.Detail)
		})
	}
}

func TestPayNarrowsOnceWhenOrderPaidMeanwhile(t *testing.T) {
	h := newHarness(t)
	a := h.srv.AddOrder("t1", "m1", time.Now(), lomo)
	b := h.srv.AddOrder("t1", "m1", time.Now(), inca)
	c := h.srv.AddOrder("t1", "m1", time.Now(), lomo, inca)
	h.api.beforeVoucher = func() { h.srv.MarkOrderPaid(b.ID) }

	var steps []string
	s, err := h.r.Pay(context.Background(), Input{
		StaffID:  "m1",
		TableID:  "t1",
		Progress: func(msg string) { steps = append(steps, msg) },
	})
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID, b.ID, c.ID}, s.Attempted)
	assert.Equal(t, []string{a.ID, c.ID}, s.Settled)
	require.Len(t, s.Narrowed, 1)
	assert.Equal(t, b.ID, s.Narrowed[0].ID)
	assert.Equal(t, models.ReasonPaid, s.Narrowed[0].Reason)
	assert.Contains(t, steps, "1 of 3 orders are no longer valid, paying the remaining 2")

	var numbers []int
	for _, item := range s.Voucher.Items {
		numbers = append(numbers, item.OrderNumber)
	}
	sort.Ints(numbers)
	assert.Equal(t, []int{a.Number, c.Number, c.Number}, numbers)
	assert.Equal(t, 2, h.srv.Calls(mozotest.RouteVoucherCreate))
}

func TestPayRetryWithoutShrinkSkipsNarrowingNotice(t *testing.T) {
	h := newHarness(t)
	a := h.srv.AddOrder("t1", "m1", time.Now(), lomo)
	b := h.srv.AddOrder("t1", "m1", time.Now(), inca)
	h.api.reject = &models.ErrorAPI{
		Status:      http.StatusUnprocessableEntity,
		Code:        models.ErrorCodeInvalidOrders,
		ValidOrders: []string{a.ID, b.ID},
	}

	var steps []string
	s, err := h.r.Pay(context.Background(), Input{
		StaffID:  "m1",
		TableID:  "t1",
		Progress: func(msg string) { steps = append(steps, msg) },
	})
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID, b.ID}, s.Settled)
	for _, step := range steps {
		assert.NotContains(t, step, "no longer valid")
	}
	assert.Equal(t, 1, h.srv.Calls(mozotest.RouteVoucherCreate))
}

func TestPayGivesUpWhenNothingValidRemains(t *testing.T) {
	h := newHarness(t)
	a := h.srv.AddOrder("t1", "m1", time.Now(), lomo)
	h.api.beforeVoucher = func() { h.srv.ClearOrderLines(a.ID) }

	_, err := h.r.Pay(context.Background(), Input{StaffID: "m1", TableID: "t1"})
	require.Error(t, err)
	e, ok := poserr.From(err)
	require.True(t, ok)
	assert.Equal(t, poserr.HardFailure, e.Kind)
	assert.Equal(t, poserr.InvalidOrders, e.Reason)
	require.Len(t, e.Invalid, 1)
	assert.Equal(t, models.ReasonNoLines, e.Invalid[0].Reason)
	assert.Equal(t, 1, h.srv.Calls(mozotest.RouteVoucherCreate))
}

func TestPayVerifiesAfterDroppedResponse(t *testing.T) {
	h := newHarness(t)
	order := h.srv.AddOrder("t1", "m1", time.Now(), models.OrderLineCreate{DishID: "lomo", Quantity: 2}, inca)
	h.srv.Fail(mozotest.RouteVoucherCreate, mozotest.FaultDropAfterApply)

	s, err := h.r.Pay(context.Background(), Input{StaffID: "m1", TableID: "t1"})
	require.NoError(t, err)
	assert.True(t, s.Verified)
	assert.Equal(t, []string{order.ID}, s.Settled)
	assert.Equal(t, "34.22", s.Voucher.Total.Decimal.StringFixed(2))
	assert.Len(t, h.srv.Vouchers(), 1)
	assert.Empty(t, h.alerts.sent)
}

func TestPayUnverifiedAmbiguityIsHardFailure(t *testing.T) {
	h := newHarness(t)
	h.srv.AddOrder("t1", "m1", time.Now(), lomo)
	h.srv.Fail(mozotest.RouteVoucherCreate, mozotest.FaultDropBeforeApply)

	_, err := h.r.Pay(context.Background(), Input{StaffID: "m1", TableID: "t1"})
	require.Error(t, err)
	assert.Equal(t, poserr.HardFailure, poserr.KindOf(err))
	assert.Equal(t, poserr.NotApplied, poserr.ReasonOf(err))
	assert.Len(t, h.alerts.sent, 1)
	assert.Empty(t, h.srv.Vouchers())
}

func TestPayStatusWriteFailureDoesNotFail(t *testing.T) {
	h := newHarness(t)
	h.srv.AddOrder("t1", "m1", time.Now(), lomo)
	h.srv.Fail(mozotest.RouteTableStatusUpdate, mozotest.FaultServerError)

	s, err := h.r.Pay(context.Background(), Input{StaffID: "m1", TableID: "t1"})
	require.NoError(t, err)
	assert.NotNil(t, s.Voucher)
	assert.Len(t, h.alerts.sent, 1)
}

func TestPayReservedTable(t *testing.T) {
	h := newHarness(t)
	h.srv.SetTableStatus("t1", models.TableReserved)

	_, err := h.r.Pay(context.Background(), Input{StaffID: "m1", TableID: "t1"})
	assert.Equal(t, poserr.StateConflict, poserr.KindOf(err))
	assert.Equal(t, poserr.TableReserved, poserr.ReasonOf(err))
}

func TestPayCustomers(t *testing.T) {
	h := newHarness(t)
	h.srv.AddOrder("t1", "m1", time.Now(), lomo)
	s, err := h.r.Pay(context.Background(), Input{StaffID: "m1", TableID: "t1", Customer: &Customer{ID: "c99"}})
	require.NoError(t, err)
	assert.Equal(t, "c99", s.Voucher.Customer.ID)
	assert.Empty(t, h.srv.Customers())

	h.srv.AddOrder("t1", "m1", time.Now(), lomo)
	s, err = h.r.Pay(context.Background(), Input{StaffID: "m1", TableID: "t1", Customer: &Customer{Name: "Rosa", Document: "44556677"}})
	require.NoError(t, err)
	customers := h.srv.Customers()
	require.Len(t, customers, 1)
	assert.Equal(t, "Rosa", customers[0].Name)
	assert.Equal(t, customers[0].ID, s.Voucher.Customer.ID)
}

func TestPayValidation(t *testing.T) {
	h := newHarness(t)
	_, err := h.r.Pay(context.Background(), Input{TableID: "t1"})
	assert.Equal(t, poserr.MissingStaff, poserr.ReasonOf(err))
	_, err = h.r.Pay(context.Background(), Input{StaffID: "m1"})
	assert.Equal(t, poserr.MissingTable, poserr.ReasonOf(err))
}

func TestNormalize(t *testing.T) {
	rate := decimal.RequireFromString("0.18")
	v := &models.Voucher{Items: []models.VoucherItem{
		{UnitPrice: decimal.RequireFromString("12.00"), Quantity: 2},
		{UnitPrice: decimal.RequireFromString("5.00"), Quantity: 1, Subtotal: decimal.RequireFromString("5.00")},
	}}
	normalize(v, rate)
	assert.Equal(t, "29.00", v.Subtotal.Decimal.StringFixed(2))
	assert.Equal(t, "34.22", v.Total.Decimal.StringFixed(2))
	assert.Equal(t, "5.22", v.Tax.Decimal.StringFixed(2))

	sent := &models.Voucher{
		Subtotal: decimal.NewNullDecimal(decimal.RequireFromString("10.00")),
		Total:    decimal.NewNullDecimal(decimal.RequireFromString("11.99")),
	}
	normalize(sent, rate)
	assert.Equal(t, "11.99", sent.Total.Decimal.StringFixed(2))
	assert.Equal(t, "1.99", sent.Tax.Decimal.StringFixed(2))
}
