// Package payment turns a table's currently payable orders into a voucher.
package payment

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"MozoPOS/internal/config"
	"MozoPOS/internal/metrics"
	"MozoPOS/internal/mozoapi"
	"MozoPOS/internal/mozoapi/models"
	"MozoPOS/internal/mozoapi/options"
	"MozoPOS/internal/poserr"
	"MozoPOS/internal/tablestate"
	"MozoPOS/internal/verify"
	"MozoPOS/pkg/logging"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// maxNarrowings bounds the automatic retries after a partial rejection.
const maxNarrowings = 1

// Customer selects who the voucher is issued to. A nil *Customer issues it
// to a disposable guest.
type Customer struct {
	ID       string
	Name     string
	Document string
	Phone    string
}

type Input struct {
	StaffID  string
	TableID  string
	Customer *Customer
	// OrderIDs, when set, restricts payment to these orders. The refreshed
	// backend state still decides which of them are payable.
	OrderIDs []string
	Note     string
	Progress func(string)
}

type Settlement struct {
	Voucher *models.Voucher
	// Attempted is the order set of the first submission.
	Attempted []string
	// Settled is the order set the voucher covers.
	Settled []string
	// Dropped lists requested orders the refresh found not payable.
	Dropped []models.InvalidOrder
	// Narrowed lists orders the backend rejected before the retry.
	Narrowed []models.InvalidOrder
	// Verified is set when the voucher was found after an ambiguous failure.
	Verified bool
}

type Alerter interface {
	SendMessageWithLogError(text string)
}

type Deps struct {
	API     mozoapi.API
	Gate    *tablestate.Gate
	Oracle  *verify.Oracle
	Metrics *metrics.Metrics
	Alerts  Alerter
}

type Reconciler struct {
	Deps
	timeout       time.Duration
	statusTimeout time.Duration
	taxRate       decimal.Decimal

	busy atomic.Bool
}

func New(cfg *config.Config, deps Deps) *Reconciler {
	return &Reconciler{
		Deps:          deps,
		timeout:       cfg.CallTimeout(),
		statusTimeout: cfg.StatusTimeout(),
		taxRate:       decimal.NewFromInt(int64(cfg.RECONCILE.TaxPercent)).Div(decimal.NewFromInt(100)),
	}
}

// Pay settles the table. The returned error is always a *poserr.Error and
// never of kind Ambiguous.
func (r *Reconciler) Pay(ctx context.Context, in Input) (s *Settlement, err error) {
	logger := logging.GetLogger().WithFields(logrus.Fields{"table": in.TableID, "staff": in.StaffID})
	logger.Info("Start Pay")
	defer logger.Info("End Pay")

	if !r.busy.CompareAndSwap(false, true) {
		return nil, poserr.New(poserr.StateConflict, poserr.SubmissionInFlight, "a payment is already running")
	}
	defer r.busy.Store(false)

	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = string(poserr.KindOf(err))
		}
		r.Metrics.Outcome(metrics.OpPayment, outcome)
	}()

	if err := validation.Validate(in.StaffID, validation.Required); err != nil {
		return nil, poserr.Wrap(err, poserr.Validation, poserr.MissingStaff, "staff id")
	}
	if err := validation.Validate(in.TableID, validation.Required); err != nil {
		return nil, poserr.Wrap(err, poserr.Validation, poserr.MissingTable, "table id")
	}

	progress(in, "Checking table")
	if _, err := r.Gate.CheckPayment(ctx, in.TableID); err != nil {
		return nil, err
	}

	progress(in, "Refreshing orders")
	ids, dropped, err := r.refresh(ctx, in)
	if err != nil {
		return nil, err
	}
	s = &Settlement{Attempted: ids, Dropped: dropped}
	if len(dropped) > 0 {
		logger.Infof("skipping orders no longer payable: %s", describe(dropped))
	}

	detached := context.WithoutCancel(ctx)
	customerID, err := r.customer(detached, in.Customer)
	if err != nil {
		return nil, err
	}

	for narrowings := 0; ; narrowings++ {
		progress(in, fmt.Sprintf("Issuing voucher for %d orders", len(ids)))
		callCtx, cancel := context.WithTimeout(detached, r.timeout)
		voucher, err := r.API.VoucherCreate(callCtx, &models.VoucherCreate{
			TableID:    in.TableID,
			StaffID:    in.StaffID,
			CustomerID: customerID,
			OrderIDs:   ids,
			Note:       in.Note,
		})
		cancel()

		if err == nil {
			logger.Infof("voucher %s #%d created", voucher.VoucherID, voucher.Number)
			return r.settle(detached, in, s, voucher, ids, logger), nil
		}

		if mozoapi.IsAmbiguous(err) {
			logger.WithError(err).Warn("voucher outcome unknown, verifying")
			progress(in, "Verifying payment")
			found, ok := r.Oracle.FindVoucher(detached, verify.Query{
				TableID:  in.TableID,
				StaffID:  in.StaffID,
				OrderIDs: ids,
			})
			r.Metrics.Verification(metrics.OpPayment, ok)
			if ok {
				logger.Infof("verified voucher %s #%d after ambiguous failure", found.VoucherID, found.Number)
				s.Verified = true
				return r.settle(detached, in, s, found, ids, logger), nil
			}
			r.alert(fmt.Sprintf("Payment for table %s by %s could not be confirmed: %v", in.TableID, in.StaffID, err))
			return nil, poserr.Wrap(err, poserr.HardFailure, poserr.NotApplied, "the payment could not be confirmed, try again")
		}

		apiErr, ok := mozoapi.AsAPIError(err)
		if !ok || !apiErr.PartiallyInvalid() {
			logger.WithError(err).Warn("voucher rejected")
			return nil, classify(err)
		}

		valid := restrict(apiErr.ValidOrders, ids)
		if narrowings >= maxNarrowings || len(valid) == 0 {
			e := poserr.Wrap(err, poserr.HardFailure, poserr.InvalidOrders, "no payable orders left after the backend check")
			e.Invalid = apiErr.InvalidOrders
			return nil, e
		}
		logger.Infof("narrowing voucher from %d to %d orders: %s", len(ids), len(valid), describe(apiErr.InvalidOrders))
		r.Metrics.Narrowed()
		s.Narrowed = append(s.Narrowed, apiErr.InvalidOrders...)
		if len(valid) < len(ids) {
			progress(in, fmt.Sprintf("%d of %d orders are no longer valid, paying the remaining %d",
				len(ids)-len(valid), len(ids), len(valid)))
		}
		ids = valid
	}
}

// refresh re-reads today's orders of the table and keeps the payable ones.
func (r *Reconciler) refresh(ctx context.Context, in Input) ([]string, []models.InvalidOrder, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	orders, err := r.API.OrderList(callCtx, options.Table(in.TableID))
	if err != nil {
		return nil, nil, poserr.Wrap(err, poserr.HardFailure, poserr.TableUnavailable, "could not read the table's orders")
	}

	requested := make(map[string]bool, len(in.OrderIDs))
	for _, id := range in.OrderIDs {
		requested[id] = true
	}

	var ids []string
	var skipped []models.InvalidOrder
	seen := make(map[string]bool)
	for _, o := range orders {
		if o == nil || (len(requested) > 0 && !requested[o.ID]) {
			continue
		}
		seen[o.ID] = true
		if reason, ok := unpayable(o, in.TableID); ok {
			skipped = append(skipped, models.InvalidOrder{ID: o.ID, Number: o.Number, Reason: reason})
			continue
		}
		ids = append(ids, o.ID)
	}

	var dropped []models.InvalidOrder
	if len(requested) > 0 {
		dropped = append(dropped, skipped...)
		for _, id := range in.OrderIDs {
			if !seen[id] {
				dropped = append(dropped, models.InvalidOrder{ID: id, Reason: models.ReasonDeleted})
			}
		}
	}

	if len(ids) == 0 {
		e := poserr.New(poserr.HardFailure, poserr.NoPayableOrders, diagnose(skipped))
		e.Invalid = skipped
		if len(requested) > 0 {
			e.Invalid = dropped
		}
		return nil, nil, e
	}
	return ids, dropped, nil
}

func (r *Reconciler) customer(ctx context.Context, c *Customer) (string, error) {
	if c != nil && c.ID != "" {
		return c.ID, nil
	}
	logger := logging.GetLogger()
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if c == nil {
		guest, err := r.API.CustomerGuest(callCtx)
		if err != nil {
			logger.WithError(err).Warn("guest customer unavailable, issuing voucher without customer")
			return "", nil
		}
		return guest.ID, nil
	}
	created, err := r.API.CustomerCreate(callCtx, &models.CustomerCreate{
		Name:     c.Name,
		Document: c.Document,
		Phone:    c.Phone,
	})
	if err != nil {
		return "", poserr.Wrap(err, poserr.HardFailure, poserr.CustomerUnavailable, "could not register the customer")
	}
	return created.ID, nil
}

func (r *Reconciler) settle(ctx context.Context, in Input, s *Settlement, v *models.Voucher, ids []string, logger *logging.Logger) *Settlement {
	normalize(v, r.taxRate)
	s.Voucher = v
	s.Settled = v.Orders
	if len(s.Settled) == 0 {
		s.Settled = ids
	}

	callCtx, cancel := context.WithTimeout(ctx, r.statusTimeout)
	defer cancel()
	if err := r.API.TableStatusUpdate(callCtx, in.TableID, models.TablePaid); err != nil {
		logger.WithError(err).Warn("failed to mark table paid after voucher")
		r.alert(fmt.Sprintf("Voucher %s issued but table %s could not be marked %s: %v", v.VoucherID, in.TableID, models.TablePaid, err))
	}
	r.Gate.Advance(in.TableID, in.StaffID, models.TablePaid)
	progress(in, fmt.Sprintf("Voucher %s issued, total %s", v.VoucherID, v.Total.Decimal.StringFixed(2)))
	return s
}

func (r *Reconciler) alert(text string) {
	if r.Alerts != nil {
		r.Alerts.SendMessageWithLogError(text)
	}
}

// normalize fills the totals the backend left out. A backend total is kept
// as sent.
func normalize(v *models.Voucher, taxRate decimal.Decimal) {
	if !v.Subtotal.Valid {
		sum := decimal.Zero
		for _, item := range v.Items {
			line := item.Subtotal
			if line.IsZero() {
				line = item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
			}
			sum = sum.Add(line)
		}
		v.Subtotal = decimal.NewNullDecimal(sum)
	}
	if !v.Total.Valid {
		v.Total = decimal.NewNullDecimal(v.Subtotal.Decimal.Mul(decimal.NewFromInt(1).Add(taxRate)).Round(2))
	}
	if !v.Tax.Valid {
		v.Tax = decimal.NewNullDecimal(v.Total.Decimal.Sub(v.Subtotal.Decimal))
	}
}

func unpayable(o *models.Order, tableID string) (models.InvalidReason, bool) {
	switch {
	case o.Deleted || !o.Active:
		return models.ReasonDeleted, true
	case o.Status == models.OrderPaid:
		return models.ReasonPaid, true
	case o.Table.ID != tableID:
		return models.ReasonOtherTable, true
	case len(o.Lines) == 0:
		return models.ReasonNoLines, true
	}
	return "", false
}

func diagnose(skipped []models.InvalidOrder) string {
	if len(skipped) == 0 {
		return "no orders match the table"
	}
	counts := make(map[models.InvalidReason]int)
	for _, o := range skipped {
		counts[o.Reason]++
	}
	if len(counts) == 1 {
		switch skipped[0].Reason {
		case models.ReasonPaid:
			return "all orders were already paid"
		case models.ReasonDeleted:
			return "all orders were deleted"
		case models.ReasonOtherTable:
			return "no orders match the table"
		case models.ReasonNoLines:
			return "all orders have no line items"
		}
	}
	var parts []string
	for _, reason := range []models.InvalidReason{models.ReasonPaid, models.ReasonDeleted, models.ReasonNoLines, models.ReasonOtherTable} {
		if n := counts[reason]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, reason))
		}
	}
	return "no payable orders: " + strings.Join(parts, ", ")
}

func describe(orders []models.InvalidOrder) string {
	var out []string
	for _, o := range orders {
		out = append(out, o.String())
	}
	return strings.Join(out, "; ")
}

// restrict keeps the ids of valid that were part of attempted.
func restrict(valid, attempted []string) []string {
	allowed := make(map[string]bool, len(attempted))
	for _, id := range attempted {
		allowed[id] = true
	}
	var out []string
	for _, id := range valid {
		if allowed[id] {
			out = append(out, id)
			delete(allowed, id)
		}
	}
	return out
}

func classify(err error) error {
	apiErr, ok := mozoapi.AsAPIError(err)
	if !ok {
		return poserr.Wrap(err, poserr.HardFailure, poserr.Rejected, "")
	}
	switch apiErr.Status {
	case http.StatusConflict:
		return poserr.Wrap(err, poserr.StateConflict, poserr.Rejected, apiErr.Message)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return poserr.Wrap(err, poserr.Validation, poserr.Rejected, apiErr.Message)
	}
	return poserr.Wrap(err, poserr.HardFailure, poserr.Rejected, apiErr.Message)
}

func progress(in Input, msg string) {
	if in.Progress != nil {
		in.Progress(msg)
	}
}
