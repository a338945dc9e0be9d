// Package ordering submits new orders and resolves every ambiguous outcome
// against the backend before reporting success or failure.
package ordering

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"MozoPOS/internal/config"
	"MozoPOS/internal/metrics"
	"MozoPOS/internal/mozoapi"
	"MozoPOS/internal/mozoapi/models"
	"MozoPOS/internal/poserr"
	"MozoPOS/internal/tablestate"
	"MozoPOS/internal/verify"
	"MozoPOS/pkg/logging"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/sirupsen/logrus"
)

type Input struct {
	StaffID string
	TableID string
	Lines   []models.OrderLineCreate
	Note    string
	// FromDraft marks lines taken from the local draft. Only such an order
	// clears the draft once confirmed.
	FromDraft bool
	// Progress, when set, receives human-readable status strings.
	Progress func(string)
}

// Drafts is the local staging store cleared after a confirmed order.
type Drafts interface {
	Clear() error
}

type Alerter interface {
	SendMessageWithLogError(text string)
}

type Deps struct {
	API     mozoapi.API
	Gate    *tablestate.Gate
	Oracle  *verify.Oracle
	Drafts  Drafts
	Metrics *metrics.Metrics
	Alerts  Alerter
}

type key struct {
	table string
	staff string
}

// pending is an attempt whose outcome stayed unknown.
type pending struct {
	number  int
	exclude []string
	at      time.Time
}

type Reconciler struct {
	Deps
	timeout time.Duration
	window  time.Duration
	now     func() time.Time

	busy atomic.Bool

	mu      sync.Mutex
	pending map[key]pending
}

func New(cfg *config.Config, deps Deps) *Reconciler {
	return &Reconciler{
		Deps:    deps,
		timeout: cfg.CallTimeout(),
		window:  cfg.VerifyWindow(),
		now:     time.Now,
		pending: make(map[key]pending),
	}
}

// Submit creates the order described by in. The returned error is always a
// *poserr.Error and never of kind Ambiguous.
func (r *Reconciler) Submit(ctx context.Context, in Input) (order *models.Order, err error) {
	logger := logging.GetLogger().WithFields(logrus.Fields{"table": in.TableID, "staff": in.StaffID})
	logger.Info("Start Submit")
	defer logger.Info("End Submit")

	if !r.busy.CompareAndSwap(false, true) {
		return nil, poserr.New(poserr.StateConflict, poserr.SubmissionInFlight, "an order submission is already running")
	}
	defer r.busy.Store(false)

	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = string(poserr.KindOf(err))
		}
		r.Metrics.Outcome(metrics.OpOrder, outcome)
	}()

	if err := validate(in); err != nil {
		return nil, err
	}

	// Once a create call may have left, nothing the caller does can cancel
	// the reconciliation that follows.
	detached := context.WithoutCancel(ctx)
	k := key{table: in.TableID, staff: in.StaffID}

	// known holds orders that must not be taken for this attempt.
	var known []string
	if p, ok := r.takePending(k); ok {
		progress(in, "Checking the previous attempt")
		found, ok := r.Oracle.FindOrder(detached, verify.Query{
			TableID: in.TableID,
			StaffID: in.StaffID,
			Number:  p.number,
			Exclude: p.exclude,
		})
		r.Metrics.Verification(metrics.OpOrder, ok)
		switch {
		case ok && sameLines(found.Lines, in.Lines):
			logger.Infof("previous attempt was applied as order #%d (%s)", found.Number, found.ID)
			r.confirm(in, found, logger)
			return found, nil
		case ok:
			logger.Infof("previous attempt was applied as order #%d (%s), sending the new lines as a separate order", found.Number, found.ID)
			known = append(known, found.ID)
		}
	}

	progress(in, "Checking table")
	snap, err := r.Gate.CheckOrder(ctx, in.TableID, in.StaffID)
	if err != nil {
		logger.WithError(err).Info("table gate refused the order")
		return nil, err
	}
	if snap.Stale {
		logger.Warn("table gate decided from cached state")
	}

	progress(in, "Sending order")
	callCtx, cancel := context.WithTimeout(detached, r.timeout)
	created, err := r.API.OrderCreate(callCtx, &models.OrderCreate{
		TableID: in.TableID,
		StaffID: in.StaffID,
		Lines:   in.Lines,
		Note:    in.Note,
	})
	cancel()
	if err == nil {
		logger.Infof("order #%d (%s) created", created.Number, created.ID)
		r.confirm(in, created, logger)
		return created, nil
	}

	if !mozoapi.IsAmbiguous(err) {
		logger.WithError(err).Warn("order rejected")
		return nil, classify(err)
	}

	logger.WithError(err).Warn("order outcome unknown, verifying")
	progress(in, "Verifying order")
	q := verify.Query{TableID: in.TableID, StaffID: in.StaffID, Exclude: append(known, snap.OpenOrders...)}
	if created != nil {
		q.Number = created.Number
	}
	found, ok := r.Oracle.FindOrder(detached, q)
	r.Metrics.Verification(metrics.OpOrder, ok)
	if ok {
		logger.Infof("verified order #%d (%s) after ambiguous failure", found.Number, found.ID)
		r.confirm(in, found, logger)
		return found, nil
	}

	r.remember(k, pending{number: q.Number, exclude: q.Exclude, at: r.now()})
	r.alert(fmt.Sprintf("Order for table %s by %s could not be confirmed: %v", in.TableID, in.StaffID, err))
	return nil, poserr.Wrap(err, poserr.HardFailure, poserr.NotApplied, "the order could not be confirmed, try again")
}

func (r *Reconciler) confirm(in Input, order *models.Order, logger *logging.Logger) {
	r.Gate.Advance(in.TableID, in.StaffID, models.TableOrdered)
	if in.FromDraft && r.Drafts != nil {
		if err := r.Drafts.Clear(); err != nil {
			logger.WithError(err).Error("failed to clear draft after confirmed order")
		}
	}
	progress(in, fmt.Sprintf("Order #%d confirmed", order.Number))
}

// sameLines reports whether the order carries the same dishes in the same
// quantities, regardless of line order.
func sameLines(got []models.OrderLine, want []models.OrderLineCreate) bool {
	counts := make(map[string]int)
	for _, l := range want {
		counts[l.DishID] += l.Quantity
	}
	for _, l := range got {
		counts[l.Dish.ID] -= l.Quantity
	}
	for _, n := range counts {
		if n != 0 {
			return false
		}
	}
	return true
}

func (r *Reconciler) takePending(k key) (pending, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pending[k]
	if !ok {
		return pending{}, false
	}
	delete(r.pending, k)
	if r.now().Sub(p.at) > r.window {
		return pending{}, false
	}
	return p, true
}

func (r *Reconciler) remember(k key, p pending) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[k] = p
}

func (r *Reconciler) alert(text string) {
	if r.Alerts != nil {
		r.Alerts.SendMessageWithLogError(text)
	}
}

func validate(in Input) error {
	if err := validation.Validate(in.StaffID, validation.Required); err != nil {
		return poserr.Wrap(err, poserr.Validation, poserr.MissingStaff, "staff id")
	}
	if err := validation.Validate(in.TableID, validation.Required); err != nil {
		return poserr.Wrap(err, poserr.Validation, poserr.MissingTable, "table id")
	}
	if err := validation.Validate(in.Lines, validation.Required); err != nil {
		return poserr.Wrap(err, poserr.Validation, poserr.NoLines, "order lines")
	}
	for i := range in.Lines {
		l := &in.Lines[i]
		err := validation.ValidateStruct(l,
			validation.Field(&l.DishID, validation.Required),
			validation.Field(&l.Quantity, validation.Required, validation.Min(1)),
		)
		if err != nil {
			return poserr.Wrap(err, poserr.Validation, poserr.InvalidLine, fmt.Sprintf("line %d", i+1))
		}
	}
	return nil
}

// classify maps a definite backend rejection onto the taxonomy.
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
