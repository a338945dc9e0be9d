// Package verify answers one question for the reconcilers: did a create call
// that appeared to fail actually take effect on the backend?
//
// The backend has no request idempotency key, so the answer is found by
// business correlation: same staff member, same table, created within a short
// window, and optionally the display number the failed reply still carried.
package verify

import (
	"context"
	"time"

	"MozoPOS/internal/config"
	"MozoPOS/internal/mozoapi/models"
	"MozoPOS/internal/mozoapi/options"
	"MozoPOS/pkg/logging"

	"github.com/sirupsen/logrus"
)

// DefaultWindow bounds matches against an unrelated later order of the same
// staff member at the same table.
const DefaultWindow = 2 * time.Minute

// maxSkew tolerates a backend clock running ahead of ours.
const maxSkew = 30 * time.Second

// Lister is the read side of the backend the oracle consults.
type Lister interface {
	OrderList(ctx context.Context, opts ...options.Option) ([]*models.Order, error)
	VoucherList(ctx context.Context, opts ...options.Option) ([]*models.Voucher, error)
}

type Query struct {
	TableID string
	StaffID string
	// Number is the display number, when the failed reply carried one.
	Number int
	Window time.Duration
	// Exclude lists ids that already existed before the attempt.
	Exclude []string
	// OrderIDs, for vouchers: a match must settle at least one of them.
	OrderIDs []string
}

type Oracle struct {
	api     Lister
	window  time.Duration
	timeout time.Duration
	now     func() time.Time
}

func New(api Lister, cfg *config.Config) *Oracle {
	return &Oracle{
		api:     api,
		window:  cfg.VerifyWindow(),
		timeout: cfg.CallTimeout(),
		now:     time.Now,
	}
}

// FindOrder returns the first of today's orders matching q, or false. Its own
// failures are logged and reported as not found.
func (o *Oracle) FindOrder(ctx context.Context, q Query) (*models.Order, bool) {
	logger := o.logger(q, "order")
	logger.Info("Start FindOrder")
	defer logger.Info("End FindOrder")

	now := o.now()
	window := o.windowOf(q)
	exclude := toSet(q.Exclude)

	for _, day := range days(now, window) {
		orders, err := o.listOrders(ctx, day, q.TableID)
		if err != nil {
			logger.WithError(err).Warn("verification read failed, reporting not found")
			return nil, false
		}
		for _, order := range orders {
			if order == nil || exclude[order.ID] {
				continue
			}
			if order.Table.ID != q.TableID || order.Staff.ID != q.StaffID {
				continue
			}
			if q.Number > 0 && order.Number != q.Number {
				continue
			}
			created, err := order.Created()
			if err != nil {
				logger.WithError(err).Debugf("skipping order %s", order.ID)
				continue
			}
			if !within(created, now, window) {
				continue
			}
			logger.Infof("found order %s #%d created %s", order.ID, order.Number, created.Format(time.RFC3339))
			return order, true
		}
	}
	logger.Info("no matching order")
	return nil, false
}

// FindVoucher is FindOrder for vouchers.
func (o *Oracle) FindVoucher(ctx context.Context, q Query) (*models.Voucher, bool) {
	logger := o.logger(q, "voucher")
	logger.Info("Start FindVoucher")
	defer logger.Info("End FindVoucher")

	now := o.now()
	window := o.windowOf(q)
	exclude := toSet(q.Exclude)
	wanted := toSet(q.OrderIDs)

	for _, day := range days(now, window) {
		vouchers, err := o.listVouchers(ctx, day, q.TableID)
		if err != nil {
			logger.WithError(err).Warn("verification read failed, reporting not found")
			return nil, false
		}
		for _, v := range vouchers {
			if v == nil || exclude[v.ID] {
				continue
			}
			if v.Table.ID != q.TableID || v.Staff.ID != q.StaffID {
				continue
			}
			if q.Number > 0 && v.Number != q.Number {
				continue
			}
			if len(wanted) > 0 && len(v.Orders) > 0 && !overlaps(v.Orders, wanted) {
				continue
			}
			created, err := v.Created()
			if err != nil {
				logger.WithError(err).Debugf("skipping voucher %s", v.ID)
				continue
			}
			if !within(created, now, window) {
				continue
			}
			logger.Infof("found voucher %s #%d created %s", v.ID, v.Number, created.Format(time.RFC3339))
			return v, true
		}
	}
	logger.Info("no matching voucher")
	return nil, false
}

func (o *Oracle) listOrders(ctx context.Context, day time.Time, tableID string) ([]*models.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	return o.api.OrderList(ctx, options.Date(day), options.Table(tableID))
}

func (o *Oracle) listVouchers(ctx context.Context, day time.Time, tableID string) ([]*models.Voucher, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	return o.api.VoucherList(ctx, options.Date(day), options.Table(tableID))
}

func (o *Oracle) windowOf(q Query) time.Duration {
	if q.Window > 0 {
		return q.Window
	}
	if o.window > 0 {
		return o.window
	}
	return DefaultWindow
}

func (o *Oracle) logger(q Query, kind string) *logging.Logger {
	return logging.GetLogger().WithFields(logrus.Fields{
		"verify": kind,
		"table":  q.TableID,
		"staff":  q.StaffID,
		"number": q.Number,
	})
}

// days lists today and, when the window reaches back past midnight, yesterday.
func days(now time.Time, window time.Duration) []time.Time {
	out := []time.Time{now}
	if earliest := now.Add(-window); earliest.YearDay() != now.YearDay() || earliest.Year() != now.Year() {
		out = append(out, earliest)
	}
	return out
}

func within(created, now time.Time, window time.Duration) bool {
	age := now.Sub(created)
	return age <= window && age >= -maxSkew
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func overlaps(ids []string, set map[string]bool) bool {
	for _, id := range ids {
		if set[id] {
			return true
		}
	}
	return false
}
