package mozoapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"MozoPOS/internal/config"
	"MozoPOS/internal/mozoapi/models"
	"MozoPOS/internal/mozoapi/options"
	"MozoPOS/internal/transport"
	"MozoPOS/pkg/logging"

	"github.com/pkg/errors"
)

// API is the restaurant backend as seen by the reconcilers.
type API interface {
	TableGet(ctx context.Context, ID string) (*models.Table, error)
	TableStatusUpdate(ctx context.Context, ID string, status models.TableStatus) error

	OrderCreate(ctx context.Context, o *models.OrderCreate) (*models.Order, error)
	OrderList(ctx context.Context, opts ...options.Option) ([]*models.Order, error)

	VoucherCreate(ctx context.Context, v *models.VoucherCreate) (*models.Voucher, error)
	VoucherList(ctx context.Context, opts ...options.Option) ([]*models.Voucher, error)

	CustomerCreate(ctx context.Context, c *models.CustomerCreate) (*models.Customer, error)
	CustomerGuest(ctx context.Context) (*models.Customer, error)
}

type mozoapi struct {
	api *transport.Client
	now func() time.Time
}

func NewAPI(cfg *config.Config) API {
	sender := transport.NewRestySender(cfg.BACKEND.URL, cfg.BACKEND.UserAgent, cfg.CallTimeout())
	return NewAPIWithSender(sender)
}

func NewAPIWithSender(sender transport.Sender) API {
	return &mozoapi{
		api: transport.NewClient(sender),
		now: time.Now,
	}
}

func (m *mozoapi) TableGet(ctx context.Context, ID string) (*models.Table, error) {
	logger := logging.GetLogger()
	logger.Debug("TableGet:>Start")
	defer logger.Debug("TableGet:>End")

	endpoint := fmt.Sprintf("mesas/%s", url.PathEscape(ID))
	resp, err := m.api.Get(ctx, endpoint, nil)
	if err != nil {
		return nil, &TransportError{Op: "TableGet", Err: err}
	}

	var table models.Table
	if err := decode(resp, http.StatusOK, &table); err != nil {
		return nil, errors.Wrapf(err, "TableGet(%s)", ID)
	}
	if table.ID == "" {
		return nil, errors.Wrapf(ErrMalformedResponse, "TableGet(%s)", ID)
	}
	return &table, nil
}

func (m *mozoapi) TableStatusUpdate(ctx context.Context, ID string, status models.TableStatus) error {
	logger := logging.GetLogger()
	logger.Debug("TableStatusUpdate:>Start")
	defer logger.Debug("TableStatusUpdate:>End")

	endpoint := fmt.Sprintf("mesas/%s/estado", url.PathEscape(ID))
	resp, err := m.api.Put(ctx, endpoint, &models.TableStatusUpdate{Status: status})
	if err != nil {
		return &TransportError{Op: "TableStatusUpdate", Err: err}
	}
	if err := decode(resp, http.StatusOK, nil); err != nil {
		return errors.Wrapf(err, "TableStatusUpdate(%s, %s)", ID, status)
	}
	return nil
}

// OrderCreate sends a new order. When the backend answers 2xx without the
// created order, the partially decoded order (possibly carrying only the
// display number) is returned together with ErrMalformedResponse.
func (m *mozoapi) OrderCreate(ctx context.Context, o *models.OrderCreate) (*models.Order, error) {
	logger := logging.GetLogger()
	logger.Debug("OrderCreate:>Start")
	defer logger.Debug("OrderCreate:>End")

	resp, err := m.api.Post(ctx, "comanda", o)
	if err != nil {
		return nil, &TransportError{Op: "OrderCreate", Err: err}
	}

	var order models.Order
	if err := decode(resp, http.StatusCreated, &order); err != nil {
		return nil, errors.Wrapf(err, "OrderCreate(mesa: %s, mozo: %s)", o.TableID, o.StaffID)
	}
	if order.ID == "" || order.Number == 0 {
		return &order, errors.Wrapf(ErrMalformedResponse, "OrderCreate(mesa: %s, mozo: %s)", o.TableID, o.StaffID)
	}
	return &order, nil
}

func (m *mozoapi) OrderList(ctx context.Context, opts ...options.Option) ([]*models.Order, error) {
	logger := logging.GetLogger()
	logger.Debug("OrderList:>Start")
	defer logger.Debug("OrderList:>End")

	params, err := options.Values(m.now(), opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode order list query")
	}
	resp, err := m.api.Get(ctx, "comanda", params)
	if err != nil {
		return nil, &TransportError{Op: "OrderList", Err: err}
	}

	var orders []*models.Order
	if err := decode(resp, http.StatusOK, &orders); err != nil {
		return nil, errors.Wrapf(err, "OrderList(%s)", params.Encode())
	}
	logger.Debugf("OrderList(%s): %d orders", params.Encode(), len(orders))
	return orders, nil
}

func (m *mozoapi) VoucherCreate(ctx context.Context, v *models.VoucherCreate) (*models.Voucher, error) {
	logger := logging.GetLogger()
	logger.Debug("VoucherCreate:>Start")
	defer logger.Debug("VoucherCreate:>End")

	resp, err := m.api.Post(ctx, "boucher", v)
	if err != nil {
		return nil, &TransportError{Op: "VoucherCreate", Err: err}
	}

	var voucher models.Voucher
	if err := decode(resp, http.StatusCreated, &voucher); err != nil {
		return nil, errors.Wrapf(err, "VoucherCreate(mesa: %s, comandas: %v)", v.TableID, v.OrderIDs)
	}
	if voucher.ID == "" {
		return &voucher, errors.Wrapf(ErrMalformedResponse, "VoucherCreate(mesa: %s, comandas: %v)", v.TableID, v.OrderIDs)
	}
	return &voucher, nil
}

func (m *mozoapi) VoucherList(ctx context.Context, opts ...options.Option) ([]*models.Voucher, error) {
	logger := logging.GetLogger()
	logger.Debug("VoucherList:>Start")
	defer logger.Debug("VoucherList:>End")

	params, err := options.Values(m.now(), opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode voucher list query")
	}
	resp, err := m.api.Get(ctx, "boucher", params)
	if err != nil {
		return nil, &TransportError{Op: "VoucherList", Err: err}
	}

	var vouchers []*models.Voucher
	if err := decode(resp, http.StatusOK, &vouchers); err != nil {
		return nil, errors.Wrapf(err, "VoucherList(%s)", params.Encode())
	}
	return vouchers, nil
}

func (m *mozoapi) CustomerCreate(ctx context.Context, c *models.CustomerCreate) (*models.Customer, error) {
	return m.customer(ctx, "clientes", c)
}

func (m *mozoapi) CustomerGuest(ctx context.Context) (*models.Customer, error) {
	return m.customer(ctx, "clientes/invitado", struct{}{})
}

func (m *mozoapi) customer(ctx context.Context, endpoint string, body interface{}) (*models.Customer, error) {
	logger := logging.GetLogger()
	logger.Debug("CustomerCreate:>Start")
	defer logger.Debug("CustomerCreate:>End")

	resp, err := m.api.Post(ctx, endpoint, body)
	if err != nil {
		return nil, &TransportError{Op: "CustomerCreate", Err: err}
	}

	var customer models.Customer
	if err := decode(resp, http.StatusCreated, &customer); err != nil {
		return nil, errors.Wrapf(err, "CustomerCreate(%s)", endpoint)
	}
	if customer.ID == "" {
		return nil, errors.Wrapf(ErrMalformedResponse, "CustomerCreate(%s)", endpoint)
	}
	return &customer, nil
}

// decode accepts want or any other 2xx. A non-2xx body becomes *models.ErrorAPI.
func decode(resp *transport.Response, want int, out interface{}) error {
	logger := logging.GetLogger()
	logger.Debugf("status: %d, body: %s", resp.StatusCode, string(resp.Body))

	if !resp.IsSuccess() {
		apiErr := &models.ErrorAPI{}
		if len(resp.Body) > 0 {
			if err := json.Unmarshal(resp.Body, apiErr); err != nil {
				apiErr.Message = string(resp.Body)
			}
		}
		apiErr.Status = resp.StatusCode
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if resp.StatusCode != want {
		logger.Debugf("expected status %d, got %d", want, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if len(resp.Body) == 0 {
		return ErrMalformedResponse
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return errors.Wrapf(ErrMalformedResponse, "json.Unmarshal(): %v", err)
	}
	return nil
}
