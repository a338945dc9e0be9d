// Package mozotest runs an in-memory restaurant backend for tests. It keeps
// tables, orders, vouchers and customers, applies the same validation rules as
// the real backend and can inject transport faults per route.
package mozotest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"MozoPOS/internal/config"
	"MozoPOS/internal/mozoapi/models"
	"MozoPOS/internal/mozoapi/options"

	"github.com/julienschmidt/httprouter"
	"github.com/shopspring/decimal"
)

const (
	RouteTableGet          = "TableGet"
	RouteTableStatusUpdate = "TableStatusUpdate"
	RouteOrderCreate       = "OrderCreate"
	RouteOrderList         = "OrderList"
	RouteVoucherCreate     = "VoucherCreate"
	RouteVoucherList       = "VoucherList"
	RouteCustomerCreate    = "CustomerCreate"
)

type Fault int

const (
	FaultNone Fault = iota
	// FaultDropAfterApply applies the request, then closes the connection
	// without answering.
	FaultDropAfterApply
	// FaultDropBeforeApply closes the connection without applying anything.
	FaultDropBeforeApply
	// FaultEmptyBody applies the request and answers 201 with "{}".
	FaultEmptyBody
	// FaultServerError answers 500 without applying.
	FaultServerError
)

type Server struct {
	*httptest.Server

	mu        sync.Mutex
	tables    map[string]*models.Table
	dishes    map[string]models.Dish
	orders    []*models.Order
	vouchers  []*models.Voucher
	customers []*models.Customer

	nextOrder    int
	nextVoucher  int
	nextCustomer int
	nextID       int

	faults map[string][]Fault
	calls  map[string]int

	// OmitTotals makes voucher responses leave subtotal/igv/total out.
	OmitTotals bool
	// TotalOverride, when valid, is returned verbatim as the voucher total.
	TotalOverride decimal.NullDecimal
	Now           func() time.Time
}

func NewServer() *Server {
	s := &Server{
		tables: make(map[string]*models.Table),
		dishes: make(map[string]models.Dish),
		faults: make(map[string][]Fault),
		calls:  make(map[string]int),
		Now:    time.Now,
	}

	router := httprouter.New()
	router.GET("/mesas/:id", s.wrap(RouteTableGet, s.tableGet))
	router.PUT("/mesas/:id/estado", s.wrap(RouteTableStatusUpdate, s.tableStatusUpdate))
	router.POST("/comanda", s.wrap(RouteOrderCreate, s.orderCreate))
	router.GET("/comanda", s.wrap(RouteOrderList, s.orderList))
	router.POST("/boucher", s.wrap(RouteVoucherCreate, s.voucherCreate))
	router.GET("/boucher", s.wrap(RouteVoucherList, s.voucherList))
	router.POST("/clientes", s.wrap(RouteCustomerCreate, s.customerCreate))
	router.POST("/clientes/invitado", s.wrap(RouteCustomerCreate, s.customerCreate))

	s.Server = httptest.NewServer(router)
	return s
}

// Config returns a configuration pointing at the fake backend.
func (s *Server) Config() *config.Config {
	cfg := config.Default()
	cfg.BACKEND.URL = s.URL
	return cfg
}

// Fail queues one fault for the next call of route.
func (s *Server) Fail(route string, f Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[route] = append(s.faults[route], f)
}

func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

func (s *Server) AddTable(id string, number int, status models.TableStatus, ownerID string) *models.Table {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &models.Table{ID: id, Number: number, Status: status, Active: true}
	if ownerID != "" {
		t.Staff = &models.Ref{ID: ownerID}
	}
	s.tables[id] = t
	return t
}

func (s *Server) SetTableStatus(id string, status models.TableStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[id].Status = status
}

func (s *Server) Table(id string) models.Table {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.tables[id]
}

func (s *Server) AddDish(id, name, price string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dishes[id] = models.Dish{ID: id, Name: name, Price: decimal.RequireFromString(price)}
}

// AddOrder stores an order directly, bypassing validation. Dishes are looked
// up by id, so lines only need Dish.ID and Quantity.
func (s *Server) AddOrder(tableID, staffID string, createdAt time.Time, lines ...models.OrderLineCreate) *models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertOrder(tableID, staffID, "", createdAt, lines)
}

func (s *Server) DeleteOrder(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o := s.order(id); o != nil {
		o.Deleted = true
		o.Active = false
	}
}

func (s *Server) MarkOrderPaid(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o := s.order(id); o != nil {
		o.Status = models.OrderPaid
	}
}

func (s *Server) ClearOrderLines(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o := s.order(id); o != nil {
		o.Lines = nil
	}
}

func (s *Server) Orders() []models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, *o)
	}
	return out
}

func (s *Server) Vouchers() []models.Voucher {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Voucher, 0, len(s.vouchers))
	for _, v := range s.vouchers {
		out = append(out, *v)
	}
	return out
}

func (s *Server) Customers() []models.Customer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		out = append(out, *c)
	}
	return out
}

type handler func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) (status int, body interface{})

func (s *Server) wrap(route string, h handler) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		s.mu.Lock()
		s.calls[route]++
		fault := FaultNone
		if q := s.faults[route]; len(q) > 0 {
			fault, s.faults[route] = q[0], q[1:]
		}
		s.mu.Unlock()

		switch fault {
		case FaultDropBeforeApply:
			drop(w)
			return
		case FaultServerError:
			writeJSON(w, http.StatusInternalServerError, &models.ErrorAPI{Code: "ERROR", Message: "internal error"})
			return
		}

		s.mu.Lock()
		status, body := h(w, r, ps)
		s.mu.Unlock()

		switch fault {
		case FaultDropAfterApply:
			drop(w)
		case FaultEmptyBody:
			writeJSON(w, status, struct{}{})
		default:
			writeJSON(w, status, body)
		}
	}
}

func (s *Server) tableGet(_ http.ResponseWriter, _ *http.Request, ps httprouter.Params) (int, interface{}) {
	t, ok := s.tables[ps.ByName("id")]
	if !ok {
		return http.StatusNotFound, &models.ErrorAPI{Code: "NO_ENCONTRADO", Message: "mesa no encontrada"}
	}
	return http.StatusOK, t
}

func (s *Server) tableStatusUpdate(_ http.ResponseWriter, r *http.Request, ps httprouter.Params) (int, interface{}) {
	t, ok := s.tables[ps.ByName("id")]
	if !ok {
		return http.StatusNotFound, &models.ErrorAPI{Code: "NO_ENCONTRADO", Message: "mesa no encontrada"}
	}
	var req models.TableStatusUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return http.StatusBadRequest, &models.ErrorAPI{Code: "VALIDACION", Message: err.Error()}
	}
	t.Status = req.Status
	return http.StatusOK, t
}

func (s *Server) orderCreate(_ http.ResponseWriter, r *http.Request, _ httprouter.Params) (int, interface{}) {
	var req models.OrderCreate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return http.StatusBadRequest, &models.ErrorAPI{Code: "VALIDACION", Message: err.Error()}
	}
	t, ok := s.tables[req.TableID]
	if !ok || req.StaffID == "" || len(req.Lines) == 0 {
		return http.StatusBadRequest, &models.ErrorAPI{Code: "VALIDACION", Message: "mesa, mozo y platos son obligatorios"}
	}
	if t.Status == models.TableReserved {
		return http.StatusConflict, &models.ErrorAPI{Code: models.ErrorCodeConflict, Message: "mesa reservada"}
	}
	for _, o := range s.orders {
		if o.Table.ID == t.ID && o.Active && o.Status != models.OrderPaid && o.Staff.ID != req.StaffID {
			return http.StatusConflict, &models.ErrorAPI{Code: models.ErrorCodeConflict, Message: "mesa atendida por otro mozo"}
		}
	}
	for _, l := range req.Lines {
		if _, ok := s.dishes[l.DishID]; !ok {
			return http.StatusBadRequest, &models.ErrorAPI{Code: "VALIDACION", Message: "plato desconocido " + l.DishID}
		}
	}

	o := s.insertOrder(req.TableID, req.StaffID, req.Note, s.Now(), req.Lines)
	t.Status = models.TableOrdered
	t.Staff = &models.Ref{ID: req.StaffID}
	return http.StatusCreated, o
}

func (s *Server) orderList(_ http.ResponseWriter, r *http.Request, _ httprouter.Params) (int, interface{}) {
	date, table := r.URL.Query().Get("fecha"), r.URL.Query().Get("mesa")
	out := make([]*models.Order, 0)
	for _, o := range s.orders {
		created, _ := o.Created()
		if date != "" && created.Local().Format(options.DateLayout) != date {
			continue
		}
		if table != "" && o.Table.ID != table {
			continue
		}
		out = append(out, o)
	}
	return http.StatusOK, out
}

func (s *Server) voucherCreate(_ http.ResponseWriter, r *http.Request, _ httprouter.Params) (int, interface{}) {
	var req models.VoucherCreate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return http.StatusBadRequest, &models.ErrorAPI{Code: "VALIDACION", Message: err.Error()}
	}
	t, ok := s.tables[req.TableID]
	if !ok || req.StaffID == "" || len(req.OrderIDs) == 0 {
		return http.StatusBadRequest, &models.ErrorAPI{Code: "VALIDACION", Message: "mesa, mozo y comandas son obligatorios"}
	}

	var valid []string
	var invalid []models.InvalidOrder
	for _, id := range req.OrderIDs {
		o := s.order(id)
		switch {
		case o == nil || o.Deleted || !o.Active:
			number := 0
			if o != nil {
				number = o.Number
			}
			invalid = append(invalid, models.InvalidOrder{ID: id, Number: number, Reason: models.ReasonDeleted})
		case o.Status == models.OrderPaid:
			invalid = append(invalid, models.InvalidOrder{ID: id, Number: o.Number, Reason: models.ReasonPaid})
		case len(o.Lines) == 0:
			invalid = append(invalid, models.InvalidOrder{ID: id, Number: o.Number, Reason: models.ReasonNoLines})
		case o.Table.ID != req.TableID:
			invalid = append(invalid, models.InvalidOrder{ID: id, Number: o.Number, Reason: models.ReasonOtherTable})
		default:
			valid = append(valid, id)
		}
	}
	if len(invalid) > 0 {
		return http.StatusConflict, &models.ErrorAPI{
			Code:          models.ErrorCodeInvalidOrders,
			Message:       "algunas comandas ya no son validas",
			ValidOrders:   valid,
			InvalidOrders: invalid,
		}
	}

	s.nextVoucher++
	s.nextID++
	now := s.Now()
	v := &models.Voucher{
		ID:        fmt.Sprintf("b%d", s.nextID),
		VoucherID: fmt.Sprintf("VOU-%s-%04d", now.Format("20060102"), s.nextVoucher),
		Number:    s.nextVoucher,
		Table:     models.Ref{ID: t.ID},
		Staff:     models.Ref{ID: req.StaffID},
		Orders:    append([]string(nil), req.OrderIDs...),
		Note:      req.Note,
		PaidAt:    now.Format(time.RFC3339),
		CreatedAt: now.Format(time.RFC3339),
	}
	if req.CustomerID != "" {
		v.Customer = &models.Ref{ID: req.CustomerID}
	}

	subtotal := decimal.Zero
	for _, id := range req.OrderIDs {
		o := s.order(id)
		for _, l := range o.Lines {
			line := l.Dish.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
			v.Items = append(v.Items, models.VoucherItem{
				Name:        l.Dish.Name,
				UnitPrice:   l.Dish.Price,
				Quantity:    l.Quantity,
				Subtotal:    line,
				OrderNumber: o.Number,
			})
			subtotal = subtotal.Add(line)
		}
		o.Status = models.OrderPaid
	}
	if !s.OmitTotals {
		total := subtotal.Mul(decimal.RequireFromString("1.18")).Round(2)
		if s.TotalOverride.Valid {
			total = s.TotalOverride.Decimal
		}
		v.Subtotal = decimal.NewNullDecimal(subtotal)
		v.Tax = decimal.NewNullDecimal(total.Sub(subtotal))
		v.Total = decimal.NewNullDecimal(total)
	}
	s.vouchers = append(s.vouchers, v)
	t.Status = models.TablePaid
	return http.StatusCreated, v
}

func (s *Server) voucherList(_ http.ResponseWriter, r *http.Request, _ httprouter.Params) (int, interface{}) {
	date, table := r.URL.Query().Get("fecha"), r.URL.Query().Get("mesa")
	out := make([]*models.Voucher, 0)
	for _, v := range s.vouchers {
		created, _ := v.Created()
		if date != "" && created.Local().Format(options.DateLayout) != date {
			continue
		}
		if table != "" && v.Table.ID != table {
			continue
		}
		out = append(out, v)
	}
	return http.StatusOK, out
}

func (s *Server) customerCreate(_ http.ResponseWriter, r *http.Request, _ httprouter.Params) (int, interface{}) {
	var req models.CustomerCreate
	_ = json.NewDecoder(r.Body).Decode(&req)
	s.nextCustomer++
	c := &models.Customer{
		ID:       fmt.Sprintf("c%d", s.nextCustomer),
		Name:     req.Name,
		Document: req.Document,
		Phone:    req.Phone,
		Guest:    req.Name == "" && req.Document == "" && req.Phone == "",
	}
	s.customers = append(s.customers, c)
	return http.StatusCreated, c
}

func (s *Server) insertOrder(tableID, staffID, note string, createdAt time.Time, lines []models.OrderLineCreate) *models.Order {
	s.nextOrder++
	s.nextID++
	o := &models.Order{
		ID:        fmt.Sprintf("o%d", s.nextID),
		Number:    s.nextOrder,
		Table:     models.Ref{ID: tableID},
		Staff:     models.Ref{ID: staffID},
		Note:      note,
		Status:    models.OrderWaiting,
		Active:    true,
		CreatedAt: createdAt.Format(time.RFC3339),
	}
	for _, l := range lines {
		o.Lines = append(o.Lines, models.OrderLine{Dish: s.dishes[l.DishID], Quantity: l.Quantity, Status: models.LineWaiting})
	}
	s.orders = append(s.orders, o)
	return o
}

func (s *Server) order(id string) *models.Order {
	for _, o := range s.orders {
		if o.ID == id {
			return o
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func drop(w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		panic("mozotest: response writer does not support hijacking")
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		panic(err)
	}
	_ = conn.Close()
}
