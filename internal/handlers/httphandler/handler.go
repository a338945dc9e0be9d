// Package httphandler exposes order submission, payment and the draft to the
// UI over HTTP.
package httphandler

import (
	"context"
	"fmt"
	"net/http"

	"MozoPOS/internal/draft"
	"MozoPOS/internal/metrics"
	"MozoPOS/internal/mozoapi/models"
	"MozoPOS/internal/ordering"
	"MozoPOS/internal/payment"
	"MozoPOS/internal/poserr"
	"MozoPOS/internal/version"
	"MozoPOS/pkg/logging"

	"github.com/julienschmidt/httprouter"
	"github.com/shopspring/decimal"
)

type Orders interface {
	Submit(ctx context.Context, in ordering.Input) (*models.Order, error)
}

type Payments interface {
	Pay(ctx context.Context, in payment.Input) (*payment.Settlement, error)
}

// Tables serves the table header shown next to the draft.
type Tables interface {
	Get(ctx context.Context, tableID string) (*models.Table, error)
	Forget(tableID string)
}

type Handler struct {
	Orders   Orders
	Payments Payments
	Tables   Tables
	Drafts   *draft.Composer
	Metrics  *metrics.Metrics
}

func (h *Handler) Router() *httprouter.Router {
	router := httprouter.New()

	router.GET("/", h.HandlerVersion)
	router.Handler(http.MethodGet, "/metrics", h.Metrics.Handler())

	router.GET("/draft", h.HandlerDraftGet)
	router.DELETE("/draft", h.HandlerDraftLogout)
	router.POST("/draft/lines", h.HandlerDraftAdd)
	router.PUT("/draft/lines/:dish", h.HandlerDraftQuantity)
	router.DELETE("/draft/lines/:dish", h.HandlerDraftRemove)
	router.PUT("/draft/note", h.HandlerDraftNote)
	router.PUT("/draft/table", h.HandlerDraftTable)

	router.GET("/tables/:table", h.HandlerTable)
	router.POST("/tables/:table/orders", h.HandlerSubmitOrder)
	router.POST("/tables/:table/payment", h.HandlerPayTable)
	return router
}

func (h *Handler) HandlerVersion(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	v := version.GetVersion()
	if _, err := fmt.Fprintf(w, "Version %s", v.String()); err != nil {
		logging.GetLogger().Errorf("failed to send response, error: %v", err)
	}
}

type draftView struct {
	Table string          `json:"table,omitempty"`
	Lines []draft.Line    `json:"lines"`
	Note  string          `json:"note"`
	Total decimal.Decimal `json:"total"`
}

func (h *Handler) HandlerDraftGet(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	h.writeDraft(w)
}

func (h *Handler) HandlerDraftLogout(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	if err := h.Drafts.Logout(); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type lineRequest struct {
	DishID   string          `json:"dishId"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

func (h *Handler) HandlerDraftAdd(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req lineRequest
	if !readJSON(w, r, &req) {
		return
	}
	dish := models.Dish{ID: req.DishID, Name: req.Name, Price: req.Price}
	if err := h.Drafts.Add(dish, req.Quantity); err != nil {
		writeError(w, poserr.Wrap(err, poserr.Validation, poserr.InvalidLine, ""))
		return
	}
	h.writeDraft(w)
}

func (h *Handler) HandlerDraftQuantity(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req struct {
		Quantity int `json:"quantity"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	if err := h.Drafts.SetQuantity(ps.ByName("dish"), req.Quantity); err != nil {
		writeError(w, err)
		return
	}
	h.writeDraft(w)
}

func (h *Handler) HandlerDraftRemove(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	if err := h.Drafts.Remove(ps.ByName("dish")); err != nil {
		writeError(w, err)
		return
	}
	h.writeDraft(w)
}

func (h *Handler) HandlerDraftNote(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req struct {
		Note string `json:"note"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	if err := h.Drafts.SetNote(req.Note); err != nil {
		writeError(w, err)
		return
	}
	h.writeDraft(w)
}

func (h *Handler) HandlerDraftTable(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req struct {
		Table string `json:"table"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	if err := h.Drafts.Select(req.Table); err != nil {
		writeError(w, poserr.Wrap(err, poserr.Validation, poserr.MissingTable, ""))
		return
	}
	h.writeDraft(w)
}

// HandlerTable returns the table as last seen, or fresh from the backend
// with ?refresh=true.
func (h *Handler) HandlerTable(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	tableID := ps.ByName("table")
	if r.URL.Query().Get("refresh") == "true" {
		h.Tables.Forget(tableID)
	}
	table, err := h.Tables.Get(r.Context(), tableID)
	if err != nil {
		writeError(w, poserr.Wrap(err, poserr.HardFailure, poserr.TableUnavailable, "could not read the table"))
		return
	}
	writeJSON(w, http.StatusOK, table)
}

type orderRequest struct {
	Staff string                   `json:"staff"`
	Lines []models.OrderLineCreate `json:"lines"`
	Note  string                   `json:"note"`
}

// HandlerSubmitOrder submits the request lines, or the draft when none are given.
func (h *Handler) HandlerSubmitOrder(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	logger := logging.GetLogger().WithField("table", ps.ByName("table"))
	logger.Info("Start HandlerSubmitOrder")
	defer logger.Info("End HandlerSubmitOrder")

	var req orderRequest
	if !readJSON(w, r, &req) {
		return
	}
	fromDraft := len(req.Lines) == 0
	if fromDraft {
		lines, note, err := h.Drafts.Lines()
		if err != nil {
			writeError(w, err)
			return
		}
		req.Lines = lines
		if req.Note == "" {
			req.Note = note
		}
	}

	order, err := h.Orders.Submit(r.Context(), ordering.Input{
		StaffID:   req.Staff,
		TableID:   ps.ByName("table"),
		Lines:     req.Lines,
		Note:      req.Note,
		FromDraft: fromDraft,
		Progress:  func(s string) { logger.Debug(s) },
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

type paymentRequest struct {
	Staff    string   `json:"staff"`
	Orders   []string `json:"orders"`
	Note     string   `json:"note"`
	Customer *struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Document string `json:"document"`
		Phone    string `json:"phone"`
	} `json:"customer"`
}

type settlementView struct {
	Voucher  *models.Voucher       `json:"voucher"`
	Settled  []string              `json:"settled"`
	Dropped  []models.InvalidOrder `json:"dropped,omitempty"`
	Narrowed []models.InvalidOrder `json:"narrowed,omitempty"`
	Verified bool                  `json:"verified"`
}

func (h *Handler) HandlerPayTable(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	logger := logging.GetLogger().WithField("table", ps.ByName("table"))
	logger.Info("Start HandlerPayTable")
	defer logger.Info("End HandlerPayTable")

	var req paymentRequest
	if !readJSON(w, r, &req) {
		return
	}
	in := payment.Input{
		StaffID:  req.Staff,
		TableID:  ps.ByName("table"),
		OrderIDs: req.Orders,
		Note:     req.Note,
		Progress: func(s string) { logger.Debug(s) },
	}
	if c := req.Customer; c != nil {
		in.Customer = &payment.Customer{ID: c.ID, Name: c.Name, Document: c.Document, Phone: c.Phone}
	}

	s, err := h.Payments.Pay(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, &settlementView{
		Voucher:  s.Voucher,
		Settled:  s.Settled,
		Dropped:  s.Dropped,
		Narrowed: s.Narrowed,
		Verified: s.Verified,
	})
}

func (h *Handler) writeDraft(w http.ResponseWriter) {
	d, err := h.Drafts.Get()
	if err != nil {
		writeError(w, err)
		return
	}
	table, _, err := h.Drafts.LastTable()
	if err != nil {
		writeError(w, err)
		return
	}
	lines := d.Lines
	if lines == nil {
		lines = []draft.Line{}
	}
	writeJSON(w, http.StatusOK, &draftView{Table: table, Lines: lines, Note: d.Note, Total: d.Total()})
}
