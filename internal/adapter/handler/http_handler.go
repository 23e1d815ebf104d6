package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rl1809/warehouse-ledger/internal/core/domain"
	"github.com/rl1809/warehouse-ledger/internal/core/service"
)

type HTTPHandler struct {
	ledger   *service.InventoryLedger
	presence *service.PresenceProjector
	logger   zerolog.Logger
}

type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type AccessEventHTTPRequest struct {
	CompanyID  string    `json:"companyId"`
	PersonID   string    `json:"personId"`
	PersonName string    `json:"personName"`
	Action     string    `json:"action"`
	Timestamp  time.Time `json:"timestamp"`
	ID         string    `json:"id"`
}

type PriceHTTPResponse struct {
	Volume       decimal.Decimal `json:"volume"`
	MonthlyPrice decimal.Decimal `json:"monthlyPrice"`
}

func NewHTTPHandler(ledger *service.InventoryLedger, presence *service.PresenceProjector, logger zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{ledger: ledger, presence: presence, logger: logger}
}

// Routes registers the API on mux.
func (h *HTTPHandler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.HealthCheck)
	mux.HandleFunc("POST /api/inventory/events", h.ApplyInventoryEvent)
	mux.HandleFunc("GET /api/inventory/items", h.CurrentItems)
	mux.HandleFunc("GET /api/inventory/history", h.InventoryHistory)
	mux.HandleFunc("POST /api/access/events", h.RegisterAccessEvent)
	mux.HandleFunc("GET /api/access/present", h.CurrentlyPresent)
	mux.HandleFunc("GET /api/access/history", h.AccessHistory)
	mux.HandleFunc("GET /api/pricing", h.Pricing)
}

func (h *HTTPHandler) ApplyInventoryEvent(w http.ResponseWriter, r *http.Request) {
	var evt domain.InventoryEvent
	if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
		writeJSON(w, http.StatusBadRequest, APIResponse{Message: "invalid request body"})
		return
	}

	item, err := h.ledger.Apply(r.Context(), evt)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	message := "event applied"
	if item == nil {
		message = "item deleted"
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Message: message, Data: item})
}

func (h *HTTPHandler) CurrentItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, err := h.ledger.CurrentItems(r.Context(), q.Get("scope"), q.Get("unit"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Message: "ok", Data: items})
}

func (h *HTTPHandler) InventoryHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	events, err := h.ledger.History(r.Context(), q.Get("scope"), q.Get("unit"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Message: "ok", Data: events})
}

func (h *HTTPHandler) RegisterAccessEvent(w http.ResponseWriter, r *http.Request) {
	var req AccessEventHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, APIResponse{Message: "invalid request body"})
		return
	}

	var (
		rec *domain.PresenceRecord
		err error
	)
	if req.Timestamp.IsZero() && req.ID == "" {
		rec, err = h.presence.RegisterEvent(r.Context(), req.CompanyID, req.PersonID, req.PersonName, req.Action)
	} else {
		var action domain.AccessAction
		action, err = domain.ParseAccessAction(req.Action)
		if err == nil {
			rec, err = h.presence.RecordEvent(r.Context(), domain.AccessEvent{
				ID:         req.ID,
				CompanyID:  req.CompanyID,
				PersonID:   req.PersonID,
				PersonName: req.PersonName,
				Action:     action,
				Timestamp:  req.Timestamp,
			})
		}
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	message := "event recorded"
	if rec == nil {
		message = "person was not present"
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Message: message, Data: rec})
}

func (h *HTTPHandler) CurrentlyPresent(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var (
		records []domain.PresenceRecord
		err     error
	)
	if at := q.Get("at"); at != "" {
		ts, perr := time.Parse(time.RFC3339Nano, at)
		if perr != nil {
			writeJSON(w, http.StatusBadRequest, APIResponse{Message: "at must be an RFC 3339 timestamp"})
			return
		}
		records, err = h.presence.PresentAt(r.Context(), q.Get("scope"), ts)
	} else {
		records, err = h.presence.CurrentlyPresent(r.Context(), q.Get("scope"))
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Message: "ok", Data: records})
}

func (h *HTTPHandler) AccessHistory(w http.ResponseWriter, r *http.Request) {
	events, err := h.presence.History(r.Context(), r.URL.Query().Get("scope"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Message: "ok", Data: events})
}

func (h *HTTPHandler) Pricing(w http.ResponseWriter, r *http.Request) {
	volume, err := decimal.NewFromString(r.URL.Query().Get("volume"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, APIResponse{Message: "volume must be a number"})
		return
	}
	price, err := domain.MonthlyPrice(domain.DefaultPriceTiers, volume)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, APIResponse{Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Message: "ok",
		Data:    PriceHTTPResponse{Volume: volume, MonthlyPrice: price},
	})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := httpStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeJSON(w, status, APIResponse{Message: message})
}

func httpStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrItemNotFound):
		return http.StatusNotFound, "item not found"
	case errors.Is(err, service.ErrDuplicateItem):
		return http.StatusConflict, "item already exists"
	case errors.Is(err, service.ErrDuplicateEvent):
		return http.StatusConflict, "event already recorded"
	case errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrInvalidPerson),
		errors.Is(err, service.ErrInvalidAction),
		errors.Is(err, service.ErrInvalidEvent),
		errors.Is(err, service.ErrScopeRequired):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "event store unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout, "request cancelled"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
