package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/joao-fontenele/order-service/internal/domain"
)

// CredentialHeader carries the caller's credential id on mutating requests.
const CredentialHeader = "X-User-Id"

type orderService interface {
	Create(ctx context.Context, credentialID int64, lines []domain.LineRequest) (*OrderView, error)
	Get(ctx context.Context, id int64) (*OrderView, error)
	ListByIDs(ctx context.Context, ids []int64) ([]OrderView, error)
	ListByStatuses(ctx context.Context, statuses []string) ([]OrderView, error)
	Update(ctx context.Context, id, credentialID int64, in UpdateInput) (*OrderView, error)
	Delete(ctx context.Context, id, credentialID int64) error
}

type Handler struct {
	service orderService
	logger  *slog.Logger
}

func NewHandler(service orderService, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Routes mounts the order endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.HandleCreate)
	r.Get("/by-ids", h.HandleListByIDs)
	r.Get("/by-statuses", h.HandleListByStatuses)
	r.Get("/{id}", h.HandleGet)
	r.Put("/{id}", h.HandleUpdate)
	r.Delete("/{id}", h.HandleDelete)
}

type orderRequest struct {
	Status *string              `json:"status"`
	Items  []domain.LineRequest `json:"items"`
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	credentialID, ok := h.credential(w, r)
	if !ok {
		return
	}

	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_input", "invalid request body")
		return
	}

	order, err := h.service.Create(r.Context(), credentialID, req.Items)
	if err != nil {
		h.writeServiceError(w, err, "create order")
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/orders/%d", order.ID))
	h.writeJSON(w, http.StatusCreated, order)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}

	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "get order")
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleListByIDs(w http.ResponseWriter, r *http.Request) {
	var ids []int64
	for _, raw := range splitQuery(r, "ids") {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			h.writeError(w, http.StatusBadRequest, "invalid_input", fmt.Sprintf("invalid order id %q", raw))
			return
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		h.writeError(w, http.StatusBadRequest, "invalid_input", "ids query parameter is required")
		return
	}

	orders, err := h.service.ListByIDs(r.Context(), ids)
	if err != nil {
		h.writeServiceError(w, err, "list orders by ids")
		return
	}

	h.logger.Info("orders listed", "count", len(orders))
	h.writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) HandleListByStatuses(w http.ResponseWriter, r *http.Request) {
	statuses := splitQuery(r, "statuses")
	if len(statuses) == 0 {
		h.writeError(w, http.StatusBadRequest, "invalid_input", "statuses query parameter is required")
		return
	}

	orders, err := h.service.ListByStatuses(r.Context(), statuses)
	if err != nil {
		h.writeServiceError(w, err, "list orders by statuses")
		return
	}

	h.logger.Info("orders listed", "count", len(orders))
	h.writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	credentialID, ok := h.credential(w, r)
	if !ok {
		return
	}

	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_input", "invalid request body")
		return
	}

	order, err := h.service.Update(r.Context(), id, credentialID, UpdateInput{
		Status: req.Status,
		Lines:  req.Items,
	})
	if err != nil {
		h.writeServiceError(w, err, "update order")
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	credentialID, ok := h.credential(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id, credentialID); err != nil {
		h.writeServiceError(w, err, "delete order")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) orderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, http.StatusBadRequest, "invalid_input", "invalid order id")
		return 0, false
	}
	return id, true
}

func (h *Handler) credential(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.Header.Get(CredentialHeader)
	if raw == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_input", "missing "+CredentialHeader+" header")
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, http.StatusBadRequest, "invalid_input", "invalid "+CredentialHeader+" header")
		return 0, false
	}
	return id, true
}

// splitQuery accepts both repeated parameters and comma separated values.
func splitQuery(r *http.Request, name string) []string {
	var values []string
	for _, v := range r.URL.Query()[name] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				values = append(values, part)
			}
		}
	}
	return values
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		h.writeError(w, http.StatusNotFound, "order_not_found", err.Error())
	case errors.Is(err, domain.ErrOwnerNotFound):
		h.writeError(w, http.StatusNotFound, "user_not_found", err.Error())
	case errors.Is(err, domain.ErrItemNotFound):
		h.writeError(w, http.StatusNotFound, "item_not_found", err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		h.writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, domain.ErrInvalidStatus):
		h.writeError(w, http.StatusBadRequest, "invalid_status", err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		h.writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, domain.ErrForbidden):
		h.writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, domain.ErrDependencyUnavailable):
		h.logger.Warn("dependency failure", "op", op, "error", err)
		h.writeError(w, http.StatusBadGateway, "dependency_unavailable", "upstream service unavailable")
	default:
		h.logger.Error("failed to "+op, "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, map[string]string{"error": message, "code": code})
}
