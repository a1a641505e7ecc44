package analysis

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/viewportly/pkg/logger"
	"github.com/dmitrymomot/viewportly/svc/billing"
)

// Handler serves the analysis endpoint.
type Handler struct {
	svc *Service
	log *slog.Logger
}

// NewHandler creates a Handler for svc.
func NewHandler(svc *Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

// Routes requires an authenticated user on every route.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(billing.RequireUser)
	r.Post("/", h.create)
	return r
}

type analyzeRequest struct {
	URL string `json:"url"`
}

// limitResponse extends the error body with the quota state.
type limitResponse struct {
	billing.ErrorResponse
	Used   int64  `json:"used"`
	Limit  int64  `json:"limit"`
	Period string `json:"period"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	userID, _ := billing.UserIDFromContext(r.Context())

	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		billing.WriteError(w, http.StatusBadRequest, "invalid_request", "body must be JSON with a url field")
		return
	}

	rep, err := h.svc.Analyze(r.Context(), userID, req.URL)
	var limitErr *billing.LimitError
	switch {
	case err == nil:
		billing.WriteJSON(w, http.StatusOK, rep)
	case errors.As(err, &limitErr):
		billing.WriteJSON(w, http.StatusPaymentRequired, limitResponse{
			ErrorResponse: billing.ErrorResponse{Error: "usage_limit_exceeded", Message: "monthly analysis limit reached"},
			Used:          limitErr.Used,
			Limit:         limitErr.Limit,
			Period:        limitErr.Period,
		})
	case errors.Is(err, ErrInvalidURL):
		billing.WriteError(w, http.StatusBadRequest, "invalid_url", err.Error())
	case errors.Is(err, billing.ErrUserNotFound):
		billing.WriteError(w, http.StatusNotFound, "user_not_found", "user not found")
	case errors.Is(err, ErrFetchFailed), errors.Is(err, ErrNotHTML), errors.Is(err, ErrParseFailure):
		billing.WriteError(w, http.StatusUnprocessableEntity, "analysis_failed", err.Error())
	default:
		h.log.ErrorContext(r.Context(), "analysis failed", logger.UserID(userID), logger.Error(err))
		billing.WriteError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}
