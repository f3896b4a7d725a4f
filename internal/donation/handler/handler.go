package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"bloodlink/internal/donation/models"
	"bloodlink/internal/donation/service"
	id "bloodlink/pkg/domain"
	dErrors "bloodlink/pkg/domain-errors"
	"bloodlink/pkg/platform/httputil"
	"bloodlink/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

// Service defines the donation request operations exposed over HTTP.
type Service interface {
	Create(ctx context.Context, cmd service.CreateCommand) (*models.DonationRequest, error)
	Get(ctx context.Context, actorID id.UserID, requestID id.DonationRequestID) (*models.DonationRequest, error)
	Accept(ctx context.Context, donorID id.UserID, requestID id.DonationRequestID) (*models.DonationRequest, error)
	ChangeStatus(ctx context.Context, cmd service.ChangeStatusCommand) (*models.DonationRequest, error)
	Cancel(ctx context.Context, actorID id.UserID, requestID id.DonationRequestID, reason string) (*models.DonationRequest, error)
	SuggestDonor(ctx context.Context, volunteerID id.UserID, requestID id.DonationRequestID, donorID id.UserID, note string) error
	SoftDelete(ctx context.Context, actorID id.UserID, requestID id.DonationRequestID, reason string) error
}

// Handler wires donation request endpoints to the lifecycle service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts the donation request routes. Authentication middleware is
// expected on r.
func (h *Handler) Register(r chi.Router) {
	r.Route("/donation-requests", func(r chi.Router) {
		r.Post("/", h.HandleCreate)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.HandleGet)
			r.Delete("/", h.HandleDelete)
			r.Post("/accept", h.HandleAccept)
			r.Post("/status", h.HandleChangeStatus)
			r.Post("/cancel", h.HandleCancel)
			r.Post("/suggestions", h.HandleSuggest)
		})
	})
}

// HandleCreate handles POST /donation-requests.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	userID, ok := h.requireUser(w, ctx)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[CreateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	created, err := h.service.Create(ctx, service.CreateCommand{
		RequesterID:   userID,
		Recipient:     req.ParsedRecipient(),
		BloodGroup:    req.BloodGroup,
		DonationDate:  req.ParsedDate(),
		DonationTime:  req.DonationTime,
		Message:       req.Message,
		Urgency:       req.Urgency,
		UnitsRequired: req.UnitsRequired,
	})
	if err != nil {
		h.writeServiceError(w, ctx, "create donation request", err)
		return
	}

	h.logger.InfoContext(ctx, "donation request created",
		"request_id", requestID,
		"user_id", userID.String(),
		"donation_request_id", created.ID.String(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, FromRequest(created))
}

// HandleGet handles GET /donation-requests/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, ctx)
	if !ok {
		return
	}
	requestID, ok := h.requestIDParam(w, r)
	if !ok {
		return
	}

	found, err := h.service.Get(ctx, userID, requestID)
	if err != nil {
		h.writeServiceError(w, ctx, "get donation request", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromRequest(found))
}

// HandleAccept handles POST /donation-requests/{id}/accept.
func (h *Handler) HandleAccept(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, ctx)
	if !ok {
		return
	}
	requestID, ok := h.requestIDParam(w, r)
	if !ok {
		return
	}

	accepted, err := h.service.Accept(ctx, userID, requestID)
	if err != nil {
		h.writeServiceError(w, ctx, "accept donation request", err)
		return
	}

	h.logger.InfoContext(ctx, "donation request accepted",
		"request_id", requestcontext.RequestID(ctx),
		"user_id", userID.String(),
		"donation_request_id", requestID.String(),
	)
	httputil.WriteJSON(w, http.StatusOK, FromRequest(accepted))
}

// HandleChangeStatus handles POST /donation-requests/{id}/status.
func (h *Handler) HandleChangeStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, ctx)
	if !ok {
		return
	}
	requestID, ok := h.requestIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ChangeStatusRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	updated, err := h.service.ChangeStatus(ctx, service.ChangeStatusCommand{
		ActorID:   userID,
		RequestID: requestID,
		Status:    req.ParsedStatus(),
		Note:      req.Note,
		DonorID:   req.ParsedDonorID(),
	})
	if err != nil {
		h.writeServiceError(w, ctx, "change donation request status", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromRequest(updated))
}

// HandleCancel handles POST /donation-requests/{id}/cancel.
func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, ctx)
	if !ok {
		return
	}
	requestID, ok := h.requestIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ReasonRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	canceled, err := h.service.Cancel(ctx, userID, requestID, req.Reason)
	if err != nil {
		h.writeServiceError(w, ctx, "cancel donation request", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromRequest(canceled))
}

// HandleSuggest handles POST /donation-requests/{id}/suggestions.
func (h *Handler) HandleSuggest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, ctx)
	if !ok {
		return
	}
	requestID, ok := h.requestIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[SuggestRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	if err := h.service.SuggestDonor(ctx, userID, requestID, req.ParsedDonorID(), req.Note); err != nil {
		h.writeServiceError(w, ctx, "suggest donor", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDelete handles DELETE /donation-requests/{id}.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, ctx)
	if !ok {
		return
	}
	requestID, ok := h.requestIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ReasonRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	if err := h.service.SoftDelete(ctx, userID, requestID, req.Reason); err != nil {
		h.writeServiceError(w, ctx, "delete donation request", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) requireUser(w http.ResponseWriter, ctx context.Context) (id.UserID, bool) {
	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return id.UserID{}, false
	}
	return userID, true
}

func (h *Handler) requestIDParam(w http.ResponseWriter, r *http.Request) (id.DonationRequestID, bool) {
	requestID, err := id.ParseDonationRequestID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.DonationRequestID{}, false
	}
	return requestID, true
}

// writeServiceError logs at a level matching the error class and writes it.
func (h *Handler) writeServiceError(w http.ResponseWriter, ctx context.Context, op string, err error) {
	attrs := []any{
		"request_id", requestcontext.RequestID(ctx),
		"user_id", requestcontext.UserID(ctx).String(),
		"operation", op,
		"error", err,
	}
	if code, ok := dErrors.CodeOf(err); !ok || code == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "donation request operation failed", attrs...)
	} else {
		h.logger.WarnContext(ctx, "donation request operation rejected", attrs...)
	}
	httputil.WriteError(w, err)
}
