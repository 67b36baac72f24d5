package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opentender-io/opentender/core"
	"github.com/opentender-io/opentender/engine"
	"github.com/opentender-io/opentender/receipt"
	"github.com/opentender-io/opentender/tenderapi"
)

// Handler exposes the round manager's operations. The receipt signer is
// optional; without one the receipt endpoint answers 404.
type Handler struct {
	manager *engine.Manager
	signer  *receipt.Signer
}

// NewHandler creates the API handler.
func NewHandler(manager *engine.Manager, signer *receipt.Signer) *Handler {
	return &Handler{manager: manager, signer: signer}
}

// RegisterRoutes mounts the tender API under /rounds.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/rounds", func(r chi.Router) {
		r.Post("/", h.handleCreateRound)
		r.Get("/", h.handleListRounds)
		r.Route("/{roundID}", func(r chi.Router) {
			r.Get("/", h.handleGetRound)
			r.Get("/events", h.handleGetEvents)
			r.Get("/bids/{actor}", h.handleGetBid)
			r.Get("/receipt", h.handleGetReceipt)
			r.Post("/activate", h.handleActivate)
			r.Post("/bids", h.handleSubmitBid)
			r.Post("/bids/withdraw", h.handleWithdrawBid)
			r.Post("/parameters", h.handleUpdateParameters)
			r.Post("/select-winner", h.handleSelectWinner)
			r.Post("/cancel", h.handleCancel)
			r.Post("/retry-sweep", h.handleRetrySweep)
			r.Post("/halt", h.handleHalt)
			r.Post("/pause", h.handlePause)
			r.Post("/emergency-withdraw", h.handleEmergencyWithdraw)
		})
	})
}

func (h *Handler) handleCreateRound(w http.ResponseWriter, r *http.Request) {
	var req tenderapi.CreateRoundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDecodeError(w, err)
		return
	}

	round, err := h.manager.CreateRound(req.Actor, req.Params())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tenderapi.RoundViewFromCore(round))
}

func (h *Handler) handleListRounds(w http.ResponseWriter, _ *http.Request) {
	rounds := h.manager.List()
	views := make([]tenderapi.RoundView, 0, len(rounds))
	for _, round := range rounds {
		views = append(views, tenderapi.RoundViewFromCore(round))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) handleGetRound(w http.ResponseWriter, r *http.Request) {
	round, ok := h.lookupRound(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, tenderapi.RoundViewFromCore(round))
}

func (h *Handler) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	round, ok := h.lookupRound(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, tenderapi.EventViewsFromCore(round.Events()))
}

func (h *Handler) handleGetBid(w http.ResponseWriter, r *http.Request) {
	round, ok := h.lookupRound(w, r)
	if !ok {
		return
	}
	bid, ok := round.BidOf(chi.URLParam(r, "actor"))
	if !ok {
		writeJSON(w, http.StatusNotFound, tenderapi.ErrorResponse{Error: "no such bid", Kind: "not_found"})
		return
	}
	writeJSON(w, http.StatusOK, tenderapi.BidViewFromCore(bid))
}

func (h *Handler) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	if h.signer == nil {
		writeJSON(w, http.StatusNotFound, tenderapi.ErrorResponse{Error: "receipts not enabled", Kind: "not_found"})
		return
	}
	round, ok := h.lookupRound(w, r)
	if !ok {
		return
	}

	rc, err := receipt.Build(round, time.Now().UTC())
	if err != nil {
		writeError(w, err)
		return
	}
	signed, err := h.signer.Sign(rc)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tenderapi.ReceiptResponse{RoundID: round.ID(), Receipt: signed})
}

func (h *Handler) handleActivate(w http.ResponseWriter, r *http.Request) {
	round, ok := h.lookupRound(w, r)
	if !ok {
		return
	}
	var req tenderapi.ActorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if err := round.Activate(req.Actor); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tenderapi.RoundViewFromCore(round))
}

func (h *Handler) handleSubmitBid(w http.ResponseWriter, r *http.Request) {
	round, ok := h.lookupRound(w, r)
	if !ok {
		return
	}
	var req tenderapi.SubmitBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if err := round.SubmitBid(r.Context(), req.Actor, req.Amount, req.ContentRef, req.Collateral); err != nil {
		writeError(w, err)
		return
	}
	bid, _ := round.BidOf(req.Actor)
	writeJSON(w, http.StatusCreated, tenderapi.BidViewFromCore(bid))
}

func (h *Handler) handleWithdrawBid(w http.ResponseWriter, r *http.Request) {
	round, ok := h.lookupRound(w, r)
	if !ok {
		return
	}
	var req tenderapi.ActorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if err := round.WithdrawBid(r.Context(), req.Actor); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tenderapi.RoundViewFromCore(round))
}

func (h *Handler) handleUpdateParameters(w http.ResponseWriter, r *http.Request) {
	round, ok := h.lookupRound(w, r)
	if !ok {
		return
	}
	var req tenderapi.UpdateParametersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if err := round.UpdateParameters(req.Actor, req.EndTime, req.MinimumBid); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tenderapi.RoundViewFromCore(round))
}

func (h *Handler) handleSelectWinner(w http.ResponseWriter, r *http.Request) {
	round, ok := h.lookupRound(w, r)
	if !ok {
		return
	}
	var req tenderapi.ActorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if err := round.SelectWinner(r.Context(), req.Actor); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tenderapi.RoundViewFromCore(round))
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	round, ok := h.lookupRound(w, r)
	if !ok {
		return
	}
	var req tenderapi.CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if err := round.Cancel(r.Context(), req.Actor, req.Reason); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tenderapi.RoundViewFromCore(round))
}

func (h *Handler) handleRetrySweep(w http.ResponseWriter, r *http.Request) {
	round, ok := h.lookupRound(w, r)
	if !ok {
		return
	}
	var req tenderapi.ActorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if err := round.RetrySweep(r.Context(), req.Actor); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tenderapi.RoundViewFromCore(round))
}

func (h *Handler) handleHalt(w http.ResponseWriter, r *http.Request) {
	round, ok := h.lookupRound(w, r)
	if !ok {
		return
	}
	var req tenderapi.HaltRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if err := round.ToggleHalt(req.Actor, req.Enable, req.Reason); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tenderapi.RoundViewFromCore(round))
}

func (h *Handler) handlePause(w http.ResponseWriter, r *http.Request) {
	round, ok := h.lookupRound(w, r)
	if !ok {
		return
	}
	var req tenderapi.PauseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDecodeError(w, err)
		return
	}
	var err error
	if req.Pause {
		err = round.Pause(req.Actor, req.Reason)
	} else {
		err = round.Resume(req.Actor, req.Reason)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tenderapi.RoundViewFromCore(round))
}

func (h *Handler) handleEmergencyWithdraw(w http.ResponseWriter, r *http.Request) {
	round, ok := h.lookupRound(w, r)
	if !ok {
		return
	}
	var req tenderapi.EmergencyWithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if err := round.EmergencyWithdraw(r.Context(), req.Actor, req.To); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tenderapi.RoundViewFromCore(round))
}

func (h *Handler) lookupRound(w http.ResponseWriter, r *http.Request) (*core.TenderRound, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "roundID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, tenderapi.ErrorResponse{Error: "invalid round id", Kind: "bad_request"})
		return nil, false
	}
	round, ok := h.manager.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, tenderapi.ErrorResponse{Error: "no such round", Kind: "not_found"})
		return nil, false
	}
	return round, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Errorw("encode response", "err", err)
	}
}

func writeDecodeError(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, tenderapi.ErrorResponse{Error: err.Error(), Kind: "bad_request"})
}

// writeError maps engine error kinds onto HTTP statuses and a stable kind
// string clients can branch on.
func writeError(w http.ResponseWriter, err error) {
	status, kind := classify(err)
	writeJSON(w, status, tenderapi.ErrorResponse{Error: err.Error(), Kind: kind})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrUnauthorized):
		return http.StatusForbidden, "unauthorized"
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidMinimumBid),
		errors.Is(err, core.ErrInvalidWeights),
		errors.Is(err, core.ErrInvalidContentRef),
		errors.Is(err, core.ErrInvalidDuration),
		errors.Is(err, core.ErrInvalidStake),
		errors.Is(err, core.ErrWrongCollateral),
		errors.Is(err, core.ErrInvalidIdentity),
		errors.Is(err, core.ErrInvalidReputation),
		errors.Is(err, core.ErrArithmeticBound):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, core.ErrScanBound):
		return http.StatusConflict, "resource_bound"
	case errors.Is(err, core.ErrHalted):
		return http.StatusConflict, "halted"
	case errors.Is(err, core.ErrPaused):
		return http.StatusConflict, "paused"
	case errors.Is(err, core.ErrDuplicateBid):
		return http.StatusConflict, "duplicate_bid"
	case errors.Is(err, core.ErrOperationInFlight):
		return http.StatusConflict, "operation_in_flight"
	case errors.Is(err, core.ErrTransferFailed):
		return http.StatusBadGateway, "transfer_failed"
	case errors.Is(err, core.ErrWrongPhase),
		errors.Is(err, core.ErrOutsideWindow),
		errors.Is(err, core.ErrAlreadyInitialized),
		errors.Is(err, core.ErrNotInitialized),
		errors.Is(err, core.ErrUnchangedParams),
		errors.Is(err, core.ErrWinnerSet),
		errors.Is(err, core.ErrNotHalted),
		errors.Is(err, core.ErrNoActiveBid),
		errors.Is(err, core.ErrNoValidWinner),
		errors.Is(err, core.ErrInsufficientBidders),
		errors.Is(err, core.ErrInsufficientBalance),
		errors.Is(err, core.ErrNothingToDo):
		return http.StatusConflict, "state"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
