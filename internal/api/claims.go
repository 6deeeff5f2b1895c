package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/erazemk/darilo/internal/coordinator"
	"github.com/erazemk/darilo/internal/model"
	"github.com/erazemk/darilo/internal/store"
)

// ClaimsHandler handles the volunteer's claim endpoints.
type ClaimsHandler struct {
	Store store.Entities
	Coord *coordinator.Coordinator
}

type claimRequest struct {
	DonationID string `json:"donationId" validate:"required"`
}

// Claim handles POST /api/claim.
func (h *ClaimsHandler) Claim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if !bind(w, r, &req) {
		return
	}

	cl, err := h.Coord.Claim(r.Context(), actorFrom(r), req.DonationID)
	if err != nil {
		slog.Warn("claim rejected", "donation", req.DonationID, "code", model.ErrorCode(err))
		writeError(w, err)
		return
	}
	jsonResponse(w, http.StatusCreated, cl)
}

// Cancel handles DELETE /api/claim/{claimId}.
func (h *ClaimsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.Coord.CancelClaim(r.Context(), actorFrom(r), r.PathValue("claimId")); err != nil {
		writeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"message": "claim cancelled"})
}

// List handles GET /api/claims: the caller's claims, cancelled ones included
// unless ?active=true.
func (h *ClaimsHandler) List(w http.ResponseWriter, r *http.Request) {
	activeOnly, _ := strconv.ParseBool(r.URL.Query().Get("active"))
	claims, err := h.Store.FindClaims(r.Context(), store.ClaimFilter{
		VolunteerID: actorFrom(r).ID,
		ActiveOnly:  activeOnly,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if claims == nil {
		claims = []model.Claim{}
	}
	jsonResponse(w, http.StatusOK, claims)
}
