package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/erazemk/darilo/internal/coordinator"
	"github.com/erazemk/darilo/internal/model"
	"github.com/erazemk/darilo/internal/store"
)

// RequestsHandler handles shelter request endpoints.
type RequestsHandler struct {
	Store store.Entities
	Coord *coordinator.Coordinator
}

type createShelterRequestRequest struct {
	FoodType string `json:"food_type" validate:"required,max=100"`
	Quantity int    `json:"quantity" validate:"required,gt=0"`
}

type promiseRequest struct {
	DonationID string `json:"donationId" validate:"required"`
}

// volunteerRef names a volunteer's claim by volunteer and donation. A
// volunteer acting on their own claim may omit VolunteerID.
type volunteerRef struct {
	VolunteerID int64  `json:"volunteerId" validate:"gte=0"`
	DonationID  string `json:"donationId" validate:"required"`
}

type requestDetail struct {
	Request *model.ShelterRequest `json:"request"`
	Claims  []model.Claim         `json:"claims"`
}

// Create handles POST /api/shelter-requests.
func (h *RequestsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createShelterRequestRequest
	if !bind(w, r, &req) {
		return
	}

	sr, err := h.Coord.CreateShelterRequest(r.Context(), actorFrom(r), model.ShelterRequest{
		FoodType: req.FoodType,
		Quantity: req.Quantity,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	jsonResponse(w, http.StatusCreated, sr)
}

// List handles GET /api/shelter-requests. Shelters see their own requests,
// filtered by ?status=; everyone else sees the requests still in need.
func (h *RequestsHandler) List(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	var f store.RequestFilter
	switch {
	case actor.Is(model.RoleShelter):
		f.ShelterID = actor.ID
		f.Status = model.RequestStatus(r.URL.Query().Get("status"))
		if f.Status != "" && !f.Status.Valid() {
			jsonError(w, http.StatusBadRequest, "invalid status")
			return
		}
	case actor.Is(model.RoleAdmin):
		f.Status = model.RequestStatus(r.URL.Query().Get("status"))
	default:
		f.Status = model.RequestInNeed
	}

	requests, err := h.Store.FindShelterRequests(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	if requests == nil {
		requests = []model.ShelterRequest{}
	}
	jsonResponse(w, http.StatusOK, requests)
}

// Get handles GET /api/shelter-requests/{id}.
func (h *RequestsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sr, err := h.Store.GetShelterRequest(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if sr == nil {
		jsonError(w, http.StatusNotFound, "shelter request not found")
		return
	}

	claims, err := h.Store.FindClaims(r.Context(), store.ClaimFilter{ShelterRequestID: id})
	if err != nil {
		writeError(w, err)
		return
	}
	if claims == nil {
		claims = []model.Claim{}
	}
	jsonResponse(w, http.StatusOK, requestDetail{Request: sr, Claims: claims})
}

// Delete handles DELETE /api/shelter-requests/{id}.
func (h *RequestsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Coord.DeleteShelterRequest(r.Context(), actorFrom(r), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"message": "shelter request deleted"})
}

// Cancel handles POST /api/shelter-requests/{id}/cancel.
func (h *RequestsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	sr, err := h.Coord.CancelShelterRequest(r.Context(), actorFrom(r), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, sr)
}

// Complete handles POST /api/shelter-requests/{id}/complete.
func (h *RequestsHandler) Complete(w http.ResponseWriter, r *http.Request) {
	sr, err := h.Coord.CompleteShelterRequest(r.Context(), actorFrom(r), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, sr)
}

// Promise handles POST /api/shelter-requests/{id}/volunteer. The caller
// promises their claim on the given donation to the request.
func (h *RequestsHandler) Promise(w http.ResponseWriter, r *http.Request) {
	var req promiseRequest
	if !bind(w, r, &req) {
		return
	}

	actor := actorFrom(r)
	cl, err := h.activeClaim(r.Context(), actor.ID, req.DonationID)
	if err != nil {
		writeError(w, err)
		return
	}

	cl, err = h.Coord.Promise(r.Context(), actor, cl.ID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, cl)
}

// CancelPromise handles DELETE /api/shelter-requests/{id}/volunteer.
func (h *RequestsHandler) CancelPromise(w http.ResponseWriter, r *http.Request) {
	cl, ok := h.linkedClaim(w, r)
	if !ok {
		return
	}
	if err := h.Coord.CancelPromise(r.Context(), actorFrom(r), cl.ID); err != nil {
		writeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"message": "promise cancelled"})
}

// FulfillVolunteer handles PATCH /api/shelter-requests/{id}/fulfill-volunteer.
func (h *RequestsHandler) FulfillVolunteer(w http.ResponseWriter, r *http.Request) {
	cl, ok := h.linkedClaim(w, r)
	if !ok {
		return
	}
	cl, err := h.Coord.Fulfill(r.Context(), actorFrom(r), cl.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, cl)
}

func (h *RequestsHandler) activeClaim(ctx context.Context, volunteerID int64, donationID string) (*model.Claim, error) {
	cl, err := store.ActiveClaim(ctx, h.Store, volunteerID, donationID)
	if err != nil {
		return nil, err
	}
	if cl == nil {
		return nil, fmt.Errorf("%w: volunteer %d has no active claim on donation %s", model.ErrNotFound, volunteerID, donationID)
	}
	return cl, nil
}

// linkedClaim resolves the body's volunteer and donation to a claim promised
// to the request in the path. On failure the error is already written.
func (h *RequestsHandler) linkedClaim(w http.ResponseWriter, r *http.Request) (*model.Claim, bool) {
	var req volunteerRef
	if !bind(w, r, &req) {
		return nil, false
	}
	if req.VolunteerID == 0 {
		req.VolunteerID = actorFrom(r).ID
	}

	requestID := r.PathValue("id")
	cl, err := h.activeClaim(r.Context(), req.VolunteerID, req.DonationID)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	if l, ok := cl.Shelter(); !ok || l.RequestID != requestID {
		writeError(w, fmt.Errorf("%w: volunteer %d is not linked to shelter request %s", model.ErrNotFound, req.VolunteerID, requestID))
		return nil, false
	}
	return cl, true
}
