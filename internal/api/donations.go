package api

import (
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/erazemk/darilo/internal/coordinator"
	"github.com/erazemk/darilo/internal/model"
	"github.com/erazemk/darilo/internal/store"
)

// DonationsHandler handles donation endpoints.
type DonationsHandler struct {
	Store store.Entities
	Coord *coordinator.Coordinator
}

type createDonationRequest struct {
	FoodType      string    `json:"food_type" validate:"required,max=100"`
	Description   string    `json:"description" validate:"max=2000"`
	Quantity      int       `json:"quantity" validate:"required,gt=0"`
	PickupAddress string    `json:"pickup_address" validate:"required,max=500"`
	ExpiresAt     time.Time `json:"expires_at" validate:"required"`
	PoolSize      int       `json:"volunteer_pool_size" validate:"required,gt=0,lte=100"`
}

type updateDonationRequest struct {
	FoodType      *string    `json:"food_type" validate:"omitnil,min=1,max=100"`
	Description   *string    `json:"description" validate:"omitnil,max=2000"`
	Quantity      *int       `json:"quantity" validate:"omitnil,gt=0"`
	PickupAddress *string    `json:"pickup_address" validate:"omitnil,min=1,max=500"`
	ExpiresAt     *time.Time `json:"expires_at"`
	PoolSize      *int       `json:"volunteer_pool_size" validate:"omitnil,gt=0,lte=100"`
}

type updateStatusRequest struct {
	Status model.DonationStatus `json:"status" validate:"required"`
}

type donationDetail struct {
	Donation *model.Donation `json:"donation"`
	Claims   []model.Claim   `json:"claims"`
}

// Create handles POST /api/donations.
func (h *DonationsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createDonationRequest
	if !bind(w, r, &req) {
		return
	}

	d, err := h.Coord.CreateDonation(r.Context(), actorFrom(r), model.Donation{
		FoodType:      req.FoodType,
		Description:   req.Description,
		Quantity:      req.Quantity,
		PickupAddress: req.PickupAddress,
		ExpiresAt:     req.ExpiresAt,
		PoolSize:      req.PoolSize,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	jsonResponse(w, http.StatusCreated, d)
}

// List handles GET /api/donations. Donors see their own donations, admins
// see all of them. ?status= filters by status.
func (h *DonationsHandler) List(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	f := store.DonationFilter{Status: model.DonationStatus(r.URL.Query().Get("status"))}
	if f.Status != "" && !f.Status.Valid() {
		jsonError(w, http.StatusBadRequest, "invalid status")
		return
	}
	if !actor.Is(model.RoleAdmin) {
		f.DonorID = actor.ID
	}

	donations, err := h.Store.FindDonations(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	if donations == nil {
		donations = []model.Donation{}
	}
	jsonResponse(w, http.StatusOK, donations)
}

// Available handles GET /api/donations/available: unexpired donations a
// volunteer could still join, excluding those the caller already claimed.
func (h *DonationsHandler) Available(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	now := time.Now()

	donations, err := h.Store.FindDonations(r.Context(), store.DonationFilter{Status: model.DonationAvailable})
	if err != nil {
		writeError(w, err)
		return
	}
	var out []model.Donation
	for _, d := range donations {
		if !d.HasCapacity() || !d.ExpiresAt.After(now) {
			continue
		}
		mine, err := store.ActiveClaim(r.Context(), h.Store, actor.ID, d.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		if mine == nil {
			out = append(out, d)
		}
	}
	slices.SortFunc(out, func(a, b model.Donation) int {
		return a.ExpiresAt.Compare(b.ExpiresAt)
	})
	if out == nil {
		out = []model.Donation{}
	}
	jsonResponse(w, http.StatusOK, out)
}

// Get handles GET /api/donations/{id}.
func (h *DonationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	d, err := h.Store.GetDonation(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if d == nil {
		jsonError(w, http.StatusNotFound, "donation not found")
		return
	}

	claims, err := h.Store.FindClaims(r.Context(), store.ClaimFilter{DonationID: id})
	if err != nil {
		writeError(w, err)
		return
	}
	if claims == nil {
		claims = []model.Claim{}
	}
	jsonResponse(w, http.StatusOK, donationDetail{Donation: d, Claims: claims})
}

// Delete handles DELETE /api/donations/{id}. Donations that were never
// claimed are removed; the others are closed so their history stays.
func (h *DonationsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	hard, err := h.Coord.DeleteDonation(r.Context(), actorFrom(r), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	msg := "donation closed"
	if hard {
		msg = "donation deleted"
	}
	jsonResponse(w, http.StatusOK, map[string]string{"message": msg})
}

// Update handles PUT /api/donations/{id}. Omitted fields are left unchanged.
func (h *DonationsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateDonationRequest
	if !bind(w, r, &req) {
		return
	}

	d, err := h.Coord.UpdateDonation(r.Context(), actorFrom(r), r.PathValue("id"), coordinator.DonationUpdate{
		FoodType:      req.FoodType,
		Description:   req.Description,
		Quantity:      req.Quantity,
		PickupAddress: req.PickupAddress,
		ExpiresAt:     req.ExpiresAt,
		PoolSize:      req.PoolSize,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, d)
}

// UpdateStatus handles PUT /api/donations/{id}/status.
func (h *DonationsHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if !bind(w, r, &req) {
		return
	}
	if !req.Status.Valid() {
		jsonError(w, http.StatusBadRequest, "invalid status")
		return
	}

	d, err := h.Coord.UpdateDonationStatus(r.Context(), actorFrom(r), r.PathValue("id"), req.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, d)
}

// Confirm handles POST /api/donations/{id}/confirm.
func (h *DonationsHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	d, err := h.Coord.ConfirmDelivery(r.Context(), actorFrom(r), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, d)
}

// RemoveVolunteer handles
// DELETE /api/donor/donations/{id}/remove-volunteer/{volunteerId}.
func (h *DonationsHandler) RemoveVolunteer(w http.ResponseWriter, r *http.Request) {
	donationID := r.PathValue("id")
	volunteerID, err := strconv.ParseInt(r.PathValue("volunteerId"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid volunteer id")
		return
	}

	cl, err := store.ActiveClaim(r.Context(), h.Store, volunteerID, donationID)
	if err != nil {
		writeError(w, err)
		return
	}
	if cl == nil {
		writeError(w, fmt.Errorf("%w: volunteer %d has no active claim on donation %s", model.ErrNotFound, volunteerID, donationID))
		return
	}

	if err := h.Coord.RemoveVolunteer(r.Context(), actorFrom(r), donationID, cl.ID); err != nil {
		writeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"message": "volunteer removed"})
}
