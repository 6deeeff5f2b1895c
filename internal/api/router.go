package api

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/erazemk/darilo/internal/coordinator"
	"github.com/erazemk/darilo/internal/model"
	"github.com/erazemk/darilo/internal/notify"
	"github.com/erazemk/darilo/internal/store"
)

// Deps are the collaborators the router wires into its handlers.
type Deps struct {
	DB          *sql.DB
	Store       store.Entities
	Coordinator *coordinator.Coordinator
	Hub         *notify.Hub
	JWTSecret   string
	TokenTTL    time.Duration
	LoginRate   rate.Limit
	LoginBurst  int
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(d Deps) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{
		DB:        d.DB,
		JWTSecret: d.JWTSecret,
		TokenTTL:  d.TokenTTL,
		limiter:   newLoginLimiter(d.LoginRate, d.LoginBurst),
	}
	usersHandler := &UsersHandler{DB: d.DB}
	donationsHandler := &DonationsHandler{Store: d.Store, Coord: d.Coordinator}
	claimsHandler := &ClaimsHandler{Store: d.Store, Coord: d.Coordinator}
	requestsHandler := &RequestsHandler{Store: d.Store, Coord: d.Coordinator}
	wsHandler := &WSHandler{Hub: d.Hub}

	authMW := AuthMiddleware(d.JWTSecret, d.DB)
	requireAdmin := RequireRole(model.RoleAdmin)
	// Admins pass the moderation routes but post, claim and promise nothing.
	requireDonor := RequireRole(model.RoleDonor, model.RoleAdmin)
	requireVolunteer := RequireRole(model.RoleVolunteer, model.RoleAdmin)
	requireShelter := RequireRole(model.RoleShelter, model.RoleAdmin)
	donorOnly := RequireRole(model.RoleDonor)
	volunteerOnly := RequireRole(model.RoleVolunteer)
	shelterOnly := RequireRole(model.RoleShelter)

	// Public: login and metrics.
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Authenticated routes.
	mux.Handle("PUT /api/auth/password", authMW(http.HandlerFunc(authHandler.ChangePassword)))
	mux.Handle("POST /api/auth/logout", authMW(http.HandlerFunc(authHandler.Logout)))

	// Users (admin only).
	mux.Handle("GET /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.List))))
	mux.Handle("POST /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.Create))))
	mux.Handle("GET /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Get))))
	mux.Handle("PUT /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Update))))
	mux.Handle("PUT /api/users/{id}/password", authMW(requireAdmin(http.HandlerFunc(usersHandler.ResetPassword))))
	mux.Handle("DELETE /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Delete))))

	// Donations: posted and managed by donors, read by everyone. Status
	// updates and confirmations are authorized per donation.
	mux.Handle("POST /api/donations", authMW(donorOnly(http.HandlerFunc(donationsHandler.Create))))
	mux.Handle("GET /api/donations", authMW(requireDonor(http.HandlerFunc(donationsHandler.List))))
	mux.Handle("GET /api/donations/available", authMW(requireVolunteer(http.HandlerFunc(donationsHandler.Available))))
	mux.Handle("GET /api/donations/{id}", authMW(http.HandlerFunc(donationsHandler.Get)))
	mux.Handle("PUT /api/donations/{id}", authMW(requireDonor(http.HandlerFunc(donationsHandler.Update))))
	mux.Handle("DELETE /api/donations/{id}", authMW(requireDonor(http.HandlerFunc(donationsHandler.Delete))))
	mux.Handle("PUT /api/donations/{id}/status", authMW(http.HandlerFunc(donationsHandler.UpdateStatus)))
	mux.Handle("POST /api/donations/{id}/confirm", authMW(http.HandlerFunc(donationsHandler.Confirm)))
	mux.Handle("DELETE /api/donor/donations/{id}/remove-volunteer/{volunteerId}", authMW(requireDonor(http.HandlerFunc(donationsHandler.RemoveVolunteer))))

	// Claims (volunteers).
	mux.Handle("POST /api/claim", authMW(volunteerOnly(http.HandlerFunc(claimsHandler.Claim))))
	mux.Handle("DELETE /api/claim/{claimId}", authMW(requireVolunteer(http.HandlerFunc(claimsHandler.Cancel))))
	mux.Handle("GET /api/claims", authMW(requireVolunteer(http.HandlerFunc(claimsHandler.List))))

	// Shelter requests: owned by shelters; volunteers promise and withdraw.
	mux.Handle("POST /api/shelter-requests", authMW(shelterOnly(http.HandlerFunc(requestsHandler.Create))))
	mux.Handle("GET /api/shelter-requests", authMW(http.HandlerFunc(requestsHandler.List)))
	mux.Handle("GET /api/shelter-requests/{id}", authMW(http.HandlerFunc(requestsHandler.Get)))
	mux.Handle("DELETE /api/shelter-requests/{id}", authMW(requireShelter(http.HandlerFunc(requestsHandler.Delete))))
	mux.Handle("POST /api/shelter-requests/{id}/cancel", authMW(requireShelter(http.HandlerFunc(requestsHandler.Cancel))))
	mux.Handle("POST /api/shelter-requests/{id}/complete", authMW(requireShelter(http.HandlerFunc(requestsHandler.Complete))))
	mux.Handle("POST /api/shelter-requests/{id}/volunteer", authMW(volunteerOnly(http.HandlerFunc(requestsHandler.Promise))))
	mux.Handle("DELETE /api/shelter-requests/{id}/volunteer", authMW(http.HandlerFunc(requestsHandler.CancelPromise)))
	mux.Handle("PATCH /api/shelter-requests/{id}/fulfill-volunteer", authMW(requireShelter(http.HandlerFunc(requestsHandler.FulfillVolunteer))))

	// Notifications.
	mux.Handle("GET /api/ws", WebSocketAuthMiddleware(d.JWTSecret, d.DB)(http.HandlerFunc(wsHandler.Serve)))

	return mux
}
