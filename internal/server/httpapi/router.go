package httpapi

import (
	"net/http"
	"time"

	"github.com/dmitrijs2005/keywarden/internal/logging"
	"github.com/dmitrijs2005/keywarden/internal/server/auth"
	"github.com/dmitrijs2005/keywarden/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server holds the HTTP handler dependencies.
type Server struct {
	owners    *services.OwnerService
	records   *services.RecordService
	contacts  *services.ContactService
	escrow    *services.EscrowService
	emergency *services.EmergencyService
	activity  *services.ActivityService
	logger    logging.Logger
	secretKey []byte
}

func NewServer(owners *services.OwnerService, records *services.RecordService, contacts *services.ContactService,
	escrow *services.EscrowService, emergency *services.EmergencyService, activity *services.ActivityService,
	logger logging.Logger, secretKey []byte) *Server {
	return &Server{
		owners:    owners,
		records:   records,
		contacts:  contacts,
		escrow:    escrow,
		emergency: emergency,
		activity:  activity,
		logger:    logger.With("module", "httpapi"),
		secretKey: secretKey,
	}
}

// Routes assembles the router. Owner-authenticated routes also advance the
// owner's activity clock: any interaction with the vault proves the owner is
// alive.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(observe)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/owners/register", s.handleRegister)
		r.Get("/owners/salt", s.handleSalt)
		r.Post("/owners/login", s.handleLogin)

		r.Post("/invites/accept", s.handleAcceptInvite)
		r.Post("/invites/decline", s.handleDeclineInvite)

		// owner session required
		r.Group(func(r chi.Router) {
			r.Use(authenticate(s.secretKey, auth.RoleOwner))
			r.Use(s.trackActivity)

			r.Post("/owners/logout", s.handleLogout)
			r.Post("/owners/activity", s.handleActivity)
			r.Get("/owners/settings", s.handleGetSettings)
			r.Put("/owners/settings", s.handleUpdateSettings)

			r.Get("/records", s.handleListRecords)
			r.Post("/records", s.handleCreateRecord)
			r.Post("/records/upload-url", s.handleUploadURL)
			r.Get("/records/{id}", s.handleGetRecord)
			r.Put("/records/{id}", s.handleUpdateRecord)
			r.Delete("/records/{id}", s.handleDeleteRecord)

			r.Get("/contacts", s.handleListContacts)
			r.Post("/contacts", s.handleInviteContact)
			r.Post("/contacts/{id}/revoke", s.handleRevokeContact)
			r.Post("/contacts/{id}/escrow", s.handleDepositEscrow)

			r.Get("/emergency/requests", s.handleListOwnerRequests)
			r.Post("/emergency/requests/{id}/deny", s.handleDenyRequest)
			r.Post("/emergency/requests/{id}/revoke", s.handleRevokeRequest)
		})

		// contact session required
		r.Group(func(r chi.Router) {
			r.Use(authenticate(s.secretKey, auth.RoleContact))

			r.Post("/emergency/requests", s.handleCreateAccessRequest)
			r.Get("/emergency/my-requests", s.handleListContactRequests)
			r.Post("/emergency/requests/{id}/cancel", s.handleCancelRequest)
			r.Get("/emergency/requests/{id}/grants", s.handleRequestGrants)
		})
	})

	return r
}

// trackActivity advances the owner's activity timestamp on every
// authenticated call. Failures are logged, not surfaced: activity tracking
// must never break a vault operation.
func (s *Server) trackActivity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if claims, ok := claimsFromContext(r.Context()); ok {
			if err := s.activity.RecordActivity(r.Context(), claims.ActorID, time.Now()); err != nil {
				s.logger.Warn(r.Context(), "activity tracking failed", "owner_id", claims.ActorID, "error", err.Error())
			}
		}
		next.ServeHTTP(w, r)
	})
}
