package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"chargeshare-backend/internal/hardware"
	"chargeshare-backend/internal/security"
	"chargeshare-backend/internal/service"
)

// Dependencies are the services the API is a thin layer over.
type Dependencies struct {
	Rentals       service.RentalService
	Notifications service.NotificationService
	KioskEvents   hardware.EventHandler
	Tokens        security.TokenManager
	RateLimiter   *RateLimiter
}

// NewRouter registers every route. Route names key the security table in
// config.EndpointSecurityConfig.
func NewRouter(deps Dependencies) *mux.Router {
	router := mux.NewRouter()
	router.Use(logRequests)
	if deps.RateLimiter != nil {
		router.Use(deps.RateLimiter.Handler)
	}
	router.Use(NewAuthMiddleware(deps.Tokens).Handler)

	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods("GET").Name("health")

	v1 := router.PathPrefix("/v1").Subrouter()

	rentals := NewRentalHandler(deps.Rentals)
	v1.HandleFunc("/rentals", rentals.StartRental).Methods("POST").Name("rentals.start")
	v1.HandleFunc("/rentals", rentals.ListRentals).Methods("GET").Name("rentals.list")
	v1.HandleFunc("/rentals/active", rentals.GetActiveRental).Methods("GET").Name("rentals.active")
	v1.HandleFunc("/rentals/{id}", rentals.GetRental).Methods("GET").Name("rentals.get")
	v1.HandleFunc("/rentals/{id}/extend", rentals.ExtendRental).Methods("POST").Name("rentals.extend")
	v1.HandleFunc("/rentals/{id}/cancel", rentals.CancelRental).Methods("POST").Name("rentals.cancel")
	v1.HandleFunc("/rentals/{id}/return", rentals.ReturnRental).Methods("POST").Name("rentals.return")

	if deps.Notifications != nil {
		notes := NewNotificationHandler(deps.Notifications)
		v1.HandleFunc("/notifications", notes.GetNotifications).Methods("GET").Name("notifications.list")
		v1.HandleFunc("/notifications/{id}/read", notes.MarkAsRead).Methods("POST").Name("notifications.read")
	}

	if deps.KioskEvents != nil {
		kiosks := NewKioskHandler(deps.KioskEvents)
		v1.HandleFunc("/kiosk/events", kiosks.HandleEvent).Methods("POST").Name("kiosk.events")
	}

	return router
}
