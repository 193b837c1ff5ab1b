package http

import (
	"net/http"

	"chargeshare-backend/internal/hardware"
)

// KioskHandler accepts events from kiosks that call back over HTTP instead
// of MQTT. The kiosk is identified by its service token.
type KioskHandler struct {
	events hardware.EventHandler
}

func NewKioskHandler(events hardware.EventHandler) *KioskHandler {
	return &KioskHandler{events: events}
}

func (h *KioskHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok || claims.KioskSerial == "" {
		writeJSON(w, http.StatusForbidden, errorResponse{Code: "PERMISSION_DENIED", Message: "kiosk token required"})
		return
	}
	var ev hardware.Event
	if err := decode(r, &ev); err != nil {
		writeError(w, r, err)
		return
	}
	if err := hardware.Route(r.Context(), h.events, claims.KioskSerial, ev); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
