package http

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"chargeshare-backend/internal/domain"
	"chargeshare-backend/internal/service"
)

type NotificationHandler struct {
	notificationSvc service.NotificationService
}

func NewNotificationHandler(notificationSvc service.NotificationService) *NotificationHandler {
	return &NotificationHandler{notificationSvc: notificationSvc}
}

type listNotificationsResponse struct {
	Notifications []domain.Notification `json:"notifications"`
	Total         int32                 `json:"total"`
}

func (h *NotificationHandler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := intParam(q.Get("page"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	pageSize, err := intParam(q.Get("page_size"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	unreadOnly := false
	if v := q.Get("unread"); v != "" {
		if unreadOnly, err = strconv.ParseBool(v); err != nil {
			writeError(w, r, domain.NewValidationError("invalid unread flag %q", v))
			return
		}
	}
	notes, total, err := h.notificationSvc.GetNotifications(r.Context(), userID(r), unreadOnly, page, pageSize)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if notes == nil {
		notes = []domain.Notification{}
	}
	writeJSON(w, http.StatusOK, listNotificationsResponse{Notifications: notes, Total: total})
}

func (h *NotificationHandler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, r, domain.NewValidationError("invalid notification id"))
		return
	}
	if err := h.notificationSvc.MarkAsRead(r.Context(), userID(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
