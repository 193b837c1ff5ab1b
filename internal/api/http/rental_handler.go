package http

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"chargeshare-backend/internal/domain"
	"chargeshare-backend/internal/service"
)

type RentalHandler struct {
	rentalSvc service.RentalService
}

func NewRentalHandler(rentalSvc service.RentalService) *RentalHandler {
	return &RentalHandler{rentalSvc: rentalSvc}
}

type startRentalRequest struct {
	KioskID   int64 `json:"kiosk_id"`
	PackageID int64 `json:"package_id"`
}

type extendRentalRequest struct {
	PackageID int64 `json:"package_id"`
}

type cancelRentalRequest struct {
	Reason string `json:"reason"`
}

type returnRentalRequest struct {
	KioskID      int64 `json:"kiosk_id"`
	SlotNumber   int   `json:"slot_number"`
	BatteryLevel int   `json:"battery_level"`
}

type listRentalsResponse struct {
	Rentals []domain.Rental `json:"rentals"`
	Total   int32           `json:"total"`
	Page    int32           `json:"page"`
}

func (h *RentalHandler) StartRental(w http.ResponseWriter, r *http.Request) {
	var req startRentalRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	rt, err := h.rentalSvc.Start(r.Context(), userID(r), req.KioskID, req.PackageID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rt)
}

func (h *RentalHandler) GetActiveRental(w http.ResponseWriter, r *http.Request) {
	rt, err := h.rentalSvc.GetActiveRental(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rt)
}

func (h *RentalHandler) ListRentals(w http.ResponseWriter, r *http.Request) {
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
	rentals, total, err := h.rentalSvc.ListRentals(r.Context(), userID(r), q.Get("status"), page, pageSize)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if page < 1 {
		page = 1
	}
	if rentals == nil {
		rentals = []domain.Rental{}
	}
	writeJSON(w, http.StatusOK, listRentalsResponse{Rentals: rentals, Total: total, Page: page})
}

func (h *RentalHandler) GetRental(w http.ResponseWriter, r *http.Request) {
	id, err := rentalID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rt, err := h.rentalSvc.GetRental(r.Context(), userID(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rt)
}

func (h *RentalHandler) ExtendRental(w http.ResponseWriter, r *http.Request) {
	id, err := rentalID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req extendRentalRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	rt, err := h.rentalSvc.Extend(r.Context(), userID(r), id, req.PackageID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rt)
}

func (h *RentalHandler) CancelRental(w http.ResponseWriter, r *http.Request) {
	id, err := rentalID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req cancelRentalRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	rt, err := h.rentalSvc.Cancel(r.Context(), userID(r), id, req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rt)
}

// ReturnRental lets a user report a return the kiosk did not. Only the
// owner may do so.
func (h *RentalHandler) ReturnRental(w http.ResponseWriter, r *http.Request) {
	id, err := rentalID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req returnRentalRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := h.rentalSvc.GetRental(r.Context(), userID(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	rt, err := h.rentalSvc.Return(r.Context(), id, req.KioskID, req.SlotNumber, req.BatteryLevel)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rt)
}

func userID(r *http.Request) int64 {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		return 0
	}
	return claims.UserID
}

func rentalID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		return uuid.Nil, domain.NewValidationError("invalid rental id")
	}
	return id, nil
}

func intParam(v string) (int32, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil {
		return 0, domain.NewValidationError("invalid number %q", v)
	}
	return int32(n), nil
}
