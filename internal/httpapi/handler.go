package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Oleksandr-Marchenko/smart-parking-system/internal/models"
	"github.com/Oleksandr-Marchenko/smart-parking-system/internal/pricing"
	"github.com/Oleksandr-Marchenko/smart-parking-system/internal/store"
)

type Handler struct {
	store store.ParkingStore
}

type checkInRequest struct {
	Plate        string `json:"plate"`
	VehicleClass string `json:"vehicle_class"`
	Accessible   bool   `json:"accessible"`
}

type createLotRequest struct {
	Name string `json:"name"`
}

type addLevelRequest struct {
	FloorNumber int `json:"floor_number"`
}

type addSlotRequest struct {
	SlotNumber string `json:"slot_number"`
	SlotClass  string `json:"slot_class"`
}

type errorResponse struct {
	Error responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewHandler(store store.ParkingStore) *Handler {
	return &Handler{store: store}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/api/parking/check-in", h.handleCheckIn)
	mux.HandleFunc("/api/parking/check-out/", h.handleCheckOut)
	mux.HandleFunc("/api/parking/sessions", h.handleSessions)
	mux.HandleFunc("/api/parking/tickets/", h.handleTicket)
	mux.HandleFunc("/api/admin/lots", h.handleLots)
	mux.HandleFunc("/api/admin/lots/", h.handleLotSubresources)
	mux.HandleFunc("/api/admin/levels/", h.handleLevelSubresources)
	mux.HandleFunc("/api/admin/slots/", h.handleSlotActions)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req checkInRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.Plate = strings.ToUpper(strings.TrimSpace(req.Plate))
	req.VehicleClass = strings.TrimSpace(req.VehicleClass)

	if req.Plate == "" || req.VehicleClass == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "plate and vehicle_class are required")
		return
	}
	if len(req.Plate) > models.MaxPlateLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "plate must be at most 20 characters")
		return
	}
	if !store.ValidVehicleClass(req.VehicleClass) {
		writeError(w, http.StatusBadRequest, "invalid_request", "vehicle_class must be motorcycle, car, or truck")
		return
	}

	ticket, err := h.store.CheckIn(r.Context(), store.CheckInInput{
		Plate:        req.Plate,
		VehicleClass: req.VehicleClass,
		Accessible:   req.Accessible,
		EntryAt:      time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	writeJSON(w, http.StatusCreated, ticket)
}

func (h *Handler) handleCheckOut(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ticketID, ok := pathID(w, r.URL.Path, "/api/parking/check-out/", "ticket id")
	if !ok {
		return
	}

	ticket, err := h.store.CheckOut(r.Context(), store.CheckOutInput{
		TicketID: ticketID,
		ExitAt:   time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	tickets, err := h.store.ListActive(r.Context())
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, tickets)
}

func (h *Handler) handleTicket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ticketID, ok := pathID(w, r.URL.Path, "/api/parking/tickets/", "ticket id")
	if !ok {
		return
	}

	ticket, err := h.store.GetTicket(r.Context(), ticketID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleLots(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		lots, err := h.store.ListLots(r.Context())
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, lots)
	case http.MethodPost:
		var req createLotRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "name is required")
			return
		}
		lot, err := h.store.CreateLot(r.Context(), req.Name)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusCreated, lot)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleLotSubresources serves DELETE /api/admin/lots/{id} and
// POST /api/admin/lots/{id}/levels.
func (h *Handler) handleLotSubresources(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/admin/lots/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodDelete {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		lotID, ok := parseID(w, parts[0], "lot id")
		if !ok {
			return
		}
		if err := h.store.DeleteLot(r.Context(), lotID); err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case len(parts) == 2 && parts[1] == "levels":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		lotID, ok := parseID(w, parts[0], "lot id")
		if !ok {
			return
		}
		var req addLevelRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
		if req.FloorNumber < 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "floor_number must be non-negative")
			return
		}
		level, err := h.store.AddLevel(r.Context(), lotID, req.FloorNumber)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusCreated, level)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// handleLevelSubresources serves DELETE /api/admin/levels/{id} and
// GET|POST /api/admin/levels/{id}/slots.
func (h *Handler) handleLevelSubresources(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/admin/levels/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodDelete {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		levelID, ok := parseID(w, parts[0], "level id")
		if !ok {
			return
		}
		if err := h.store.DeleteLevel(r.Context(), levelID); err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case len(parts) == 2 && parts[1] == "slots":
		levelID, ok := parseID(w, parts[0], "level id")
		if !ok {
			return
		}
		switch r.Method {
		case http.MethodGet:
			slots, err := h.store.ListSlots(r.Context(), levelID)
			if err != nil {
				status, code, msg := mapError(err)
				writeError(w, status, code, msg)
				return
			}
			writeJSON(w, http.StatusOK, slots)
		case http.MethodPost:
			var req addSlotRequest
			decoder := json.NewDecoder(r.Body)
			decoder.DisallowUnknownFields()
			if err := decoder.Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
				return
			}
			req.SlotNumber = strings.TrimSpace(req.SlotNumber)
			req.SlotClass = strings.TrimSpace(req.SlotClass)
			if req.SlotNumber == "" || req.SlotClass == "" {
				writeError(w, http.StatusBadRequest, "invalid_request", "slot_number and slot_class are required")
				return
			}
			if !store.ValidSlotClass(req.SlotClass) {
				writeError(w, http.StatusBadRequest, "invalid_request", "slot_class must be motorcycle, compact, large, or accessible")
				return
			}
			slot, err := h.store.AddSlot(r.Context(), levelID, req.SlotNumber, req.SlotClass)
			if err != nil {
				status, code, msg := mapError(err)
				writeError(w, status, code, msg)
				return
			}
			writeJSON(w, http.StatusCreated, slot)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// handleSlotActions serves DELETE /api/admin/slots/{id} and
// PATCH /api/admin/slots/{id}/availability.
func (h *Handler) handleSlotActions(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/admin/slots/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodDelete {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		slotID, ok := parseID(w, parts[0], "slot id")
		if !ok {
			return
		}
		if err := h.store.DeleteSlot(r.Context(), slotID); err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case len(parts) == 2 && parts[1] == "availability":
		if r.Method != http.MethodPatch {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		slotID, ok := parseID(w, parts[0], "slot id")
		if !ok {
			return
		}
		raw := strings.TrimSpace(r.URL.Query().Get("available"))
		available, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "available must be true or false")
			return
		}
		slot, err := h.store.SetSlotAvailability(r.Context(), slotID, available)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, slot)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func pathID(w http.ResponseWriter, path, prefix, field string) (int64, bool) {
	raw := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if raw == "" || strings.Contains(raw, "/") {
		w.WriteHeader(http.StatusNotFound)
		return 0, false
	}
	return parseID(w, raw, field)
}

func parseID(w http.ResponseWriter, raw, field string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", field+" must be a positive integer")
		return 0, false
	}
	return id, true
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrClassMismatch):
		return http.StatusConflict, "class_mismatch", "plate is registered with a different vehicle class"
	case errors.Is(err, store.ErrVehicleParked):
		return http.StatusConflict, "already_parked", "vehicle already has an open ticket"
	case errors.Is(err, store.ErrNoAvailableSlot):
		return http.StatusConflict, "no_available_slot", "no compatible slot available"
	case errors.Is(err, store.ErrTicketNotFound):
		return http.StatusNotFound, "ticket_not_found", "ticket not found"
	case errors.Is(err, store.ErrTicketClosed):
		return http.StatusConflict, "ticket_closed", "ticket is already closed"
	case errors.Is(err, store.ErrLotNotFound):
		return http.StatusNotFound, "lot_not_found", "lot not found"
	case errors.Is(err, store.ErrLevelNotFound):
		return http.StatusNotFound, "level_not_found", "level not found"
	case errors.Is(err, store.ErrSlotNotFound):
		return http.StatusNotFound, "slot_not_found", "slot not found"
	case errors.Is(err, store.ErrOccupied):
		return http.StatusConflict, "occupied", "resource has an active parking session"
	case errors.Is(err, pricing.ErrInvalidInterval):
		return http.StatusUnprocessableEntity, "invalid_interval", "exit time precedes entry time"
	case errors.Is(err, pricing.ErrNoRate):
		return http.StatusUnprocessableEntity, "no_pricing_rule", "no pricing rule for vehicle class"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
