package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Oleksandr-Marchenko/smart-parking-system/internal/models"
	"github.com/Oleksandr-Marchenko/smart-parking-system/internal/store"
)

type fakeStore struct {
	checkInFn         func(ctx context.Context, input store.CheckInInput) (models.Ticket, error)
	checkOutFn        func(ctx context.Context, input store.CheckOutInput) (models.Ticket, error)
	getTicketFn       func(ctx context.Context, ticketID int64) (models.Ticket, error)
	listActiveFn      func(ctx context.Context) ([]models.Ticket, error)
	createLotFn       func(ctx context.Context, name string) (models.Lot, error)
	listLotsFn        func(ctx context.Context) ([]models.Lot, error)
	deleteLotFn       func(ctx context.Context, lotID int64) error
	addLevelFn        func(ctx context.Context, lotID int64, floorNumber int) (models.Level, error)
	deleteLevelFn     func(ctx context.Context, levelID int64) error
	addSlotFn         func(ctx context.Context, levelID int64, slotNumber, slotClass string) (models.Slot, error)
	listSlotsFn       func(ctx context.Context, levelID int64) ([]models.Slot, error)
	deleteSlotFn      func(ctx context.Context, slotID int64) error
	setAvailabilityFn func(ctx context.Context, slotID int64, available bool) (models.Slot, error)
}

func (f fakeStore) CheckIn(ctx context.Context, input store.CheckInInput) (models.Ticket, error) {
	if f.checkInFn == nil {
		return models.Ticket{}, nil
	}
	return f.checkInFn(ctx, input)
}

func (f fakeStore) CheckOut(ctx context.Context, input store.CheckOutInput) (models.Ticket, error) {
	if f.checkOutFn == nil {
		return models.Ticket{}, nil
	}
	return f.checkOutFn(ctx, input)
}

func (f fakeStore) GetTicket(ctx context.Context, ticketID int64) (models.Ticket, error) {
	if f.getTicketFn == nil {
		return models.Ticket{}, nil
	}
	return f.getTicketFn(ctx, ticketID)
}

func (f fakeStore) ListActive(ctx context.Context) ([]models.Ticket, error) {
	if f.listActiveFn == nil {
		return nil, nil
	}
	return f.listActiveFn(ctx)
}

func (f fakeStore) CreateLot(ctx context.Context, name string) (models.Lot, error) {
	if f.createLotFn == nil {
		return models.Lot{}, nil
	}
	return f.createLotFn(ctx, name)
}

func (f fakeStore) ListLots(ctx context.Context) ([]models.Lot, error) {
	if f.listLotsFn == nil {
		return nil, nil
	}
	return f.listLotsFn(ctx)
}

func (f fakeStore) DeleteLot(ctx context.Context, lotID int64) error {
	if f.deleteLotFn == nil {
		return nil
	}
	return f.deleteLotFn(ctx, lotID)
}

func (f fakeStore) AddLevel(ctx context.Context, lotID int64, floorNumber int) (models.Level, error) {
	if f.addLevelFn == nil {
		return models.Level{}, nil
	}
	return f.addLevelFn(ctx, lotID, floorNumber)
}

func (f fakeStore) DeleteLevel(ctx context.Context, levelID int64) error {
	if f.deleteLevelFn == nil {
		return nil
	}
	return f.deleteLevelFn(ctx, levelID)
}

func (f fakeStore) AddSlot(ctx context.Context, levelID int64, slotNumber, slotClass string) (models.Slot, error) {
	if f.addSlotFn == nil {
		return models.Slot{}, nil
	}
	return f.addSlotFn(ctx, levelID, slotNumber, slotClass)
}

func (f fakeStore) ListSlots(ctx context.Context, levelID int64) ([]models.Slot, error) {
	if f.listSlotsFn == nil {
		return nil, nil
	}
	return f.listSlotsFn(ctx, levelID)
}

func (f fakeStore) DeleteSlot(ctx context.Context, slotID int64) error {
	if f.deleteSlotFn == nil {
		return nil
	}
	return f.deleteSlotFn(ctx, slotID)
}

func (f fakeStore) SetSlotAvailability(ctx context.Context, slotID int64, available bool) (models.Slot, error) {
	if f.setAvailabilityFn == nil {
		return models.Slot{}, nil
	}
	return f.setAvailabilityFn(ctx, slotID, available)
}

func TestCheckInSuccess(t *testing.T) {
	entryAt := time.Date(2026, 1, 12, 8, 0, 0, 0, time.UTC)
	st := fakeStore{
		checkInFn: func(ctx context.Context, input store.CheckInInput) (models.Ticket, error) {
			if input.Plate != "AB123CD" {
				t.Fatalf("plate not normalized, got %q", input.Plate)
			}
			return models.Ticket{
				TicketID:     1,
				Plate:        input.Plate,
				VehicleClass: input.VehicleClass,
				SlotID:       7,
				SlotNumber:   "C-1",
				Status:       models.StatusOpen,
				EntryAt:      entryAt,
			}, nil
		},
	}
	h := NewHandler(st)

	body, _ := json.Marshal(map[string]interface{}{
		"plate":         "  ab123cd ",
		"vehicle_class": "car",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/parking/check-in", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var ticket models.Ticket
	if err := json.NewDecoder(resp.Body).Decode(&ticket); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if ticket.TicketID != 1 || ticket.SlotNumber != "C-1" || ticket.Status != models.StatusOpen {
		t.Fatalf("unexpected ticket response: %+v", ticket)
	}
}

func TestCheckInValidation(t *testing.T) {
	h := NewHandler(fakeStore{})

	cases := []struct {
		name string
		body string
	}{
		{"missing plate", `{"vehicle_class":"car"}`},
		{"missing class", `{"plate":"AB123CD"}`},
		{"unknown class", `{"plate":"AB123CD","vehicle_class":"bus"}`},
		{"plate too long", `{"plate":"AAAAAAAAAAAAAAAAAAAAA","vehicle_class":"car"}`},
		{"unknown field", `{"plate":"AB123CD","vehicle_class":"car","color":"red"}`},
		{"not json", `plate=AB123CD`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/parking/check-in", strings.NewReader(tc.body))
			resp := httptest.NewRecorder()
			h.Routes().ServeHTTP(resp, req)
			if resp.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", resp.Code)
			}
		})
	}
}

func TestCheckInConflicts(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"no slot", store.ErrNoAvailableSlot, "no_available_slot"},
		{"already parked", store.ErrVehicleParked, "already_parked"},
		{"class mismatch", store.ErrClassMismatch, "class_mismatch"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := fakeStore{
				checkInFn: func(ctx context.Context, input store.CheckInInput) (models.Ticket, error) {
					return models.Ticket{}, tc.err
				},
			}
			h := NewHandler(st)

			body := strings.NewReader(`{"plate":"AB123CD","vehicle_class":"car"}`)
			req := httptest.NewRequest(http.MethodPost, "/api/parking/check-in", body)
			resp := httptest.NewRecorder()
			h.Routes().ServeHTTP(resp, req)

			if resp.Code != http.StatusConflict {
				t.Fatalf("expected status 409, got %d", resp.Code)
			}
			var payload errorResponse
			if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if payload.Error.Code != tc.wantCode {
				t.Fatalf("expected code %q, got %q", tc.wantCode, payload.Error.Code)
			}
		})
	}
}

func TestCheckOutSuccess(t *testing.T) {
	exitAt := time.Date(2026, 1, 12, 10, 30, 0, 0, time.UTC)
	fee := int64(400)
	st := fakeStore{
		checkOutFn: func(ctx context.Context, input store.CheckOutInput) (models.Ticket, error) {
			if input.TicketID != 42 {
				t.Fatalf("expected ticket 42, got %d", input.TicketID)
			}
			return models.Ticket{
				TicketID: 42,
				Status:   models.StatusClosed,
				ExitAt:   &exitAt,
				FeeCents: &fee,
			}, nil
		},
	}
	h := NewHandler(st)

	req := httptest.NewRequest(http.MethodPost, "/api/parking/check-out/42", nil)
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var ticket models.Ticket
	if err := json.NewDecoder(resp.Body).Decode(&ticket); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if ticket.Status != models.StatusClosed || ticket.FeeCents == nil || *ticket.FeeCents != 400 {
		t.Fatalf("unexpected ticket response: %+v", ticket)
	}
}

func TestCheckOutErrors(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", store.ErrTicketNotFound, http.StatusNotFound, "ticket_not_found"},
		{"closed", store.ErrTicketClosed, http.StatusConflict, "ticket_closed"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := fakeStore{
				checkOutFn: func(ctx context.Context, input store.CheckOutInput) (models.Ticket, error) {
					return models.Ticket{}, tc.err
				},
			}
			h := NewHandler(st)

			req := httptest.NewRequest(http.MethodPost, "/api/parking/check-out/42", nil)
			resp := httptest.NewRecorder()
			h.Routes().ServeHTTP(resp, req)

			if resp.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d", tc.wantStatus, resp.Code)
			}
			var payload errorResponse
			if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if payload.Error.Code != tc.wantCode {
				t.Fatalf("expected code %q, got %q", tc.wantCode, payload.Error.Code)
			}
		})
	}
}

func TestCheckOutBadTicketID(t *testing.T) {
	h := NewHandler(fakeStore{})

	req := httptest.NewRequest(http.MethodPost, "/api/parking/check-out/abc", nil)
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestListSessions(t *testing.T) {
	st := fakeStore{
		listActiveFn: func(ctx context.Context) ([]models.Ticket, error) {
			return []models.Ticket{{TicketID: 1}, {TicketID: 2}}, nil
		},
	}
	h := NewHandler(st)

	req := httptest.NewRequest(http.MethodGet, "/api/parking/sessions", nil)
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	var tickets []models.Ticket
	if err := json.NewDecoder(resp.Body).Decode(&tickets); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(tickets) != 2 {
		t.Fatalf("expected 2 tickets, got %d", len(tickets))
	}
}

func TestGetTicketNotFound(t *testing.T) {
	st := fakeStore{
		getTicketFn: func(ctx context.Context, ticketID int64) (models.Ticket, error) {
			return models.Ticket{}, store.ErrTicketNotFound
		},
	}
	h := NewHandler(st)

	req := httptest.NewRequest(http.MethodGet, "/api/parking/tickets/9", nil)
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}
}

func TestCreateLot(t *testing.T) {
	st := fakeStore{
		createLotFn: func(ctx context.Context, name string) (models.Lot, error) {
			return models.Lot{LotID: 1, Name: name}, nil
		},
	}
	h := NewHandler(st)

	body := strings.NewReader(`{"name":"Central Garage"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/admin/lots", body)
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/admin/lots", strings.NewReader(`{"name":"  "}`))
	resp = httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for blank name, got %d", resp.Code)
	}
}

func TestAddLevelAndSlots(t *testing.T) {
	st := fakeStore{
		addLevelFn: func(ctx context.Context, lotID int64, floorNumber int) (models.Level, error) {
			return models.Level{LevelID: 2, LotID: lotID, FloorNumber: floorNumber}, nil
		},
		addSlotFn: func(ctx context.Context, levelID int64, slotNumber, slotClass string) (models.Slot, error) {
			return models.Slot{SlotID: 3, LevelID: levelID, SlotNumber: slotNumber, Class: slotClass, Available: true}, nil
		},
		listSlotsFn: func(ctx context.Context, levelID int64) ([]models.Slot, error) {
			return []models.Slot{{SlotID: 3}}, nil
		},
	}
	h := NewHandler(st)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/lots/1/levels", strings.NewReader(`{"floor_number":2}`))
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("add level: expected status 201, got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/admin/levels/2/slots", strings.NewReader(`{"slot_number":"C-7","slot_class":"compact"}`))
	resp = httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("add slot: expected status 201, got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/admin/levels/2/slots", strings.NewReader(`{"slot_number":"C-8","slot_class":"huge"}`))
	resp = httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("bad slot class: expected status 400, got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/admin/levels/2/slots", nil)
	resp = httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("list slots: expected status 200, got %d", resp.Code)
	}
}

func TestDeleteOccupiedSlot(t *testing.T) {
	st := fakeStore{
		deleteSlotFn: func(ctx context.Context, slotID int64) error {
			return store.ErrOccupied
		},
	}
	h := NewHandler(st)

	req := httptest.NewRequest(http.MethodDelete, "/api/admin/slots/3", nil)
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}
	var payload errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if payload.Error.Code != "occupied" {
		t.Fatalf("expected code occupied, got %q", payload.Error.Code)
	}
}

func TestSetSlotAvailability(t *testing.T) {
	st := fakeStore{
		setAvailabilityFn: func(ctx context.Context, slotID int64, available bool) (models.Slot, error) {
			return models.Slot{SlotID: slotID, Available: available}, nil
		},
	}
	h := NewHandler(st)

	req := httptest.NewRequest(http.MethodPatch, "/api/admin/slots/3/availability?available=false", nil)
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	var slot models.Slot
	if err := json.NewDecoder(resp.Body).Decode(&slot); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if slot.Available {
		t.Fatalf("expected slot to be unavailable, got %+v", slot)
	}

	req = httptest.NewRequest(http.MethodPatch, "/api/admin/slots/3/availability?available=maybe", nil)
	resp = httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestDeleteLot(t *testing.T) {
	st := fakeStore{
		deleteLotFn: func(ctx context.Context, lotID int64) error {
			if lotID != 5 {
				t.Fatalf("expected lot 5, got %d", lotID)
			}
			return nil
		},
	}
	h := NewHandler(st)

	req := httptest.NewRequest(http.MethodDelete, "/api/admin/lots/5", nil)
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", resp.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := NewHandler(fakeStore{})

	cases := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/parking/check-in"},
		{http.MethodDelete, "/api/parking/sessions"},
		{http.MethodGet, "/api/parking/check-out/1"},
		{http.MethodPut, "/api/admin/lots"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		resp := httptest.NewRecorder()
		h.Routes().ServeHTTP(resp, req)
		if resp.Code != http.StatusMethodNotAllowed {
			t.Fatalf("%s %s: expected status 405, got %d", tc.method, tc.path, resp.Code)
		}
	}
}

func TestPlateRateLimit(t *testing.T) {
	st := fakeStore{
		checkInFn: func(ctx context.Context, input store.CheckInInput) (models.Ticket, error) {
			return models.Ticket{}, store.ErrVehicleParked
		},
	}
	limiter := NewRateLimiter(RateLimitConfig{
		IPPerMinute:    1000,
		IPBurst:        1000,
		PlatePerMinute: 60,
		PlateBurst:     2,
	})
	h := limiter.Middleware(NewHandler(st).Routes())

	var last int
	for i := 0; i < 3; i++ {
		body := strings.NewReader(`{"plate":"AB123CD","vehicle_class":"car"}`)
		req := httptest.NewRequest(http.MethodPost, "/api/parking/check-in", body)
		req.Header.Set("Content-Type", "application/json")
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, req)
		last = resp.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected status 429 after burst, got %d", last)
	}
}
