// Package memory implements the parking store against process memory. It
// mirrors the Postgres implementation's guarantees with a registry mutex plus
// a per-slot mutex guarding each availability flip, and backs tests and local
// runs without a database.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Oleksandr-Marchenko/smart-parking-system/internal/models"
	"github.com/Oleksandr-Marchenko/smart-parking-system/internal/pricing"
	"github.com/Oleksandr-Marchenko/smart-parking-system/internal/store"
)

type memSlot struct {
	mu   sync.Mutex
	slot models.Slot
}

type Store struct {
	pricing *pricing.Engine

	mu           sync.Mutex
	nextLotID    int64
	nextLevelID  int64
	nextSlotID   int64
	nextTicketID int64
	lots         map[int64]models.Lot
	levels       map[int64]models.Level
	slots        map[int64]*memSlot
	vehicles     map[string]models.Vehicle
	tickets      map[int64]*models.Ticket
	openByPlate  map[string]int64
	openBySlot   map[int64]int64
}

func NewStore(engine *pricing.Engine) *Store {
	if engine == nil {
		engine = pricing.NewEngine(nil)
	}
	return &Store{
		pricing:     engine,
		lots:        make(map[int64]models.Lot),
		levels:      make(map[int64]models.Level),
		slots:       make(map[int64]*memSlot),
		vehicles:    make(map[string]models.Vehicle),
		tickets:     make(map[int64]*models.Ticket),
		openByPlate: make(map[string]int64),
		openBySlot:  make(map[int64]int64),
	}
}

func (s *Store) CheckIn(ctx context.Context, input store.CheckInInput) (models.Ticket, error) {
	entryAt := input.EntryAt
	if entryAt.IsZero() {
		entryAt = time.Now().UTC()
	}

	s.mu.Lock()
	vehicle, exists := s.vehicles[input.Plate]
	if exists && vehicle.Class != input.VehicleClass {
		s.mu.Unlock()
		return models.Ticket{}, store.ErrClassMismatch
	}
	if _, parked := s.openByPlate[input.Plate]; parked {
		s.mu.Unlock()
		return models.Ticket{}, store.ErrVehicleParked
	}
	// Reserve the plate before releasing the registry lock so a concurrent
	// duplicate check-in cannot slip past the open-ticket check.
	s.openByPlate[input.Plate] = 0
	candidates := s.candidateSlotsLocked(input.VehicleClass, input.Accessible)
	s.mu.Unlock()

	// Claim a slot by flipping its availability, then confirm the claim under
	// the registry lock: an admin may have deleted the slot or handed it back
	// between the snapshot and the flip. A confirmed claim keeps the registry
	// lock held through ticket creation.
	var claimed *memSlot
	for _, candidate := range candidates {
		candidate.mu.Lock()
		if !candidate.slot.Available {
			candidate.mu.Unlock()
			continue
		}
		candidate.slot.Available = false
		candidate.mu.Unlock()

		s.mu.Lock()
		if s.claimStandsLocked(candidate) {
			claimed = candidate
			break
		}
		s.mu.Unlock()
		candidate.mu.Lock()
		candidate.slot.Available = true
		candidate.mu.Unlock()
	}

	if claimed == nil {
		s.mu.Lock()
		delete(s.openByPlate, input.Plate)
		s.mu.Unlock()
		return models.Ticket{}, store.ErrNoAvailableSlot
	}
	defer s.mu.Unlock()

	// The vehicle record is created only once the check-in is certain to
	// succeed, so a failed attempt leaves the registry untouched.
	if !exists {
		s.vehicles[input.Plate] = models.Vehicle{Plate: input.Plate, Class: input.VehicleClass, CreatedAt: entryAt}
	}

	s.nextTicketID++
	ticket := &models.Ticket{
		TicketID:     s.nextTicketID,
		Plate:        input.Plate,
		VehicleClass: input.VehicleClass,
		SlotID:       claimed.slot.SlotID,
		SlotNumber:   claimed.slot.SlotNumber,
		LevelFloor:   s.levels[claimed.slot.LevelID].FloorNumber,
		Status:       models.StatusOpen,
		EntryAt:      entryAt,
	}
	s.tickets[ticket.TicketID] = ticket
	s.openByPlate[input.Plate] = ticket.TicketID
	s.openBySlot[ticket.SlotID] = ticket.TicketID
	return *ticket, nil
}

// candidateSlotsLocked returns the allocation order: the accessible class
// first when requested, then the vehicle class's compatibility list, each
// class sorted by ascending level floor then slot number.
func (s *Store) candidateSlotsLocked(vehicleClass string, accessible bool) []*memSlot {
	var classes []string
	if accessible {
		classes = append(classes, models.SlotAccessible)
	}
	if compatible, ok := store.CompatibleSlotClasses(vehicleClass); ok {
		classes = append(classes, compatible...)
	}

	var candidates []*memSlot
	for _, class := range classes {
		var group []*memSlot
		for _, slot := range s.slots {
			if slot.slot.Class == class {
				group = append(group, slot)
			}
		}
		sort.Slice(group, func(i, j int) bool {
			fi := s.levels[group[i].slot.LevelID].FloorNumber
			fj := s.levels[group[j].slot.LevelID].FloorNumber
			if fi != fj {
				return fi < fj
			}
			return group[i].slot.SlotNumber < group[j].slot.SlotNumber
		})
		candidates = append(candidates, group...)
	}
	return candidates
}

// claimStandsLocked reports whether a flipped slot may back a new ticket:
// still registered, still held by us, and free of an open ticket. Caller
// holds the registry lock.
func (s *Store) claimStandsLocked(candidate *memSlot) bool {
	if _, ok := s.slots[candidate.slot.SlotID]; !ok {
		return false
	}
	if _, booked := s.openBySlot[candidate.slot.SlotID]; booked {
		return false
	}
	candidate.mu.Lock()
	held := !candidate.slot.Available
	candidate.mu.Unlock()
	return held
}

func (s *Store) CheckOut(ctx context.Context, input store.CheckOutInput) (models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ticket, ok := s.tickets[input.TicketID]
	if !ok {
		return models.Ticket{}, store.ErrTicketNotFound
	}
	if ticket.ExitAt != nil {
		return models.Ticket{}, store.ErrTicketClosed
	}

	exitAt := input.ExitAt
	if exitAt.IsZero() {
		exitAt = time.Now().UTC()
	}
	fee, err := s.pricing.Fee(ticket.VehicleClass, ticket.EntryAt, exitAt)
	if err != nil {
		return models.Ticket{}, err
	}

	ticket.Status = models.StatusClosed
	ticket.ExitAt = &exitAt
	ticket.FeeCents = &fee
	delete(s.openByPlate, ticket.Plate)
	delete(s.openBySlot, ticket.SlotID)
	if slot, ok := s.slots[ticket.SlotID]; ok {
		slot.mu.Lock()
		slot.slot.Available = true
		slot.mu.Unlock()
	}
	return *ticket, nil
}

func (s *Store) GetTicket(ctx context.Context, ticketID int64) (models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.tickets[ticketID]
	if !ok {
		return models.Ticket{}, store.ErrTicketNotFound
	}
	return *ticket, nil
}

func (s *Store) ListActive(ctx context.Context) ([]models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tickets []models.Ticket
	for _, ticket := range s.tickets {
		if ticket.ExitAt == nil {
			tickets = append(tickets, *ticket)
		}
	}
	sort.Slice(tickets, func(i, j int) bool {
		if !tickets[i].EntryAt.Equal(tickets[j].EntryAt) {
			return tickets[i].EntryAt.Before(tickets[j].EntryAt)
		}
		return tickets[i].TicketID < tickets[j].TicketID
	})
	return tickets, nil
}

func (s *Store) CreateLot(ctx context.Context, name string) (models.Lot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextLotID++
	lot := models.Lot{LotID: s.nextLotID, Name: name}
	s.lots[lot.LotID] = lot
	return lot, nil
}

func (s *Store) ListLots(ctx context.Context) ([]models.Lot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var lots []models.Lot
	for _, lot := range s.lots {
		lots = append(lots, lot)
	}
	sort.Slice(lots, func(i, j int) bool { return lots[i].LotID < lots[j].LotID })
	return lots, nil
}

func (s *Store) DeleteLot(ctx context.Context, lotID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lots[lotID]; !ok {
		return store.ErrLotNotFound
	}
	for _, level := range s.levels {
		if level.LotID != lotID {
			continue
		}
		for slotID := range s.openBySlot {
			if slot, ok := s.slots[slotID]; ok && slot.slot.LevelID == level.LevelID {
				return store.ErrOccupied
			}
		}
	}
	for levelID, level := range s.levels {
		if level.LotID != lotID {
			continue
		}
		for slotID, slot := range s.slots {
			if slot.slot.LevelID == levelID {
				delete(s.slots, slotID)
			}
		}
		delete(s.levels, levelID)
	}
	delete(s.lots, lotID)
	return nil
}

func (s *Store) AddLevel(ctx context.Context, lotID int64, floorNumber int) (models.Level, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lots[lotID]; !ok {
		return models.Level{}, store.ErrLotNotFound
	}
	for _, level := range s.levels {
		if level.LotID == lotID && level.FloorNumber == floorNumber {
			return models.Level{}, fmt.Errorf("lot %d already has floor %d", lotID, floorNumber)
		}
	}
	s.nextLevelID++
	level := models.Level{LevelID: s.nextLevelID, LotID: lotID, FloorNumber: floorNumber}
	s.levels[level.LevelID] = level
	return level, nil
}

func (s *Store) DeleteLevel(ctx context.Context, levelID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.levels[levelID]; !ok {
		return store.ErrLevelNotFound
	}
	for slotID := range s.openBySlot {
		if slot, ok := s.slots[slotID]; ok && slot.slot.LevelID == levelID {
			return store.ErrOccupied
		}
	}
	for slotID, slot := range s.slots {
		if slot.slot.LevelID == levelID {
			delete(s.slots, slotID)
		}
	}
	delete(s.levels, levelID)
	return nil
}

func (s *Store) AddSlot(ctx context.Context, levelID int64, slotNumber, slotClass string) (models.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.levels[levelID]; !ok {
		return models.Slot{}, store.ErrLevelNotFound
	}
	for _, slot := range s.slots {
		if slot.slot.LevelID == levelID && slot.slot.SlotNumber == slotNumber {
			return models.Slot{}, fmt.Errorf("level %d already has slot %s", levelID, slotNumber)
		}
	}
	s.nextSlotID++
	slot := models.Slot{SlotID: s.nextSlotID, LevelID: levelID, SlotNumber: slotNumber, Class: slotClass, Available: true}
	s.slots[slot.SlotID] = &memSlot{slot: slot}
	return slot, nil
}

func (s *Store) ListSlots(ctx context.Context, levelID int64) ([]models.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.levels[levelID]; !ok {
		return nil, store.ErrLevelNotFound
	}
	var slots []models.Slot
	for _, slot := range s.slots {
		if slot.slot.LevelID != levelID {
			continue
		}
		slot.mu.Lock()
		slots = append(slots, slot.slot)
		slot.mu.Unlock()
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].SlotNumber < slots[j].SlotNumber })
	return slots, nil
}

func (s *Store) DeleteSlot(ctx context.Context, slotID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[slotID]
	if !ok {
		return store.ErrSlotNotFound
	}
	slot.mu.Lock()
	available := slot.slot.Available
	slot.mu.Unlock()
	// An unavailable slot is either occupied or mid-allocation; both block removal.
	if !available {
		return store.ErrOccupied
	}
	delete(s.slots, slotID)
	return nil
}

func (s *Store) SetSlotAvailability(ctx context.Context, slotID int64, available bool) (models.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[slotID]
	if !ok {
		return models.Slot{}, store.ErrSlotNotFound
	}
	// Occupied slots can be neither pulled for maintenance nor handed back
	// to the allocator; the open ticket owns the slot until check-out.
	if _, occupied := s.openBySlot[slotID]; occupied {
		return models.Slot{}, store.ErrOccupied
	}
	slot.mu.Lock()
	slot.slot.Available = available
	updated := slot.slot
	slot.mu.Unlock()
	return updated, nil
}
