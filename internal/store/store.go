package store

import (
	"context"
	"time"

	"github.com/Oleksandr-Marchenko/smart-parking-system/internal/models"
)

type CheckInInput struct {
	Plate        string
	VehicleClass string
	Accessible   bool
	EntryAt      time.Time
}

type CheckOutInput struct {
	TicketID int64
	ExitAt   time.Time
}

// ParkingStore is the operation surface of the core. Both the Postgres and
// the in-memory implementations satisfy it; the HTTP layer depends on nothing
// else.
type ParkingStore interface {
	// CheckIn resolves the vehicle, reserves one compatible slot, and opens a
	// ticket as a single atomic unit.
	CheckIn(ctx context.Context, input CheckInInput) (models.Ticket, error)
	// CheckOut closes an open ticket, computes its fee, and releases the slot.
	CheckOut(ctx context.Context, input CheckOutInput) (models.Ticket, error)
	GetTicket(ctx context.Context, ticketID int64) (models.Ticket, error)
	ListActive(ctx context.Context) ([]models.Ticket, error)

	CreateLot(ctx context.Context, name string) (models.Lot, error)
	ListLots(ctx context.Context) ([]models.Lot, error)
	DeleteLot(ctx context.Context, lotID int64) error
	AddLevel(ctx context.Context, lotID int64, floorNumber int) (models.Level, error)
	DeleteLevel(ctx context.Context, levelID int64) error
	AddSlot(ctx context.Context, levelID int64, slotNumber, slotClass string) (models.Slot, error)
	ListSlots(ctx context.Context, levelID int64) ([]models.Slot, error)
	DeleteSlot(ctx context.Context, slotID int64) error
	// SetSlotAvailability flips the maintenance flag; marking an occupied slot
	// unavailable is rejected with ErrOccupied.
	SetSlotAvailability(ctx context.Context, slotID int64, available bool) (models.Slot, error)
}
