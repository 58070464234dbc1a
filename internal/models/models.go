package models

import "time"

const (
	VehicleMotorcycle = "motorcycle"
	VehicleCar        = "car"
	VehicleTruck      = "truck"
)

const (
	SlotMotorcycle = "motorcycle"
	SlotCompact    = "compact"
	SlotLarge      = "large"
	SlotAccessible = "accessible"
)

const (
	StatusOpen   = "open"
	StatusClosed = "closed"
)

// MaxPlateLength bounds license plates at the request boundary and in the schema.
const MaxPlateLength = 20

type Vehicle struct {
	Plate     string    `json:"plate"`
	Class     string    `json:"class"`
	CreatedAt time.Time `json:"created_at"`
}

type Lot struct {
	LotID int64  `json:"lot_id"`
	Name  string `json:"name"`
}

type Level struct {
	LevelID     int64 `json:"level_id"`
	LotID       int64 `json:"lot_id"`
	FloorNumber int   `json:"floor_number"`
}

type Slot struct {
	SlotID     int64  `json:"slot_id"`
	LevelID    int64  `json:"level_id"`
	SlotNumber string `json:"slot_number"`
	Class      string `json:"class"`
	Available  bool   `json:"available"`
}

// Ticket carries a snapshot of the slot number and level floor taken at
// check-in, so closed-ticket history survives later slot removal.
type Ticket struct {
	TicketID     int64      `json:"ticket_id"`
	Plate        string     `json:"plate"`
	VehicleClass string     `json:"vehicle_class"`
	SlotID       int64      `json:"slot_id"`
	SlotNumber   string     `json:"slot_number"`
	LevelFloor   int        `json:"level_floor"`
	Status       string     `json:"status"`
	EntryAt      time.Time  `json:"entry_at"`
	ExitAt       *time.Time `json:"exit_at,omitempty"`
	FeeCents     *int64     `json:"fee_cents,omitempty"`
}
