package store

import "errors"

var (
	ErrClassMismatch   = errors.New("plate registered under a different vehicle class")
	ErrVehicleParked   = errors.New("vehicle already has an open ticket")
	ErrNoAvailableSlot = errors.New("no compatible slot available")
	ErrTicketNotFound  = errors.New("ticket not found")
	ErrTicketClosed    = errors.New("ticket already closed")
	ErrLotNotFound     = errors.New("parking lot not found")
	ErrLevelNotFound   = errors.New("level not found")
	ErrSlotNotFound    = errors.New("slot not found")
	ErrOccupied        = errors.New("slot currently occupied")
)
