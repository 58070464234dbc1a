package pricing

import (
	"errors"
	"time"

	"github.com/Oleksandr-Marchenko/smart-parking-system/internal/models"
)

var (
	ErrInvalidInterval = errors.New("exit time before entry time")
	ErrNoRate          = errors.New("no rate configured for vehicle class")
)

// Engine maps vehicle classes to hourly rates in cents. Fees stay in integer
// minor units so billing arithmetic is exact.
type Engine struct {
	rates map[string]int64
}

func DefaultRates() map[string]int64 {
	return map[string]int64{
		models.VehicleMotorcycle: 100,
		models.VehicleCar:        200,
		models.VehicleTruck:      300,
	}
}

func NewEngine(rates map[string]int64) *Engine {
	if len(rates) == 0 {
		rates = DefaultRates()
	}
	return &Engine{rates: rates}
}

// Fee bills whole hours rounded up, with a minimum of one hour for any stay.
func (e *Engine) Fee(vehicleClass string, entry, exit time.Time) (int64, error) {
	if exit.Before(entry) {
		return 0, ErrInvalidInterval
	}
	rate, ok := e.rates[vehicleClass]
	if !ok {
		return 0, ErrNoRate
	}
	minutes := int64(exit.Sub(entry) / time.Minute)
	return rate * BillableHours(minutes), nil
}

func BillableHours(minutes int64) int64 {
	hours := (minutes + 59) / 60
	if hours == 0 {
		hours = 1
	}
	return hours
}
