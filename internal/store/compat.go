package store

import "github.com/Oleksandr-Marchenko/smart-parking-system/internal/models"

// compatibilityMap lists the slot classes each vehicle class may occupy.
// List order is the allocator's search priority.
var compatibilityMap = map[string][]string{
	models.VehicleMotorcycle: {models.SlotMotorcycle, models.SlotCompact, models.SlotLarge},
	models.VehicleCar:        {models.SlotCompact, models.SlotLarge},
	models.VehicleTruck:      {models.SlotLarge},
}

func CompatibleSlotClasses(vehicleClass string) ([]string, bool) {
	classes, ok := compatibilityMap[vehicleClass]
	return classes, ok
}

func ValidVehicleClass(class string) bool {
	_, ok := compatibilityMap[class]
	return ok
}

func ValidSlotClass(class string) bool {
	switch class {
	case models.SlotMotorcycle, models.SlotCompact, models.SlotLarge, models.SlotAccessible:
		return true
	}
	return false
}
