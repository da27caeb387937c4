package calendly

import (
	"strings"

	"github.com/lukasbrandt/advisory-backend/internal/models"
)

// MapEventType classifies an event type name into an appointment type by
// keyword. Unrecognized names fall back to "sonstiges".
func MapEventType(eventName string) string {
	lower := strings.ToLower(eventName)

	switch {
	case containsAny(lower, "erstgespräch", "erstberatung", "initial"):
		return models.AppointmentErstgespraech
	case containsAny(lower, "konzept", "concept"):
		return models.AppointmentKonzept
	case containsAny(lower, "umsetzung", "implementation"):
		return models.AppointmentUmsetzung
	case containsAny(lower, "service", "beratung"):
		return models.AppointmentService
	default:
		return models.AppointmentSonstiges
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
