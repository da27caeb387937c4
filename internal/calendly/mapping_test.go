package calendly

import (
	"testing"

	"github.com/lukasbrandt/advisory-backend/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestMapEventType(t *testing.T) {
	cases := map[string]string{
		"Erstgespräch mit Lukas":      models.AppointmentErstgespraech,
		"ERSTBERATUNG":                models.AppointmentErstgespraech,
		"Initial Call":                models.AppointmentErstgespraech,
		"Konzeptgespräch":             models.AppointmentKonzept,
		"Concept Review":              models.AppointmentKonzept,
		"Umsetzungstermin":            models.AppointmentUmsetzung,
		"Implementation Kickoff":      models.AppointmentUmsetzung,
		"Servicegespräch":             models.AppointmentService,
		"Laufende Beratung":           models.AppointmentService,
		"Coffee Chat":                 models.AppointmentSonstiges,
		"":                            models.AppointmentSonstiges,
	}
	for name, want := range cases {
		assert.Equal(t, want, MapEventType(name), "event name %q", name)
	}
}
