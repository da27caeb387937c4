package reconcile

import (
	"time"

	"github.com/lukasbrandt/advisory-backend/internal/closeapi"
	"github.com/lukasbrandt/advisory-backend/internal/models"
)

// AppointmentFromLead derives the first-meeting appointment from a lead's
// custom fields. Returns ok=false when the lead carries no meeting date.
func AppointmentFromLead(lead closeapi.Lead) (AppointmentRecord, bool) {
	raw := lead.Custom[closeapi.FirstMeetingDateFieldID]
	if raw == "" {
		return AppointmentRecord{}, false
	}
	date, ok := parseFieldDate(raw)
	if !ok {
		return AppointmentRecord{}, false
	}
	return AppointmentRecord{
		LeadCloseID: lead.ID,
		UserCloseID: lead.OwnerID(),
		Type:        models.AppointmentErstgespraech,
		Date:        date,
		Result:      lead.Custom[closeapi.FirstMeetingResultFieldID],
	}, true
}

// AppointmentsFromOpportunities derives concept and implementation
// appointments from opportunity pipeline stages. Only stages with a known
// mapping produce a record; stages beyond "planned" imply the meeting
// happened.
func AppointmentsFromOpportunities(opps []closeapi.Opportunity, leadOwner func(leadCloseID string) string) []AppointmentRecord {
	var records []AppointmentRecord
	for _, opp := range opps {
		if opp.DateCreated == nil {
			continue
		}
		var appointmentType, result string
		switch opp.StatusID {
		case closeapi.StageKonzeptGeplant:
			appointmentType = models.AppointmentKonzept
		case closeapi.StageKonzeptAbsolviert:
			appointmentType = models.AppointmentKonzept
			result = "absolviert"
		case closeapi.StageUmsetzungGeplant:
			appointmentType = models.AppointmentUmsetzung
		case closeapi.StageUmsetzungWon:
			appointmentType = models.AppointmentUmsetzung
			result = "gewonnen"
		default:
			continue
		}
		records = append(records, AppointmentRecord{
			LeadCloseID:   opp.LeadID,
			UserCloseID:   leadOwner(opp.LeadID),
			Type:          appointmentType,
			Date:          *opp.DateCreated,
			Result:        result,
			ResultDetails: opp.StatusLabel,
		})
	}
	return records
}

// parseFieldDate accepts the date formats Close stores in custom fields.
func parseFieldDate(raw string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
