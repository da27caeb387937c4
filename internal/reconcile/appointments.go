package reconcile

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lukasbrandt/advisory-backend/internal/models"
	"gorm.io/gorm"
)

// AppointmentID builds the deterministic appointment key from the lead's
// upstream id, the appointment type and the booked date.
func AppointmentID(leadCloseID, appointmentType string, date time.Time) string {
	return fmt.Sprintf("apt_%s_%s_%s", leadCloseID, appointmentType, date.UTC().Format("20060102"))
}

// DeriveStatus maps an observation to a lifecycle status. Cancellation wins
// over everything; a recorded result means the appointment took place; a
// future date without result is planned; a past date without result is a
// no-show.
func DeriveStatus(date time.Time, result string, canceled bool, now time.Time) string {
	switch {
	case canceled:
		return models.StatusAbgesagtKunde
	case result != "":
		return models.StatusStattgefunden
	case !date.Before(now):
		return models.StatusGeplant
	default:
		return models.StatusNoShow
	}
}

// Tracker applies appointment observations to the canonical tables,
// detecting reschedules and writing the append-only history ledger.
type Tracker struct {
	db  *gorm.DB
	now func() time.Time
}

func NewTracker(db *gorm.DB) *Tracker {
	return &Tracker{db: db, now: time.Now}
}

func (t *Tracker) WithDB(db *gorm.DB) *Tracker {
	return &Tracker{db: db, now: t.now}
}

// Apply upserts one appointment observation.
//
// Resolution order:
//  1. A row with the exact deterministic id exists: if the incoming date
//     matches its current date this is the same booking seen again (in-place
//     update); a differing date means the booking moved back onto a
//     previously recorded date (reschedule).
//  2. An open appointment (planned or customer-rescheduled, no result yet)
//     exists for the same lead and type: same date means a re-sync of an
//     already-applied move (in-place update); a differing date is a
//     reschedule.
//  3. Otherwise it is a new booking.
//
// Only a genuine date change appends history and increments the reschedule
// count; re-syncing unchanged upstream data writes neither.
func (t *Tracker) Apply(rec AppointmentRecord) (created, rescheduled bool, err error) {
	leadID, err := t.leadID(rec.LeadCloseID)
	if err != nil {
		return false, false, err
	}
	userID := t.userID(rec.UserCloseID)

	now := t.now()
	// CRM observations never assert cancellation; that arrives through linked
	// scheduling events (Store.PropagateEventCancellations).
	status := DeriveStatus(rec.Date, rec.Result, false, now)
	id := AppointmentID(rec.LeadCloseID, rec.Type, rec.Date)

	var existing models.Appointment
	err = t.db.Where("id = ?", id).First(&existing).Error
	switch {
	case err == nil:
		if !sameInstant(rec.Date, existing.CurrentDate) {
			// Moved back onto the originally booked date.
			return false, true, t.reschedule(&existing, rec, status, userID, now)
		}
		return false, false, t.updateInPlace(&existing, rec, status, userID)
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return false, false, err
	}

	open, err := t.findOpen(leadID, rec.Type)
	if err != nil {
		return false, false, err
	}
	if open != nil {
		if sameInstant(rec.Date, open.CurrentDate) {
			// Re-sync of a move that was already applied.
			return false, false, t.updateInPlace(open, rec, status, userID)
		}
		return false, true, t.reschedule(open, rec, status, userID, now)
	}

	appointment := models.Appointment{
		ID:            id,
		LeadID:        *leadID,
		UserID:        userID,
		Type:          rec.Type,
		OriginalDate:  rec.Date,
		CurrentDate:   rec.Date,
		Status:        status,
		Result:        rec.Result,
		ResultDetails: rec.ResultDetails,
	}
	if err := t.db.Create(&appointment).Error; err != nil {
		return false, false, fmt.Errorf("creating appointment %s: %w", id, err)
	}
	history := models.AppointmentHistory{
		ID:            uuid.New(),
		AppointmentID: id,
		Action:        models.HistoryBooked,
		NewDate:       rec.Date,
		ChangedAt:     now,
	}
	if err := t.db.Create(&history).Error; err != nil {
		return false, false, fmt.Errorf("recording booking of %s: %w", id, err)
	}
	return true, false, nil
}

// updateInPlace refreshes status and result without touching dates, the
// reschedule count, or the history ledger.
func (t *Tracker) updateInPlace(app *models.Appointment, rec AppointmentRecord, status string, userID *uuid.UUID) error {
	// A rescheduled appointment awaiting its new date must not drift back
	// to plain "planned".
	if status == models.StatusGeplant && app.Status == models.StatusVerschobenKunde {
		status = app.Status
	}
	updates := map[string]interface{}{
		"status":         status,
		"result":         rec.Result,
		"result_details": rec.ResultDetails,
		"user_id":        userID,
	}
	if err := t.db.Model(app).Updates(updates).Error; err != nil {
		return fmt.Errorf("updating appointment %s: %w", app.ID, err)
	}
	return nil
}

// reschedule moves an appointment's current date, appends the history row
// and increments the counter. OriginalDate is never touched.
func (t *Tracker) reschedule(app *models.Appointment, rec AppointmentRecord, status string, userID *uuid.UUID, now time.Time) error {
	if status == models.StatusGeplant {
		status = models.StatusVerschobenKunde
	}
	oldDate := app.CurrentDate
	updates := map[string]interface{}{
		"current_date":     rec.Date,
		"status":           status,
		"result":           rec.Result,
		"result_details":   rec.ResultDetails,
		"reschedule_count": app.RescheduleCount + 1,
		"user_id":          userID,
	}
	if err := t.db.Model(app).Updates(updates).Error; err != nil {
		return fmt.Errorf("rescheduling appointment %s: %w", app.ID, err)
	}
	history := models.AppointmentHistory{
		ID:            uuid.New(),
		AppointmentID: app.ID,
		Action:        models.HistoryRescheduled,
		OldDate:       &oldDate,
		NewDate:       rec.Date,
		ChangedAt:     now,
	}
	if err := t.db.Create(&history).Error; err != nil {
		return fmt.Errorf("recording reschedule of %s: %w", app.ID, err)
	}
	return nil
}

// findOpen returns the lead's open appointment of the given type, or nil.
// Open means still awaiting its date: planned or already rescheduled, and
// without a recorded result.
func (t *Tracker) findOpen(leadID *uuid.UUID, appointmentType string) (*models.Appointment, error) {
	var open models.Appointment
	err := t.db.
		Where("lead_id = ? AND type = ?", leadID, appointmentType).
		Where("status IN ?", []string{models.StatusGeplant, models.StatusVerschobenKunde}).
		Where("result = ''").
		Order(`"current_date" DESC`).
		First(&open).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &open, nil
}

func (t *Tracker) leadID(closeLeadID string) (*uuid.UUID, error) {
	var lead models.Lead
	if err := t.db.Select("id").Where("close_lead_id = ?", closeLeadID).First(&lead).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrLeadUnknown, closeLeadID)
		}
		return nil, err
	}
	return &lead.ID, nil
}

func (t *Tracker) userID(closeUserID string) *uuid.UUID {
	if closeUserID == "" {
		return nil
	}
	var user models.User
	if err := t.db.Select("id").Where("close_user_id = ?", closeUserID).First(&user).Error; err != nil {
		return nil
	}
	return &user.ID
}

// sameInstant compares to the second; sub-second noise from storage
// round-trips must not read as a date change.
func sameInstant(a, b time.Time) bool {
	return a.Unix() == b.Unix()
}
