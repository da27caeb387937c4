package reconcile

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lukasbrandt/advisory-backend/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Store is the idempotent upsert layer over the canonical tables. Lookups go
// strictly through upstream-unique keys, never names or emails; unresolved
// foreign references are stored as NULL and heal on later syncs.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// WithDB returns a store bound to another handle, typically a transaction.
func (s *Store) WithDB(db *gorm.DB) *Store {
	return &Store{db: db, now: s.now}
}

func (s *Store) DB() *gorm.DB { return s.db }

// UpsertUser creates or updates a user by its upstream id. Users are never
// deleted.
func (s *Store) UpsertUser(rec UserRecord) (uuid.UUID, bool, error) {
	var existing models.User
	err := s.db.Where("close_user_id = ?", rec.CloseUserID).First(&existing).Error
	switch {
	case err == nil:
		updates := map[string]interface{}{"name": rec.Name, "email": rec.Email}
		if err := s.db.Model(&existing).Updates(updates).Error; err != nil {
			return uuid.Nil, false, fmt.Errorf("updating user %s: %w", rec.CloseUserID, err)
		}
		return existing.ID, true, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		closeID := rec.CloseUserID
		user := models.User{
			ID:          uuid.New(),
			CloseUserID: &closeID,
			Name:        rec.Name,
			Email:       rec.Email,
		}
		if err := s.db.Create(&user).Error; err != nil {
			return uuid.Nil, false, fmt.Errorf("creating user %s: %w", rec.CloseUserID, err)
		}
		return user.ID, true, nil
	default:
		return uuid.Nil, false, err
	}
}

// EnsureUnknownUser returns the fallback user owning calls with no resolvable
// upstream user, creating it on first use.
func (s *Store) EnsureUnknownUser() (uuid.UUID, error) {
	id, _, err := s.UpsertUser(UserRecord{
		CloseUserID: models.UnknownCloseUserID,
		Name:        "Nicht zugeordnet",
	})
	return id, err
}

// UpsertLead creates or updates a lead by its upstream id.
func (s *Store) UpsertLead(rec LeadRecord) (uuid.UUID, bool, error) {
	ownerID := s.UserIDByCloseID(rec.OwnerCloseID)

	var existing models.Lead
	err := s.db.Where("close_lead_id = ?", rec.CloseLeadID).First(&existing).Error
	switch {
	case err == nil:
		updates := map[string]interface{}{
			"name":             rec.Name,
			"email":            rec.Email,
			"phone":            rec.Phone,
			"status":           rec.Status,
			"first_contact_at": rec.FirstContactAt,
			"user_id":          ownerID,
		}
		if err := s.db.Model(&existing).Updates(updates).Error; err != nil {
			return uuid.Nil, false, fmt.Errorf("updating lead %s: %w", rec.CloseLeadID, err)
		}
		return existing.ID, true, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		lead := models.Lead{
			ID:             uuid.New(),
			CloseLeadID:    rec.CloseLeadID,
			Name:           rec.Name,
			Email:          rec.Email,
			Phone:          rec.Phone,
			Status:         rec.Status,
			FirstContactAt: rec.FirstContactAt,
			UserID:         ownerID,
		}
		if err := s.db.Create(&lead).Error; err != nil {
			return uuid.Nil, false, fmt.Errorf("creating lead %s: %w", rec.CloseLeadID, err)
		}
		return lead.ID, true, nil
	default:
		return uuid.Nil, false, err
	}
}

// UpsertCall creates or updates a call by its upstream id. The user falls
// back to the unknown-user row; the lead reference stays NULL until the lead
// is known locally.
func (s *Store) UpsertCall(rec CallRecord) (uuid.UUID, bool, error) {
	userID := s.UserIDByCloseID(rec.UserCloseID)
	if userID == nil {
		unknown, err := s.EnsureUnknownUser()
		if err != nil {
			return uuid.Nil, false, err
		}
		userID = &unknown
	}
	leadID := s.LeadIDByCloseID(rec.LeadCloseID)

	values := map[string]interface{}{
		"user_id":     userID,
		"lead_id":     leadID,
		"direction":   rec.Direction,
		"status":      rec.Status,
		"disposition": rec.Disposition,
		"duration":    rec.Duration,
		"call_date":   rec.CallDate,
		"note":        rec.Note,
		"synced_at":   s.now(),
	}

	var existing models.Call
	err := s.db.Where("close_call_id = ?", rec.CloseCallID).First(&existing).Error
	switch {
	case err == nil:
		if err := s.db.Model(&existing).Updates(values).Error; err != nil {
			return uuid.Nil, false, fmt.Errorf("updating call %s: %w", rec.CloseCallID, err)
		}
		return existing.ID, true, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		call := models.Call{
			ID:          uuid.New(),
			CloseCallID: rec.CloseCallID,
			UserID:      userID,
			LeadID:      leadID,
			Direction:   rec.Direction,
			Status:      rec.Status,
			Disposition: rec.Disposition,
			Duration:    rec.Duration,
			CallDate:    rec.CallDate,
			Note:        rec.Note,
			SyncedAt:    s.now(),
		}
		if err := s.db.Create(&call).Error; err != nil {
			return uuid.Nil, false, fmt.Errorf("creating call %s: %w", rec.CloseCallID, err)
		}
		return call.ID, true, nil
	default:
		return uuid.Nil, false, err
	}
}

// UpsertEvent creates or updates a scheduling event keyed by its URI. The
// lead link is resolved by invitee email, case-insensitively.
func (s *Store) UpsertEvent(rec EventRecord) (string, bool, error) {
	var leadID *uuid.UUID
	if rec.InviteeEmail != "" {
		leadID = s.LeadIDByEmail(rec.InviteeEmail)
	}

	status := models.EventActive
	if rec.Canceled {
		status = models.EventCanceled
	}

	values := map[string]interface{}{
		"event_type_name": rec.EventTypeName,
		"mapped_type":     rec.MappedType,
		"start_time":      rec.StartTime,
		"end_time":        rec.EndTime,
		"status":          status,
		"host_name":       rec.HostName,
		"host_email":      rec.HostEmail,
		"invitee_name":    rec.InviteeName,
		"invitee_email":   rec.InviteeEmail,
		"lead_id":         leadID,
		"synced_at":       s.now(),
	}

	var existing models.SchedulingEvent
	err := s.db.Where("calendly_event_uri = ?", rec.URI).First(&existing).Error
	switch {
	case err == nil:
		if err := s.db.Model(&existing).Updates(values).Error; err != nil {
			return "", false, fmt.Errorf("updating event %s: %w", rec.URI, err)
		}
		return existing.ID, true, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		event := models.SchedulingEvent{
			ID:               EventID(rec.URI),
			CalendlyEventURI: rec.URI,
			EventTypeName:    rec.EventTypeName,
			MappedType:       rec.MappedType,
			StartTime:        rec.StartTime,
			EndTime:          rec.EndTime,
			Status:           status,
			HostName:         rec.HostName,
			HostEmail:        rec.HostEmail,
			InviteeName:      rec.InviteeName,
			InviteeEmail:     rec.InviteeEmail,
			LeadID:           leadID,
			SyncedAt:         s.now(),
		}
		if err := s.db.Create(&event).Error; err != nil {
			return "", false, fmt.Errorf("creating event %s: %w", rec.URI, err)
		}
		return event.ID, true, nil
	default:
		return "", false, err
	}
}

// UpsertActivity creates or updates a custom activity. The upsert is
// incremental: when neither the result value nor date_updated moved, nothing
// is written and changed=false is reported.
func (s *Store) UpsertActivity(rec ActivityRecord) (string, bool, error) {
	leadEmail, leadName := s.leadSnapshot(rec.LeadCloseID)
	userEmail, userName := s.userSnapshot(rec.UserCloseID)

	var customJSON datatypes.JSON
	if len(rec.CustomFields) > 0 {
		if b, err := json.Marshal(rec.CustomFields); err == nil {
			customJSON = datatypes.JSON(b)
		}
	}

	var existing models.CustomActivity
	err := s.db.Where("close_activity_id = ?", rec.CloseActivityID).First(&existing).Error
	switch {
	case err == nil:
		if eqStrPtr(existing.ResultValue, rec.ResultValue) && existing.DateUpdated.Equal(rec.DateUpdated) {
			return existing.ID, false, nil
		}
		updates := map[string]interface{}{
			"activity_type": rec.ActivityType,
			"result_value":  rec.ResultValue,
			"lead_email":    leadEmail,
			"lead_name":     leadName,
			"user_email":    userEmail,
			"user_name":     userName,
			"custom_fields": customJSON,
			"date_updated":  rec.DateUpdated,
			"synced_at":     s.now(),
		}
		if err := s.db.Model(&existing).Updates(updates).Error; err != nil {
			return "", false, fmt.Errorf("updating activity %s: %w", rec.CloseActivityID, err)
		}
		return existing.ID, true, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		var userCloseID *string
		if rec.UserCloseID != "" {
			id := rec.UserCloseID
			userCloseID = &id
		}
		activity := models.CustomActivity{
			ID:              "ca_" + rec.CloseActivityID,
			CloseActivityID: rec.CloseActivityID,
			ActivityType:    rec.ActivityType,
			ActivityTypeID:  rec.ActivityTypeID,
			ResultFieldID:   rec.ResultFieldID,
			ResultValue:     rec.ResultValue,
			LeadCloseID:     rec.LeadCloseID,
			LeadEmail:       leadEmail,
			LeadName:        leadName,
			UserCloseID:     userCloseID,
			UserEmail:       userEmail,
			UserName:        userName,
			CustomFields:    customJSON,
			DateCreated:     rec.DateCreated,
			DateUpdated:     rec.DateUpdated,
			SyncedAt:        s.now(),
		}
		if err := s.db.Create(&activity).Error; err != nil {
			return "", false, fmt.Errorf("creating activity %s: %w", rec.CloseActivityID, err)
		}
		return activity.ID, true, nil
	default:
		return "", false, err
	}
}

// DeleteEventsAbsent hard-deletes events in the window whose URI is missing
// from the fetched set. Callers must only invoke this after a complete,
// non-partial fetch of that window.
func (s *Store) DeleteEventsAbsent(fetchedURIs map[string]struct{}, from, to time.Time) (int64, error) {
	var local []models.SchedulingEvent
	if err := s.db.Select("id", "calendly_event_uri").
		Where("start_time >= ? AND start_time <= ?", from, to).
		Find(&local).Error; err != nil {
		return 0, fmt.Errorf("loading local events in window: %w", err)
	}

	var ids []string
	for _, e := range local {
		if _, ok := fetchedURIs[e.CalendlyEventURI]; !ok {
			ids = append(ids, e.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}

	result := s.db.Where("id IN ?", ids).Delete(&models.SchedulingEvent{})
	if result.Error != nil {
		return 0, fmt.Errorf("deleting absent events: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// LinkAppointmentsToEvents connects appointments to the scheduling event that
// booked them: same lead, same mapped type, same calendar day. Existing links
// are left alone.
func (s *Store) LinkAppointmentsToEvents() (int64, error) {
	var events []models.SchedulingEvent
	if err := s.db.Where("lead_id IS NOT NULL").Find(&events).Error; err != nil {
		return 0, fmt.Errorf("loading linkable events: %w", err)
	}

	var linked int64
	for _, event := range events {
		start := event.StartTime.UTC()
		dayStart := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
		result := s.db.Model(&models.Appointment{}).
			Where("lead_id = ? AND type = ?", event.LeadID, event.MappedType).
			Where(`"current_date" >= ? AND "current_date" < ?`, dayStart, dayStart.AddDate(0, 0, 1)).
			Where("calendly_event_id IS NULL").
			Update("calendly_event_id", event.ID)
		if result.Error != nil {
			return linked, fmt.Errorf("linking appointments to event %s: %w", event.ID, result.Error)
		}
		linked += result.RowsAffected
	}
	return linked, nil
}

// PropagateEventCancellations marks appointments whose linked scheduling
// event was canceled upstream as abgesagt_kunde. Appointments that already
// took place or were already canceled keep their state.
func (s *Store) PropagateEventCancellations() (int64, error) {
	result := s.db.Model(&models.Appointment{}).
		Where("calendly_event_id IN (?)",
			s.db.Model(&models.SchedulingEvent{}).Select("id").Where("status = ?", models.EventCanceled)).
		Where("status NOT IN ?", []string{models.StatusAbgesagtKunde, models.StatusStattgefunden}).
		Update("status", models.StatusAbgesagtKunde)
	if result.Error != nil {
		return 0, fmt.Errorf("propagating event cancellations: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// UserIDByCloseID resolves a local user by upstream id; nil when unknown.
func (s *Store) UserIDByCloseID(closeID string) *uuid.UUID {
	if closeID == "" {
		return nil
	}
	var user models.User
	if err := s.db.Select("id").Where("close_user_id = ?", closeID).First(&user).Error; err != nil {
		return nil
	}
	return &user.ID
}

// LeadIDByCloseID resolves a local lead by upstream id; nil when unknown.
func (s *Store) LeadIDByCloseID(closeID string) *uuid.UUID {
	if closeID == "" {
		return nil
	}
	var lead models.Lead
	if err := s.db.Select("id").Where("close_lead_id = ?", closeID).First(&lead).Error; err != nil {
		return nil
	}
	return &lead.ID
}

// LeadIDByEmail resolves a lead by email, case-insensitively. Emails are not
// unique; the first match wins.
func (s *Store) LeadIDByEmail(email string) *uuid.UUID {
	var lead models.Lead
	if err := s.db.Select("id").
		Where("LOWER(email) = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&lead).Error; err != nil {
		return nil
	}
	return &lead.ID
}

func (s *Store) leadSnapshot(closeLeadID string) (email, name *string) {
	if closeLeadID == "" {
		return nil, nil
	}
	var lead models.Lead
	if err := s.db.Select("email", "name").Where("close_lead_id = ?", closeLeadID).First(&lead).Error; err != nil {
		return nil, nil
	}
	if lead.Email != "" {
		email = &lead.Email
	}
	if lead.Name != "" {
		name = &lead.Name
	}
	return email, name
}

func (s *Store) userSnapshot(closeUserID string) (email, name *string) {
	if closeUserID == "" {
		return nil, nil
	}
	var user models.User
	if err := s.db.Select("email", "name").Where("close_user_id = ?", closeUserID).First(&user).Error; err != nil {
		return nil, nil
	}
	if user.Email != "" {
		email = &user.Email
	}
	if user.Name != "" {
		name = &user.Name
	}
	return email, name
}

// EventID derives the local event id from the upstream event URI.
func EventID(uri string) string {
	tail := uri
	if idx := strings.LastIndex(uri, "/"); idx >= 0 {
		tail = uri[idx+1:]
	}
	return "cal_" + tail
}

func newUUID() uuid.UUID { return uuid.New() }

func isNotFound(err error) bool { return errors.Is(err, gorm.ErrRecordNotFound) }

func eqStrPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
