package reconcile

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lukasbrandt/advisory-backend/internal/models"
	"gorm.io/gorm"
)

const (
	// matchWindowDays bounds how far apart an activity and an event may be.
	matchWindowDays = 3.0
	// matchThreshold is exclusive: a score of exactly 0.5 is rejected.
	matchThreshold = 0.5
)

// MatchActivity is the matcher's view of an unmatched activity.
type MatchActivity struct {
	ID          string
	LeadEmail   string
	DateCreated time.Time
}

// MatchEvent is the matcher's view of a claimable scheduling event.
type MatchEvent struct {
	ID           string
	InviteeEmail string
	StartTime    time.Time
}

// Match is one accepted activity-event pairing.
type Match struct {
	ActivityID string
	EventID    string
	Score      float64
	Reason     string
}

// MatchActivities pairs activities with scheduling events. Emails must match
// case-insensitively; the score decays linearly with the day distance and
// only scores above the threshold are accepted. Matching is a single greedy
// pass: an event claimed by an earlier activity is gone for later ones.
func MatchActivities(activities []MatchActivity, events []MatchEvent) (matches []Match, evaluated int) {
	claimed := make(map[string]struct{})
	for _, activity := range activities {
		email := strings.ToLower(strings.TrimSpace(activity.LeadEmail))
		if email == "" {
			continue
		}
		var best *Match
		for _, event := range events {
			if _, taken := claimed[event.ID]; taken {
				continue
			}
			if strings.ToLower(strings.TrimSpace(event.InviteeEmail)) != email {
				continue
			}
			evaluated++
			diffDays := activity.DateCreated.Sub(event.StartTime).Hours() / 24
			if diffDays < 0 {
				diffDays = -diffDays
			}
			if diffDays > matchWindowDays {
				continue
			}
			score := 1 - diffDays/matchWindowDays
			if score < 0 {
				score = 0
			}
			if score <= matchThreshold {
				continue
			}
			if best == nil || score > best.Score {
				best = &Match{
					ActivityID: activity.ID,
					EventID:    event.ID,
					Score:      score,
					Reason:     fmt.Sprintf("email match, %.1f days difference", diffDays),
				}
			}
		}
		if best != nil {
			claimed[best.EventID] = struct{}{}
			matches = append(matches, *best)
		}
	}
	return matches, evaluated
}

// MatchSummary reports one matching pass.
type MatchSummary struct {
	Matched             int `json:"matched"`
	CandidatesEvaluated int `json:"candidates_evaluated"`
}

// Matcher links CRM activities to the scheduling events they refer to.
// Links are write-once; a matched activity is never revisited.
type Matcher struct {
	db  *gorm.DB
	now func() time.Time
}

func NewMatcher(db *gorm.DB) *Matcher {
	return &Matcher{db: db, now: time.Now}
}

// Run matches all currently unmatched activities and persists the accepted
// links together with their audit rows.
func (m *Matcher) Run() (MatchSummary, error) {
	var activities []models.CustomActivity
	if err := m.db.
		Where("calendly_event_id IS NULL").
		Where("lead_email IS NOT NULL AND lead_email <> ''").
		Order("date_created DESC").
		Limit(1000).
		Find(&activities).Error; err != nil {
		return MatchSummary{}, fmt.Errorf("loading unmatched activities: %w", err)
	}
	if len(activities) == 0 {
		return MatchSummary{}, nil
	}

	var events []models.SchedulingEvent
	if err := m.db.
		Where("id NOT IN (?)", m.db.Model(&models.CustomActivity{}).
			Select("calendly_event_id").
			Where("calendly_event_id IS NOT NULL")).
		Find(&events).Error; err != nil {
		return MatchSummary{}, fmt.Errorf("loading candidate events: %w", err)
	}

	candidates := make([]MatchActivity, 0, len(activities))
	for _, a := range activities {
		candidates = append(candidates, MatchActivity{
			ID:          a.ID,
			LeadEmail:   deref(a.LeadEmail),
			DateCreated: a.DateCreated,
		})
	}
	pool := make([]MatchEvent, 0, len(events))
	for _, e := range events {
		pool = append(pool, MatchEvent{
			ID:           e.ID,
			InviteeEmail: e.InviteeEmail,
			StartTime:    e.StartTime,
		})
	}

	matches, evaluated := MatchActivities(candidates, pool)
	now := m.now()
	for _, match := range matches {
		updates := map[string]interface{}{
			"calendly_event_id": match.EventID,
			"match_confidence":  match.Score,
			"matched_at":        now,
		}
		if err := m.db.Model(&models.CustomActivity{}).
			Where("id = ?", match.ActivityID).
			Updates(updates).Error; err != nil {
			return MatchSummary{}, fmt.Errorf("linking activity %s: %w", match.ActivityID, err)
		}
		audit := models.ActivityMatch{
			ID:         uuid.New(),
			ActivityID: match.ActivityID,
			EventID:    match.EventID,
			Score:      match.Score,
			Reason:     match.Reason,
		}
		if err := m.db.Create(&audit).Error; err != nil {
			return MatchSummary{}, fmt.Errorf("recording match for %s: %w", match.ActivityID, err)
		}
	}
	return MatchSummary{Matched: len(matches), CandidatesEvaluated: evaluated}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
