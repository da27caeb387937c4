package reconcile

import (
	"fmt"
	"time"

	"github.com/lukasbrandt/advisory-backend/internal/models"
	"gorm.io/datatypes"
)

// CreateSyncRun opens a run row before the first resource is touched so a
// crashed run is still visible.
func (s *Store) CreateSyncRun(trigger string) (*models.SyncRun, error) {
	run := &models.SyncRun{
		ID:        newUUID(),
		Trigger:   trigger,
		StartedAt: s.now(),
	}
	if err := s.db.Create(run).Error; err != nil {
		return nil, fmt.Errorf("creating sync run: %w", err)
	}
	return run, nil
}

// FinishSyncRun closes a run with its per-resource and matching reports.
func (s *Store) FinishSyncRun(run *models.SyncRun, partial bool, resources, matching datatypes.JSON, runErr error) error {
	finished := s.now()
	updates := map[string]interface{}{
		"finished_at": &finished,
		"partial":     partial,
		"resources":   resources,
		"matching":    matching,
	}
	if runErr != nil {
		updates["error"] = runErr.Error()
	}
	if err := s.db.Model(run).Updates(updates).Error; err != nil {
		return fmt.Errorf("finishing sync run: %w", err)
	}
	return nil
}

// RecentRuns returns the newest runs first.
func (s *Store) RecentRuns(limit int) ([]models.SyncRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var runs []models.SyncRun
	if err := s.db.Order("started_at DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("loading sync runs: %w", err)
	}
	return runs, nil
}

// LatestRun returns the newest run, or nil when none exist.
func (s *Store) LatestRun() (*models.SyncRun, error) {
	var run models.SyncRun
	err := s.db.Order("started_at DESC").First(&run).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading latest sync run: %w", err)
	}
	return &run, nil
}

// MatchedActivities returns activities linked to a scheduling event, newest
// links first.
func (s *Store) MatchedActivities(since *time.Time, limit int) ([]models.CustomActivity, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := s.db.Where("calendly_event_id IS NOT NULL")
	if since != nil {
		q = q.Where("matched_at >= ?", since)
	}
	var activities []models.CustomActivity
	if err := q.Order("matched_at DESC").Limit(limit).Find(&activities).Error; err != nil {
		return nil, fmt.Errorf("loading matched activities: %w", err)
	}
	return activities, nil
}
