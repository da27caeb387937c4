package reconcile

import "errors"

var (
	// ErrSyncAlreadyRunning is returned when a sync is requested while one
	// is still in flight. At most one sync runs at a time.
	ErrSyncAlreadyRunning = errors.New("sync already running")

	// ErrLeadUnknown is returned when an appointment observation references
	// a lead that has not been synced locally yet.
	ErrLeadUnknown = errors.New("lead not known locally")
)
