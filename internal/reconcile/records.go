package reconcile

import "time"

// Input records for the upsert layer. The orchestrator maps upstream payloads
// into these; the store never sees wire types.

type UserRecord struct {
	CloseUserID string
	Name        string
	Email       string
}

type LeadRecord struct {
	CloseLeadID    string
	Name           string
	Email          string
	Phone          string
	Status         string
	FirstContactAt *time.Time
	OwnerCloseID   string
}

type CallRecord struct {
	CloseCallID string
	UserCloseID string
	LeadCloseID string
	Direction   string
	Status      string
	Disposition string
	Duration    int
	CallDate    time.Time
	Note        string
}

type EventRecord struct {
	URI           string
	EventTypeName string
	MappedType    string
	StartTime     time.Time
	EndTime       time.Time
	Canceled      bool
	HostName      string
	HostEmail     string
	InviteeName   string
	InviteeEmail  string
}

type ActivityRecord struct {
	CloseActivityID string
	ActivityType    string
	ActivityTypeID  string
	ResultFieldID   string
	ResultValue     *string
	LeadCloseID     string
	UserCloseID     string
	CustomFields    map[string]string
	DateCreated     time.Time
	DateUpdated     time.Time
}

// AppointmentRecord is one appointment observation derived from a CRM lead's
// meeting fields or from an opportunity stage. CRM observations carry no
// cancellation signal; cancellations arrive from scheduling events and are
// propagated onto appointments after the linking pass.
type AppointmentRecord struct {
	LeadCloseID   string
	UserCloseID   string
	Type          string
	Date          time.Time
	Result        string
	ResultDetails string
}
