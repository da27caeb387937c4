package closeapi

import (
	"encoding/json"
	"strings"
	"time"
)

// listEnvelope is the common shape of Close list endpoints.
type listEnvelope struct {
	Data    []json.RawMessage `json:"data"`
	HasMore bool              `json:"has_more"`
}

type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
}

// Name builds a display name from whatever the upstream record carries.
func (u User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	if name := strings.TrimSpace(u.FirstName + " " + u.LastName); name != "" {
		return name
	}
	if at := strings.Index(u.Email, "@"); at > 0 {
		return u.Email[:at]
	}
	return ""
}

type Contact struct {
	Name   string `json:"name"`
	Emails []struct {
		Email string `json:"email"`
	} `json:"emails"`
	Phones []struct {
		Phone string `json:"phone"`
	} `json:"phones"`
}

// Lead carries the fields the engine depends on plus the raw "custom.*"
// key-value map keyed by opaque field identifiers.
type Lead struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	DisplayName string     `json:"display_name"`
	StatusLabel string     `json:"status_label"`
	DateCreated *time.Time `json:"date_created"`
	CreatedBy   string     `json:"created_by"`
	AssignedTo  string     `json:"assigned_to"`
	Contacts    []Contact  `json:"contacts"`
	Custom      map[string]string
}

func (l *Lead) UnmarshalJSON(b []byte) error {
	type alias Lead
	var a alias
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*l = Lead(a)
	l.Custom = extractCustomFields(b)
	return nil
}

// Email returns the lead's primary contact email, if any.
func (l *Lead) Email() string {
	for _, c := range l.Contacts {
		for _, e := range c.Emails {
			if e.Email != "" {
				return e.Email
			}
		}
	}
	return ""
}

// Phone returns the lead's primary contact phone, if any.
func (l *Lead) Phone() string {
	for _, c := range l.Contacts {
		for _, p := range c.Phones {
			if p.Phone != "" {
				return p.Phone
			}
		}
	}
	return ""
}

// ContactName prefers the contact's name over the lead display name.
func (l *Lead) ContactName() string {
	for _, c := range l.Contacts {
		if c.Name != "" {
			return c.Name
		}
	}
	if l.Name != "" {
		return l.Name
	}
	return l.DisplayName
}

// OwnerID returns the upstream id of the user owning this lead.
func (l *Lead) OwnerID() string {
	if l.AssignedTo != "" {
		return l.AssignedTo
	}
	return l.CreatedBy
}

type Call struct {
	ID          string     `json:"id"`
	Direction   string     `json:"direction"`
	Status      string     `json:"status"`
	OutcomeID   string     `json:"outcome_id"`
	Duration    int        `json:"duration"`
	DateCreated *time.Time `json:"date_created"`
	ActivityAt  *time.Time `json:"activity_at"`
	CreatedBy   string     `json:"created_by"`
	UserID      string     `json:"user_id"`
	LeadID      string     `json:"lead_id"`
	Note        string     `json:"note"`
	NoteHTML    string     `json:"note_html"`
}

// NormalizedDirection folds upstream "incoming" into "inbound"; everything
// else counts as outbound.
func (c Call) NormalizedDirection() string {
	switch c.Direction {
	case "incoming", "inbound":
		return "inbound"
	default:
		return "outbound"
	}
}

// CallerID returns the upstream id of the user who made the call.
func (c Call) CallerID() string {
	if c.CreatedBy != "" {
		return c.CreatedBy
	}
	return c.UserID
}

// Date picks the best available call timestamp.
func (c Call) Date(fallback time.Time) time.Time {
	if c.DateCreated != nil {
		return *c.DateCreated
	}
	if c.ActivityAt != nil {
		return *c.ActivityAt
	}
	return fallback
}

// Activity is a typed CRM outcome record ("custom activity").
type Activity struct {
	ID                   string     `json:"id"`
	Type                 string     `json:"_type"`
	CustomActivityTypeID string     `json:"custom_activity_type_id"`
	LeadID               string     `json:"lead_id"`
	OpportunityID        string     `json:"opportunity_id"`
	CreatedBy            string     `json:"created_by"`
	UserID               string     `json:"user_id"`
	DateCreated          *time.Time `json:"date_created"`
	DateUpdated          *time.Time `json:"date_updated"`
	Custom               map[string]string
}

func (a *Activity) UnmarshalJSON(b []byte) error {
	type alias Activity
	var aa alias
	if err := json.Unmarshal(b, &aa); err != nil {
		return err
	}
	*a = Activity(aa)
	a.Custom = extractCustomFields(b)
	return nil
}

// CreatorID returns the upstream id of the user who logged the activity.
func (a Activity) CreatorID() string {
	if a.CreatedBy != "" {
		return a.CreatedBy
	}
	return a.UserID
}

// Result looks up the configured outcome field; unknown field ids are simply
// absent.
func (a Activity) Result(resultFieldID string) string {
	return a.Custom[resultFieldID]
}

type Opportunity struct {
	ID          string     `json:"id"`
	LeadID      string     `json:"lead_id"`
	Title       string     `json:"title"`
	Status      string     `json:"status"`
	StatusLabel string     `json:"status_label"`
	StatusID    string     `json:"status_id"`
	DateCreated *time.Time `json:"date_created"`
	DateWon     *string    `json:"date_won"`
}

type outcome struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// extractCustomFields collects the flattened "custom.<field id>" keys Close
// puts next to the regular fields. Non-string values are ignored; the engine
// only consumes string-valued outcome and date fields.
func extractCustomFields(b []byte) map[string]string {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil
	}
	fields := make(map[string]string)
	for k, v := range raw {
		if !strings.HasPrefix(k, "custom.") {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			fields[strings.TrimPrefix(k, "custom.")] = s
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}
