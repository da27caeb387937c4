package calendly

import "time"

type pagination struct {
	NextPage string `json:"next_page"`
}

type currentUserResponse struct {
	Resource struct {
		URI                 string `json:"uri"`
		Name                string `json:"name"`
		Email               string `json:"email"`
		CurrentOrganization string `json:"current_organization"`
	} `json:"resource"`
}

type membershipList struct {
	Collection []Membership `json:"collection"`
	Pagination pagination   `json:"pagination"`
}

type Membership struct {
	User struct {
		URI   string `json:"uri"`
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"user"`
}

type eventList struct {
	Collection []Event    `json:"collection"`
	Pagination pagination `json:"pagination"`
}

// Event is one scheduled event, enriched with host info from the membership
// it was fetched through and with its invitees.
type Event struct {
	URI       string    `json:"uri"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	HostName  string    `json:"-"`
	HostEmail string    `json:"-"`
	Invitees  []Invitee `json:"-"`
}

type inviteeList struct {
	Collection []Invitee  `json:"collection"`
	Pagination pagination `json:"pagination"`
}

type Invitee struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Status string `json:"status"`
}
