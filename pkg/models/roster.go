package models

import "time"

// RosterEntry is one broker enrolled in the lead rotation
type RosterEntry struct {
	ID            int        `json:"id"`
	BrokerID      string     `json:"brokerId"`
	OrderPosition int        `json:"orderPosition"`
	IsActive      bool       `json:"isActive"`
	LastAssigned  *time.Time `json:"lastAssigned"`
	TotalAssigned int        `json:"totalAssigned"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// RosterListing is a roster entry joined with the broker's identity
type RosterListing struct {
	RosterEntry
	BrokerName  string `json:"brokerName"`
	BrokerEmail string `json:"brokerEmail"`
}

// PositionUpdate moves one roster entry to a new position
type PositionUpdate struct {
	ID            int `json:"id" validate:"required,min=1"`
	OrderPosition int `json:"orderPosition"`
}

// SetActiveRequest toggles a broker's participation in the rotation
type SetActiveRequest struct {
	IsActive *bool `json:"isActive" validate:"required"`
}
