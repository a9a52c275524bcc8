package models

import "time"

// LeadStatus is the sales pipeline stage of a lead
type LeadStatus string

const (
	LeadStatusPending   LeadStatus = "pending"
	LeadStatusAssigned  LeadStatus = "assigned"
	LeadStatusContacted LeadStatus = "contacted"
	LeadStatusQualified LeadStatus = "qualified"
	LeadStatusConverted LeadStatus = "converted"
	LeadStatusLost      LeadStatus = "lost"
)

// LeadStatuses lists every valid status in pipeline order
var LeadStatuses = []LeadStatus{
	LeadStatusPending,
	LeadStatusAssigned,
	LeadStatusContacted,
	LeadStatusQualified,
	LeadStatusConverted,
	LeadStatusLost,
}

// Lead is a prospective customer captured by the contact form
type Lead struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email,omitempty"`
	Phone        string     `json:"phone"`
	Location     string     `json:"location,omitempty"`
	PropertyType string     `json:"propertyType,omitempty"`
	PriceRange   string     `json:"priceRange,omitempty"`
	Observations string     `json:"observations,omitempty"`
	Status       LeadStatus `json:"status"`
	HandledBy    *string    `json:"handledBy"`
	HandledAt    *time.Time `json:"handledAt"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// IsAssigned reports whether a broker has been set on the lead
func (l *Lead) IsAssigned() bool {
	return l.HandledBy != nil
}

// CreateLeadRequest is the public contact form payload
type CreateLeadRequest struct {
	Name         string `json:"name" validate:"required,min=2,max=120"`
	Email        string `json:"email" validate:"omitempty,email,max=254"`
	Phone        string `json:"phone" validate:"required,min=6,max=32"`
	Location     string `json:"location" validate:"max=120"`
	PropertyType string `json:"propertyType" validate:"max=60"`
	PriceRange   string `json:"priceRange" validate:"max=60"`
	Observations string `json:"observations" validate:"max=2000"`
}

// LeadUpdate enumerates the only lead fields a broker dashboard may change.
// Assignment columns are intentionally absent.
type LeadUpdate struct {
	Status       *LeadStatus `json:"status" validate:"omitempty,oneof=contacted qualified converted lost"`
	Observations *string     `json:"observations" validate:"omitempty,max=2000"`
}

// IsEmpty reports whether the update carries no change
func (u LeadUpdate) IsEmpty() bool {
	return u.Status == nil && u.Observations == nil
}
