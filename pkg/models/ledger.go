package models

import "time"

// LedgerEntry records one assignment decision. Entries are never modified.
type LedgerEntry struct {
	ID            int       `json:"id"`
	LeadID        string    `json:"leadId"`
	BrokerID      string    `json:"brokerId"`
	OrderPosition int       `json:"orderPosition"`
	AssignedAt    time.Time `json:"assignedAt"`
}

// BrokerDistribution summarizes how many leads a broker received
type BrokerDistribution struct {
	BrokerID      string     `json:"brokerId"`
	LeadCount     int        `json:"leadCount"`
	FirstAssigned *time.Time `json:"firstAssigned"`
	LastAssigned  *time.Time `json:"lastAssigned"`
}

// LedgerFilter narrows ledger queries and exports
type LedgerFilter struct {
	LeadID   string     `query:"lead_id"`
	BrokerID string     `query:"broker_id"`
	From     *time.Time `query:"-"`
	To       *time.Time `query:"-"`
}
