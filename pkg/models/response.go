package models

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// SuccessResponse represents a success response
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// AssignmentResponse is returned by the explicit assign endpoint
type AssignmentResponse struct {
	Outcome string       `json:"outcome"`
	Lead    *Lead        `json:"lead,omitempty"`
	Entry   *LedgerEntry `json:"entry,omitempty"`
}
