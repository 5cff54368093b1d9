package usecase

import "errors"

// Sentinel errors for use case layer
var (
	// Not found errors
	ErrTicketNotFound = errors.New("ticket not found")

	// Status errors
	ErrTicketAlreadyClosed = errors.New("ticket is already closed")

	// Submission errors
	ErrInvalidSubmission = errors.New("invalid submission")
)

// Context keys for error values
const (
	TicketIDKey = "ticket_id"
)
