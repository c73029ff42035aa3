package server

import "time"

// Email summarizes one message of a mailbox.
type Email struct {
	ID       int    `json:"id"`
	From     string `json:"from"`
	Date     string `json:"date"`
	Subject  string `json:"subject"`
	Status   string `json:"status"`
	Forwards int    `json:"forwards"` // depth of the deepest forwarded message
	// Timestamp is parsed Date used for sorting. Not exported to JSON.
	Timestamp time.Time `json:"-"`
}

// errorResponse is the body of a failed request.
type errorResponse struct {
	Error string `json:"error"`
}
