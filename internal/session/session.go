package session

import "time"

// Session is the metadata record for one registered client context. Records
// are owned by the Registry and only copies ever leave it.
type Session struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
	// Monitoring is true exactly while a live monitor is registered for
	// this session.
	Monitoring bool `json:"monitoring"`
}
