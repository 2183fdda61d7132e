package models

import "time"

// Session groups an ordered conversation of turns.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// DefaultSessionTitle is assigned to sessions created without a title.
const DefaultSessionTitle = "New Chat"
