package models

import "time"

// ContactMessage is a public enquiry delivered to the admin inbox.
type ContactMessage struct {
	ID        string     `db:"id" json:"id"`
	Name      string     `db:"name" json:"name"`
	Email     string     `db:"email" json:"email"`
	Body      string     `db:"body" json:"message"`
	Read      bool       `db:"read" json:"read"`
	ReadAt    *time.Time `db:"read_at" json:"read_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}
