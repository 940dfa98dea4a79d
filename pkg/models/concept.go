package models

import "time"

// Concept represents a flashcard: a prompt and the explanation shown on the back
type Concept struct {
	ID          string    `json:"id" db:"id"`
	Text        string    `json:"text" db:"text"`
	Explanation string    `json:"explanation" db:"explanation"`
	Category    string    `json:"category" db:"category"` // grouping key, e.g. "3|Networking"
	Level       *int      `json:"level,omitempty" db:"level"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}
