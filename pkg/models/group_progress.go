package models

import "time"

// GroupProgress tracks how many batches of a category or level a user has finished
type GroupProgress struct {
	GroupKey  string    `json:"group_key" db:"group_key"`
	Completed int       `json:"completed" db:"completed"`
	Total     int       `json:"total" db:"total"`
	Version   int64     `json:"version" db:"version"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Done reports whether every known batch of the group has been completed
func (g GroupProgress) Done() bool {
	return g.Total > 0 && g.Completed >= g.Total
}
