package models

// ProgressRecord is the full progress snapshot of one user
type ProgressRecord struct {
	UserID   int64                      `json:"user_id"`
	Concepts map[string]ConceptProgress `json:"concepts"`
	Groups   map[string]GroupProgress   `json:"groups"`
}

// NewProgressRecord returns an empty snapshot for the user
func NewProgressRecord(userID int64) *ProgressRecord {
	return &ProgressRecord{
		UserID:   userID,
		Concepts: make(map[string]ConceptProgress),
		Groups:   make(map[string]GroupProgress),
	}
}

// Concept returns the progress of a concept, or nil if it was never attempted
func (r *ProgressRecord) Concept(conceptID string) *ConceptProgress {
	if r == nil {
		return nil
	}
	p, ok := r.Concepts[conceptID]
	if !ok {
		return nil
	}
	return &p
}

// Normalize drops concept entries that break the progress invariants so they
// are treated as never attempted. It returns the IDs that were dropped.
func (r *ProgressRecord) Normalize() []string {
	if r == nil {
		return nil
	}
	if r.Concepts == nil {
		r.Concepts = make(map[string]ConceptProgress)
	}
	if r.Groups == nil {
		r.Groups = make(map[string]GroupProgress)
	}

	var dropped []string
	for id, p := range r.Concepts {
		if id == "" || !p.Valid() {
			dropped = append(dropped, id)
			delete(r.Concepts, id)
		}
	}
	return dropped
}
