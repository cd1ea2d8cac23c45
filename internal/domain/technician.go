package domain

import "time"

// Technician models a repair engineer eligible for case assignment.
type Technician struct {
	ID        string
	Name      string
	Email     string
	Active    bool
	Skills    []string
	Workload  int
	Location  *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasSkill reports whether the technician carries the given skill tag.
func (t *Technician) HasSkill(tag string) bool {
	if tag == "" {
		return false
	}
	for _, skill := range t.Skills {
		if skill == tag {
			return true
		}
	}
	return false
}
