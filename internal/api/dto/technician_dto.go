package dto

import "time"

// CreateTechnicianRequest registers a roster entry.
type CreateTechnicianRequest struct {
	Name     string   `json:"name"`
	Email    string   `json:"email"`
	Active   *bool    `json:"active"`
	Skills   []string `json:"skills"`
	Location *string  `json:"location"`
}

// UpdateTechnicianRequest rewrites a roster entry.
type UpdateTechnicianRequest struct {
	Name     string   `json:"name"`
	Email    string   `json:"email"`
	Active   bool     `json:"active"`
	Skills   []string `json:"skills"`
	Location *string  `json:"location"`
}

// TechnicianResponse is the wire representation of a technician.
type TechnicianResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Active    bool      `json:"active"`
	Skills    []string  `json:"skills"`
	Workload  int       `json:"workload"`
	Location  *string   `json:"location,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
