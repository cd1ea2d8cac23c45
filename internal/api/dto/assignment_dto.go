package dto

// AutoAssignRequest triggers assignment for a case outside case creation.
// Location is optional; when set it feeds the proximity component of the
// candidate score.
type AutoAssignRequest struct {
	CaseID   string  `json:"case_id"`
	Location *string `json:"location"`
}

// TechnicianScoreResponse is one ranked candidate with its breakdown.
type TechnicianScoreResponse struct {
	TechnicianID      string  `json:"technician_id"`
	Name              string  `json:"name"`
	Workload          int     `json:"workload"`
	Score             float64 `json:"score"`
	SkillScore        float64 `json:"skill_score"`
	WorkloadScore     float64 `json:"workload_score"`
	AvailabilityScore float64 `json:"availability_score"`
	LocationScore     float64 `json:"location_score"`
}

// AssignmentResponse reports the outcome of an auto-assignment attempt.
type AssignmentResponse struct {
	CaseID       string  `json:"case_id"`
	TechnicianID *string `json:"technician_id"`
	Assigned     bool    `json:"assigned"`
}

// ReassignmentSuggestionResponse proposes moving one case to relieve an
// overloaded technician.
type ReassignmentSuggestionResponse struct {
	CaseID           string `json:"case_id"`
	Priority         string `json:"priority"`
	FromTechnicianID string `json:"from_technician_id"`
	ToTechnicianID   string `json:"to_technician_id"`
}
