package dto

// PlatformStatistics is the cached marketplace snapshot.
type PlatformStatistics struct {
	ProjectsByStatus    map[string]int `json:"projects_by_status"`
	CommitmentsByStatus map[string]int `json:"commitments_by_status"`
	TotalFundingRaised  float64        `json:"total_funding_raised"`
	TotalRequirement    float64        `json:"total_requirement"`
	OpenQuestions       int            `json:"open_questions"`
	BreachedQuestions   int            `json:"breached_questions"`
}
