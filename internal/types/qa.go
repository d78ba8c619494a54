package types

import "github.com/google/uuid"

// QADimensions lists the eight fixed scoring axes in canonical order. The QA
// stage requires every one of them to be present and numeric.
var QADimensions = []string{
	"accuracy",
	"seoOptimization",
	"readability",
	"completeness",
	"originality",
	"ctaEffectiveness",
	"complianceExpertise",
	"professionalTone",
}

// QAReport is the outcome of scoring one draft. Scores are clamped to [1,10]
// and AverageScore is always recomputed from them; a model-reported average is
// never trusted.
type QAReport struct {
	TaskID       uuid.UUID          `json:"task_id"`
	Scores       map[string]float64 `json:"scores"`
	AverageScore float64            `json:"average_score"`
	Approved     bool               `json:"approved"`
	Feedback     string             `json:"feedback"`
	Suggestions  []string           `json:"suggestions"`
}
