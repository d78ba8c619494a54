package types

import (
	"github.com/google/uuid"
)

// TaskStatus is the state-machine status of a content task.
type TaskStatus string

// Task statuses. PUBLISHED and REJECTED are terminal.
const (
	TaskPlanned   TaskStatus = "PLANNED"
	TaskWriting   TaskStatus = "WRITING"
	TaskInReview  TaskStatus = "IN_REVIEW"
	TaskApproved  TaskStatus = "APPROVED"
	TaskPublished TaskStatus = "PUBLISHED"
	TaskRejected  TaskStatus = "REJECTED"
)

// taskTransitions is the exhaustive transition table. A status not present as
// a key is terminal.
var taskTransitions = map[TaskStatus][]TaskStatus{
	TaskPlanned:  {TaskWriting, TaskRejected},
	TaskWriting:  {TaskInReview, TaskRejected},
	TaskInReview: {TaskApproved, TaskWriting, TaskRejected},
	TaskApproved: {TaskPublished},
}

// CanTransition reports whether moving from to next is a legal transition.
func CanTransition(from, to TaskStatus) bool {
	for _, allowed := range taskTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the status is final.
func (s TaskStatus) Terminal() bool {
	return s == TaskPublished || s == TaskRejected
}

// TaskType is the kind of content a task produces.
type TaskType string

// Task types.
const (
	TaskTypeGuide      TaskType = "guide"
	TaskTypeNews       TaskType = "news"
	TaskTypeAnalysis   TaskType = "analysis"
	TaskTypeComparison TaskType = "comparison"
	TaskTypeChecklist  TaskType = "checklist"
)

// ValidTaskType reports whether t is a known task type.
func ValidTaskType(t TaskType) bool {
	switch t {
	case TaskTypeGuide, TaskTypeNews, TaskTypeAnalysis, TaskTypeComparison, TaskTypeChecklist:
		return true
	}
	return false
}

// ArticleMeta is the structured metadata generated alongside an article body.
type ArticleMeta struct {
	MetaTitle       string   `json:"meta_title"`
	MetaDescription string   `json:"meta_description"`
	Excerpt         string   `json:"excerpt"`
	Tags            []string `json:"tags"`
	Category        string   `json:"category"`
}

// Task is the unit of work carried through the state machine from brief to
// published artifact or rejection.
type Task struct {
	ID                  uuid.UUID    `json:"id"`
	RunID               uuid.UUID    `json:"run_id"`
	Type                TaskType     `json:"type"`
	Title               string       `json:"title"`
	Slug                string       `json:"slug"`
	Brief               string       `json:"brief"`
	TargetKeywords      []string     `json:"target_keywords"`
	TargetWordCount     int          `json:"target_word_count"`
	Priority            int          `json:"priority"`
	Status              TaskStatus   `json:"status"`
	GeneratedBody       string       `json:"generated_body,omitempty"`
	GeneratedMeta       *ArticleMeta `json:"generated_meta,omitempty"`
	QAScore             *float64     `json:"qa_score,omitempty"`
	QAFeedback          string       `json:"qa_feedback,omitempty"`
	RewriteCount        int          `json:"rewrite_count"`
	PublishedArtifactID *uuid.UUID   `json:"published_artifact_id,omitempty"`
}

// TaskEvidenceLink records that an evidence card informed a task.
type TaskEvidenceLink struct {
	TaskID     uuid.UUID `json:"task_id"`
	EvidenceID uuid.UUID `json:"evidence_id"`
}

// TaskSummary is the lightweight task view nested in run status responses.
type TaskSummary struct {
	ID     uuid.UUID  `json:"id"`
	Title  string     `json:"title"`
	Status TaskStatus `json:"status"`
	Type   TaskType   `json:"type"`
}
