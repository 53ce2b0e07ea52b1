package types

import "time"

// MetricKind identifies what a piece of contribution evidence measures
type MetricKind string

const (
	MetricCommitCount        MetricKind = "commit_count"
	MetricReviewCount        MetricKind = "review_count"
	MetricCompletedWorkItems MetricKind = "completed_work_items"
	MetricPeerRating         MetricKind = "peer_rating"
)

// Valid reports whether k is one of the known metric kinds
func (k MetricKind) Valid() bool {
	switch k {
	case MetricCommitCount, MetricReviewCount, MetricCompletedWorkItems, MetricPeerRating:
		return true
	}
	return false
}

// ContributionEvidence is an immutable fact about a person's work on a skill,
// already normalized by the connector that produced it.
type ContributionEvidence struct {
	PersonID   string     `json:"person_id"`
	SkillName  string     `json:"skill_name"`
	Kind       MetricKind `json:"metric_kind"`
	Value      float64    `json:"value"`
	ObservedAt time.Time  `json:"observed_at"`
}

// MessageRecord is a single team-chat message attributed to a person
type MessageRecord struct {
	PersonID   string    `json:"person_id"`
	Text       string    `json:"text"`
	OccurredAt time.Time `json:"occurred_at"`
	ChannelID  string    `json:"channel_id"`
}

// Workload is a snapshot of a person's committed work, supplied by the task tracker
type Workload struct {
	ActiveTaskCount int     `json:"active_task_count"`
	ActiveHours     float64 `json:"active_hours"`
	CapacityHours   float64 `json:"capacity_hours"`
}

// Task is an unassigned work item. RequiredSkills maps skill name to the
// required proficiency on the 0-10 scale. SkillStrict excludes candidates
// with no matching skill at all.
type Task struct {
	TaskID         string             `json:"task_id"`
	Title          string             `json:"title"`
	Description    string             `json:"description"`
	RequiredSkills map[string]float64 `json:"required_skills"`
	Status         string             `json:"status"`
	SkillStrict    bool               `json:"skill_strict"`
}
