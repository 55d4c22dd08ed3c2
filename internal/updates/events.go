package updates

// Event topics published by the updates module. The notification digest
// consumer subscribes to job completions.
const (
	TopicJobCompleted   = "updates.job.completed"
	TopicCacheRefreshed = "updates.cache.refreshed"
)

// JobCompletedPayload is the payload of TopicJobCompleted events.
type JobCompletedPayload struct {
	JobID    string    `json:"job_id"`
	TargetID string    `json:"target_id"`
	Kind     OpKind    `json:"kind"`
	Status   JobStatus `json:"status"`
	Error    string    `json:"error,omitempty"`
}
