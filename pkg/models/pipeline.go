package models

import "time"

// ContentState is the lifecycle state of a content item.
type ContentState string

const (
	ContentStateDraft     ContentState = "draft"
	ContentStateScheduled ContentState = "scheduled"
	ContentStatePosted    ContentState = "posted"
	ContentStateFailed    ContentState = "failed"
	ContentStateAbandoned ContentState = "abandoned"
)

// ContentItem is an authored piece awaiting or having undergone publication.
// PostedTime is set exactly when the state is posted; ScheduledTime is set
// from the moment the item is scheduled onwards.
type ContentItem struct {
	ID             string       `json:"id"`
	Body           string       `json:"body"`
	Category       string       `json:"category"`
	HookType       string       `json:"hook_type"`
	State          ContentState `json:"state"`
	CreatedAt      time.Time    `json:"created_at"`
	ScheduledTime  *time.Time   `json:"scheduled_time,omitempty"`
	PostedTime     *time.Time   `json:"posted_time,omitempty"`
	ExperimentID   *string      `json:"experiment_id,omitempty"`
	Variant        *string      `json:"variant,omitempty"`
	IdempotencyKey string       `json:"idempotency_key"`
	Attempts       int          `json:"attempts"`
	Retries        int          `json:"retries"`
	RemoteID       *string      `json:"remote_id,omitempty"`
	LastError      *string      `json:"last_error,omitempty"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Window is a caller-specified publication window.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ExperimentStatus is the lifecycle status of an experiment.
type ExperimentStatus string

const (
	ExperimentStatusRunning   ExperimentStatus = "running"
	ExperimentStatusConcluded ExperimentStatus = "concluded"
	ExperimentStatusCancelled ExperimentStatus = "cancelled"
)

// Experiment compares N named variants along one dimension. Category scopes
// which content items the experiment applies to; an empty category applies
// to all of them.
type Experiment struct {
	ID            string           `json:"id"`
	Dimension     string           `json:"dimension"`
	Category      string           `json:"category,omitempty"`
	Variants      []string         `json:"variants"`
	MinSampleSize int              `json:"min_sample_size"`
	Confidence    float64          `json:"confidence"`
	Status        ExperimentStatus `json:"status"`
	Winner        *string          `json:"winner,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	ConcludedAt   *time.Time       `json:"concluded_at,omitempty"`
}

// VariantObservation is one measured outcome tied to a content item and its
// assigned variant. Observations are append-only.
type VariantObservation struct {
	ID           string    `json:"id"`
	ExperimentID string    `json:"experiment_id"`
	ContentID    string    `json:"content_id"`
	Variant      string    `json:"variant"`
	MetricValue  float64   `json:"metric_value"`
	ObservedAt   time.Time `json:"observed_at"`
}

// EngagementEvent is a raw inbound signal (comment or message text) tied to
// a published content item. The identifier is source-provided and is the
// idempotency key for processing.
type EngagementEvent struct {
	ID         string    `json:"id"`
	ContentID  string    `json:"content_id"`
	ActorRef   string    `json:"actor_ref"`
	RawText    string    `json:"raw_text"`
	ReceivedAt time.Time `json:"received_at"`
	Processed  bool      `json:"processed"`
	InquiryID  *string   `json:"inquiry_id,omitempty"`
}

// InquiryStatus is the review status of a lead.
type InquiryStatus string

const (
	InquiryStatusNew       InquiryStatus = "new"
	InquiryStatusQualified InquiryStatus = "qualified"
	InquiryStatusConverted InquiryStatus = "converted"
	InquiryStatusRejected  InquiryStatus = "rejected"
)

// Inquiry is a scored, deduplicated sales lead produced from an engagement
// event. Priority is the maximum matched-category weight, clamped to 1-5.
type Inquiry struct {
	ID             string        `json:"id"`
	EventID        string        `json:"event_id"`
	ContentID      string        `json:"content_id"`
	ActorRef       string        `json:"actor_ref"`
	Categories     []string      `json:"categories"`
	Priority       int           `json:"priority"`
	EstimatedValue float64       `json:"estimated_value"`
	Status         InquiryStatus `json:"status"`
	Corroborations int           `json:"corroborations"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// MetricSnapshot is a point-in-time engagement measurement for a content
// item, delivered by the metrics feed.
type MetricSnapshot struct {
	ID             string    `json:"id"`
	ContentID      string    `json:"content_id"`
	EngagementRate float64   `json:"engagement_rate"`
	Impressions    int64     `json:"impressions"`
	Reactions      int64     `json:"reactions"`
	Comments       int64     `json:"comments"`
	CollectedAt    time.Time `json:"collected_at"`
}

// Performance record dimensions.
const (
	DimensionPostingHour = "posting_hour"
	DimensionPostingDay  = "posting_day"
	DimensionHookType    = "hook_type"
)

// PerformanceRecord is a derived rollup over a trailing window, keyed by
// (category, dimension, value). The full set is replaced on every recompute.
type PerformanceRecord struct {
	Category       string    `json:"category"`
	Dimension      string    `json:"dimension"`
	Value          string    `json:"value"`
	EngagementRate float64   `json:"engagement_rate"`
	ConversionRate float64   `json:"conversion_rate"`
	Score          float64   `json:"score"`
	SampleSize     int       `json:"sample_size"`
	WindowDays     int       `json:"window_days"`
	ComputedAt     time.Time `json:"computed_at"`
}
