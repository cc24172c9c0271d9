package models

import "time"

const (
	DeliveryRunStatusQueued  = "queued"
	DeliveryRunStatusRunning = "running"
	DeliveryRunStatusSuccess = "success"
	DeliveryRunStatusFailed  = "failed"
	DeliveryRunStatusPartial = "partial"
)

const (
	DeliveryTriggeredSystem = "system"
	DeliveryTriggeredManual = "manual"
	DeliveryTriggeredRetry  = "retry"
)

// DeliveryRun records one processed feed delivery for operator visibility and replay.
type DeliveryRun struct {
	ID           uint   `gorm:"primary_key" json:"id"`
	SourceSystem string `gorm:"index;size:20;not null" json:"source_system"`
	Dialect      string `gorm:"size:20;not null" json:"dialect"`
	Status       string `gorm:"size:20;not null" json:"status"`
	TriggeredBy  string `gorm:"size:20" json:"triggered_by"`

	OriginBucket string     `gorm:"size:255" json:"origin_bucket"`
	OriginPath   string     `gorm:"size:255" json:"origin_path"`
	ExtractedAt  *time.Time `json:"extracted_at"`

	EntriesApplied int    `json:"entries_applied"`
	EntriesNoOp    int    `json:"entries_noop"`
	EntriesFailed  int    `json:"entries_failed"`
	ErrorCount     int    `json:"error_count"`
	StatsJSON      []byte `gorm:"type:json" json:"stats"`

	ParentRunId *uint      `gorm:"index" json:"parent_run_id"`
	StartedAt   *time.Time `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at"`
	DurationMs  int64      `json:"duration_ms"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// DeliveryError is one soft failure inside a run (per-record skip, per-key merge
// failure). Retryable errors are safe to replay by re-submitting the run.
type DeliveryError struct {
	ID            uint      `gorm:"primary_key" json:"id"`
	DeliveryRunId uint      `gorm:"index;not null" json:"delivery_run_id"`
	SourceSystem  string    `gorm:"index;size:20;not null" json:"source_system"`
	BrokerRef     string    `gorm:"size:20" json:"broker_ref"`
	ErrorCode     string    `gorm:"size:64" json:"error_code"`
	Message       string    `gorm:"type:text" json:"message"`
	RawRecord     string    `gorm:"type:text" json:"raw_record"`
	Retryable     bool      `gorm:"default:false" json:"retryable"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}
