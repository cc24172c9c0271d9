package feedsync

import (
	"encoding/json"
	"errors"
	"time"
)

const (
	// DialectFixedWidth is the positional legacy layout: newline-delimited
	// records typed by a leading 4-character code, space/zero padded fields,
	// monetary tokens with an implied 2-decimal scale.
	DialectFixedWidth = "fixed-width"
	// DialectDelimited is the quoted-CSV legacy layout: records typed by the
	// first cell, monetary cells with literal decimal points.
	DialectDelimited = "delimited"
)

var (
	// ErrUnknownDialect means the payload named a dialect this engine does not speak.
	ErrUnknownDialect = errors.New("unknown feed dialect")
	// ErrMalformedDelivery rejects a whole delivery before any write happens:
	// a record was shorter than the dialect's minimum layout.
	ErrMalformedDelivery = errors.New("malformed delivery")
	// ErrLockNotAcquired surfaces per-key lock retry exhaustion; the caller
	// should reschedule the delivery.
	ErrLockNotAcquired = errors.New("entry lock not acquired")
)

// DeliveryPayload is what the transport collaborator hands the engine: raw feed
// bytes plus the metadata context needed to parse and attribute them.
type DeliveryPayload struct {
	SourceSystem string    `json:"source_system"`
	Dialect      string    `json:"dialect"`
	OriginBucket string    `json:"origin_bucket"`
	OriginPath   string    `json:"origin_path"`
	ExtractedAt  time.Time `json:"extracted_at"`
	// Data carries the feed inline. When empty, the worker fetches the object
	// named by OriginBucket/OriginPath instead.
	Data []byte `json:"data,omitempty"`
}

const (
	OutcomeApplied = "applied"
	OutcomeNoOp    = "noop"
	OutcomeFailed  = "failed"
)

const (
	ReasonApplied     = "applied"
	ReasonCreated     = "created"
	ReasonStale       = "stale"
	ReasonPurged      = "purged"
	ReasonLockTimeout = "lock_timeout"
	ReasonMergeFailed = "merge_failed"
	ReasonStoreFailed = "store_failed"
)

// KeyResult is the per-natural-key outcome of a delivery. Failures are isolated
// per key; the caller decides whether to requeue based on Outcome+Reason.
type KeyResult struct {
	SourceSystem    string `json:"source_system"`
	BrokerReference string `json:"broker_reference"`
	EntryNumber     string `json:"entry_number"`
	Outcome         string `json:"outcome"`
	Reason          string `json:"reason"`
	Error           string `json:"error,omitempty"`
}

// DeliveryPubSubPayload is the Pub/Sub job envelope body for a queued delivery run.
type DeliveryPubSubPayload struct {
	RunId        uint   `json:"run_id"`
	SourceSystem string `json:"source_system"`
}

type PubSubPushEnvelope struct {
	Message struct {
		Data []byte `json:"data"`
		ID   string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// TriggerDeliveryRequest is the manual-submission surface: inline base64 data or
// an object locator, never both required.
type TriggerDeliveryRequest struct {
	SourceSystem string `json:"sourceSystem"`
	Dialect      string `json:"dialect"`
	OriginBucket string `json:"originBucket"`
	OriginPath   string `json:"originPath"`
	ExtractedAt  string `json:"extractedAt"`
	Data         string `json:"data"`
}

type DeliveryHistoryResponse struct {
	Items []DeliveryRunResponse `json:"items"`
}

type DeliveryRunResponse struct {
	ID             uint    `json:"id"`
	SourceSystem   string  `json:"sourceSystem"`
	Dialect        string  `json:"dialect"`
	Status         string  `json:"status"`
	TriggeredBy    string  `json:"triggeredBy"`
	OriginBucket   string  `json:"originBucket"`
	OriginPath     string  `json:"originPath"`
	ExtractedAt    *string `json:"extractedAt"`
	EntriesApplied int     `json:"entriesApplied"`
	EntriesNoOp    int     `json:"entriesNoop"`
	EntriesFailed  int     `json:"entriesFailed"`
	ErrorCount     int     `json:"errorCount"`
	StartedAt      *string `json:"startedAt"`
	FinishedAt     *string `json:"finishedAt"`
	DurationMs     int64   `json:"durationMs"`
}

type DeliveryRunDetailResponse struct {
	DeliveryRunResponse
	Errors []DeliveryErrorResponse `json:"errors"`
}

type DeliveryErrorResponse struct {
	ID        uint   `json:"id"`
	BrokerRef string `json:"brokerRef"`
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

type PurgeEntryRequest struct {
	SourceSystem    string `json:"sourceSystem"`
	BrokerReference string `json:"brokerReference"`
	PurgedBy        string `json:"purgedBy"`
}

func encodeStats(stats map[string]int) []byte {
	b, _ := json.Marshal(stats)
	return b
}
