package feedsync

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/brokerlink/customs_backend/config"
	"bitbucket.org/brokerlink/customs_backend/models"
	"bitbucket.org/brokerlink/customs_backend/utils"
	"gorm.io/gorm"
)

// Notifier broadcasts that a delivery actually changed an entry. Production
// wiring publishes to Pub/Sub; tests plug in a recorder.
type Notifier interface {
	EntryChanged(ctx context.Context, msg config.EntryChangedMessage) error
}

type pubsubNotifier struct{}

func (pubsubNotifier) EntryChanged(ctx context.Context, msg config.EntryChangedMessage) error {
	_, err := config.PublishEntryChanged(ctx, msg)
	return err
}

// Engine runs feed deliveries end to end: extract, tokenize, and apply each
// natural key under its lock.
type Engine struct {
	store    EntryStore
	locks    *lockManager
	notifier Notifier
	enrich   *enrichmentClient
}

func NewEngine(store EntryStore) *Engine {
	return &Engine{
		store:    store,
		locks:    newLockManager(),
		notifier: pubsubNotifier{},
		enrich:   newEnrichmentClient(),
	}
}

func (e *Engine) WithNotifier(n Notifier) *Engine {
	e.notifier = n
	return e
}

// ProcessDelivery parses the payload and applies every entry it carries.
// A malformed file fails as a whole before any write; after parsing, failures
// are isolated per key and reported in the results.
func (e *Engine) ProcessDelivery(ctx context.Context, payload DeliveryPayload) ([]KeyResult, error) {
	ex, err := extractorForDialect(payload.Dialect)
	if err != nil {
		return nil, err
	}
	deliveries, err := tokenize(ex, payload.Data)
	if err != nil {
		return nil, err
	}

	results := make([]KeyResult, 0, len(deliveries))
	for _, d := range deliveries {
		results = append(results, e.processKey(ctx, payload, d))
	}
	return results, nil
}

func (e *Engine) processKey(ctx context.Context, payload DeliveryPayload, d *entryDelivery) KeyResult {
	res := KeyResult{
		SourceSystem:    payload.SourceSystem,
		BrokerReference: d.Header.BrokerReference,
		EntryNumber:     d.Header.EntryNumber,
	}

	releaseSlot, err := e.locks.acquireSourceSlot(ctx, payload.SourceSystem)
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Reason = ReasonLockTimeout
		res.Error = err.Error()
		return res
	}
	defer releaseSlot()

	releaseKey, err := e.locks.acquireEntryLock(ctx, payload.SourceSystem, d.key())
	if err != nil {
		res.Outcome = OutcomeFailed
		if errors.Is(err, ErrLockNotAcquired) {
			res.Reason = ReasonLockTimeout
		} else {
			res.Reason = ReasonStoreFailed
		}
		res.Error = err.Error()
		return res
	}
	defer releaseKey()

	// Staleness is evaluated under the lock. A racing delivery may have moved
	// the cursor between scheduling and now, so the pre-lock snapshot is never
	// trusted.
	existing, err := e.store.FindEntry(ctx, payload.SourceSystem, d.Header.BrokerReference, d.Header.EntryNumber)
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Reason = ReasonStoreFailed
		res.Error = err.Error()
		return res
	}
	purgedAt, err := e.store.PurgeInstant(ctx, payload.SourceSystem, d.Header.BrokerReference, d.Header.EntryNumber)
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Reason = ReasonStoreFailed
		res.Error = err.Error()
		return res
	}

	switch evaluateStaleness(existing, purgedAt, payload.ExtractedAt) {
	case decisionNoOpStale:
		res.Outcome = OutcomeNoOp
		res.Reason = ReasonStale
		return res
	case decisionNoOpPurged:
		res.Outcome = OutcomeNoOp
		res.Reason = ReasonPurged
		return res
	}

	created := existing == nil
	merged := mergeEntry(existing, d, payload)
	if err := e.store.SaveEntry(ctx, merged); err != nil {
		res.Outcome = OutcomeFailed
		res.Reason = ReasonStoreFailed
		res.Error = err.Error()
		return res
	}

	res.Outcome = OutcomeApplied
	if created {
		res.Reason = ReasonCreated
	} else {
		res.Reason = ReasonApplied
	}

	e.afterApplied(ctx, payload, merged)
	return res
}

// afterApplied runs the post-write side effects. Both are best effort: the
// delivery already committed, so a failed broadcast only logs.
func (e *Engine) afterApplied(ctx context.Context, payload DeliveryPayload, entry *models.Entry) {
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	if e.notifier != nil {
		msg := config.EntryChangedMessage{
			SourceSystem:    entry.SourceSystem,
			BrokerReference: entry.BrokerReference,
			EntryNumber:     entry.EntryNumber,
			ExtractedAt:     payload.ExtractedAt,
			CorrelationId:   correlationId,
		}
		if err := e.notifier.EntryChanged(ctx, msg); err != nil {
			config.LogError(config.GetLogger(), "feedsync", "afterApplied", "publish entry changed", msg, err)
		}
	}
	if e.enrich != nil {
		e.enrich.requestDetail(entry.SourceSystem, entry.BrokerReference, payload.ExtractedAt)
	}
}

// ProcessDeliveryRun drives one persisted run row through the engine: fetch the
// payload, apply it, and record per-key errors and stats on the run.
func (e *Engine) ProcessDeliveryRun(ctx context.Context, db *gorm.DB, runId uint) error {
	if runId == 0 {
		return errors.New("invalid run id")
	}
	db = db.WithContext(ctx)

	var run models.DeliveryRun
	if err := db.Take(&run, runId).Error; err != nil {
		return err
	}
	if run.Status == models.DeliveryRunStatusSuccess ||
		run.Status == models.DeliveryRunStatusFailed ||
		run.Status == models.DeliveryRunStatusPartial {
		return nil
	}

	now := time.Now()
	startedAt := run.StartedAt
	if startedAt == nil {
		startedAt = &now
	}
	if err := db.Model(&run).Updates(map[string]interface{}{
		"status":     models.DeliveryRunStatusRunning,
		"started_at": startedAt,
	}).Error; err != nil {
		return err
	}

	payload := DeliveryPayload{
		SourceSystem: run.SourceSystem,
		Dialect:      run.Dialect,
		OriginBucket: run.OriginBucket,
		OriginPath:   run.OriginPath,
	}
	if run.ExtractedAt != nil {
		payload.ExtractedAt = *run.ExtractedAt
	}

	data, err := fetchPayloadBytes(ctx, payload)
	if err != nil {
		_ = createDeliveryError(ctx, db, run.ID, run.SourceSystem, "", "fetch_failed", err.Error(), "", true)
		return finishRun(db, &run, *startedAt, nil, 1)
	}
	payload.Data = data

	results, err := e.ProcessDelivery(ctx, payload)
	if err != nil {
		retryable := !errors.Is(err, ErrUnknownDialect) && !errors.Is(err, ErrMalformedDelivery)
		_ = createDeliveryError(ctx, db, run.ID, run.SourceSystem, "", "parse_failed", err.Error(), "", retryable)
		return finishRun(db, &run, *startedAt, nil, 1)
	}

	errorCount := 0
	for _, r := range results {
		if r.Outcome != OutcomeFailed {
			continue
		}
		errorCount++
		retryable := r.Reason == ReasonLockTimeout || r.Reason == ReasonStoreFailed
		_ = createDeliveryError(ctx, db, run.ID, run.SourceSystem, r.BrokerReference, r.Reason, r.Error, "", retryable)
	}
	return finishRun(db, &run, *startedAt, results, errorCount)
}

func finishRun(db *gorm.DB, run *models.DeliveryRun, startedAt time.Time, results []KeyResult, errorCount int) error {
	applied, noop, failed := 0, 0, 0
	for _, r := range results {
		switch r.Outcome {
		case OutcomeApplied:
			applied++
		case OutcomeNoOp:
			noop++
		case OutcomeFailed:
			failed++
		}
	}

	status := models.DeliveryRunStatusSuccess
	if errorCount > 0 && applied == 0 && noop == 0 {
		status = models.DeliveryRunStatusFailed
	} else if errorCount > 0 {
		status = models.DeliveryRunStatusPartial
	}

	finishedAt := time.Now()
	stats := map[string]int{
		"applied": applied,
		"noop":    noop,
		"failed":  failed,
	}
	return db.Model(run).Updates(map[string]interface{}{
		"status":          status,
		"entries_applied": applied,
		"entries_no_op":   noop,
		"entries_failed":  failed,
		"error_count":     errorCount,
		"stats_json":      encodeStats(stats),
		"finished_at":     finishedAt,
		"duration_ms":     finishedAt.Sub(startedAt).Milliseconds(),
	}).Error
}

func createDeliveryError(ctx context.Context, db *gorm.DB, runId uint, sourceSystem, brokerRef, code, message, rawRecord string, retryable bool) error {
	rec := models.DeliveryError{
		DeliveryRunId: runId,
		SourceSystem:  sourceSystem,
		BrokerRef:     brokerRef,
		ErrorCode:     code,
		Message:       message,
		RawRecord:     rawRecord,
		Retryable:     retryable,
	}
	return db.WithContext(ctx).Create(&rec).Error
}
