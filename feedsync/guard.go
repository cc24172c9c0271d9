package feedsync

import (
	"time"

	"bitbucket.org/brokerlink/customs_backend/models"
)

type decision int

const (
	decisionApply decision = iota
	decisionNoOpStale
	decisionNoOpPurged
)

// evaluateStaleness gates a delivery for one natural key. The purge check runs
// first: a delivery extracted at or before the purge instant must not resurrect
// deleted data even when no row exists anymore. After that, a delivery strictly
// older than the persisted cursor is stale; a delivery at the exact cursor
// instant proceeds so re-processing the same file stays idempotent.
func evaluateStaleness(existing *models.Entry, purgedAt *time.Time, extractedAt time.Time) decision {
	if purgedAt != nil && !extractedAt.After(*purgedAt) {
		return decisionNoOpPurged
	}
	if existing != nil && existing.LastExportedFromSource != nil &&
		extractedAt.Before(*existing.LastExportedFromSource) {
		return decisionNoOpStale
	}
	return decisionApply
}
