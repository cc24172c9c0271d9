package models

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// PurgeMarker records that a natural key's data was deliberately deleted at a
// point in time. Deliveries extracted before PurgedAt are silently dropped so a
// purged entry is not resurrected from stale feed files; a delivery extracted
// after PurgedAt recreates the entry normally. EntryNumber is captured alongside
// the broker reference because some feeds key deliveries off the entry number
// only; the guard must match either identifier.
type PurgeMarker struct {
	ID              int       `gorm:"primary_key" json:"id"`
	SourceSystem    string    `gorm:"size:20;not null;uniqueIndex:uniq_purge_marker,priority:1" json:"source_system"`
	BrokerReference string    `gorm:"size:20;not null;uniqueIndex:uniq_purge_marker,priority:2" json:"broker_reference"`
	EntryNumber     string    `gorm:"size:20;index" json:"entry_number"`
	PurgedAt        time.Time `gorm:"not null" json:"purged_at"`
	PurgedBy        string    `gorm:"size:30" json:"purged_by"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// GetPurgeInstant returns the purge instant for a natural key, or nil if the key
// was never purged. The lookup mirrors entry resolution: broker reference first,
// entry number as the fallback identifier.
func GetPurgeInstant(ctx context.Context, db *gorm.DB, sourceSystem, brokerReference, entryNumber string) (*time.Time, error) {
	q := db.WithContext(ctx).Where("source_system = ?", sourceSystem)
	switch {
	case brokerReference != "" && entryNumber != "":
		q = q.Where("broker_reference = ? OR entry_number = ?", brokerReference, entryNumber)
	case brokerReference != "":
		q = q.Where("broker_reference = ?", brokerReference)
	case entryNumber != "":
		q = q.Where("entry_number = ?", entryNumber)
	default:
		return nil, nil
	}

	var marker PurgeMarker
	if err := q.Take(&marker).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &marker.PurgedAt, nil
}

// SetPurgeMarker upserts the marker, keeping the latest purge instant. The
// entry number is resolved from the still-present aggregate so the marker
// blocks re-creation under either identifier.
func SetPurgeMarker(ctx context.Context, db *gorm.DB, sourceSystem, brokerReference, purgedBy string, purgedAt time.Time) error {
	var entryNumbers []string
	if err := db.WithContext(ctx).Model(&Entry{}).
		Where("source_system = ? AND broker_reference = ?", sourceSystem, brokerReference).
		Limit(1).Pluck("entry_number", &entryNumbers).Error; err != nil {
		return err
	}
	entryNumber := ""
	if len(entryNumbers) > 0 {
		entryNumber = entryNumbers[0]
	}

	var existing PurgeMarker
	err := db.WithContext(ctx).
		Where("source_system = ? AND broker_reference = ?", sourceSystem, brokerReference).
		Take(&existing).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		marker := PurgeMarker{
			SourceSystem:    sourceSystem,
			BrokerReference: brokerReference,
			EntryNumber:     entryNumber,
			PurgedAt:        purgedAt,
			PurgedBy:        purgedBy,
		}
		return db.WithContext(ctx).Create(&marker).Error
	}
	if existing.PurgedAt.After(purgedAt) {
		return nil
	}
	updates := map[string]interface{}{"purged_at": purgedAt, "purged_by": purgedBy}
	if entryNumber != "" {
		updates["entry_number"] = entryNumber
	}
	return db.WithContext(ctx).Model(&existing).Updates(updates).Error
}
