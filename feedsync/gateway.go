package feedsync

import (
	"context"
	"time"

	"bitbucket.org/brokerlink/customs_backend/config"
	"bitbucket.org/brokerlink/customs_backend/models"
	"gorm.io/gorm"
)

// EntryStore is the persistence gateway the worker talks to. The production
// implementation is GORM-backed; tests plug in an in-memory fake.
type EntryStore interface {
	FindEntry(ctx context.Context, sourceSystem, brokerReference, entryNumber string) (*models.Entry, error)
	PurgeInstant(ctx context.Context, sourceSystem, brokerReference, entryNumber string) (*time.Time, error)
	SaveEntry(ctx context.Context, entry *models.Entry) error
}

// gormEntryStore resolves the DB handle per call: the engine is built before
// the database finishes connecting on Cloud Run.
type gormEntryStore struct{}

func NewGormEntryStore() EntryStore {
	return &gormEntryStore{}
}

func (s *gormEntryStore) db() *gorm.DB {
	return config.GetDB()
}

func (s *gormEntryStore) FindEntry(ctx context.Context, sourceSystem, brokerReference, entryNumber string) (*models.Entry, error) {
	return models.GetEntryByNaturalKey(ctx, s.db(), sourceSystem, brokerReference, entryNumber)
}

func (s *gormEntryStore) PurgeInstant(ctx context.Context, sourceSystem, brokerReference, entryNumber string) (*time.Time, error) {
	return models.GetPurgeInstant(ctx, s.db(), sourceSystem, brokerReference, entryNumber)
}

// SaveEntry writes the merged aggregate in one transaction. The upsert saves
// the entry with all associations, then deletes child rows the fresh delivery
// no longer carries. Comments are append-only and never deleted here.
func (s *gormEntryStore) SaveEntry(ctx context.Context, entry *models.Entry) error {
	return s.db().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{FullSaveAssociations: true}).Save(entry).Error; err != nil {
			return err
		}

		keptInvoiceIds := make([]int, 0, len(entry.Invoices))
		for i := range entry.Invoices {
			inv := &entry.Invoices[i]
			keptInvoiceIds = append(keptInvoiceIds, inv.ID)

			keptLineIds := make([]int, 0, len(inv.Lines))
			for j := range inv.Lines {
				ln := &inv.Lines[j]
				keptLineIds = append(keptLineIds, ln.ID)

				keptTariffIds := make([]int, 0, len(ln.Tariffs))
				for _, t := range ln.Tariffs {
					keptTariffIds = append(keptTariffIds, t.ID)
				}
				if err := deleteStale(tx, &models.CommercialInvoiceTariff{}, "line_id = ?", ln.ID, keptTariffIds); err != nil {
					return err
				}

				keptCaseIds := make([]int, 0, len(ln.AddCvdCases))
				for _, c := range ln.AddCvdCases {
					keptCaseIds = append(keptCaseIds, c.ID)
				}
				if err := deleteStale(tx, &models.AddCvdCase{}, "line_id = ?", ln.ID, keptCaseIds); err != nil {
					return err
				}
			}
			if err := deleteStaleLines(tx, inv.ID, keptLineIds); err != nil {
				return err
			}
		}
		if err := deleteStaleInvoices(tx, entry.ID, keptInvoiceIds); err != nil {
			return err
		}

		keptContainerIds := make([]int, 0, len(entry.Containers))
		for _, c := range entry.Containers {
			keptContainerIds = append(keptContainerIds, c.ID)
		}
		return deleteStale(tx, &models.Container{}, "entry_id = ?", entry.ID, keptContainerIds)
	})
}

func deleteStale(tx *gorm.DB, model interface{}, parentCond string, parentId int, keptIds []int) error {
	q := tx.Where(parentCond, parentId)
	if len(keptIds) > 0 {
		q = q.Where("id NOT IN ?", keptIds)
	}
	return q.Delete(model).Error
}

// deleteStaleLines removes lines dropped from an invoice together with their
// tariff and case rows.
func deleteStaleLines(tx *gorm.DB, invoiceId int, keptLineIds []int) error {
	q := tx.Model(&models.CommercialInvoiceLine{}).Where("invoice_id = ?", invoiceId)
	if len(keptLineIds) > 0 {
		q = q.Where("id NOT IN ?", keptLineIds)
	}
	var staleIds []int
	if err := q.Pluck("id", &staleIds).Error; err != nil {
		return err
	}
	if len(staleIds) == 0 {
		return nil
	}
	if err := tx.Where("line_id IN ?", staleIds).Delete(&models.CommercialInvoiceTariff{}).Error; err != nil {
		return err
	}
	if err := tx.Where("line_id IN ?", staleIds).Delete(&models.AddCvdCase{}).Error; err != nil {
		return err
	}
	return tx.Where("id IN ?", staleIds).Delete(&models.CommercialInvoiceLine{}).Error
}

// deleteStaleInvoices removes invoices dropped from an entry, cascading through
// their lines.
func deleteStaleInvoices(tx *gorm.DB, entryId int, keptInvoiceIds []int) error {
	q := tx.Model(&models.CommercialInvoice{}).Where("entry_id = ?", entryId)
	if len(keptInvoiceIds) > 0 {
		q = q.Where("id NOT IN ?", keptInvoiceIds)
	}
	var staleIds []int
	if err := q.Pluck("id", &staleIds).Error; err != nil {
		return err
	}
	if len(staleIds) == 0 {
		return nil
	}
	for _, invoiceId := range staleIds {
		if err := deleteStaleLines(tx, invoiceId, nil); err != nil {
			return err
		}
	}
	return tx.Where("id IN ?", staleIds).Delete(&models.CommercialInvoice{}).Error
}
