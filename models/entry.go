package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/brokerlink/customs_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Entry is the canonical customs entry aggregate reconciled from feed deliveries.
// Natural key: (source_system, broker_reference), with (source_system, entry_number)
// as a fallback lookup for feeds that key off the entry number.
type Entry struct {
	ID              int    `gorm:"primary_key" json:"id"`
	SourceSystem    string `gorm:"size:20;not null;uniqueIndex:uniq_entry_broker_ref,priority:1;index:idx_entry_number,priority:1" json:"source_system"`
	BrokerReference string `gorm:"size:20;not null;uniqueIndex:uniq_entry_broker_ref,priority:2" json:"broker_reference"`
	EntryNumber     string `gorm:"size:20;index:idx_entry_number,priority:2" json:"entry_number"`
	FilerCode       string `gorm:"size:5" json:"filer_code"`

	CustomerNumber          string `gorm:"size:15;index" json:"customer_number"`
	CustomerName            string `gorm:"size:60" json:"customer_name"`
	CompanyNumber           string `gorm:"size:5" json:"company_number"`
	DivisionNumber          string `gorm:"size:5" json:"division_number"`
	MerchandiseDescription  string `gorm:"size:100" json:"merchandise_description"`
	EntryPort               string `gorm:"size:5;index" json:"entry_port"`
	TransportMode           string `gorm:"size:5" json:"transport_mode"`
	ReconciliationFlags     string `gorm:"size:5" json:"reconciliation_flags"`
	ReconciliationIssues    string `gorm:"size:60" json:"reconciliation_issues"`

	// Bulk-transmitted dates. These clear when their source record is omitted
	// from a fresher delivery, except the named retain-only fields (see feedsync).
	ArrivalDate          *time.Time `json:"arrival_date"`
	ExportDate           *time.Time `json:"export_date"`
	FiledDate            *time.Time `json:"filed_date"`
	ReleaseDate          *time.Time `json:"release_date"`
	FirstReleaseDate     *time.Time `json:"first_release_date"`
	FreeDate             *time.Time `json:"free_date"`
	LastBilledDate       *time.Time `json:"last_billed_date"`
	InvoicePaidDate      *time.Time `json:"invoice_paid_date"`
	LiquidationDate      *time.Time `json:"liquidation_date"`
	DutyDueDate          *time.Time `json:"duty_due_date"`
	FileLoggedDate       *time.Time `json:"file_logged_date"`
	FdaReleaseDate       *time.Time `json:"fda_release_date"`
	FdaReviewDate        *time.Time `json:"fda_review_date"`
	DailyStatementDate   *time.Time `json:"daily_statement_date"`
	MonthlyStatementDate *time.Time `json:"monthly_statement_date"`
	FirstItDate          *time.Time `json:"first_it_date"`

	TotalDuty          decimal.NullDecimal `gorm:"type:decimal(16,2)" json:"total_duty"`
	TotalFees          decimal.NullDecimal `gorm:"type:decimal(16,2)" json:"total_fees"`
	TotalEnteredValue  decimal.NullDecimal `gorm:"type:decimal(16,2)" json:"total_entered_value"`
	TotalInvoicedValue decimal.NullDecimal `gorm:"type:decimal(16,2)" json:"total_invoiced_value"`
	DutyDirect         decimal.NullDecimal `gorm:"type:decimal(16,2)" json:"duty_direct"`
	TotalUnits         decimal.NullDecimal `gorm:"type:decimal(16,2)" json:"total_units"`

	// Ordered-unique display lists, newline+space joined, recomputed from the
	// rebuilt child set on every applied delivery.
	CustomerReferences       string `gorm:"type:text" json:"customer_references"`
	PoNumbers                string `gorm:"type:text" json:"po_numbers"`
	PartNumbers              string `gorm:"type:text" json:"part_numbers"`
	VendorNames              string `gorm:"type:text" json:"vendor_names"`
	OriginCountryCodes       string `gorm:"type:text" json:"origin_country_codes"`
	ExportCountryCodes       string `gorm:"type:text" json:"export_country_codes"`
	SpecialProgramIndicators string `gorm:"type:text" json:"special_program_indicators"`
	CommercialInvoiceNumbers string `gorm:"type:text" json:"commercial_invoice_numbers"`
	Departments              string `gorm:"type:text" json:"departments"`

	ContainerNumbers string `gorm:"type:text" json:"container_numbers"`
	ContainerSizes   string `gorm:"type:text" json:"container_sizes"`
	FclLcl           string `gorm:"size:10" json:"fcl_lcl"`

	MasterBillsOfLading string `gorm:"type:text" json:"master_bills_of_lading"`
	HouseBillsOfLading  string `gorm:"type:text" json:"house_bills_of_lading"`
	SubBillsOfLading    string `gorm:"type:text" json:"sub_bills_of_lading"`
	ItNumbers           string `gorm:"type:text" json:"it_numbers"`

	// LastExportedFromSource is the staleness cursor. It only ever moves forward
	// for a natural key; a delivery that would move it backward is a no-op.
	LastExportedFromSource *time.Time `gorm:"index" json:"last_exported_from_source"`
	LastFileBucket         string     `gorm:"size:255" json:"last_file_bucket"`
	LastFilePath           string     `gorm:"size:255" json:"last_file_path"`

	Invoices   []CommercialInvoice `gorm:"foreignKey:EntryId" json:"invoices"`
	Containers []Container         `gorm:"foreignKey:EntryId" json:"containers"`
	Comments   []EntryComment      `gorm:"foreignKey:EntryId" json:"comments"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// GetEntryByNaturalKey looks up by broker reference first, then falls back to the
// entry number. Returns (nil, nil) when the aggregate does not exist yet.
func GetEntryByNaturalKey(ctx context.Context, db *gorm.DB, sourceSystem, brokerReference, entryNumber string) (*Entry, error) {
	preload := func(tx *gorm.DB) *gorm.DB {
		return tx.WithContext(ctx).
			Preload("Invoices").
			Preload("Invoices.Lines").
			Preload("Invoices.Lines.Tariffs").
			Preload("Invoices.Lines.AddCvdCases").
			Preload("Containers").
			Preload("Comments")
	}

	var entry Entry
	if brokerReference != "" {
		err := preload(db).
			Where("source_system = ? AND broker_reference = ?", sourceSystem, brokerReference).
			Take(&entry).Error
		if err == nil {
			return &entry, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	if entryNumber == "" {
		return nil, nil
	}
	err := preload(db).
		Where("source_system = ? AND entry_number = ?", sourceSystem, entryNumber).
		Take(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// DeleteEntryAggregate removes an entry and all of its children in one transaction.
// Used by the purge endpoint together with a PurgeMarker row.
func DeleteEntryAggregate(ctx context.Context, sourceSystem, brokerReference string) error {
	db := config.GetDB()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry Entry
		err := tx.Where("source_system = ? AND broker_reference = ?", sourceSystem, brokerReference).
			Take(&entry).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		var invoiceIds []int
		if err := tx.Model(&CommercialInvoice{}).Where("entry_id = ?", entry.ID).
			Pluck("id", &invoiceIds).Error; err != nil {
			return err
		}
		if len(invoiceIds) > 0 {
			var lineIds []int
			if err := tx.Model(&CommercialInvoiceLine{}).Where("invoice_id IN ?", invoiceIds).
				Pluck("id", &lineIds).Error; err != nil {
				return err
			}
			if len(lineIds) > 0 {
				if err := tx.Where("line_id IN ?", lineIds).Delete(&CommercialInvoiceTariff{}).Error; err != nil {
					return err
				}
				if err := tx.Where("line_id IN ?", lineIds).Delete(&AddCvdCase{}).Error; err != nil {
					return err
				}
			}
			if err := tx.Where("invoice_id IN ?", invoiceIds).Delete(&CommercialInvoiceLine{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("entry_id = ?", entry.ID).Delete(&CommercialInvoice{}).Error; err != nil {
			return err
		}
		if err := tx.Where("entry_id = ?", entry.ID).Delete(&Container{}).Error; err != nil {
			return err
		}
		if err := tx.Where("entry_id = ?", entry.ID).Delete(&EntryComment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&entry).Error
	})
}
