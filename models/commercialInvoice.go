package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CommercialInvoice is a child of Entry, keyed by invoice number within the entry.
// Re-delivery of the same invoice number replaces in place; it is never duplicated.
type CommercialInvoice struct {
	ID      int `gorm:"primary_key" json:"id"`
	EntryId int `gorm:"index:idx_invoice_entry,priority:1;not null" json:"entry_id"`

	InvoiceNumber     string              `gorm:"size:30;index:idx_invoice_entry,priority:2;not null" json:"invoice_number"`
	Currency          string              `gorm:"size:3" json:"currency"`
	ExchangeRate      decimal.NullDecimal `gorm:"type:decimal(13,6)" json:"exchange_rate"`
	ValueForeign      decimal.NullDecimal `gorm:"type:decimal(16,2)" json:"value_foreign"`
	ValueLocal        decimal.NullDecimal `gorm:"type:decimal(16,2)" json:"value_local"`
	CountryOriginCode string              `gorm:"size:2" json:"country_origin_code"`
	GrossWeight       decimal.NullDecimal `gorm:"type:decimal(16,2)" json:"gross_weight"`
	TotalCharges      decimal.NullDecimal `gorm:"type:decimal(16,2)" json:"total_charges"`
	InvoiceDate       *time.Time          `json:"invoice_date"`
	Mfid              string              `gorm:"size:15" json:"mfid"`
	TotalQuantity     decimal.NullDecimal `gorm:"type:decimal(16,2)" json:"total_quantity"`
	TotalQuantityUom  string              `gorm:"size:3" json:"total_quantity_uom"`

	Lines []CommercialInvoiceLine `gorm:"foreignKey:InvoiceId" json:"lines"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// CommercialInvoiceLine is a child of CommercialInvoice. The fixed-width dialect
// keys lines by part number, the delimited dialect by line number; LineKey holds
// whichever the dialect supplied.
type CommercialInvoiceLine struct {
	ID        int `gorm:"primary_key" json:"id"`
	InvoiceId int `gorm:"index:idx_line_invoice,priority:1;not null" json:"invoice_id"`

	LineKey    string `gorm:"size:30;index:idx_line_invoice,priority:2;not null" json:"line_key"`
	PartNumber string `gorm:"size:30" json:"part_number"`
	LineNumber int    `json:"line_number"`

	CountryOriginCode string `gorm:"size:2" json:"country_origin_code"`
	OriginStateCode   string `gorm:"size:2" json:"origin_state_code"`
	CountryExportCode string `gorm:"size:2" json:"country_export_code"`
	ExportStateCode   string `gorm:"size:2" json:"export_state_code"`

	Quantity      decimal.NullDecimal `gorm:"type:decimal(16,2)" json:"quantity"`
	UnitOfMeasure string              `gorm:"size:3" json:"unit_of_measure"`
	Value         decimal.NullDecimal `gorm:"type:decimal(16,2)" json:"value"`
	UnitPrice     decimal.NullDecimal `gorm:"type:decimal(16,4)" json:"unit_price"`

	VendorName  string `gorm:"size:60" json:"vendor_name"`
	PoNumber    string `gorm:"size:30" json:"po_number"`
	Mid         string `gorm:"size:20" json:"mid"`
	Department  string `gorm:"size:15" json:"department"`
	ProductLine string `gorm:"size:15" json:"product_line"`
	StoreName   string `gorm:"size:40" json:"store_name"`

	ContractAmount decimal.NullDecimal `gorm:"type:decimal(16,2)" json:"contract_amount"`
	Volume         decimal.NullDecimal `gorm:"type:decimal(16,2)" json:"volume"`
	ComputedValue  decimal.NullDecimal `gorm:"type:decimal(16,2)" json:"computed_value"`
	Adjustments    decimal.NullDecimal `gorm:"type:decimal(16,2)" json:"adjustments"`
	NetValue       decimal.NullDecimal `gorm:"type:decimal(16,2)" json:"net_value"`
	Mpf            decimal.NullDecimal `gorm:"type:decimal(14,2)" json:"mpf"`
	Hmf            decimal.NullDecimal `gorm:"type:decimal(14,2)" json:"hmf"`
	ProratedMpf    decimal.NullDecimal `gorm:"type:decimal(14,2)" json:"prorated_mpf"`
	CottonFee      decimal.NullDecimal `gorm:"type:decimal(14,2)" json:"cotton_fee"`

	Tariffs     []CommercialInvoiceTariff `gorm:"foreignKey:LineId" json:"tariffs"`
	AddCvdCases []AddCvdCase              `gorm:"foreignKey:LineId" json:"add_cvd_cases"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// CommercialInvoiceTariff is a child of CommercialInvoiceLine, keyed by HTS code
// within the line; a line can carry multiple classifications.
type CommercialInvoiceTariff struct {
	ID     int `gorm:"primary_key" json:"id"`
	LineId int `gorm:"index:idx_tariff_line,priority:1;not null" json:"line_id"`

	HtsCode      string              `gorm:"size:10;index:idx_tariff_line,priority:2;not null" json:"hts_code"`
	DutyAmount   decimal.NullDecimal `gorm:"type:decimal(16,2)" json:"duty_amount"`
	EnteredValue decimal.NullDecimal `gorm:"type:decimal(16,2)" json:"entered_value"`
	// DutyRate is derived: duty_amount / entered_value rounded to 3 decimals.
	DutyRate     decimal.NullDecimal `gorm:"type:decimal(9,3)" json:"duty_rate"`
	SpiPrimary   string              `gorm:"size:2" json:"spi_primary"`
	SpiSecondary string              `gorm:"size:1" json:"spi_secondary"`

	Quantity1 decimal.NullDecimal `gorm:"type:decimal(16,2)" json:"quantity_1"`
	Uom1      string              `gorm:"size:3" json:"uom_1"`
	Quantity2 decimal.NullDecimal `gorm:"type:decimal(16,2)" json:"quantity_2"`
	Uom2      string              `gorm:"size:3" json:"uom_2"`
	Quantity3 decimal.NullDecimal `gorm:"type:decimal(16,2)" json:"quantity_3"`
	Uom3      string              `gorm:"size:3" json:"uom_3"`

	TariffDescription string              `gorm:"size:60" json:"tariff_description"`
	GrossWeight       decimal.NullDecimal `gorm:"type:decimal(16,2)" json:"gross_weight"`
	QuotaCategory     string              `gorm:"size:5" json:"quota_category"`
	VisaNumber        string              `gorm:"size:12" json:"visa_number"`
	VisaQuantity      decimal.NullDecimal `gorm:"type:decimal(16,2)" json:"visa_quantity"`
	VisaUom           string              `gorm:"size:3" json:"visa_uom"`
	CustomsLineNumber int                 `json:"customs_line_number"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// AddCvdCase is an antidumping (A) or countervailing (C) duty case attached to a line.
type AddCvdCase struct {
	ID     int `gorm:"primary_key" json:"id"`
	LineId int `gorm:"index:idx_case_line,priority:1;not null" json:"line_id"`

	CaseType   string              `gorm:"size:1;index:idx_case_line,priority:2;not null" json:"case_type"`
	CaseNumber string              `gorm:"size:12;index:idx_case_line,priority:3;not null" json:"case_number"`
	Bonded     bool                `json:"bonded"`
	Amount     decimal.NullDecimal `gorm:"type:decimal(16,2)" json:"amount"`
	Value      decimal.NullDecimal `gorm:"type:decimal(16,2)" json:"value"`
	Percent    decimal.NullDecimal `gorm:"type:decimal(9,2)" json:"percent"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
