package feedsync

import (
	"time"

	"github.com/shopspring/decimal"
)

// Entry date field names. These key the bulk-date accumulation map and the
// clear/retain policy table in merge.go.
const (
	dateArrival          = "arrival"
	dateExport           = "export"
	dateFiled            = "filed"
	dateRelease          = "release"
	dateFirstRelease     = "first_release"
	dateFree             = "free"
	dateLastBilled       = "last_billed"
	dateInvoicePaid      = "invoice_paid"
	dateLiquidation      = "liquidation"
	dateDutyDue          = "duty_due"
	dateFileLogged       = "file_logged"
	dateFdaRelease       = "fda_release"
	dateFdaReview        = "fda_review"
	dateDailyStatement   = "daily_statement"
	dateMonthlyStatement = "monthly_statement"
	dateFirstIt          = "first_it"
)

// dateFieldByCode maps the numeric field code carried on bulk-date sub-records
// to the entry date field it targets. Codes 004 and 098 both target the release
// date (the source emits 098 on corrected releases); the later record in the
// delivery wins.
var dateFieldByCode = map[string]string{
	"001": dateArrival,
	"002": dateExport,
	"003": dateFiled,
	"004": dateRelease,
	"005": dateFirstRelease,
	"006": dateFree,
	"007": dateLastBilled,
	"008": dateInvoicePaid,
	"009": dateLiquidation,
	"010": dateDutyDue,
	"011": dateFileLogged,
	"012": dateFdaRelease,
	"013": dateFdaReview,
	"014": dateDailyStatement,
	"015": dateMonthlyStatement,
	"016": dateFirstIt,
	"098": dateRelease,
}

// record is the closed union of dialect-neutral record variants an extractor
// can emit. Dispatch in the tokenizer is a type switch, not a string lookup.
type record interface{ isRecord() }

// skipRecord marks a line the active dialect does not support (unknown record
// code, newer sub-format variant). The dispatcher drops it without raising.
type skipRecord struct {
	code string
}

type entryHeaderRecord struct {
	BrokerReference        string
	EntryNumber            string
	FilerCode              string
	CustomerNumber         string
	CustomerName           string
	CompanyNumber          string
	DivisionNumber         string
	MerchandiseDescription string
	ReconciliationFlags    string
	DutyDirect             decimal.NullDecimal
	EntryPort              string
	TransportMode          string
}

type dateRecord struct {
	FieldCode string
	Value     *time.Time
	Label     string
}

const (
	refMasterBill = "M"
	refHouseBill  = "H"
	refSubBill    = "S"
	refItNumber   = "I"
)

type referenceRecord struct {
	RefType string
	Value   string
	Date    *time.Time
}

type containerRecord struct {
	ContainerNumber string
	Size            string
	FclLcl          string
}

type commentRecord struct {
	GeneratedAt *time.Time
	Username    string
	Body        string
}

type customerRefRecord struct {
	Text string
}

type invoiceHeaderRecord struct {
	InvoiceNumber     string
	Currency          string
	ExchangeRate      decimal.NullDecimal
	ValueForeign      decimal.NullDecimal
	ValueLocal        decimal.NullDecimal
	CountryOriginCode string
	InvoiceDate       *time.Time
	Mfid              string
}

type invoiceLineRecord struct {
	PartNumber        string
	LineNumber        int
	CountryOriginCode string
	OriginStateCode   string
	CountryExportCode string
	ExportStateCode   string
	Quantity          decimal.NullDecimal
	UnitOfMeasure     string
	Value             decimal.NullDecimal
	VendorName        string
	PoNumber          string
	Mid               string
	Department        string
	ProductLine       string
	StoreName         string
	ContractAmount    decimal.NullDecimal
	Volume            decimal.NullDecimal
}

type lineChargesRecord struct {
	ComputedValue decimal.NullDecimal
	Adjustments   decimal.NullDecimal
	NetValue      decimal.NullDecimal
	Mpf           decimal.NullDecimal
	Hmf           decimal.NullDecimal
	ProratedMpf   decimal.NullDecimal
	CottonFee     decimal.NullDecimal
}

type addCvdRecord struct {
	CaseType   string
	CaseNumber string
	Bonded     bool
	Amount     decimal.NullDecimal
	Value      decimal.NullDecimal
	Percent    decimal.NullDecimal
}

type tariffRecord struct {
	HtsCode           string
	DutyAmount        decimal.NullDecimal
	EnteredValue      decimal.NullDecimal
	SpiPrimary        string
	SpiSecondary      string
	Quantity1         decimal.NullDecimal
	Uom1              string
	Quantity2         decimal.NullDecimal
	Uom2              string
	Quantity3         decimal.NullDecimal
	Uom3              string
	TariffDescription string
	GrossWeight       decimal.NullDecimal
	QuotaCategory     string
	VisaNumber        string
	VisaQuantity      decimal.NullDecimal
	VisaUom           string
	CustomsLineNumber int
}

type invoiceTrailerRecord struct {
	InvoiceNumber    string
	GrossWeight      decimal.NullDecimal
	TotalCharges     decimal.NullDecimal
	TotalQuantity    decimal.NullDecimal
	TotalQuantityUom string
}

func (skipRecord) isRecord()           {}
func (*entryHeaderRecord) isRecord()   {}
func (dateRecord) isRecord()           {}
func (referenceRecord) isRecord()      {}
func (containerRecord) isRecord()      {}
func (commentRecord) isRecord()        {}
func (customerRefRecord) isRecord()    {}
func (*invoiceHeaderRecord) isRecord() {}
func (*invoiceLineRecord) isRecord()   {}
func (lineChargesRecord) isRecord()    {}
func (addCvdRecord) isRecord()         {}
func (tariffRecord) isRecord()         {}
func (invoiceTrailerRecord) isRecord() {}

// extractor is the per-dialect field extraction interface. Extract returns a
// skipRecord for lines the dialect recognizes but does not support, and an
// error only for lines that invalidate the whole delivery (short records).
type extractor interface {
	Dialect() string
	Extract(line string) (record, error)
}

func extractorForDialect(dialect string) (extractor, error) {
	switch dialect {
	case DialectFixedWidth:
		return fixedWidthExtractor{}, nil
	case DialectDelimited:
		return delimitedExtractor{}, nil
	default:
		return nil, ErrUnknownDialect
	}
}
