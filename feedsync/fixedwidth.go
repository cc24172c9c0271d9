package feedsync

import (
	"fmt"
	"strings"

	"bitbucket.org/brokerlink/customs_backend/coerce"
)

// fixedWidthExtractor speaks the positional legacy layout. Record type is the
// leading 4-character code; offsets are absolute character positions; monetary
// tokens are unsigned digit strings with an implied 2-decimal scale.
type fixedWidthExtractor struct{}

func (fixedWidthExtractor) Dialect() string { return DialectFixedWidth }

// Minimum line lengths per record code, through the last required field.
// A shorter line is unparsable and poisons the whole delivery.
var fixedWidthMinLen = map[string]int{
	"SE10": 156,
	"SE15": 19,
	"SE20": 35,
	"SE25": 27,
	"SE30": 31,
	"SE35": 5,
	"CI10": 91,
	"CI20": 52,
	"CI21": 55,
	"CI25": 28,
	"CI30": 38,
	"CI40": 50,
}

// fw slices a fixed-width field, tolerating lines trimmed short of optional
// trailing fields.
func fw(line string, start, end int) string {
	if start >= len(line) {
		return ""
	}
	if end > len(line) {
		end = len(line)
	}
	return line[start:end]
}

func (fixedWidthExtractor) Extract(line string) (record, error) {
	if len(line) < 4 {
		return nil, fmt.Errorf("%w: record %q shorter than type code", ErrMalformedDelivery, line)
	}
	code := line[0:4]
	minLen, ok := fixedWidthMinLen[code]
	if !ok {
		return skipRecord{code: code}, nil
	}
	if len(line) < minLen {
		return nil, fmt.Errorf("%w: %s record length %d below minimum %d", ErrMalformedDelivery, code, len(line), minLen)
	}

	switch code {
	case "SE10":
		return &entryHeaderRecord{
			FilerCode:              coerce.Cell(fw(line, 4, 7)),
			EntryNumber:            coerce.Cell(fw(line, 7, 19)),
			BrokerReference:        coerce.Cell(fw(line, 19, 31)),
			CustomerNumber:         coerce.Cell(fw(line, 31, 41)),
			CustomerName:           coerce.Cell(fw(line, 41, 76)),
			CompanyNumber:          coerce.NullIfBlankOrZeros(fw(line, 76, 80)),
			DivisionNumber:         coerce.NullIfBlankOrZeros(fw(line, 80, 84)),
			MerchandiseDescription: coerce.Cell(fw(line, 84, 134)),
			ReconciliationFlags:    strings.TrimRight(fw(line, 134, 138), " "),
			DutyDirect:             coerce.Amount(fw(line, 138, 150), 2),
			EntryPort:              coerce.PortCode(fw(line, 150, 154)),
			TransportMode:          coerce.PortCode(fw(line, 154, 156)),
		}, nil

	case "SE15":
		return dateRecord{
			FieldCode: coerce.Cell(fw(line, 4, 7)),
			Value:     coerce.Timestamp(fw(line, 7, 19)),
			Label:     coerce.Cell(fw(line, 19, 54)),
		}, nil

	case "SE20":
		return referenceRecord{
			RefType: coerce.Cell(fw(line, 4, 5)),
			Value:   coerce.Cell(fw(line, 5, 35)),
			Date:    coerce.Timestamp(fw(line, 35, 47)),
		}, nil

	case "SE25":
		return containerRecord{
			ContainerNumber: coerce.Cell(fw(line, 4, 19)),
			Size:            coerce.Cell(fw(line, 19, 26)),
			FclLcl:          coerce.Cell(fw(line, 26, 27)),
		}, nil

	case "SE30":
		return commentRecord{
			GeneratedAt: coerce.Timestamp(fw(line, 4, 16)),
			Username:    coerce.Cell(fw(line, 16, 31)),
			Body:        coerce.Cell(fw(line, 31, len(line))),
		}, nil

	case "SE35":
		return customerRefRecord{
			Text: coerce.Cell(fw(line, 4, len(line))),
		}, nil

	case "CI10":
		return &invoiceHeaderRecord{
			InvoiceNumber:     coerce.Cell(fw(line, 4, 26)),
			Currency:          coerce.Cell(fw(line, 26, 29)),
			ExchangeRate:      coerce.Amount(fw(line, 29, 38), 6),
			ValueForeign:      coerce.Amount(fw(line, 38, 50), 2),
			ValueLocal:        coerce.Amount(fw(line, 50, 62), 2),
			CountryOriginCode: coerce.Cell(fw(line, 62, 64)),
			InvoiceDate:       coerce.Timestamp(fw(line, 64, 76)),
			Mfid:              coerce.Cell(fw(line, 76, 91)),
		}, nil

	case "CI20":
		originCountry, originState := coerce.SplitStateCode(fw(line, 19, 22))
		exportCountry, exportState := coerce.SplitStateCode(fw(line, 22, 25))
		return &invoiceLineRecord{
			PartNumber:        coerce.Cell(fw(line, 4, 19)),
			CountryOriginCode: originCountry,
			OriginStateCode:   originState,
			CountryExportCode: exportCountry,
			ExportStateCode:   exportState,
			Quantity:          coerce.Amount(fw(line, 25, 37), 2),
			UnitOfMeasure:     coerce.Cell(fw(line, 37, 40)),
			Value:             coerce.Amount(fw(line, 40, 52), 2),
			VendorName:        coerce.Cell(fw(line, 52, 87)),
			PoNumber:          coerce.Cell(fw(line, 87, 107)),
			Mid:               coerce.Cell(fw(line, 107, 122)),
			Department:        coerce.NullIfBlankOrZeros(fw(line, 122, 132)),
			ProductLine:       coerce.Cell(fw(line, 132, 142)),
			StoreName:         coerce.Cell(fw(line, 142, 172)),
			ContractAmount:    coerce.Amount(fw(line, 172, 184), 2),
			Volume:            coerce.Amount(fw(line, 184, 196), 2),
		}, nil

	case "CI21":
		return lineChargesRecord{
			ComputedValue: coerce.Amount(fw(line, 19, 31), 2),
			Adjustments:   coerce.Amount(fw(line, 31, 43), 2),
			NetValue:      coerce.Amount(fw(line, 43, 55), 2),
			Mpf:           coerce.Amount(fw(line, 55, 66), 2),
			Hmf:           coerce.Amount(fw(line, 66, 77), 2),
			ProratedMpf:   coerce.Amount(fw(line, 77, 88), 2),
			CottonFee:     coerce.Amount(fw(line, 88, 99), 2),
		}, nil

	case "CI25":
		return addCvdRecord{
			CaseType:   coerce.Cell(fw(line, 4, 5)),
			CaseNumber: coerce.Cell(fw(line, 5, 15)),
			Bonded:     coerce.Cell(fw(line, 15, 16)) == "Y",
			Amount:     coerce.Amount(fw(line, 16, 28), 2),
			Value:      coerce.Amount(fw(line, 28, 40), 2),
			Percent:    coerce.Amount(fw(line, 40, 47), 2),
		}, nil

	case "CI30":
		return tariffRecord{
			HtsCode:           coerce.Cell(fw(line, 4, 14)),
			DutyAmount:        coerce.Amount(fw(line, 14, 26), 2),
			EnteredValue:      coerce.Amount(fw(line, 26, 38), 2),
			SpiPrimary:        coerce.Cell(fw(line, 38, 40)),
			SpiSecondary:      coerce.Cell(fw(line, 40, 41)),
			Quantity1:         coerce.Amount(fw(line, 41, 53), 2),
			Uom1:              coerce.Cell(fw(line, 53, 56)),
			Quantity2:         coerce.Amount(fw(line, 56, 68), 2),
			Uom2:              coerce.Cell(fw(line, 68, 71)),
			Quantity3:         coerce.Amount(fw(line, 71, 83), 2),
			Uom3:              coerce.Cell(fw(line, 83, 86)),
			GrossWeight:       coerce.Amount(fw(line, 86, 98), 2),
			QuotaCategory:     coerce.NullIfBlankOrZeros(fw(line, 98, 101)),
			VisaNumber:        coerce.Cell(fw(line, 101, 110)),
			VisaQuantity:      coerce.Amount(fw(line, 110, 122), 2),
			VisaUom:           coerce.Cell(fw(line, 122, 125)),
			CustomsLineNumber: coerce.IntCell(fw(line, 125, 128)),
			TariffDescription: coerce.Cell(fw(line, 128, 163)),
		}, nil

	case "CI40":
		return invoiceTrailerRecord{
			InvoiceNumber:    coerce.Cell(fw(line, 4, 26)),
			GrossWeight:      coerce.Amount(fw(line, 26, 38), 2),
			TotalCharges:     coerce.Amount(fw(line, 38, 50), 2),
			TotalQuantity:    coerce.Amount(fw(line, 50, 62), 2),
			TotalQuantityUom: coerce.Cell(fw(line, 62, 65)),
		}, nil
	}

	return skipRecord{code: code}, nil
}
