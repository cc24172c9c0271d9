package feedsync

import (
	"encoding/csv"
	"fmt"
	"strings"

	"bitbucket.org/brokerlink/customs_backend/coerce"
)

// delimitedExtractor speaks the quoted-CSV legacy layout. The record type is
// the first cell; a leading "R2" literal marks the newer sub-format whose
// remaining columns are not supported yet, so those rows are skipped whole.
type delimitedExtractor struct{}

func (delimitedExtractor) Dialect() string { return DialectDelimited }

// newFormatMarker prefixes rows in the revised export layout. Until that layout
// is mapped, such rows are skipped without failing the file.
const newFormatMarker = "R2"

// Minimum cell counts per record type, through the last required column.
// A row below its minimum rejects the whole file, never a silent truncation.
var delimitedMinCells = map[string]int{
	"ENT": 13,
	"DTE": 3,
	"REF": 3,
	"CON": 4,
	"CMT": 4,
	"CRF": 2,
	"INV": 9,
	"LIN": 10,
	"TAR": 4,
	"ACD": 6,
}

// cell fetches an optional trailing column.
func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return row[i]
}

func (delimitedExtractor) Extract(line string) (record, error) {
	reader := csv.NewReader(strings.NewReader(line))
	reader.FieldsPerRecord = -1
	row, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDelivery, err)
	}
	if len(row) == 0 {
		return skipRecord{}, nil
	}
	if strings.TrimSpace(row[0]) == newFormatMarker {
		return skipRecord{code: newFormatMarker}, nil
	}

	recordType := strings.TrimSpace(row[0])
	minCells, ok := delimitedMinCells[recordType]
	if !ok {
		return skipRecord{code: recordType}, nil
	}
	if len(row) < minCells {
		return nil, fmt.Errorf("%w: %s row has %d cells, minimum %d", ErrMalformedDelivery, recordType, len(row), minCells)
	}

	switch recordType {
	case "ENT":
		return &entryHeaderRecord{
			BrokerReference:        coerce.Cell(row[1]),
			EntryNumber:            coerce.Cell(row[2]),
			FilerCode:              coerce.Cell(row[3]),
			CustomerNumber:         coerce.Cell(row[4]),
			CustomerName:           coerce.Cell(row[5]),
			CompanyNumber:          coerce.NullIfBlankOrZeros(row[6]),
			DivisionNumber:         coerce.NullIfBlankOrZeros(row[7]),
			MerchandiseDescription: coerce.Cell(row[8]),
			ReconciliationFlags:    strings.TrimRight(row[9], " "),
			DutyDirect:             coerce.DecimalCell(row[10]),
			EntryPort:              coerce.PortCode(row[11]),
			TransportMode:          coerce.PortCode(row[12]),
		}, nil

	case "DTE":
		return dateRecord{
			FieldCode: coerce.Cell(row[1]),
			Value:     coerce.Timestamp(row[2]),
			Label:     coerce.Cell(cell(row, 3)),
		}, nil

	case "REF":
		return referenceRecord{
			RefType: coerce.Cell(row[1]),
			Value:   coerce.Cell(row[2]),
			Date:    coerce.Timestamp(cell(row, 3)),
		}, nil

	case "CON":
		return containerRecord{
			ContainerNumber: coerce.Cell(row[1]),
			Size:            coerce.Cell(row[2]),
			FclLcl:          coerce.Cell(row[3]),
		}, nil

	case "CMT":
		return commentRecord{
			GeneratedAt: coerce.Timestamp(row[1]),
			Username:    coerce.Cell(row[2]),
			Body:        coerce.Cell(row[3]),
		}, nil

	case "CRF":
		return customerRefRecord{
			Text: coerce.Cell(row[1]),
		}, nil

	case "INV":
		return &invoiceHeaderRecord{
			InvoiceNumber:     coerce.Cell(row[1]),
			Currency:          coerce.Cell(row[2]),
			ExchangeRate:      coerce.DecimalCell(row[3]),
			ValueForeign:      coerce.DecimalCell(row[4]),
			ValueLocal:        coerce.DecimalCell(row[5]),
			CountryOriginCode: coerce.Cell(row[6]),
			InvoiceDate:       coerce.Timestamp(row[7]),
			Mfid:              coerce.Cell(row[8]),
		}, nil

	case "LIN":
		return &invoiceLineRecord{
			LineNumber:        coerce.IntCell(row[1]),
			PartNumber:        coerce.Cell(row[2]),
			CountryOriginCode: coerce.Cell(row[3]),
			OriginStateCode:   coerce.Cell(row[4]),
			CountryExportCode: coerce.Cell(row[5]),
			ExportStateCode:   coerce.Cell(row[6]),
			Quantity:          coerce.DecimalCell(row[7]),
			UnitOfMeasure:     coerce.Cell(row[8]),
			Value:             coerce.DecimalCell(row[9]),
			VendorName:        coerce.Cell(cell(row, 10)),
			PoNumber:          coerce.Cell(cell(row, 11)),
			Mid:               coerce.Cell(cell(row, 12)),
			Department:        coerce.NullIfBlankOrZeros(cell(row, 13)),
			ProductLine:       coerce.Cell(cell(row, 14)),
			StoreName:         coerce.Cell(cell(row, 15)),
			ContractAmount:    coerce.DecimalCell(cell(row, 16)),
			Volume:            coerce.DecimalCell(cell(row, 17)),
		}, nil

	case "TAR":
		return tariffRecord{
			HtsCode:           coerce.Cell(row[1]),
			DutyAmount:        coerce.DecimalCell(row[2]),
			EnteredValue:      coerce.DecimalCell(row[3]),
			SpiPrimary:        coerce.Cell(cell(row, 4)),
			SpiSecondary:      coerce.Cell(cell(row, 5)),
			Quantity1:         coerce.DecimalCell(cell(row, 6)),
			Uom1:              coerce.Cell(cell(row, 7)),
			Quantity2:         coerce.DecimalCell(cell(row, 8)),
			Uom2:              coerce.Cell(cell(row, 9)),
			Quantity3:         coerce.DecimalCell(cell(row, 10)),
			Uom3:              coerce.Cell(cell(row, 11)),
			GrossWeight:       coerce.DecimalCell(cell(row, 12)),
			QuotaCategory:     coerce.NullIfBlankOrZeros(cell(row, 13)),
			VisaNumber:        coerce.Cell(cell(row, 14)),
			VisaQuantity:      coerce.DecimalCell(cell(row, 15)),
			VisaUom:           coerce.Cell(cell(row, 16)),
			CustomsLineNumber: coerce.IntCell(cell(row, 17)),
			TariffDescription: coerce.Cell(cell(row, 18)),
		}, nil

	case "ACD":
		return addCvdRecord{
			CaseType:   coerce.Cell(row[1]),
			CaseNumber: coerce.Cell(row[2]),
			Bonded:     coerce.Cell(row[3]) == "Y",
			Amount:     coerce.DecimalCell(row[4]),
			Value:      coerce.DecimalCell(row[5]),
			Percent:    coerce.DecimalCell(cell(row, 6)),
		}, nil
	}

	return skipRecord{code: recordType}, nil
}
