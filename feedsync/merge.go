package feedsync

import (
	"time"

	"bitbucket.org/brokerlink/customs_backend/models"
)

// retainOnOmission lists the date fields that keep their persisted value when a
// fresher delivery omits them. Every other transmitted field clears on omission:
// the feed is a full snapshot, and an absent record means the source no longer
// has the value. The filed date is the exception because some sources stop
// transmitting it after liquidation.
var retainOnOmission = map[string]bool{
	dateFiled: true,
}

func entryDateSlots(e *models.Entry) map[string]**time.Time {
	return map[string]**time.Time{
		dateArrival:          &e.ArrivalDate,
		dateExport:           &e.ExportDate,
		dateFiled:            &e.FiledDate,
		dateRelease:          &e.ReleaseDate,
		dateFirstRelease:     &e.FirstReleaseDate,
		dateFree:             &e.FreeDate,
		dateLastBilled:       &e.LastBilledDate,
		dateInvoicePaid:      &e.InvoicePaidDate,
		dateLiquidation:      &e.LiquidationDate,
		dateDutyDue:          &e.DutyDueDate,
		dateFileLogged:       &e.FileLoggedDate,
		dateFdaRelease:       &e.FdaReleaseDate,
		dateFdaReview:        &e.FdaReviewDate,
		dateDailyStatement:   &e.DailyStatementDate,
		dateMonthlyStatement: &e.MonthlyStatementDate,
		dateFirstIt:          &e.FirstItDate,
	}
}

// mergeEntry applies one tokenized delivery onto the persisted aggregate (nil
// when the key is new). Header scalars and transmitted dates overwrite; omitted
// dates clear unless retained; child collections are rebuilt from the delivery,
// keeping existing row ids so the store updates in place. Comments only append.
func mergeEntry(existing *models.Entry, d *entryDelivery, payload DeliveryPayload) *models.Entry {
	e := existing
	if e == nil {
		e = &models.Entry{SourceSystem: payload.SourceSystem}
	}

	h := d.Header
	if h.BrokerReference != "" {
		e.BrokerReference = h.BrokerReference
	}
	if h.EntryNumber != "" {
		e.EntryNumber = h.EntryNumber
	}
	e.FilerCode = h.FilerCode
	e.CustomerNumber = h.CustomerNumber
	e.CustomerName = h.CustomerName
	e.CompanyNumber = h.CompanyNumber
	e.DivisionNumber = h.DivisionNumber
	e.MerchandiseDescription = h.MerchandiseDescription
	e.ReconciliationFlags = h.ReconciliationFlags
	e.DutyDirect = h.DutyDirect
	e.EntryPort = h.EntryPort
	e.TransportMode = h.TransportMode

	for field, slot := range entryDateSlots(e) {
		var value *time.Time
		var transmitted bool
		if field == dateFirstIt {
			value, transmitted = d.firstItDate()
		} else {
			value, transmitted = d.Dates[field]
		}
		if transmitted {
			*slot = value
		} else if !retainOnOmission[field] {
			*slot = nil
		}
	}

	e.Containers = mergeContainers(e.ID, e.Containers, d.Containers)
	e.Invoices = mergeInvoices(e.ID, e.Invoices, d.Invoices)
	e.Comments = mergeComments(e.ID, e.Comments, d.Comments)

	extractedAt := payload.ExtractedAt
	e.LastExportedFromSource = &extractedAt
	e.LastFileBucket = payload.OriginBucket
	e.LastFilePath = payload.OriginPath

	computeAggregates(e, d)
	return e
}

func mergeContainers(entryId int, existing []models.Container, delivered []containerRecord) []models.Container {
	byNumber := map[string]models.Container{}
	for _, c := range existing {
		byNumber[c.ContainerNumber] = c
	}
	out := make([]models.Container, 0, len(delivered))
	for _, rec := range delivered {
		c := byNumber[rec.ContainerNumber]
		c.EntryId = entryId
		c.ContainerNumber = rec.ContainerNumber
		c.Size = rec.Size
		c.FclLcl = rec.FclLcl
		out = append(out, c)
	}
	return out
}

func mergeInvoices(entryId int, existing []models.CommercialInvoice, delivered []*invoiceAccum) []models.CommercialInvoice {
	byNumber := map[string]models.CommercialInvoice{}
	for _, inv := range existing {
		byNumber[inv.InvoiceNumber] = inv
	}
	out := make([]models.CommercialInvoice, 0, len(delivered))
	for _, acc := range delivered {
		h := acc.Header
		inv := byNumber[h.InvoiceNumber]
		inv.EntryId = entryId
		inv.InvoiceNumber = h.InvoiceNumber
		inv.Currency = h.Currency
		inv.ExchangeRate = h.ExchangeRate
		inv.ValueForeign = h.ValueForeign
		inv.ValueLocal = h.ValueLocal
		inv.CountryOriginCode = h.CountryOriginCode
		inv.InvoiceDate = h.InvoiceDate
		inv.Mfid = h.Mfid
		if t := acc.Trailer; t != nil {
			inv.GrossWeight = t.GrossWeight
			inv.TotalCharges = t.TotalCharges
			inv.TotalQuantity = t.TotalQuantity
			inv.TotalQuantityUom = t.TotalQuantityUom
		} else {
			inv.GrossWeight = nullDecimal()
			inv.TotalCharges = nullDecimal()
			inv.TotalQuantity = nullDecimal()
			inv.TotalQuantityUom = ""
		}
		inv.Lines = mergeLines(inv.ID, inv.Lines, acc.Lines)
		out = append(out, inv)
	}
	return out
}

func mergeLines(invoiceId int, existing []models.CommercialInvoiceLine, delivered []*lineAccum) []models.CommercialInvoiceLine {
	byKey := map[string]models.CommercialInvoiceLine{}
	for _, ln := range existing {
		byKey[ln.LineKey] = ln
	}
	out := make([]models.CommercialInvoiceLine, 0, len(delivered))
	for _, acc := range delivered {
		rec := acc.Line
		key := lineKey(rec)
		ln := byKey[key]
		ln.InvoiceId = invoiceId
		ln.LineKey = key
		ln.PartNumber = rec.PartNumber
		ln.LineNumber = rec.LineNumber
		ln.CountryOriginCode = rec.CountryOriginCode
		ln.OriginStateCode = rec.OriginStateCode
		ln.CountryExportCode = rec.CountryExportCode
		ln.ExportStateCode = rec.ExportStateCode
		ln.Quantity = rec.Quantity
		ln.UnitOfMeasure = rec.UnitOfMeasure
		ln.Value = rec.Value
		ln.UnitPrice = deriveUnitPrice(rec.Value, rec.Quantity)
		ln.VendorName = rec.VendorName
		ln.PoNumber = rec.PoNumber
		ln.Mid = rec.Mid
		ln.Department = rec.Department
		ln.ProductLine = rec.ProductLine
		ln.StoreName = rec.StoreName
		ln.ContractAmount = rec.ContractAmount
		ln.Volume = rec.Volume
		if ch := acc.Charges; ch != nil {
			ln.ComputedValue = ch.ComputedValue
			ln.Adjustments = ch.Adjustments
			ln.NetValue = ch.NetValue
			ln.Mpf = ch.Mpf
			ln.Hmf = ch.Hmf
			ln.ProratedMpf = ch.ProratedMpf
			ln.CottonFee = ch.CottonFee
		} else {
			ln.ComputedValue = nullDecimal()
			ln.Adjustments = nullDecimal()
			ln.NetValue = nullDecimal()
			ln.Mpf = nullDecimal()
			ln.Hmf = nullDecimal()
			ln.ProratedMpf = nullDecimal()
			ln.CottonFee = nullDecimal()
		}
		ln.Tariffs = mergeTariffs(ln.ID, ln.Tariffs, acc.Tariffs)
		ln.AddCvdCases = mergeCases(ln.ID, ln.AddCvdCases, acc.Cases)
		out = append(out, ln)
	}
	return out
}

func mergeTariffs(lineId int, existing []models.CommercialInvoiceTariff, delivered []tariffRecord) []models.CommercialInvoiceTariff {
	byHts := map[string]models.CommercialInvoiceTariff{}
	for _, t := range existing {
		byHts[t.HtsCode] = t
	}
	out := make([]models.CommercialInvoiceTariff, 0, len(delivered))
	for _, rec := range delivered {
		t := byHts[rec.HtsCode]
		t.LineId = lineId
		t.HtsCode = rec.HtsCode
		t.DutyAmount = rec.DutyAmount
		t.EnteredValue = rec.EnteredValue
		t.DutyRate = deriveDutyRate(rec.DutyAmount, rec.EnteredValue)
		t.SpiPrimary = rec.SpiPrimary
		t.SpiSecondary = rec.SpiSecondary
		t.Quantity1 = rec.Quantity1
		t.Uom1 = rec.Uom1
		t.Quantity2 = rec.Quantity2
		t.Uom2 = rec.Uom2
		t.Quantity3 = rec.Quantity3
		t.Uom3 = rec.Uom3
		t.TariffDescription = rec.TariffDescription
		t.GrossWeight = rec.GrossWeight
		t.QuotaCategory = rec.QuotaCategory
		t.VisaNumber = rec.VisaNumber
		t.VisaQuantity = rec.VisaQuantity
		t.VisaUom = rec.VisaUom
		t.CustomsLineNumber = rec.CustomsLineNumber
		out = append(out, t)
	}
	return out
}

func mergeCases(lineId int, existing []models.AddCvdCase, delivered []addCvdRecord) []models.AddCvdCase {
	byKey := map[string]models.AddCvdCase{}
	for _, c := range existing {
		byKey[c.CaseType+"|"+c.CaseNumber] = c
	}
	out := make([]models.AddCvdCase, 0, len(delivered))
	for _, rec := range delivered {
		c := byKey[rec.CaseType+"|"+rec.CaseNumber]
		c.LineId = lineId
		c.CaseType = rec.CaseType
		c.CaseNumber = rec.CaseNumber
		c.Bonded = rec.Bonded
		c.Amount = rec.Amount
		c.Value = rec.Value
		c.Percent = rec.Percent
		out = append(out, c)
	}
	return out
}

func commentDedupKey(generatedAt *time.Time, username, body string) string {
	ts := ""
	if generatedAt != nil {
		ts = generatedAt.UTC().Format(time.RFC3339)
	}
	return ts + "|" + username + "|" + body
}

func mergeComments(entryId int, existing []models.EntryComment, delivered []commentRecord) []models.EntryComment {
	seen := map[string]bool{}
	out := make([]models.EntryComment, 0, len(existing)+len(delivered))
	for _, c := range existing {
		seen[commentDedupKey(c.GeneratedAt, c.Username, c.Body)] = true
		out = append(out, c)
	}
	for _, rec := range delivered {
		key := commentDedupKey(rec.GeneratedAt, rec.Username, rec.Body)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, models.EntryComment{
			EntryId:     entryId,
			GeneratedAt: rec.GeneratedAt,
			Username:    rec.Username,
			Body:        rec.Body,
		})
	}
	return out
}
