package feedsync

import (
	"strings"

	"bitbucket.org/brokerlink/customs_backend/models"
	"github.com/shopspring/decimal"
)

// listSeparator joins display lists: newline plus a space, so multi-value cells
// wrap in downstream report exports without gluing values together.
const listSeparator = "\n "

func nullDecimal() decimal.NullDecimal {
	return decimal.NullDecimal{}
}

func validDecimal(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// joinUnique joins non-blank values in first-seen order, dropping duplicates.
func joinUnique(values []string) string {
	seen := map[string]bool{}
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return strings.Join(out, listSeparator)
}

// reconciliationFlagNames maps flag positions in the transmitted 4-character
// mask to their reconciliation issue names. Position flagged means the entry is
// flagged for that reconciliation type.
var reconciliationFlagNames = [4]string{"NAFTA", "VALUE", "CLASS", "9802"}

const flaggedMarker = 'B'

// ExpandReconciliationFlags turns the positional flag mask into the readable
// issue list, e.g. "BNNN" expands to "NAFTA".
func ExpandReconciliationFlags(flags string) string {
	var issues []string
	for i, name := range reconciliationFlagNames {
		if i < len(flags) && flags[i] == flaggedMarker {
			issues = append(issues, name)
		}
	}
	return strings.Join(issues, listSeparator)
}

func deriveUnitPrice(value, quantity decimal.NullDecimal) decimal.NullDecimal {
	if !value.Valid || !quantity.Valid || quantity.Decimal.IsZero() {
		return nullDecimal()
	}
	return validDecimal(value.Decimal.DivRound(quantity.Decimal, 4))
}

func deriveDutyRate(duty, enteredValue decimal.NullDecimal) decimal.NullDecimal {
	if !duty.Valid || !enteredValue.Valid || enteredValue.Decimal.IsZero() {
		return nullDecimal()
	}
	return validDecimal(duty.Decimal.DivRound(enteredValue.Decimal, 3))
}

// computeAggregates recomputes every derived entry field from the freshly merged
// child set: totals, ordered-unique display lists, reconciliation issues, and
// the container load indicator. Runs after mergeEntry rebuilt the children so
// the derived state always reflects the applied delivery, never a mix.
func computeAggregates(e *models.Entry, d *entryDelivery) {
	e.ReconciliationIssues = ExpandReconciliationFlags(e.ReconciliationFlags)

	e.MasterBillsOfLading = joinUnique(d.MasterBills)
	e.HouseBillsOfLading = joinUnique(d.HouseBills)
	e.SubBillsOfLading = joinUnique(d.SubBills)
	e.ItNumbers = joinUnique(d.ItNumbers)

	var (
		invoiceNumbers []string
		poNumbers      []string
		partNumbers    []string
		vendorNames    []string
		originCodes    []string
		exportCodes    []string
		spis           []string
		departments    []string
	)
	linePoNumbers := map[string]bool{}

	totalDuty := decimal.Zero
	totalFees := decimal.Zero
	totalEntered := decimal.Zero
	totalInvoiced := decimal.Zero
	totalUnits := decimal.Zero
	var anyDuty, anyFees, anyEntered, anyInvoiced, anyUnits bool

	for _, inv := range e.Invoices {
		invoiceNumbers = append(invoiceNumbers, inv.InvoiceNumber)
		if inv.ValueLocal.Valid {
			totalInvoiced = totalInvoiced.Add(inv.ValueLocal.Decimal)
			anyInvoiced = true
		}
		for _, ln := range inv.Lines {
			if ln.PoNumber != "" {
				poNumbers = append(poNumbers, ln.PoNumber)
				linePoNumbers[ln.PoNumber] = true
			}
			partNumbers = append(partNumbers, ln.PartNumber)
			vendorNames = append(vendorNames, ln.VendorName)
			originCodes = append(originCodes, ln.CountryOriginCode)
			exportCodes = append(exportCodes, ln.CountryExportCode)
			departments = append(departments, ln.Department)
			if ln.Quantity.Valid {
				totalUnits = totalUnits.Add(ln.Quantity.Decimal)
				anyUnits = true
			}
			for _, fee := range []decimal.NullDecimal{ln.ProratedMpf, ln.Hmf, ln.CottonFee} {
				if fee.Valid {
					totalFees = totalFees.Add(fee.Decimal)
					anyFees = true
				}
			}
			for _, t := range ln.Tariffs {
				spis = append(spis, t.SpiPrimary)
				if t.DutyAmount.Valid {
					totalDuty = totalDuty.Add(t.DutyAmount.Decimal)
					anyDuty = true
				}
				if t.EnteredValue.Valid {
					totalEntered = totalEntered.Add(t.EnteredValue.Decimal)
					anyEntered = true
				}
			}
		}
	}

	e.CommercialInvoiceNumbers = joinUnique(invoiceNumbers)
	e.PoNumbers = joinUnique(poNumbers)
	e.PartNumbers = joinUnique(partNumbers)
	e.VendorNames = joinUnique(vendorNames)
	e.OriginCountryCodes = joinUnique(originCodes)
	e.ExportCountryCodes = joinUnique(exportCodes)
	e.SpecialProgramIndicators = joinUnique(spis)
	e.Departments = joinUnique(departments)

	// Customer reference records that just echo a line's purchase order number
	// add nothing over the PO list, so they are filtered out.
	var customerRefs []string
	for _, ref := range d.CustomerRefs {
		if linePoNumbers[strings.TrimSpace(ref)] {
			continue
		}
		customerRefs = append(customerRefs, ref)
	}
	e.CustomerReferences = joinUnique(customerRefs)

	e.TotalDuty = totalIfAny(totalDuty, anyDuty)
	e.TotalFees = totalIfAny(totalFees, anyFees)
	e.TotalEnteredValue = totalIfAny(totalEntered, anyEntered)
	e.TotalInvoicedValue = totalIfAny(totalInvoiced, anyInvoiced)
	e.TotalUnits = totalIfAny(totalUnits, anyUnits)

	var containerNumbers, containerSizes []string
	sawFcl, sawLcl := false, false
	for _, c := range e.Containers {
		containerNumbers = append(containerNumbers, c.ContainerNumber)
		containerSizes = append(containerSizes, c.Size)
		switch c.FclLcl {
		case "F":
			sawFcl = true
		case "L":
			sawLcl = true
		}
	}
	e.ContainerNumbers = joinUnique(containerNumbers)
	e.ContainerSizes = joinUnique(containerSizes)
	switch {
	case sawFcl && sawLcl:
		e.FclLcl = "FCL/LCL"
	case sawFcl:
		e.FclLcl = "FCL"
	case sawLcl:
		e.FclLcl = "LCL"
	default:
		e.FclLcl = ""
	}
}

func totalIfAny(sum decimal.Decimal, any bool) decimal.NullDecimal {
	if !any {
		return nullDecimal()
	}
	return validDecimal(sum)
}
