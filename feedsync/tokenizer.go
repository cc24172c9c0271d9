package feedsync

import (
	"strconv"
	"strings"
	"time"
)

// entryDelivery accumulates every record transmitted for one natural key inside
// a single feed file. Presence in Dates means the field was transmitted, even
// when the value is blank; merge uses that distinction to clear fields.
type entryDelivery struct {
	Header *entryHeaderRecord

	Dates map[string]*time.Time
	// refFirstIt is the date carried on the first in-transit reference record.
	// An explicit first_it date field in Dates takes precedence over it.
	refFirstIt *time.Time

	MasterBills []string
	HouseBills  []string
	SubBills    []string
	ItNumbers   []string

	Containers   []containerRecord
	containerIdx map[string]int
	Comments     []commentRecord
	CustomerRefs []string

	Invoices   []*invoiceAccum
	invoiceIdx map[string]*invoiceAccum
}

type invoiceAccum struct {
	Header  *invoiceHeaderRecord
	Trailer *invoiceTrailerRecord
	Lines   []*lineAccum
	lineIdx map[string]*lineAccum
}

type lineAccum struct {
	Line      *invoiceLineRecord
	Charges   *lineChargesRecord
	Tariffs   []tariffRecord
	tariffIdx map[string]int
	Cases     []addCvdRecord
	caseIdx   map[string]int
}

func newEntryDelivery(header *entryHeaderRecord) *entryDelivery {
	return &entryDelivery{
		Header:       header,
		Dates:        map[string]*time.Time{},
		containerIdx: map[string]int{},
		invoiceIdx:   map[string]*invoiceAccum{},
	}
}

func (d *entryDelivery) key() string {
	if d.Header.BrokerReference != "" {
		return d.Header.BrokerReference
	}
	return d.Header.EntryNumber
}

// firstItDate resolves the in-transit date: an explicitly transmitted date field
// wins over the date carried on the first in-transit reference record.
func (d *entryDelivery) firstItDate() (*time.Time, bool) {
	if v, ok := d.Dates[dateFirstIt]; ok {
		return v, true
	}
	if d.refFirstIt != nil {
		return d.refFirstIt, true
	}
	return nil, false
}

// lineKey picks the sub-record key the dialect supplied: line numbers in the
// delimited layout, part numbers in the fixed-width one.
func lineKey(rec *invoiceLineRecord) string {
	if rec.LineNumber > 0 {
		return strconv.Itoa(rec.LineNumber)
	}
	return rec.PartNumber
}

// parseContext tracks what the current record attaches to. Feed files are
// ordered streams: sub-records bind to the most recent parent of their kind,
// and a sub-record with no parent in scope is dropped.
type parseContext struct {
	deliveries []*entryDelivery
	byKey      map[string]*entryDelivery

	current *entryDelivery
	invoice *invoiceAccum
	line    *lineAccum
}

// tokenize runs the dialect extractor over the raw feed and groups records into
// per-key deliveries. Any extraction error poisons the whole file; nothing is
// returned for a partially readable delivery.
func tokenize(ex extractor, raw []byte) ([]*entryDelivery, error) {
	pc := &parseContext{byKey: map[string]*entryDelivery{}}

	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		rec, err := ex.Extract(line)
		if err != nil {
			return nil, err
		}
		pc.dispatch(rec)
	}
	return pc.deliveries, nil
}

func (pc *parseContext) dispatch(rec record) {
	switch r := rec.(type) {
	case skipRecord:

	case *entryHeaderRecord:
		d := newEntryDelivery(r)
		if prev, ok := pc.byKey[d.key()]; ok {
			// Same key transmitted twice in one file: the later block replaces
			// the earlier one wholesale.
			*prev = *d
			pc.current = prev
		} else {
			pc.byKey[d.key()] = d
			pc.deliveries = append(pc.deliveries, d)
			pc.current = d
		}
		pc.invoice = nil
		pc.line = nil

	case dateRecord:
		if pc.current == nil {
			return
		}
		field, ok := dateFieldByCode[r.FieldCode]
		if !ok {
			return
		}
		pc.current.Dates[field] = r.Value

	case referenceRecord:
		if pc.current == nil || r.Value == "" {
			return
		}
		switch r.RefType {
		case refMasterBill:
			pc.current.MasterBills = append(pc.current.MasterBills, r.Value)
		case refHouseBill:
			pc.current.HouseBills = append(pc.current.HouseBills, r.Value)
		case refSubBill:
			pc.current.SubBills = append(pc.current.SubBills, r.Value)
		case refItNumber:
			pc.current.ItNumbers = append(pc.current.ItNumbers, r.Value)
			if r.Date != nil && pc.current.refFirstIt == nil {
				pc.current.refFirstIt = r.Date
			}
		}

	case containerRecord:
		if pc.current == nil || r.ContainerNumber == "" {
			return
		}
		if i, ok := pc.current.containerIdx[r.ContainerNumber]; ok {
			pc.current.Containers[i] = r
			return
		}
		pc.current.containerIdx[r.ContainerNumber] = len(pc.current.Containers)
		pc.current.Containers = append(pc.current.Containers, r)

	case commentRecord:
		if pc.current == nil || r.Body == "" {
			return
		}
		pc.current.Comments = append(pc.current.Comments, r)

	case customerRefRecord:
		if pc.current == nil || r.Text == "" {
			return
		}
		pc.current.CustomerRefs = append(pc.current.CustomerRefs, r.Text)

	case *invoiceHeaderRecord:
		if pc.current == nil || r.InvoiceNumber == "" {
			return
		}
		inv, ok := pc.current.invoiceIdx[r.InvoiceNumber]
		if ok {
			inv.Header = r
		} else {
			inv = &invoiceAccum{Header: r, lineIdx: map[string]*lineAccum{}}
			pc.current.invoiceIdx[r.InvoiceNumber] = inv
			pc.current.Invoices = append(pc.current.Invoices, inv)
		}
		pc.invoice = inv
		pc.line = nil

	case *invoiceLineRecord:
		if pc.invoice == nil {
			return
		}
		key := lineKey(r)
		if key == "" {
			return
		}
		ln, ok := pc.invoice.lineIdx[key]
		if ok {
			ln.Line = r
		} else {
			ln = &lineAccum{Line: r, tariffIdx: map[string]int{}, caseIdx: map[string]int{}}
			pc.invoice.lineIdx[key] = ln
			pc.invoice.Lines = append(pc.invoice.Lines, ln)
		}
		pc.line = ln

	case lineChargesRecord:
		if pc.line == nil {
			return
		}
		charges := r
		pc.line.Charges = &charges

	case addCvdRecord:
		if pc.line == nil || r.CaseNumber == "" {
			return
		}
		key := r.CaseType + "|" + r.CaseNumber
		if i, ok := pc.line.caseIdx[key]; ok {
			pc.line.Cases[i] = r
			return
		}
		pc.line.caseIdx[key] = len(pc.line.Cases)
		pc.line.Cases = append(pc.line.Cases, r)

	case tariffRecord:
		if pc.line == nil || r.HtsCode == "" {
			return
		}
		if i, ok := pc.line.tariffIdx[r.HtsCode]; ok {
			pc.line.Tariffs[i] = r
			return
		}
		pc.line.tariffIdx[r.HtsCode] = len(pc.line.Tariffs)
		pc.line.Tariffs = append(pc.line.Tariffs, r)

	case invoiceTrailerRecord:
		if pc.current == nil {
			return
		}
		inv := pc.invoice
		if r.InvoiceNumber != "" {
			if byNumber, ok := pc.current.invoiceIdx[r.InvoiceNumber]; ok {
				inv = byNumber
			}
		}
		if inv == nil {
			return
		}
		trailer := r
		inv.Trailer = &trailer
	}
}
