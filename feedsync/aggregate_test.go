package feedsync

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestExpandReconciliationFlags(t *testing.T) {
	cases := []struct {
		flags string
		want  string
	}{
		{"BNNN", "NAFTA"},
		{"NBNN", "VALUE"},
		{"NNBN", "CLASS"},
		{"NNNB", "9802"},
		{"BBBB", "NAFTA\n VALUE\n CLASS\n 9802"},
		{"NNNN", ""},
		{"", ""},
		{"BN", "NAFTA"},
	}
	for _, tc := range cases {
		if got := ExpandReconciliationFlags(tc.flags); got != tc.want {
			t.Errorf("ExpandReconciliationFlags(%q) = %q, want %q", tc.flags, got, tc.want)
		}
	}
}

func TestJoinUnique(t *testing.T) {
	got := joinUnique([]string{"PO-1", "PO-2", "PO-1", " ", "PO-3", "PO-2"})
	want := "PO-1\n PO-2\n PO-3"
	if got != want {
		t.Fatalf("joinUnique = %q, want %q", got, want)
	}
}

func TestComputeAggregatesTotals(t *testing.T) {
	d := tokenizeOne(t,
		se10Line("ABC", "111", "REF001", "C1", "ACME", "", "", "", "BNNN", "0", "2704", "11"),
		ci10Line("INV-1", "USD", "1000000", "100000", "100000", "CN", "20240110", "MFID1"),
		ci20Line("PART1", "CN ", "CN ", "10000", "PCS", "50000"),
		ci30Line("6403999060", "1250", "50000"),
		ci30Line("9903880300", "3750", "50000"),
		ci10Line("INV-2", "USD", "1000000", "20000", "20000", "VN", "20240111", "MFID2"),
		ci20Line("PART2", "VN ", "VN ", "5000", "PCS", "20000"),
		ci30Line("6403999060", "500", "20000"),
	)

	e := mergeEntry(nil, d, deliveryPayload(time.Now()))

	if !e.TotalDuty.Valid || !e.TotalDuty.Decimal.Equal(decimal.RequireFromString("55.00")) {
		t.Fatalf("expected total duty 55.00, got %+v", e.TotalDuty)
	}
	if !e.TotalEnteredValue.Valid || !e.TotalEnteredValue.Decimal.Equal(decimal.RequireFromString("1200.00")) {
		t.Fatalf("expected entered value 1200.00, got %+v", e.TotalEnteredValue)
	}
	if !e.TotalInvoicedValue.Valid || !e.TotalInvoicedValue.Decimal.Equal(decimal.RequireFromString("1200.00")) {
		t.Fatalf("expected invoiced value 1200.00, got %+v", e.TotalInvoicedValue)
	}
	if !e.TotalUnits.Valid || !e.TotalUnits.Decimal.Equal(decimal.RequireFromString("150.00")) {
		t.Fatalf("expected 150 units, got %+v", e.TotalUnits)
	}
	if e.CommercialInvoiceNumbers != "INV-1\n INV-2" {
		t.Fatalf("unexpected invoice list: %q", e.CommercialInvoiceNumbers)
	}
	if e.OriginCountryCodes != "CN\n VN" {
		t.Fatalf("unexpected origin list: %q", e.OriginCountryCodes)
	}
	if e.ReconciliationIssues != "NAFTA" {
		t.Fatalf("unexpected issues: %q", e.ReconciliationIssues)
	}
}

func TestDeriveDutyRate(t *testing.T) {
	duty := validDecimal(decimal.RequireFromString("12.50"))
	value := validDecimal(decimal.RequireFromString("500.00"))
	rate := deriveDutyRate(duty, value)
	if !rate.Valid || !rate.Decimal.Equal(decimal.RequireFromString("0.025")) {
		t.Fatalf("expected rate 0.025, got %+v", rate)
	}
	if deriveDutyRate(duty, validDecimal(decimal.Zero)).Valid {
		t.Fatal("zero entered value should yield null rate")
	}
	if deriveDutyRate(decimal.NullDecimal{}, value).Valid {
		t.Fatal("null duty should yield null rate")
	}
}

func TestDeriveUnitPrice(t *testing.T) {
	value := validDecimal(decimal.RequireFromString("500.00"))
	qty := validDecimal(decimal.RequireFromString("3"))
	price := deriveUnitPrice(value, qty)
	if !price.Valid || !price.Decimal.Equal(decimal.RequireFromString("166.6667")) {
		t.Fatalf("expected 166.6667, got %+v", price)
	}
}

func TestFclLclIndicator(t *testing.T) {
	cases := []struct {
		lines []string
		want  string
	}{
		{[]string{se25Line("MSKU1", "40HC", "F")}, "FCL"},
		{[]string{se25Line("MSKU1", "40HC", "L")}, "LCL"},
		{[]string{se25Line("MSKU1", "40HC", "F"), se25Line("MSKU2", "20GP", "L")}, "FCL/LCL"},
		{nil, ""},
	}
	for _, tc := range cases {
		lines := append([]string{se10Line("ABC", "111", "REF001", "C1", "ACME", "", "", "", "NNNN", "0", "2704", "11")}, tc.lines...)
		d := tokenizeOne(t, lines...)
		e := mergeEntry(nil, d, deliveryPayload(time.Now()))
		if e.FclLcl != tc.want {
			t.Errorf("FclLcl = %q, want %q", e.FclLcl, tc.want)
		}
	}
}

func TestCustomerRefsFilteredAgainstPoNumbers(t *testing.T) {
	d := tokenizeOne(t,
		se10Line("ABC", "111", "REF001", "C1", "ACME", "", "", "", "NNNN", "0", "2704", "11"),
		ci10Line("INV-1", "USD", "1000000", "100000", "100000", "CN", "20240110", "MFID1"),
		"CI20"+pad("PART1", 15)+pad("CN ", 3)+pad("CN ", 3)+zeroPad("100", 12)+pad("PCS", 3)+zeroPad("50000", 12)+pad("ACME VENDOR", 35)+pad("PO-9", 20),
		"SE35"+"PO-9",
		"SE35"+"CUSTREF-1",
	)

	e := mergeEntry(nil, d, deliveryPayload(time.Now()))
	if e.CustomerReferences != "CUSTREF-1" {
		t.Fatalf("refs echoing PO numbers should be filtered, got %q", e.CustomerReferences)
	}
	if e.PoNumbers != "PO-9" {
		t.Fatalf("unexpected PO list: %q", e.PoNumbers)
	}
}
