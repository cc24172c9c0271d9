package coerce

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestAmountImpliedScale(t *testing.T) {
	got := Amount("000000012345", 2)
	if !got.Valid {
		t.Fatal("expected a value")
	}
	if want := decimal.RequireFromString("123.45"); !got.Decimal.Equal(want) {
		t.Fatalf("expected 123.45, got %s", got.Decimal)
	}
}

func TestAmountSentinels(t *testing.T) {
	cases := []string{"", "            ", "000000000000", "ABC"}
	for _, tok := range cases {
		if got := Amount(tok, 2); got.Valid {
			t.Errorf("Amount(%q) expected null, got %s", tok, got.Decimal)
		}
	}
}

func TestDecimalCell(t *testing.T) {
	got := DecimalCell("  1234.5 ")
	if !got.Valid || !got.Decimal.Equal(decimal.RequireFromString("1234.5")) {
		t.Fatalf("expected 1234.5, got %+v", got)
	}
	if DecimalCell("   ").Valid {
		t.Fatal("blank cell should be null")
	}
	// Zero with a literal decimal point is a real value in the delimited dialect.
	if got := DecimalCell("0.00"); !got.Valid || !got.Decimal.IsZero() {
		t.Fatalf("expected 0.00, got %+v", got)
	}
}

func TestTimestampBusinessZone(t *testing.T) {
	got := Timestamp("202401151430")
	if got == nil {
		t.Fatal("expected a timestamp")
	}
	want := time.Date(2024, 1, 15, 14, 30, 0, 0, Location())
	if !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
	if got.Location() == time.UTC && Location() != time.UTC {
		t.Fatal("timestamp should carry the business timezone, not UTC")
	}
}

func TestTimestampDateOnly(t *testing.T) {
	got := Timestamp("20240115")
	if got == nil {
		t.Fatal("expected a timestamp")
	}
	want := time.Date(2024, 1, 15, 0, 0, 0, 0, Location())
	if !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestTimestampMinuteSixtyRollsForward(t *testing.T) {
	got := Timestamp("202401152260")
	if got == nil {
		t.Fatal("expected a timestamp")
	}
	want := time.Date(2024, 1, 15, 23, 0, 0, 0, Location())
	if !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestTimestampSentinels(t *testing.T) {
	cases := []string{"", "00000000", "000000000000", "            ", "2024011"}
	for _, tok := range cases {
		if got := Timestamp(tok); got != nil {
			t.Errorf("Timestamp(%q) expected null, got %s", tok, got)
		}
	}
}

func TestSplitStateCode(t *testing.T) {
	cases := []struct {
		in      string
		country string
		state   string
	}{
		{"UCA", "US", "CA"},
		{"UTX", "US", "TX"},
		{"CN ", "CN", ""},
		{"CHN", "CH", ""},
		{"", "", ""},
	}
	for _, tc := range cases {
		country, state := SplitStateCode(tc.in)
		if country != tc.country || state != tc.state {
			t.Errorf("SplitStateCode(%q) = (%q, %q), want (%q, %q)", tc.in, country, state, tc.country, tc.state)
		}
	}
}

func TestPortCode(t *testing.T) {
	if got := PortCode("0000"); got != "" {
		t.Fatalf("all-zero port code should be null, got %q", got)
	}
	if got := PortCode(" 2704 "); got != "2704" {
		t.Fatalf("expected 2704, got %q", got)
	}
}

func TestNullIfBlankOrZeros(t *testing.T) {
	if got := NullIfBlankOrZeros("  00  "); got != "" {
		t.Fatalf("expected null, got %q", got)
	}
	if got := NullIfBlankOrZeros(" ABC01 "); got != "ABC01" {
		t.Fatalf("expected ABC01, got %q", got)
	}
}
