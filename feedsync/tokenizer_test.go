package feedsync

import (
	"errors"
	"strings"
	"testing"
)

func fixedWidthFeed(lines ...string) []byte {
	return []byte(strings.Join(lines, "\n") + "\n")
}

func TestTokenizeGroupsByEntry(t *testing.T) {
	raw := fixedWidthFeed(
		se10Line("ABC", "111", "REF001", "C1", "ACME", "", "", "", "NNNN", "0", "2704", "11"),
		se15Line("001", "202401151430"),
		se25Line("MSKU1234567", "40HC", "F"),
		ci10Line("INV-1", "USD", "1000000", "100000", "100000", "CN", "20240110", "MFID1"),
		ci20Line("PART1", "CN ", "CN ", "100", "PCS", "50000"),
		ci30Line("6403999060", "1250", "50000"),
		se10Line("ABC", "222", "REF002", "C1", "ACME", "", "", "", "NNNN", "0", "2704", "11"),
		se15Line("003", "20240116"),
	)

	deliveries, err := tokenize(fixedWidthExtractor{}, raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(deliveries) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(deliveries))
	}

	first := deliveries[0]
	if first.key() != "REF001" {
		t.Fatalf("expected key REF001, got %q", first.key())
	}
	if _, ok := first.Dates[dateArrival]; !ok {
		t.Fatal("arrival date should be marked transmitted")
	}
	if len(first.Containers) != 1 || first.Containers[0].ContainerNumber != "MSKU1234567" {
		t.Fatalf("unexpected containers: %+v", first.Containers)
	}
	if len(first.Invoices) != 1 {
		t.Fatalf("expected 1 invoice, got %d", len(first.Invoices))
	}
	inv := first.Invoices[0]
	if len(inv.Lines) != 1 || len(inv.Lines[0].Tariffs) != 1 {
		t.Fatalf("unexpected invoice shape: %d lines", len(inv.Lines))
	}

	second := deliveries[1]
	if second.key() != "REF002" {
		t.Fatalf("expected key REF002, got %q", second.key())
	}
	if len(second.Invoices) != 0 {
		t.Fatal("second entry should have no invoices")
	}
}

func TestTokenizeOrphanSubRecordsDropped(t *testing.T) {
	raw := fixedWidthFeed(
		// Records before any header, and a tariff before any line.
		se15Line("001", "202401151430"),
		se25Line("MSKU1234567", "40HC", "F"),
		se10Line("ABC", "111", "REF001", "C1", "ACME", "", "", "", "NNNN", "0", "2704", "11"),
		ci30Line("6403999060", "1250", "50000"),
	)

	deliveries, err := tokenize(fixedWidthExtractor{}, raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(deliveries) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(deliveries))
	}
	d := deliveries[0]
	if len(d.Dates) != 0 || len(d.Containers) != 0 || len(d.Invoices) != 0 {
		t.Fatalf("orphan records should be dropped: %+v", d)
	}
}

func TestTokenizeDuplicateKeyLastBlockWins(t *testing.T) {
	raw := fixedWidthFeed(
		se10Line("ABC", "111", "REF001", "C1", "FIRST", "", "", "", "NNNN", "0", "2704", "11"),
		se25Line("MSKU1111111", "40HC", "F"),
		se10Line("ABC", "111", "REF001", "C1", "SECOND", "", "", "", "NNNN", "0", "2704", "11"),
		se25Line("MSKU2222222", "20GP", "L"),
	)

	deliveries, err := tokenize(fixedWidthExtractor{}, raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(deliveries) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(deliveries))
	}
	d := deliveries[0]
	if d.Header.CustomerName != "SECOND" {
		t.Fatalf("later block should win, got %q", d.Header.CustomerName)
	}
	if len(d.Containers) != 1 || d.Containers[0].ContainerNumber != "MSKU2222222" {
		t.Fatalf("earlier block's children should be discarded: %+v", d.Containers)
	}
}

func TestTokenizeReferenceRecords(t *testing.T) {
	raw := fixedWidthFeed(
		se10Line("ABC", "111", "REF001", "C1", "ACME", "", "", "", "NNNN", "0", "2704", "11"),
		se20Line("M", "MAEU12345", ""),
		se20Line("H", "HBL001", ""),
		se20Line("I", "IT900001", "20240112"),
		se20Line("I", "IT900002", "20240114"),
	)

	deliveries, err := tokenize(fixedWidthExtractor{}, raw)
	if err != nil {
		t.Fatal(err)
	}
	d := deliveries[0]
	if len(d.MasterBills) != 1 || d.MasterBills[0] != "MAEU12345" {
		t.Fatalf("unexpected master bills: %v", d.MasterBills)
	}
	if len(d.ItNumbers) != 2 {
		t.Fatalf("expected 2 IT numbers, got %v", d.ItNumbers)
	}
	// First in-transit date wins unless an explicit date field overrides.
	itDate, transmitted := d.firstItDate()
	if !transmitted || itDate == nil || itDate.Day() != 12 {
		t.Fatalf("expected first IT date Jan 12, got %v", itDate)
	}
}

func TestTokenizeExplicitFirstItOverridesReference(t *testing.T) {
	raw := fixedWidthFeed(
		se10Line("ABC", "111", "REF001", "C1", "ACME", "", "", "", "NNNN", "0", "2704", "11"),
		se20Line("I", "IT900001", "20240112"),
		se15Line("016", "20240120"),
	)

	deliveries, err := tokenize(fixedWidthExtractor{}, raw)
	if err != nil {
		t.Fatal(err)
	}
	itDate, transmitted := deliveries[0].firstItDate()
	if !transmitted || itDate == nil || itDate.Day() != 20 {
		t.Fatalf("explicit date field should win, got %v", itDate)
	}
}

func TestTokenizeReleaseCodeAliases(t *testing.T) {
	raw := fixedWidthFeed(
		se10Line("ABC", "111", "REF001", "C1", "ACME", "", "", "", "NNNN", "0", "2704", "11"),
		se15Line("004", "20240110"),
		se15Line("098", "20240118"),
	)

	deliveries, err := tokenize(fixedWidthExtractor{}, raw)
	if err != nil {
		t.Fatal(err)
	}
	release := deliveries[0].Dates[dateRelease]
	if release == nil || release.Day() != 18 {
		t.Fatalf("corrected release code should win, got %v", release)
	}
}

func TestTokenizeMalformedLinePoisonsFile(t *testing.T) {
	raw := fixedWidthFeed(
		se10Line("ABC", "111", "REF001", "C1", "ACME", "", "", "", "NNNN", "0", "2704", "11"),
		"SE15001", // truncated date record
	)

	_, err := tokenize(fixedWidthExtractor{}, raw)
	if !errors.Is(err, ErrMalformedDelivery) {
		t.Fatalf("expected malformed delivery, got %v", err)
	}
}

func TestTokenizeBlankLinesIgnored(t *testing.T) {
	raw := []byte("\n\r\n" + se10Line("ABC", "111", "REF001", "C1", "ACME", "", "", "", "NNNN", "0", "2704", "11") + "\r\n\n")
	deliveries, err := tokenize(fixedWidthExtractor{}, raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(deliveries) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(deliveries))
	}
}
