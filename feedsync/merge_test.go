package feedsync

import (
	"testing"
	"time"

	"bitbucket.org/brokerlink/customs_backend/models"
)

func deliveryPayload(extractedAt time.Time) DeliveryPayload {
	return DeliveryPayload{
		SourceSystem: "EDI",
		Dialect:      DialectFixedWidth,
		OriginBucket: "feeds",
		OriginPath:   "EDI/20240115.txt",
		ExtractedAt:  extractedAt,
	}
}

func tokenizeOne(t *testing.T, lines ...string) *entryDelivery {
	t.Helper()
	deliveries, err := tokenize(fixedWidthExtractor{}, fixedWidthFeed(lines...))
	if err != nil {
		t.Fatal(err)
	}
	if len(deliveries) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(deliveries))
	}
	return deliveries[0]
}

func TestMergeCreatesAggregate(t *testing.T) {
	d := tokenizeOne(t,
		se10Line("ABC", "111", "REF001", "C1", "ACME", "", "", "", "NNNN", "0", "2704", "11"),
		se15Line("001", "202401151430"),
		ci10Line("INV-1", "USD", "1000000", "100000", "100000", "CN", "20240110", "MFID1"),
		ci20Line("PART1", "CN ", "CN ", "100", "PCS", "50000"),
		ci30Line("6403999060", "1250", "50000"),
	)

	extractedAt := time.Date(2024, 1, 15, 20, 0, 0, 0, time.UTC)
	e := mergeEntry(nil, d, deliveryPayload(extractedAt))

	if e.SourceSystem != "EDI" || e.BrokerReference != "REF001" || e.EntryNumber != "111" {
		t.Fatalf("unexpected identity: %+v", e)
	}
	if e.ArrivalDate == nil {
		t.Fatal("arrival date should be set")
	}
	if e.LastExportedFromSource == nil || !e.LastExportedFromSource.Equal(extractedAt) {
		t.Fatalf("cursor should be the extraction instant, got %v", e.LastExportedFromSource)
	}
	if e.LastFileBucket != "feeds" || e.LastFilePath != "EDI/20240115.txt" {
		t.Fatalf("provenance not recorded: %+v", e)
	}
	if len(e.Invoices) != 1 || len(e.Invoices[0].Lines) != 1 || len(e.Invoices[0].Lines[0].Tariffs) != 1 {
		t.Fatalf("unexpected aggregate shape")
	}
}

func TestMergeClearsOmittedDates(t *testing.T) {
	arrival := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	existing := &models.Entry{
		ID:              7,
		SourceSystem:    "EDI",
		BrokerReference: "REF001",
		ArrivalDate:     &arrival,
		FreeDate:        &arrival,
	}

	d := tokenizeOne(t,
		se10Line("ABC", "111", "REF001", "C1", "ACME", "", "", "", "NNNN", "0", "2704", "11"),
		se15Line("001", "20240112"),
	)

	e := mergeEntry(existing, d, deliveryPayload(time.Now()))
	if e.ArrivalDate == nil || e.ArrivalDate.Day() != 12 {
		t.Fatalf("transmitted arrival should overwrite, got %v", e.ArrivalDate)
	}
	if e.FreeDate != nil {
		t.Fatal("omitted free date should clear")
	}
}

func TestMergeRetainsFiledDateOnOmission(t *testing.T) {
	filed := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	existing := &models.Entry{
		ID:              7,
		SourceSystem:    "EDI",
		BrokerReference: "REF001",
		FiledDate:       &filed,
	}

	d := tokenizeOne(t,
		se10Line("ABC", "111", "REF001", "C1", "ACME", "", "", "", "NNNN", "0", "2704", "11"),
	)

	e := mergeEntry(existing, d, deliveryPayload(time.Now()))
	if e.FiledDate == nil || !e.FiledDate.Equal(filed) {
		t.Fatalf("filed date should survive omission, got %v", e.FiledDate)
	}
}

func TestMergeTransmittedBlankClearsDate(t *testing.T) {
	release := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	existing := &models.Entry{
		ID:              7,
		SourceSystem:    "EDI",
		BrokerReference: "REF001",
		ReleaseDate:     &release,
	}

	d := tokenizeOne(t,
		se10Line("ABC", "111", "REF001", "C1", "ACME", "", "", "", "NNNN", "0", "2704", "11"),
		se15Line("004", "000000000000"),
	)

	e := mergeEntry(existing, d, deliveryPayload(time.Now()))
	if e.ReleaseDate != nil {
		t.Fatalf("transmitted blank should clear release, got %v", e.ReleaseDate)
	}
}

func TestMergeReplacesChildrenKeepingIds(t *testing.T) {
	existing := &models.Entry{
		ID:              7,
		SourceSystem:    "EDI",
		BrokerReference: "REF001",
		Containers: []models.Container{
			{ID: 31, EntryId: 7, ContainerNumber: "MSKU1111111", Size: "40HC", FclLcl: "F"},
			{ID: 32, EntryId: 7, ContainerNumber: "MSKU2222222", Size: "20GP", FclLcl: "L"},
		},
	}

	d := tokenizeOne(t,
		se10Line("ABC", "111", "REF001", "C1", "ACME", "", "", "", "NNNN", "0", "2704", "11"),
		se25Line("MSKU1111111", "45HC", "F"),
		se25Line("MSKU3333333", "40HC", "F"),
	)

	e := mergeEntry(existing, d, deliveryPayload(time.Now()))
	if len(e.Containers) != 2 {
		t.Fatalf("expected 2 containers, got %d", len(e.Containers))
	}
	if e.Containers[0].ID != 31 || e.Containers[0].Size != "45HC" {
		t.Fatalf("re-delivered container should keep its row id: %+v", e.Containers[0])
	}
	if e.Containers[1].ID != 0 || e.Containers[1].ContainerNumber != "MSKU3333333" {
		t.Fatalf("new container should be a fresh row: %+v", e.Containers[1])
	}
}

func TestMergeCommentsAppendOnly(t *testing.T) {
	generated := time.Date(2024, 1, 10, 9, 30, 0, 0, time.UTC)
	existing := &models.Entry{
		ID:              7,
		SourceSystem:    "EDI",
		BrokerReference: "REF001",
		Comments: []models.EntryComment{
			{ID: 51, EntryId: 7, GeneratedAt: &generated, Username: "jdoe", Body: "HOLD RELEASED"},
		},
	}

	d := tokenizeOne(t,
		se10Line("ABC", "111", "REF001", "C1", "ACME", "", "", "", "NNNN", "0", "2704", "11"),
		se30Line("202401100930", "jdoe", "HOLD RELEASED"),
		se30Line("202401111015", "asmith", "DOCS RECEIVED"),
	)
	// Align the tokenized comment timestamp with the persisted one.
	d.Comments[0].GeneratedAt = &generated

	e := mergeEntry(existing, d, deliveryPayload(time.Now()))
	if len(e.Comments) != 2 {
		t.Fatalf("identical comment should dedup, got %d comments", len(e.Comments))
	}
	if e.Comments[0].ID != 51 {
		t.Fatal("persisted comment should be untouched")
	}
	if e.Comments[1].Username != "asmith" {
		t.Fatalf("new comment should append: %+v", e.Comments[1])
	}
}

func TestMergeInvoiceTrailerFoldsIn(t *testing.T) {
	d := tokenizeOne(t,
		se10Line("ABC", "111", "REF001", "C1", "ACME", "", "", "", "NNNN", "0", "2704", "11"),
		ci10Line("INV-1", "USD", "1000000", "100000", "100000", "CN", "20240110", "MFID1"),
		"CI40"+pad("INV-1", 22)+zeroPad("123400", 12)+zeroPad("5000", 12)+zeroPad("10000", 12)+pad("PCS", 3),
	)

	e := mergeEntry(nil, d, deliveryPayload(time.Now()))
	inv := e.Invoices[0]
	if !inv.GrossWeight.Valid || inv.GrossWeight.Decimal.String() != "1234" {
		t.Fatalf("expected gross weight 1234, got %+v", inv.GrossWeight)
	}
	if inv.TotalQuantityUom != "PCS" {
		t.Fatalf("expected trailer uom, got %q", inv.TotalQuantityUom)
	}
}
