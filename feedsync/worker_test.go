package feedsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"bitbucket.org/brokerlink/customs_backend/config"
	"bitbucket.org/brokerlink/customs_backend/models"
)

// fakeStore is an in-memory EntryStore. It clones on the way in and out so the
// engine cannot mutate persisted state except through SaveEntry, matching how a
// real database behaves.
type fakePurge struct {
	sourceSystem    string
	brokerReference string
	entryNumber     string
	at              time.Time
}

type fakeStore struct {
	mu      sync.Mutex
	entries map[string]*models.Entry
	purges  []fakePurge
	nextId  int
	saves   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		entries: map[string]*models.Entry{},
	}
}

func storeKey(sourceSystem, brokerReference string) string {
	return sourceSystem + "|" + brokerReference
}

func cloneEntry(e *models.Entry) *models.Entry {
	raw, _ := json.Marshal(e)
	var out models.Entry
	_ = json.Unmarshal(raw, &out)
	return &out
}

func (s *fakeStore) FindEntry(ctx context.Context, sourceSystem, brokerReference, entryNumber string) (*models.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[storeKey(sourceSystem, brokerReference)]; ok {
		return cloneEntry(e), nil
	}
	for _, e := range s.entries {
		if e.SourceSystem == sourceSystem && e.EntryNumber == entryNumber && entryNumber != "" {
			return cloneEntry(e), nil
		}
	}
	return nil, nil
}

func (s *fakeStore) PurgeInstant(ctx context.Context, sourceSystem, brokerReference, entryNumber string) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.purges {
		if p.sourceSystem != sourceSystem {
			continue
		}
		if (brokerReference != "" && p.brokerReference == brokerReference) ||
			(entryNumber != "" && p.entryNumber == entryNumber) {
			instant := p.at
			return &instant, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) SaveEntry(ctx context.Context, entry *models.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == 0 {
		s.nextId++
		entry.ID = s.nextId
	}
	s.entries[storeKey(entry.SourceSystem, entry.BrokerReference)] = cloneEntry(entry)
	s.saves++
	return nil
}

func (s *fakeStore) get(sourceSystem, brokerReference string) *models.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[storeKey(sourceSystem, brokerReference)]; ok {
		return cloneEntry(e)
	}
	return nil
}

func (s *fakeStore) setPurge(sourceSystem, brokerReference, entryNumber string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purges = append(s.purges, fakePurge{
		sourceSystem:    sourceSystem,
		brokerReference: brokerReference,
		entryNumber:     entryNumber,
		at:              at,
	})
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []config.EntryChangedMessage
}

func (n *recordingNotifier) EntryChanged(ctx context.Context, msg config.EntryChangedMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

func testEngine(store EntryStore) (*Engine, *recordingNotifier) {
	notifier := &recordingNotifier{}
	return NewEngine(store).WithNotifier(notifier), notifier
}

func headerFeed(brokerRef, customerName string) []byte {
	return fixedWidthFeed(
		se10Line("ABC", "111", brokerRef, "C1", customerName, "", "", "", "NNNN", "0", "2704", "11"),
	)
}

func TestProcessDeliveryCreatesEntry(t *testing.T) {
	store := newFakeStore()
	engine, notifier := testEngine(store)

	payload := deliveryPayload(time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC))
	payload.Data = headerFeed("REF001", "ACME")

	results, err := engine.ProcessDelivery(context.Background(), payload)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Outcome != OutcomeApplied || results[0].Reason != ReasonCreated {
		t.Fatalf("unexpected results: %+v", results)
	}
	if store.get("EDI", "REF001") == nil {
		t.Fatal("entry should be persisted")
	}
	if notifier.count() != 1 {
		t.Fatalf("expected 1 change notification, got %d", notifier.count())
	}
}

func TestProcessDeliveryReapplySameInstant(t *testing.T) {
	store := newFakeStore()
	engine, _ := testEngine(store)

	payload := deliveryPayload(time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC))
	payload.Data = headerFeed("REF001", "ACME")

	if _, err := engine.ProcessDelivery(context.Background(), payload); err != nil {
		t.Fatal(err)
	}
	first := store.get("EDI", "REF001")

	results, err := engine.ProcessDelivery(context.Background(), payload)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Outcome != OutcomeApplied || results[0].Reason != ReasonApplied {
		t.Fatalf("equal-cursor redelivery should re-apply: %+v", results[0])
	}

	second := store.get("EDI", "REF001")
	second.UpdatedAt, first.UpdatedAt = time.Time{}, time.Time{}
	second.CreatedAt, first.CreatedAt = time.Time{}, time.Time{}
	firstJSON, _ := json.Marshal(first)
	secondJSON, _ := json.Marshal(second)
	if string(firstJSON) != string(secondJSON) {
		t.Fatalf("re-applying the same file should be idempotent:\n%s\n%s", firstJSON, secondJSON)
	}
}

func TestProcessDeliveryStaleNoOp(t *testing.T) {
	store := newFakeStore()
	engine, notifier := testEngine(store)

	fresh := deliveryPayload(time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC))
	fresh.Data = headerFeed("REF001", "FRESH")
	if _, err := engine.ProcessDelivery(context.Background(), fresh); err != nil {
		t.Fatal(err)
	}

	stale := deliveryPayload(time.Date(2024, 1, 14, 12, 0, 0, 0, time.UTC))
	stale.Data = headerFeed("REF001", "STALE")
	results, err := engine.ProcessDelivery(context.Background(), stale)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Outcome != OutcomeNoOp || results[0].Reason != ReasonStale {
		t.Fatalf("expected stale no-op, got %+v", results[0])
	}

	e := store.get("EDI", "REF001")
	if e.CustomerName != "FRESH" {
		t.Fatalf("stale delivery must not overwrite, got %q", e.CustomerName)
	}
	if notifier.count() != 1 {
		t.Fatalf("no-ops must not notify, got %d notifications", notifier.count())
	}
}

func TestProcessDeliveryPurgeGuard(t *testing.T) {
	store := newFakeStore()
	engine, _ := testEngine(store)

	purgedAt := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	store.setPurge("EDI", "REF001", "111", purgedAt)

	before := deliveryPayload(purgedAt.Add(-time.Hour))
	before.Data = headerFeed("REF001", "GHOST")
	results, err := engine.ProcessDelivery(context.Background(), before)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Outcome != OutcomeNoOp || results[0].Reason != ReasonPurged {
		t.Fatalf("pre-purge delivery should drop, got %+v", results[0])
	}
	if store.get("EDI", "REF001") != nil {
		t.Fatal("purged entry must not be resurrected")
	}

	after := deliveryPayload(purgedAt.Add(time.Hour))
	after.Data = headerFeed("REF001", "REBORN")
	results, err = engine.ProcessDelivery(context.Background(), after)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Outcome != OutcomeApplied || results[0].Reason != ReasonCreated {
		t.Fatalf("post-purge delivery should recreate, got %+v", results[0])
	}
}

// Some feeds key deliveries off the entry number alone; the purge guard must
// match that identifier too, not just the broker reference.
func TestProcessDeliveryPurgeGuardByEntryNumber(t *testing.T) {
	store := newFakeStore()
	engine, _ := testEngine(store)

	purgedAt := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	store.setPurge("EDI", "REF001", "111", purgedAt)

	payload := deliveryPayload(purgedAt.Add(-time.Hour))
	payload.Data = fixedWidthFeed(
		se10Line("ABC", "111", "", "C1", "GHOST", "", "", "", "NNNN", "0", "2704", "11"),
	)
	results, err := engine.ProcessDelivery(context.Background(), payload)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Outcome != OutcomeNoOp || results[0].Reason != ReasonPurged {
		t.Fatalf("entry-number-keyed delivery should hit the purge marker, got %+v", results[0])
	}
	if store.saves != 0 {
		t.Fatal("purged entry must not be resurrected under its entry number")
	}
}

func TestProcessDeliveryMalformedWritesNothing(t *testing.T) {
	store := newFakeStore()
	engine, _ := testEngine(store)

	payload := deliveryPayload(time.Now())
	payload.Data = fixedWidthFeed(
		se10Line("ABC", "111", "REF001", "C1", "ACME", "", "", "", "NNNN", "0", "2704", "11"),
		"SE15001",
	)

	_, err := engine.ProcessDelivery(context.Background(), payload)
	if !errors.Is(err, ErrMalformedDelivery) {
		t.Fatalf("expected malformed delivery, got %v", err)
	}
	if store.saves != 0 {
		t.Fatalf("malformed file must not write, got %d saves", store.saves)
	}
}

func TestProcessDeliveryUnknownDialect(t *testing.T) {
	store := newFakeStore()
	engine, _ := testEngine(store)

	payload := deliveryPayload(time.Now())
	payload.Dialect = "tab-separated"
	if _, err := engine.ProcessDelivery(context.Background(), payload); !errors.Is(err, ErrUnknownDialect) {
		t.Fatalf("expected unknown dialect, got %v", err)
	}
}

// Interleaved deliveries for one key must converge on the freshest extract no
// matter the arrival order.
func TestConcurrentDeliveriesConverge(t *testing.T) {
	store := newFakeStore()
	engine, _ := testEngine(store)

	base := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	const n = 20

	payloads := make([]DeliveryPayload, 0, n)
	for i := 0; i < n; i++ {
		p := deliveryPayload(base.Add(time.Duration(i) * time.Hour))
		p.Data = headerFeed("REF001", fmt.Sprintf("VERSION-%02d", i))
		payloads = append(payloads, p)
	}
	rand.Shuffle(len(payloads), func(i, j int) {
		payloads[i], payloads[j] = payloads[j], payloads[i]
	})

	var wg sync.WaitGroup
	for _, p := range payloads {
		wg.Add(1)
		go func(p DeliveryPayload) {
			defer wg.Done()
			if _, err := engine.ProcessDelivery(context.Background(), p); err != nil {
				t.Error(err)
			}
		}(p)
	}
	wg.Wait()

	e := store.get("EDI", "REF001")
	if e == nil {
		t.Fatal("entry should exist")
	}
	if e.CustomerName != fmt.Sprintf("VERSION-%02d", n-1) {
		t.Fatalf("expected freshest version to win, got %q", e.CustomerName)
	}
	want := base.Add((n - 1) * time.Hour)
	if e.LastExportedFromSource == nil || !e.LastExportedFromSource.Equal(want) {
		t.Fatalf("cursor should be the max extract instant, got %v", e.LastExportedFromSource)
	}
}
