package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"moneymind/internal/amqp"
	"moneymind/internal/core"
	"moneymind/internal/storage"
)

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []amqp.LedgerChangedMessage
	err  error
}

func (p *recordingPublisher) PublishLedgerChanged(_ context.Context, msg *amqp.LedgerChangedMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, *msg)
	return p.err
}

func (p *recordingPublisher) reasons() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, m := range p.msgs {
		out = append(out, m.Reason)
	}
	return out
}

type failingStore struct {
	storage.MemoryStore
}

func (failingStore) Save(context.Context, string, core.Snapshot, int64) (int64, error) {
	return 0, errors.New("disk full")
}

// racingStore lets another writer commit right before the next Save.
type racingStore struct {
	*storage.MemoryStore
	before func()
}

func (r *racingStore) Save(ctx context.Context, owner string, snap core.Snapshot, expected int64) (int64, error) {
	if r.before != nil {
		before := r.before
		r.before = nil
		before()
	}
	return r.MemoryStore.Save(ctx, owner, snap, expected)
}

func fixedClock(y, m, d int) func() time.Time {
	return func() time.Time { return time.Date(y, time.Month(m), d, 12, 0, 0, 0, time.UTC) }
}

func TestLedgerService_DefaultsWhenMissing(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := NewLedgerService("owner-1", store, nil, WithStudentDefaults(true))

	snap, version, err := svc.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if version != 0 {
		t.Errorf("version = %d, want 0 for an unsaved default ledger", version)
	}
	assertDeepEqual(t, snap, core.DefaultSnapshot(true))
	if _, _, err := store.Load(context.Background(), "owner-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("defaults should not be persisted until something changes, got %v", err)
	}
}

func TestLedgerService_RefreshExpandsAndPersists(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	seed := fixture()
	seed.RecurringRules = []core.RecurringRule{monthlyRent()}
	if _, err := store.Save(ctx, "owner-1", seed, 0); err != nil {
		t.Fatal(err)
	}

	pub := &recordingPublisher{}
	svc := NewLedgerService("owner-1", store, pub, WithClock(fixedClock(2024, 4, 20)), WithIDs(seqIDs("g")))
	if err := svc.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	stored, version, err := store.Load(ctx, "owner-1")
	if err != nil {
		t.Fatal(err)
	}
	if version != 2 || len(stored.Transactions) != 4 {
		t.Fatalf("expanded ledger not persisted: version %d, %d transactions", version, len(stored.Transactions))
	}
	assertBalance(t, stored, "x", "800")
	assertDeepEqual(t, pub.reasons(), []string{amqp.ReasonRefresh})
	if pub.msgs[0].Generated != 4 || pub.msgs[0].Version != 2 {
		t.Errorf("change event = %+v", pub.msgs[0])
	}

	// nothing new is due, so nothing is written
	if n, err := svc.ExpandDue(ctx); err != nil || n != 0 {
		t.Fatalf("ExpandDue = %d, %v", n, err)
	}
	if _, v, _ := store.Load(ctx, "owner-1"); v != 2 {
		t.Errorf("idle expansion wrote a new version %d", v)
	}
}

func TestLedgerService_ExpandsAsTimePasses(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	seed := fixture()
	seed.RecurringRules = []core.RecurringRule{monthlyRent()}
	store := storage.NewMemoryStore()
	store.Save(ctx, "o", seed, 0)

	svc := NewLedgerService("o", store, nil, WithClock(clock))
	snap, _, err := svc.Snapshot(ctx)
	if err != nil || len(snap.Transactions) != 1 {
		t.Fatalf("expected january occurrence, got %d (%v)", len(snap.Transactions), err)
	}

	now = now.AddDate(0, 1, 0)
	snap, _, _ = svc.Snapshot(ctx)
	if len(snap.Transactions) != 2 {
		t.Fatalf("expected february occurrence on next access, got %d", len(snap.Transactions))
	}
}

func TestLedgerService_ApplyCommitsAndPublishes(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	store.Save(ctx, "o", fixture(), 0)
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc := NewLedgerService("o", store, pub, WithIDs(seqIDs("t")))

	res, err := svc.Apply(ctx, Mutation{Kind: core.KindTransaction, Action: core.ActionAdd, Payload: groceries()})
	if err != nil {
		t.Fatalf("publish failures must not fail the mutation: %v", err)
	}
	if res.ID != "t1" {
		t.Errorf("result id = %q", res.ID)
	}
	assertBalance(t, res.Snapshot, "x", "957.90")

	stored, version, _ := store.Load(ctx, "o")
	if version != 2 || len(stored.Transactions) != 1 {
		t.Fatalf("mutation not persisted: version %d", version)
	}
	if len(pub.msgs) != 1 || pub.msgs[0].Entity != "transaction" || pub.msgs[0].Action != "add" {
		t.Fatalf("change event = %+v", pub.msgs)
	}

	if _, err := svc.Apply(ctx, Mutation{Kind: core.KindAccount, Action: core.ActionDelete, Payload: core.Account{ID: "x"}}); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, v, _ := store.Load(ctx, "o"); v != 2 {
		t.Errorf("rejected mutation wrote version %d", v)
	}
}

func TestLedgerService_SaveFailureKeepsCurrent(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{}
	svc := NewLedgerService("o", store, nil)

	if _, err := svc.Apply(ctx, Mutation{Kind: core.KindTransaction, Action: core.ActionAdd, Payload: core.Transaction{
		Type: core.Income, Amount: dec("10"), Date: core.NewDate(2024, 1, 1), AccountID: "acc_cash",
	}}); err == nil {
		t.Fatal("expected save error")
	}

	snap, _, err := svc.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Transactions) != 0 {
		t.Fatalf("uncommitted mutation became visible: %+v", snap.Transactions)
	}
}

func TestLedgerService_Sync(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	pub := &recordingPublisher{}
	svc := NewLedgerService("o", store, pub, WithClock(fixedClock(2024, 2, 16)))

	incoming := fixture()
	incoming.RecurringRules = []core.RecurringRule{monthlyRent()}
	if err := svc.Sync(ctx, incoming); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	snap, version, _ := svc.Snapshot(ctx)
	if version != 1 || len(snap.Transactions) != 2 {
		t.Fatalf("synced ledger not expanded: version %d, %d transactions", version, len(snap.Transactions))
	}
	assertDeepEqual(t, pub.reasons(), []string{amqp.ReasonSync})
	if pub.msgs[0].Generated != 2 {
		t.Errorf("generated = %d", pub.msgs[0].Generated)
	}
}

func TestLedgerService_ConcurrentMutationsAreSerialized(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	store.Save(ctx, "o", fixture(), 0)
	svc := NewLedgerService("o", store, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Apply(ctx, Mutation{Kind: core.KindTransaction, Action: core.ActionAdd, Payload: core.Transaction{
				Type: core.Income, Amount: dec("1.5"), Date: core.NewDate(2024, 1, 1), AccountID: "z",
			}})
			if err != nil {
				t.Errorf("Apply: %v", err)
			}
		}()
	}
	wg.Wait()

	snap, _, _ := svc.Snapshot(ctx)
	if len(snap.Transactions) != 20 {
		t.Fatalf("lost updates: %d transactions", len(snap.Transactions))
	}
	assertBalance(t, snap, "z", "30")
}

func TestLedgerService_WritersSharingAStore(t *testing.T) {
	ctx := context.Background()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { repo.Close() })
	if _, err := repo.Save(ctx, "o", fixture(), 0); err != nil {
		t.Fatal(err)
	}

	server := NewLedgerService("o", repo, nil, WithIDs(seqIDs("s")))
	worker := NewLedgerService("o", repo, nil, WithIDs(seqIDs("w")))
	for _, svc := range []*LedgerService{server, worker} {
		if err := svc.Refresh(ctx); err != nil {
			t.Fatalf("Refresh: %v", err)
		}
	}

	incoming := fixture()
	incoming.Accounts = append(incoming.Accounts, core.Account{ID: "remote", Name: "Remote", Type: core.Bank, Balance: dec("5")})
	if err := worker.Sync(ctx, incoming); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	res, err := server.Apply(ctx, Mutation{Kind: core.KindCategory, Action: core.ActionAdd, Payload: core.Category{Name: "Books"}})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if _, ok := res.Snapshot.AccountByID("remote"); !ok {
		t.Fatal("mutation result dropped the synced account")
	}

	stored, version, err := repo.Load(ctx, "o")
	if err != nil {
		t.Fatal(err)
	}
	if version != 3 || len(stored.Categories) != 4 {
		t.Fatalf("stored version %d with %d categories", version, len(stored.Categories))
	}
	if _, ok := stored.AccountByID("remote"); !ok {
		t.Fatal("synced account lost by the later commit")
	}

	// the worker's next write starts from the server's commit
	if _, err := worker.Apply(ctx, Mutation{Kind: core.KindTransaction, Action: core.ActionAdd, Payload: core.Transaction{
		Type: core.Income, Amount: dec("10"), Date: core.NewDate(2024, 1, 1), AccountID: "remote",
	}}); err != nil {
		t.Fatalf("worker Apply: %v", err)
	}

	snap, version, err := server.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if version != 4 || len(snap.Categories) != 4 {
		t.Fatalf("server read version %d with %d categories", version, len(snap.Categories))
	}
	assertBalance(t, snap, "remote", "15")
}

func TestLedgerService_CommitReplaysOnNewerVersion(t *testing.T) {
	ctx := context.Background()
	store := &racingStore{MemoryStore: storage.NewMemoryStore()}
	if _, err := store.Save(ctx, "o", fixture(), 0); err != nil {
		t.Fatal(err)
	}
	svc := NewLedgerService("o", store, nil, WithIDs(seqIDs("t")))
	if err := svc.Refresh(ctx); err != nil {
		t.Fatal(err)
	}

	store.before = func() {
		other := fixture()
		other.Accounts[0].Balance = dec("2000")
		if _, err := store.MemoryStore.Save(ctx, "o", other, 1); err != nil {
			t.Errorf("competing save: %v", err)
		}
	}

	res, err := svc.Apply(ctx, Mutation{Kind: core.KindTransaction, Action: core.ActionAdd, Payload: groceries()})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	// 2000 from the competing writer minus the 42.10 expense
	assertBalance(t, res.Snapshot, "x", "1957.90")

	stored, version, _ := store.Load(ctx, "o")
	if version != 3 || len(stored.Transactions) != 1 {
		t.Fatalf("stored version %d with %d transactions", version, len(stored.Transactions))
	}
	assertBalance(t, stored, "x", "1957.90")
}

func TestLedgerService_CommitGivesUpOnPersistentConflict(t *testing.T) {
	ctx := context.Background()
	store := &conflictingStore{MemoryStore: storage.NewMemoryStore()}
	svc := NewLedgerService("o", store, nil)

	_, err := svc.Apply(ctx, Mutation{Kind: core.KindCategory, Action: core.ActionAdd, Payload: core.Category{Name: "Books"}})
	if !errors.Is(err, storage.ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
	if store.saves != maxCommitAttempts {
		t.Errorf("saves = %d, want %d", store.saves, maxCommitAttempts)
	}
}

type conflictingStore struct {
	*storage.MemoryStore
	saves int
}

func (c *conflictingStore) Save(context.Context, string, core.Snapshot, int64) (int64, error) {
	c.saves++
	return 0, storage.ErrVersionConflict
}
