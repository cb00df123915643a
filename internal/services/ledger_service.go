package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"moneymind/internal/amqp"
	"moneymind/internal/core"
	applog "moneymind/internal/log"
	"moneymind/internal/storage"
)

// SnapshotStore persists whole ledger documents. Save only succeeds when the
// stored version still equals expected and fails with
// storage.ErrVersionConflict otherwise.
type SnapshotStore interface {
	Load(ctx context.Context, owner string) (core.Snapshot, int64, error)
	Save(ctx context.Context, owner string, snap core.Snapshot, expected int64) (int64, error)
	Version(ctx context.Context, owner string) (int64, error)
}

// maxCommitAttempts bounds how often one write is rebased onto a newer stored ledger.
const maxCommitAttempts = 5

// errUnchanged aborts a commit that has nothing left to write.
var errUnchanged = errors.New("ledger unchanged")

// ChangePublisher announces committed ledger versions.
type ChangePublisher interface {
	PublishLedgerChanged(ctx context.Context, msg *amqp.LedgerChangedMessage) error
}

// LedgerService holds the snapshot of one owner. Writes in this process
// (mutation, sync delivery, recurring top-up) are serialized behind mu. Other
// processes may write the same store: reads and writes first catch up with
// the stored version, and a write that loses the race is replayed on the
// newer ledger.
type LedgerService struct {
	owner     string
	store     SnapshotStore
	publisher ChangePublisher

	coordinator *Coordinator
	recurring   *RecurringProcessor
	now         func() time.Time
	student     bool

	mu      sync.Mutex
	current core.Snapshot
	version int64
	loaded  bool
}

type Option func(*LedgerService)

// WithClock overrides the time source used for recurring expansion.
func WithClock(now func() time.Time) Option {
	return func(s *LedgerService) { s.now = now }
}

// WithIDs overrides the id generator for new entities and occurrences.
func WithIDs(ids IDGenerator) Option {
	return func(s *LedgerService) {
		s.coordinator = NewCoordinator(ids)
		s.recurring = NewRecurringProcessor(ids)
	}
}

// WithStudentDefaults seeds new ledgers with the student categories.
func WithStudentDefaults(student bool) Option {
	return func(s *LedgerService) { s.student = student }
}

func NewLedgerService(owner string, store SnapshotStore, publisher ChangePublisher, opts ...Option) *LedgerService {
	ids := NewUUIDGenerator()
	s := &LedgerService{
		owner:       owner,
		store:       store,
		publisher:   publisher,
		coordinator: NewCoordinator(ids),
		recurring:   NewRecurringProcessor(ids),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *LedgerService) Owner() string { return s.owner }

// Refresh reloads the ledger from the store and expands due recurring rules.
func (s *LedgerService) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx)
}

// Snapshot returns a copy of the current ledger and its version. Recurring
// rules are expanded first so occurrences that fell due while idle appear.
func (s *LedgerService) Snapshot(ctx context.Context) (core.Snapshot, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoadedLocked(ctx); err != nil {
		return core.Snapshot{}, 0, err
	}
	if _, err := s.expandLocked(ctx, amqp.ReasonRecurring); err != nil {
		return core.Snapshot{}, 0, err
	}
	return s.current.Clone(), s.version, nil
}

// Apply runs m against the latest ledger, persists the result and publishes
// a change event. Domain errors leave the ledger untouched.
func (s *LedgerService) Apply(ctx context.Context, m Mutation) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoadedLocked(ctx); err != nil {
		return Result{}, err
	}

	var (
		res      Result
		rejected bool
	)
	version, err := s.commitLocked(ctx, applog.OpMutate, func(current core.Snapshot) (core.Snapshot, error) {
		r, err := s.coordinator.Do(current, m)
		if err != nil {
			rejected = true
			return core.Snapshot{}, err
		}
		res = r
		return r.Snapshot, nil
	})
	if err != nil {
		if rejected {
			slog.InfoContext(ctx, "Mutation rejected",
				applog.FieldComponent, applog.ComponentLedger,
				applog.FieldOperation, applog.OpMutate,
				applog.FieldOwner, s.owner,
				applog.FieldEntity, m.Kind,
				applog.FieldAction, m.Action,
				applog.FieldError, err)
		}
		return Result{}, err
	}

	msg := amqp.NewLedgerChangedMessage(s.owner, version, amqp.ReasonMutation)
	msg.Entity, msg.Action = string(m.Kind), string(m.Action)
	s.publish(ctx, msg)

	res.Snapshot = s.current.Clone()
	return res, nil
}

// Sync adopts a ledger document delivered from elsewhere as the new current
// snapshot, expanding due recurring rules before it is stored. The delivered
// document replaces whatever is stored.
func (s *LedgerService) Sync(ctx context.Context, snap core.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var generated int
	version, err := s.commitLocked(ctx, applog.OpSync, func(core.Snapshot) (core.Snapshot, error) {
		expanded, gen := s.recurring.Expand(ctx, snap.Clone(), s.now())
		generated = len(gen)
		return expanded, nil
	})
	if err != nil {
		return err
	}

	msg := amqp.NewLedgerChangedMessage(s.owner, version, amqp.ReasonSync)
	msg.Generated = generated
	s.publish(ctx, msg)
	return nil
}

// ExpandDue materializes due recurring occurrences and returns how many were generated.
func (s *LedgerService) ExpandDue(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoadedLocked(ctx); err != nil {
		return 0, err
	}
	return s.expandLocked(ctx, amqp.ReasonRecurring)
}

// ensureLoadedLocked loads the ledger on first use and reloads it when
// another writer stored a newer version.
func (s *LedgerService) ensureLoadedLocked(ctx context.Context) error {
	if !s.loaded {
		return s.loadLocked(ctx)
	}
	stored, err := s.store.Version(ctx, s.owner)
	if err != nil {
		return fmt.Errorf("check ledger version: %w", err)
	}
	if stored == s.version {
		return nil
	}
	slog.InfoContext(ctx, "Ledger changed by another writer, reloading",
		applog.FieldComponent, applog.ComponentLedger,
		applog.FieldOwner, s.owner,
		"held_version", s.version,
		"stored_version", stored)
	return s.loadLocked(ctx)
}

func (s *LedgerService) loadLocked(ctx context.Context) error {
	if err := s.fetchLocked(ctx); err != nil {
		return err
	}
	_, err := s.expandLocked(ctx, amqp.ReasonRefresh)
	return err
}

// fetchLocked replaces the held snapshot with the stored one.
func (s *LedgerService) fetchLocked(ctx context.Context) error {
	snap, version, err := s.store.Load(ctx, s.owner)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		slog.InfoContext(ctx, "No stored ledger, starting from defaults",
			applog.FieldComponent, applog.ComponentLedger, applog.FieldOwner, s.owner, "student", s.student)
		snap, version = core.DefaultSnapshot(s.student), 0
	case err != nil:
		return fmt.Errorf("load ledger: %w", err)
	}

	s.current, s.version, s.loaded = snap, version, true
	return nil
}

// expandLocked folds due occurrences into the current snapshot and commits
// them as a single write when anything was generated.
func (s *LedgerService) expandLocked(ctx context.Context, reason string) (int, error) {
	var generated int
	version, err := s.commitLocked(ctx, applog.OpExpand, func(current core.Snapshot) (core.Snapshot, error) {
		expanded, gen := s.recurring.Expand(ctx, current, s.now())
		if len(gen) == 0 {
			return core.Snapshot{}, errUnchanged
		}
		generated = len(gen)
		return expanded, nil
	})
	if errors.Is(err, errUnchanged) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	msg := amqp.NewLedgerChangedMessage(s.owner, version, reason)
	msg.Generated = generated
	s.publish(ctx, msg)
	return generated, nil
}

// commitLocked stores change(current) at the held version. When another
// writer got there first the stored ledger is reloaded and change runs again
// on it. Errors from change are returned as is. op only labels the logs.
func (s *LedgerService) commitLocked(ctx context.Context, op string, change func(core.Snapshot) (core.Snapshot, error)) (int64, error) {
	for attempt := 1; ; attempt++ {
		next, err := change(s.current)
		if err != nil {
			return 0, err
		}

		version, err := s.store.Save(ctx, s.owner, next, s.version)
		if err == nil {
			s.current, s.version, s.loaded = next, version, true
			return version, nil
		}
		if !errors.Is(err, storage.ErrVersionConflict) || attempt == maxCommitAttempts {
			return 0, fmt.Errorf("save ledger: %w", err)
		}

		slog.WarnContext(ctx, "Ledger moved on before commit, replaying on the stored version",
			applog.FieldComponent, applog.ComponentLedger,
			applog.FieldOperation, op,
			applog.FieldOwner, s.owner,
			"held_version", s.version,
			"attempt", attempt)
		if err := s.fetchLocked(ctx); err != nil {
			return 0, err
		}
	}
}

// publish never fails the caller: the ledger is already committed.
func (s *LedgerService) publish(ctx context.Context, msg *amqp.LedgerChangedMessage) {
	if s.publisher == nil {
		slog.WarnContext(ctx, "AMQP publisher not available, skipping change event",
			applog.FieldComponent, applog.ComponentLedger, applog.FieldVersion, msg.Version)
		return
	}
	if err := s.publisher.PublishLedgerChanged(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to publish ledger change",
			applog.FieldComponent, applog.ComponentLedger,
			applog.FieldOwner, msg.Owner,
			applog.FieldVersion, msg.Version,
			"reason", msg.Reason,
			applog.FieldError, err)
	}
}
