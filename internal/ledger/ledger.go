// Package ledger keeps the authoritative record of detected emergencies.
package ledger

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/tiiuae/patrolengine/internal/types"
	"go.uber.org/zap"
)

const (
	MinSeverity = 1
	MaxSeverity = 5
)

var (
	ErrInvalidSeverity      = errors.New("invalid severity")
	ErrUnknownEmergencyType = types.ErrUnknownEmergencyType
	ErrNotFound             = errors.New("emergency not found")
	ErrAlreadyResolved      = errors.New("emergency already resolved")
)

// Store persists ledger mutations. Calls happen under the ledger lock, in
// mutation order.
type Store interface {
	Insert(rec EmergencyRecord) error
	AppendChange(id int64, entry ChangelogEntry) error
	LoadAll() ([]EmergencyRecord, error)
}

// Ledger is an append-mostly, id-indexed record store. Records are never
// deleted and ids are never reused.
type Ledger struct {
	mu      sync.RWMutex
	records []*EmergencyRecord
	index   map[int64]*EmergencyRecord
	nextID  int64
	store   Store
	now     func() time.Time
	log     *zap.Logger
}

type Option func(*Ledger)

func WithStore(s Store) Option {
	return func(l *Ledger) { l.store = s }
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func WithLogger(log *zap.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

// New creates a ledger, reloading any records the store already holds.
func New(opts ...Option) (*Ledger, error) {
	l := &Ledger{
		records: make([]*EmergencyRecord, 0),
		index:   make(map[int64]*EmergencyRecord),
		nextID:  1,
		now:     time.Now,
		log:     zap.NewNop(),
	}
	for _, o := range opts {
		o(l)
	}

	if l.store == nil {
		return l, nil
	}

	existing, err := l.store.LoadAll()
	if err != nil {
		return nil, errors.WithMessage(err, "Could not load emergency ledger")
	}
	for i := range existing {
		rec := existing[i]
		l.records = append(l.records, &rec)
		l.index[rec.ID] = &rec
		if rec.ID >= l.nextID {
			l.nextID = rec.ID + 1
		}
	}
	l.log.Info("ledger loaded", zap.Int("records", len(existing)), zap.Int64("next_id", l.nextID))

	return l, nil
}

// Validate checks what Record would reject without touching the ledger.
func (e NewEmergency) Validate() error {
	if e.Severity < MinSeverity || e.Severity > MaxSeverity {
		return errors.WithMessagef(ErrInvalidSeverity, "severity %d not in [%d,%d]", e.Severity, MinSeverity, MaxSeverity)
	}
	if !e.Type.Valid() {
		return errors.WithMessagef(ErrUnknownEmergencyType, "'%s'", e.Type)
	}
	return nil
}

// Record validates and stores a new IN_PROGRESS emergency and returns its id.
func (l *Ledger) Record(e NewEmergency) (int64, error) {
	if err := e.Validate(); err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextID
	l.nextID++

	rec := &EmergencyRecord{
		ID:          id,
		Type:        e.Type,
		Location:    e.Location,
		Severity:    e.Severity,
		Status:      StatusInProgress,
		CreatedAt:   l.now().UTC(),
		Description: e.Description,
		Changelog:   make([]ChangelogEntry, 0, 1),
	}
	if len(e.Image) > 0 {
		rec.Image = append([]byte(nil), e.Image...)
	}

	if l.store != nil {
		if err := l.store.Insert(*rec); err != nil {
			return 0, errors.WithMessagef(err, "Could not persist emergency %d", id)
		}
	}

	l.records = append(l.records, rec)
	l.index[id] = rec

	return id, nil
}

// Resolve flips an IN_PROGRESS record to RESOLVED and appends one changelog
// entry. Readers see either the old or the new record, never a half update.
func (l *Ledger) Resolve(id int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, found := l.index[id]
	if !found {
		return errors.WithMessagef(ErrNotFound, "id %d", id)
	}
	if rec.Status == StatusResolved {
		return errors.WithMessagef(ErrAlreadyResolved, "id %d", id)
	}

	ts := l.now().UTC()
	last := rec.CreatedAt
	if n := len(rec.Changelog); n > 0 {
		last = rec.Changelog[n-1].Timestamp
	}
	if ts.Before(last) {
		ts = last
	}
	entry := ChangelogEntry{Timestamp: ts, Status: StatusResolved}

	if l.store != nil {
		if err := l.store.AppendChange(id, entry); err != nil {
			return errors.WithMessagef(err, "Could not persist resolution of %d", id)
		}
	}

	rec.Changelog = append(rec.Changelog, entry)
	rec.Status = StatusResolved

	return nil
}

// List returns a snapshot of all records in creation order.
func (l *Ledger) List() []EmergencyRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]EmergencyRecord, 0, len(l.records))
	for _, r := range l.records {
		result = append(result, r.clone())
	}
	return result
}

func (l *Ledger) Get(id int64) (EmergencyRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rec, found := l.index[id]
	if !found {
		return EmergencyRecord{}, errors.WithMessagef(ErrNotFound, "id %d", id)
	}
	return rec.clone(), nil
}

// Summary counts records for the periodic ledger report.
func (l *Ledger) Summary() types.LedgerReport {
	l.mu.RLock()
	defer l.mu.RUnlock()

	report := types.LedgerReport{
		GeneratedAt: l.now().UTC(),
		Total:       len(l.records),
		ByType:      make(map[types.EmergencyType]int),
	}
	for _, r := range l.records {
		switch r.Status {
		case StatusInProgress:
			report.InProgress++
		case StatusResolved:
			report.Resolved++
		}
		report.ByType[r.Type]++
	}
	return report
}
