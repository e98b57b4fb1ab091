package ledger

import (
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tiiuae/patrolengine/internal/types"
)

func newLedger(t *testing.T, opts ...Option) *Ledger {
	t.Helper()
	l, err := New(opts...)
	require.NoError(t, err)
	return l
}

func carCrash(severity int) NewEmergency {
	return NewEmergency{
		Type:        types.EmergencyCarCrash,
		Location:    types.Location{X: 0.4, Y: 0.6},
		Severity:    severity,
		Description: "two vehicles",
	}
}

func TestRecordAllTypesAndSeverities(t *testing.T) {
	l := newLedger(t)

	var last int64
	for _, kind := range types.EmergencyTypes() {
		for sev := MinSeverity; sev <= MaxSeverity; sev++ {
			id, err := l.Record(NewEmergency{Type: kind, Severity: sev})
			require.NoError(t, err)
			assert.Greater(t, id, last)
			last = id
		}
	}

	assert.Len(t, l.List(), len(types.EmergencyTypes())*MaxSeverity)
}

func TestRecordRejectsInvalidSeverity(t *testing.T) {
	l := newLedger(t)

	for _, sev := range []int{0, 6, -1} {
		_, err := l.Record(carCrash(sev))
		assert.True(t, errors.Is(err, ErrInvalidSeverity), "severity %d: %v", sev, err)
	}
	assert.Empty(t, l.List())
}

func TestRecordRejectsUnknownType(t *testing.T) {
	l := newLedger(t)

	_, err := l.Record(NewEmergency{Type: "alien_invasion", Severity: 3})
	assert.True(t, errors.Is(err, ErrUnknownEmergencyType))
	assert.Empty(t, l.List())
}

func TestRecordIsVisibleImmediately(t *testing.T) {
	l := newLedger(t)

	id, err := l.Record(carCrash(5))
	require.NoError(t, err)

	rec, err := l.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, rec.Status)
	assert.Equal(t, types.EmergencyCarCrash, rec.Type)
	assert.Equal(t, 5, rec.Severity)
	assert.Empty(t, rec.Changelog)
}

func TestResolve(t *testing.T) {
	l := newLedger(t)
	id, err := l.Record(carCrash(5))
	require.NoError(t, err)

	require.NoError(t, l.Resolve(id))

	rec, err := l.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, rec.Status)
	require.Len(t, rec.Changelog, 1)
	assert.Equal(t, StatusResolved, rec.Changelog[0].Status)
}

func TestResolveUnknownID(t *testing.T) {
	l := newLedger(t)

	err := l.Resolve(42)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestResolveTwiceDoesNotDuplicateChangelog(t *testing.T) {
	l := newLedger(t)
	id, _ := l.Record(carCrash(2))
	require.NoError(t, l.Resolve(id))

	err := l.Resolve(id)
	assert.True(t, errors.Is(err, ErrAlreadyResolved))

	rec, _ := l.Get(id)
	assert.Len(t, rec.Changelog, 1)
}

func TestGetUnknownID(t *testing.T) {
	l := newLedger(t)

	_, err := l.Get(7)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestChangelogNeverGoesBackInTime(t *testing.T) {
	base := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	l := newLedger(t, WithClock(func() time.Time { return clock }))

	id, _ := l.Record(carCrash(3))
	clock = base.Add(-time.Minute)
	require.NoError(t, l.Resolve(id))

	rec, _ := l.Get(id)
	assert.False(t, rec.Changelog[0].Timestamp.Before(rec.CreatedAt))
}

func TestListCreationOrderAndConsistency(t *testing.T) {
	l := newLedger(t)
	ids := make([]int64, 0)
	for i := 1; i <= 5; i++ {
		id, err := l.Record(carCrash(i))
		require.NoError(t, err)
		ids = append(ids, id)
	}
	require.NoError(t, l.Resolve(ids[1]))
	require.NoError(t, l.Resolve(ids[3]))

	list := l.List()
	require.Len(t, list, 5)
	for i, rec := range list {
		assert.Equal(t, ids[i], rec.ID)
		assertConsistent(t, rec)
	}
}

func TestListIsSnapshot(t *testing.T) {
	l := newLedger(t)
	id, _ := l.Record(carCrash(4))

	before := l.List()
	require.NoError(t, l.Resolve(id))

	assert.Equal(t, StatusInProgress, before[0].Status)
	assert.Empty(t, before[0].Changelog)
}

func TestConcurrentListDuringResolve(t *testing.T) {
	l := newLedger(t)
	ids := make([]int64, 0)
	for i := 0; i < 200; i++ {
		id, err := l.Record(carCrash(1 + i%5))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for _, id := range ids {
			assert.NoError(t, l.Resolve(id))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			for _, rec := range l.List() {
				assertConsistent(t, rec)
			}
		}
	}()
	wg.Wait()

	for _, rec := range l.List() {
		assert.Equal(t, StatusResolved, rec.Status)
	}
}

func TestSummary(t *testing.T) {
	l := newLedger(t)
	id, _ := l.Record(carCrash(5))
	l.Record(NewEmergency{Type: types.EmergencyFire, Severity: 4})
	require.NoError(t, l.Resolve(id))

	report := l.Summary()
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 1, report.InProgress)
	assert.Equal(t, 1, report.Resolved)
	assert.Equal(t, map[types.EmergencyType]int{types.EmergencyCarCrash: 1, types.EmergencyFire: 1}, report.ByType)
}

type failingStore struct {
	memStore
}

func (f *failingStore) Insert(rec EmergencyRecord) error {
	return errors.New("disk full")
}

type memStore struct {
	records []EmergencyRecord
}

func (m *memStore) Insert(rec EmergencyRecord) error {
	m.records = append(m.records, rec)
	return nil
}

func (m *memStore) AppendChange(id int64, entry ChangelogEntry) error {
	for i := range m.records {
		if m.records[i].ID == id {
			m.records[i].Status = entry.Status
			m.records[i].Changelog = append(m.records[i].Changelog, entry)
			return nil
		}
	}
	return ErrNotFound
}

func (m *memStore) LoadAll() ([]EmergencyRecord, error) {
	return m.records, nil
}

func TestFailedPersistDoesNotReuseID(t *testing.T) {
	l := newLedger(t, WithStore(&failingStore{}))

	_, err := l.Record(carCrash(3))
	require.Error(t, err)
	assert.Empty(t, l.List())

	l.store = &memStore{}
	id, err := l.Record(carCrash(3))
	require.NoError(t, err)
	assert.Equal(t, int64(2), id)
}

func TestReloadFromStore(t *testing.T) {
	store := &memStore{}
	first := newLedger(t, WithStore(store))
	a, _ := first.Record(carCrash(5))
	first.Record(carCrash(1))
	require.NoError(t, first.Resolve(a))

	second := newLedger(t, WithStore(store))
	if diff := cmp.Diff(first.List(), second.List()); diff != "" {
		t.Fatalf("reloaded ledger differs (-want +got):\n%s", diff)
	}

	id, err := second.Record(carCrash(2))
	require.NoError(t, err)
	assert.Equal(t, int64(3), id)
}

func assertConsistent(t *testing.T, rec EmergencyRecord) {
	t.Helper()
	assert.GreaterOrEqual(t, rec.Severity, MinSeverity)
	assert.LessOrEqual(t, rec.Severity, MaxSeverity)
	if n := len(rec.Changelog); n > 0 {
		assert.Equal(t, rec.Status, rec.Changelog[n-1].Status)
	} else {
		assert.Equal(t, StatusInProgress, rec.Status)
	}
	for i := 1; i < len(rec.Changelog); i++ {
		assert.False(t, rec.Changelog[i].Timestamp.Before(rec.Changelog[i-1].Timestamp))
	}
}
