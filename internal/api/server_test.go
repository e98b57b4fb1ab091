package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/tiiuae/patrolengine/internal/ledger"
	"github.com/tiiuae/patrolengine/internal/setpoint"
	"github.com/tiiuae/patrolengine/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeMission struct {
	mu        sync.Mutex
	mode      types.MissionMode
	aborted   bool
	emergency int64
}

func (m *fakeMission) ActiveEmergency() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.emergency
}

func (m *fakeMission) Mode() types.MissionMode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

func (m *fakeMission) Aborted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.aborted
}

func (m *fakeMission) Abort() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aborted = true
}

type fixture struct {
	server  *httptest.Server
	ledger  *ledger.Ledger
	mission *fakeMission
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	l, err := ledger.New()
	require.NoError(t, err)
	mission := &fakeMission{}
	s := NewServer(l, mission, setpoint.NewStore(), zap.NewNop(),
		WithStats("frames", func() interface{} { return map[string]uint64{"received": 3} }))
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return &fixture{srv, l, mission}
}

func (f *fixture) do(t *testing.T, method, path string, out interface{}) int {
	t.Helper()
	req, err := http.NewRequest(method, f.server.URL+path, nil)
	require.NoError(t, err)
	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	var env envelope
	assert.Equal(t, http.StatusOK, f.do(t, "GET", "/health", &env))
	assert.True(t, env.Success)
}

func TestListEmergencies(t *testing.T) {
	f := newFixture(t)

	var empty []ledger.EmergencyRecord
	assert.Equal(t, http.StatusOK, f.do(t, "GET", "/emergencies", &empty))
	assert.Empty(t, empty)

	_, err := f.ledger.Record(ledger.NewEmergency{Type: types.EmergencyFire, Severity: 3, Image: []byte{1, 2, 3}})
	require.NoError(t, err)
	id, err := f.ledger.Record(ledger.NewEmergency{Type: types.EmergencyMedical, Severity: 4})
	require.NoError(t, err)
	require.NoError(t, f.ledger.Resolve(id))

	var raw []map[string]interface{}
	assert.Equal(t, http.StatusOK, f.do(t, "GET", "/emergencies", &raw))
	require.Len(t, raw, 2)
	assert.Equal(t, "fire", raw[0]["emergency_type"])
	assert.Equal(t, "AQID", raw[0]["image"])
	assert.Equal(t, "IN_PROGRESS", raw[0]["status"])
	assert.Equal(t, "RESOLVED", raw[1]["status"])

	var env envelope
	assert.Equal(t, http.StatusOK, f.do(t, "GET", "/api/v1/emergencies", &env))
	var records []ledger.EmergencyRecord
	require.NoError(t, json.Unmarshal(env.Data, &records))
	assert.Len(t, records, 2)
}

func TestGetEmergency(t *testing.T) {
	f := newFixture(t)
	id, err := f.ledger.Record(ledger.NewEmergency{Type: types.EmergencyCarCrash, Severity: 5})
	require.NoError(t, err)

	var env envelope
	assert.Equal(t, http.StatusOK, f.do(t, "GET", "/api/v1/emergencies/1", &env))
	var rec ledger.EmergencyRecord
	require.NoError(t, json.Unmarshal(env.Data, &rec))
	assert.Equal(t, id, rec.ID)
	assert.Equal(t, types.EmergencyCarCrash, rec.Type)

	env = envelope{}
	assert.Equal(t, http.StatusNotFound, f.do(t, "GET", "/api/v1/emergencies/42", &env))
	assert.False(t, env.Success)

	assert.Equal(t, http.StatusBadRequest, f.do(t, "GET", "/api/v1/emergencies/abc", nil))
}

func TestMissionStatusAndAbort(t *testing.T) {
	f := newFixture(t)

	var env envelope
	assert.Equal(t, http.StatusOK, f.do(t, "GET", "/api/v1/mission", &env))
	var status missionStatus
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.Equal(t, types.ModePatrol, status.Mode)
	assert.False(t, status.Aborted)
	assert.Equal(t, types.DefaultFrameID, status.Setpoint.FrameID)
	assert.Zero(t, status.ActiveEmergency)

	f.mission.mu.Lock()
	f.mission.mode = types.ModeEmergencyHandling
	f.mission.emergency = 4
	f.mission.mu.Unlock()
	env = envelope{}
	assert.Equal(t, http.StatusOK, f.do(t, "GET", "/api/v1/mission", &env))
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.Equal(t, int64(4), status.ActiveEmergency)

	assert.Equal(t, http.StatusAccepted, f.do(t, "POST", "/api/v1/mission/abort", nil))
	assert.True(t, f.mission.Aborted())

	f.mission.mu.Lock()
	f.mission.mode = types.ModeLanded
	f.mission.mu.Unlock()
	assert.Equal(t, http.StatusConflict, f.do(t, "POST", "/api/v1/mission/abort", nil))
}

func TestStats(t *testing.T) {
	f := newFixture(t)

	var env envelope
	assert.Equal(t, http.StatusOK, f.do(t, "GET", "/api/v1/stats", &env))
	var stats map[string]map[string]uint64
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, uint64(3), stats["frames"]["received"])
}
