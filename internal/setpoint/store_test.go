package setpoint

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tiiuae/patrolengine/internal/types"
)

func TestGetBeforeSetReturnsNeutral(t *testing.T) {
	s := NewStore()
	sp := s.Get()

	assert.Equal(t, 0.0, sp.Lat)
	assert.Equal(t, 0.0, sp.Lon)
	assert.Equal(t, 0.0, sp.Alt)
	assert.Equal(t, types.IdentityQuaternion(), sp.Orientation)
	assert.Equal(t, types.DefaultFrameID, sp.FrameID)
	require.NoError(t, sp.Validate())
}

func TestSetThenGet(t *testing.T) {
	s := NewStore()
	want := types.Waypoint{Lat: 37.41088, Lon: -121.995779, Alt: 10.97, Heading: 20}.Setpoint()

	s.Set(want)
	got := s.Get()

	assert.Equal(t, want.Lat, got.Lat)
	assert.Equal(t, want.Lon, got.Lon)
	assert.Equal(t, want.Alt, got.Alt)
	assert.Equal(t, want.Orientation, got.Orientation)
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestGetReturnsCopy(t *testing.T) {
	s := NewStore()
	s.Set(types.Setpoint{Lat: 1, Orientation: types.IdentityQuaternion()})

	got := s.Get()
	got.Lat = 99

	assert.Equal(t, 1.0, s.Get().Lat)
}

// Every writer stores a setpoint whose fields all derive from the same
// value, so a torn read would show fields that disagree.
func TestConcurrentSetNeverTears(t *testing.T) {
	s := NewStore()
	const writers = 8
	const writes = 2000

	var wg sync.WaitGroup
	stop := make(chan struct{})
	torn := make(chan types.Setpoint, 1)

	go func() {
		for {
			select {
			case <-stop:
				return
			default:
			}
			sp := s.Get()
			if sp.Lat == 0 {
				continue
			}
			q := types.QuaternionFromHeading(sp.Lat)
			if sp.Lon != -sp.Lat || sp.Alt != sp.Lat*2 || sp.Orientation != q {
				select {
				case torn <- sp:
				default:
				}
			}
		}
	}()

	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 1; i <= writes; i++ {
				v := float64(w*writes + i)
				s.Set(types.Setpoint{
					Lat:         v,
					Lon:         -v,
					Alt:         v * 2,
					Orientation: types.QuaternionFromHeading(v),
					FrameID:     types.DefaultFrameID,
				})
			}
		}(w)
	}
	wg.Wait()
	close(stop)

	select {
	case sp := <-torn:
		t.Fatalf("observed torn setpoint: %+v", sp)
	default:
	}
}
