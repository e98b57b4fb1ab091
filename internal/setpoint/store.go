// Package setpoint holds the navigation target shared between the mission
// loop and the setpoint publisher.
package setpoint

import (
	"sync/atomic"
	"time"

	"github.com/tiiuae/patrolengine/internal/types"
)

// Store is a single-slot register. Set replaces the whole setpoint in one
// pointer swap, so Get never observes a mix of two writes.
type Store struct {
	current atomic.Pointer[types.Setpoint]
	now     func() time.Time
}

func NewStore() *Store {
	s := &Store{now: time.Now}
	initial := types.NeutralSetpoint()
	s.current.Store(&initial)
	return s
}

// Set stores a copy of sp stamped with the update time. Last writer wins.
func (s *Store) Set(sp types.Setpoint) {
	sp.UpdatedAt = s.now()
	s.current.Store(&sp)
}

// Get returns a copy of the latest setpoint.
func (s *Store) Get() types.Setpoint {
	return *s.current.Load()
}
