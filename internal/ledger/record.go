package ledger

import (
	"time"

	"github.com/tiiuae/patrolengine/internal/types"
)

type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusResolved   Status = "RESOLVED"
)

type ChangelogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Status    Status    `json:"status"`
}

// EmergencyRecord is one incident. The changelog holds the status changes
// made after creation; its last entry, when present, matches Status.
type EmergencyRecord struct {
	ID          int64               `json:"id"`
	Type        types.EmergencyType `json:"emergency_type"`
	Location    types.Location      `json:"location"`
	Severity    int                 `json:"severity"`
	Status      Status              `json:"status"`
	CreatedAt   time.Time           `json:"timestamp"`
	Description string              `json:"description"`
	Image       []byte              `json:"image,omitempty"`
	Changelog   []ChangelogEntry    `json:"changelog"`
}

// NewEmergency is the input to Ledger.Record.
type NewEmergency struct {
	Type        types.EmergencyType
	Location    types.Location
	Severity    int
	Description string
	Image       []byte
}

func (r *EmergencyRecord) clone() EmergencyRecord {
	c := *r
	if r.Image != nil {
		c.Image = append([]byte(nil), r.Image...)
	}
	c.Changelog = append(make([]ChangelogEntry, 0, len(r.Changelog)), r.Changelog...)
	return c
}
