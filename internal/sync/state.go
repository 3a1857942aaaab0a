package sync

import (
	"time"

	"github.com/bermanqa/qlog/internal/models"
)

// State is the orchestrator's externally visible sync status.
type State string

const (
	StateIdle    State = "idle"
	StateSyncing State = "syncing"
	StateSuccess State = "success"
	StateError   State = "error"
)

// Reason says what caused a sync cycle.
type Reason string

const (
	ReasonIdentity  Reason = "identity"
	ReasonMutation  Reason = "mutation"
	ReasonRemote    Reason = "remote"
	ReasonInterval  Reason = "interval"
	ReasonManual    Reason = "manual"
	ReasonCoalesced Reason = "coalesced"
)

// Snapshot is a point-in-time copy of the orchestrator status.
type Snapshot struct {
	State       State
	Identifier  string
	LastError   error
	LastSuccess time.Time
	// Seq is the sequence number of the last applied cycle.
	Seq uint64
	// Revision is the store revision after the last applied write, zero when
	// the store does not count revisions.
	Revision int64
	// Applying is set while a cycle result is being written locally.
	Applying bool
}

// EventKind distinguishes status and collection notifications.
type EventKind string

const (
	StatusChanged     EventKind = "status_changed"
	CollectionChanged EventKind = "collection_changed"
)

// Event is delivered to subscribers.
type Event struct {
	Kind   EventKind
	Status Snapshot
	Reason Reason
	// Reports is the applied collection; set for CollectionChanged only.
	Reports []models.Report
}
