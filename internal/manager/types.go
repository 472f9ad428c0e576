package manager

import (
	"time"

	"inferd/internal/registry"
)

// State is the lifecycle state of the active backend.
type State string

const (
	StateUnloaded     State = "unloaded"
	StateInitializing State = "initializing"
	StateDownloading  State = "downloading"
	StateReady        State = "ready"
	StateFailed       State = "failed"
)

// busy reports whether an initialization is underway.
func (s State) busy() bool { return s == StateInitializing || s == StateDownloading }

// Snapshot is a read-only projection of the manager state.
type Snapshot struct {
	State      State
	Percent    int
	Model      string
	Backend    registry.Kind
	InFlight   bool
	QueueDepth int
	LastError  string
}

// Output is a completed generation as delivered to callers.
type Output struct {
	ID      string
	Text    string
	Elapsed time.Duration
	Backend registry.Kind
	Model   string
	Queued  bool
}

// ResultFunc receives exactly one outcome per accepted request, on the
// delivery goroutine.
type ResultFunc func(Output, error)

// Ack is the synchronous answer to Generate. Position is provisional: it is
// the queue length at acceptance and may shrink if the queue is flushed.
type Ack struct {
	ID       string
	Queued   bool
	Position int
}

// pendingRequest is one accepted generation waiting for (or holding) the engine.
type pendingRequest struct {
	ID       string
	Prompt   string
	Callback ResultFunc
	Enqueued time.Time
	Queued   bool
}
