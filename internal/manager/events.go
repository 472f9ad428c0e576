package manager

// Event represents a manager lifecycle event.
// Minimal and stable: name + model name and optional fields via key/values.
type Event struct {
	Name    string
	ModelID string
	Fields  map[string]any
}

// EventPublisher receives events from the manager. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}

// Event names.
const (
	EventInitStart        = "init_start"
	EventInitReady        = "init_ready"
	EventInitFailed       = "init_failed"
	EventConsentRequired  = "consent_required"
	EventDownloadStart    = "download_start"
	EventDownloadProgress = "download_progress"
	EventDownloadDone     = "download_done"
	EventUnloadStart      = "unload_start"
	EventUnloadDone       = "unload_done"
	EventGenerateQueued   = "generate_queued"
	EventGenerateStart    = "generate_start"
	EventGenerateDone     = "generate_done"
	EventGenerateFailed   = "generate_failed"
)
