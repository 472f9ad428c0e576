// Package manager owns the active inference engine and everything that
// touches it. It is structured into small files by concern:
//
//   - manager.go: core Manager type, constructor, simple getters.
//   - config.go: ManagerConfig and package defaults; NewWithConfig applies defaults.
//   - types.go: State, Snapshot, Output, Ack and the pending request record.
//   - errors.go: error types and helpers (IsTooBusy, IsModelNotFound, ...).
//   - factory.go: builds an engine.Backend for a descriptor.
//   - ensure.go: Initialize/ExplicitDownload, acquisition and installation.
//   - ops.go: Switch, SwitchTo, Reload and background scheduling.
//   - unload.go: detaching and closing the active backend.
//   - dispatch.go: Generate, the FIFO queue and the worker loop.
//   - delivery.go: the single goroutine on which caller callbacks run.
//   - status_report.go: Snapshot/Status reporting helpers.
//   - events.go, eventpub_memory.go, broadcaster.go: lifecycle events.
//   - metrics.go: Prometheus collectors.
//
// Concurrency model: one mutex guards state, the backend handle, the in-flight
// flag and the queue. Lifecycle operations are serialized by a second mutex so
// at most one initialization, download or unload runs at a time. Work runs on
// bounded errgroup pools; every caller callback runs on the delivery goroutine.
package manager
