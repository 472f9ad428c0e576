package types

// GenerateRequest is the payload of POST /generate.
type GenerateRequest struct {
	// Required user prompt.
	// example: What is on my screen?
	Prompt string `json:"prompt" example:"What is on my screen?"`
	// Optional text describing what the user currently sees.
	// example: Settings > Wi-Fi
	ScreenContext string `json:"screen_context,omitempty" example:"Settings > Wi-Fi"`
}

// GenerateResponse is returned by POST /generate on success.
type GenerateResponse struct {
	// Request identifier assigned on acceptance.
	// example: 5f0c6a1e-8f7e-4d3b-9d0a-1b2c3d4e5f60
	ID string `json:"id" example:"5f0c6a1e-8f7e-4d3b-9d0a-1b2c3d4e5f60"`
	// Generated text with directives removed.
	Text string `json:"text"`
	// Directives parsed out of Text, e.g. LAUNCH or SEARCH.
	Commands []Command `json:"commands,omitempty"`
	// Wall time spent in the engine.
	// example: 812
	ElapsedMS int64 `json:"elapsed_ms" example:"812"`
	// Engine variant that produced the text.
	// example: native
	Backend string `json:"backend" example:"native"`
	// Model display name.
	// example: Phi-3.5 Mini
	Model string `json:"model" example:"Phi-3.5 Mini"`
	// Whether the request waited behind another generation.
	Queued bool `json:"queued"`
}

// Command is an action directive embedded in generated text.
type Command struct {
	// example: launch
	Kind string `json:"kind" example:"launch"`
	// example: camera
	Arg string `json:"arg" example:"camera"`
}

// SwitchRequest is the optional payload of POST /switch.
type SwitchRequest struct {
	// Catalog name to select. Empty re-reads the preference.
	// example: Gemma 2 2B
	Model string `json:"model,omitempty" example:"Gemma 2 2B"`
}

// ModelsResponse wraps the list of models returned by GET /models.
type ModelsResponse struct {
	// List of catalog models.
	Models []Model `json:"models"`
}

// RemoteModelsResponse is returned by GET /remote/models.
type RemoteModelsResponse struct {
	// Model identifiers advertised by the remote endpoint.
	// example: ["llama3","qwen2"]
	Models []string `json:"models"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// AcceptedResponse is returned when a lifecycle operation was scheduled.
type AcceptedResponse struct {
	// example: initialize
	Op string `json:"op" example:"initialize"`
	// example: initializing
	State string `json:"state" example:"initializing"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Lifecycle state: unloaded, initializing, downloading, ready or failed.
	// example: ready
	State string `json:"state" example:"ready"`
	// Whether generation requests will be accepted.
	Ready bool `json:"ready"`
	// Selected or active model name.
	// example: TinyLlama 1.1B
	Model string `json:"model,omitempty" example:"TinyLlama 1.1B"`
	// example: managed
	Backend string `json:"backend,omitempty" example:"managed"`
	// Download progress in percent while downloading.
	// example: 42
	Percent int `json:"percent" example:"42"`
	// Whether a generation is running.
	InFlight bool `json:"in_flight"`
	// Requests waiting behind the running generation.
	// example: 0
	QueueLen int `json:"queue_len" example:"0"`
	// example: 32
	MaxQueueDepth int `json:"max_queue_depth" example:"32"`
	// Last initialization or acquisition error, if any.
	LastError string `json:"last_error,omitempty"`
	// Whether the current network counts as unmetered.
	Unmetered bool `json:"unmetered"`
	// Engines compiled into this binary.
	Engines EngineSupport `json:"engines"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}

// EngineSupport reports which local engines this build carries.
type EngineSupport struct {
	Managed bool `json:"managed"`
	Native  bool `json:"native"`
}

// ProgressEvent is one server-sent event on GET /progress.
type ProgressEvent struct {
	// example: download_progress
	Event string `json:"event" example:"download_progress"`
	// example: Gemma 2 2B
	Model string `json:"model,omitempty" example:"Gemma 2 2B"`
	// example: 42
	Percent *int           `json:"percent,omitempty" example:"42"`
	Fields  map[string]any `json:"fields,omitempty"`
}
