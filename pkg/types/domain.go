package types

// Model describes one catalog entry as exposed by GET /models.
type Model struct {
	// Display name; also the selection key.
	// example: TinyLlama 1.1B
	Name string `json:"name" example:"TinyLlama 1.1B"`
	// Name with vision badge, engine label and approximate size.
	// example: TinyLlama 1.1B [llama.cpp] ~640MB
	DisplayName string `json:"display_name" example:"TinyLlama 1.1B [llama.cpp] ~640MB"`
	// Engine variant: managed, native or remote.
	// example: managed
	Backend string `json:"backend" example:"managed"`
	// Artifact file name under the models directory (empty for remote).
	// example: tinyllama-1.1b-chat-v1.0.Q4_K_M.gguf
	FileName    string `json:"file_name,omitempty" example:"tinyllama-1.1b-chat-v1.0.Q4_K_M.gguf"`
	Description string `json:"description,omitempty"`
	// Whether the model accepts image input.
	Vision bool `json:"vision"`
	// Whether a valid artifact is present on disk.
	Installed bool `json:"installed"`
	// Whether this is the model the runtime will initialize.
	Selected bool `json:"selected"`
}
