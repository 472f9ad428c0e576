package engine

// ManagedOptions are the decoding parameters fixed at managed-engine construction.
type ManagedOptions struct {
	ContextSize int
	Threads     int
	MaxTokens   int
	TopK        int
	Temperature float32
}

// DefaultManagedOptions mirrors the runtime's stock assistant settings.
func DefaultManagedOptions() ManagedOptions {
	return ManagedOptions{ContextSize: 2048, Threads: 4, MaxTokens: 1024, TopK: 40, Temperature: 0.7}
}

func (o ManagedOptions) withDefaults() ManagedOptions {
	d := DefaultManagedOptions()
	if o.ContextSize <= 0 {
		o.ContextSize = d.ContextSize
	}
	if o.Threads <= 0 {
		o.Threads = d.Threads
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = d.MaxTokens
	}
	if o.TopK <= 0 {
		o.TopK = d.TopK
	}
	if o.Temperature <= 0 {
		o.Temperature = d.Temperature
	}
	return o
}
