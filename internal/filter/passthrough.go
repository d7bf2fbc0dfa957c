package filter

func init() {
	Register("passthrough", func() Module { return passthrough{} })
}

// passthrough advertises no capabilities, so every channel falls back to its
// latest raw value. Useful for A/B comparison against conditioned runs.
type passthrough struct{}

func (passthrough) Name() string { return "passthrough" }
