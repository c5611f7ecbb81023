package detector

// Detector is a strategy that determines if the server is up.
// It must be safe for concurrent use.
type Detector interface {
	// Alive returns true if the server is detected as running.
	Alive() (bool, error)
	// Describe returns a human-readable description of the detection method.
	Describe() string
}

// Result is the outcome of one detector.
type Result struct {
	Method string
	Alive  bool
	Err    error
}

// Run evaluates every detector in order.
func Run(ds ...Detector) []Result {
	out := make([]Result, 0, len(ds))
	for _, d := range ds {
		ok, err := d.Alive()
		out = append(out, Result{Method: d.Describe(), Alive: ok, Err: err})
	}
	return out
}
