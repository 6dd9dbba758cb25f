// Package host is the boundary to the audio server. It owns the six audio
// ports (stereo primary in, stereo secondary in, stereo out), delivers one
// block per port per callback to a ProcessFunc, and manages graph
// connections. Failures inside the callback are absorbed at this boundary:
// the block's outputs are zeroed and the fault is recorded for the
// non-real-time observer to log.
package host

// Short names of the six ports registered with the audio server.
const (
	PortPrimaryInL   = "primary_in_L"
	PortPrimaryInR   = "primary_in_R"
	PortSecondaryInL = "secondary_in_L"
	PortSecondaryInR = "secondary_in_R"
	PortOutputL      = "output_L"
	PortOutputR      = "output_R"
)

// ProcessFunc processes one block of samples per port. It runs on the
// real-time audio thread; a returned error means the block was not produced
// and the caller decides what the outputs hold.
type ProcessFunc func(primaryL, primaryR, secondaryL, secondaryR, outputL, outputR []float32) error

// PortNames lists the fully qualified port names as known to the audio
// server, for status reporting and routing.
type PortNames struct {
	PrimaryIn   []string `json:"primary_in"`
	SecondaryIn []string `json:"secondary_in"`
	Output      []string `json:"output"`
}

// Client is the audio server attachment. Exactly one ProcessFunc is active
// between Activate and Deactivate.
type Client interface {
	// SampleRate returns the server's samplerate in Hz.
	SampleRate() int

	// BufferSize returns the server's block size in samples.
	BufferSize() int

	// Ports returns the fully qualified names of the six registered ports.
	Ports() PortNames

	// Activate installs the process function and starts callbacks.
	Activate(fn ProcessFunc) error

	// Deactivate stops callbacks. After it returns the process function is
	// no longer invoked and shared state is safe to tear down.
	Deactivate() error

	// Connect establishes a graph connection between two ports by name.
	// Connecting an already-connected pair succeeds.
	Connect(source, destination string) error

	// Faults exposes the recorder for block-processing failures.
	Faults() *FaultRecorder

	// Close releases the client. The client is unusable afterwards.
	Close() error
}
