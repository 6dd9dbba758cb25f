package host

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/sirupsen/logrus"
	jack "github.com/xthexder/go-jack"
)

// jack_connect reports EEXIST for a pair that is already wired; the routing
// watchdog treats that as success.
const jackAlreadyConnected = 17

// JackClient attaches to a running JACK (or PipeWire-JACK) server and
// implements Client on top of it.
type JackClient struct {
	client *jack.Client
	name   string
	log    *logrus.Entry

	primaryInL   *jack.Port
	primaryInR   *jack.Port
	secondaryInL *jack.Port
	secondaryInR *jack.Port
	outputL      *jack.Port
	outputR      *jack.Port

	faults FaultRecorder

	mu        sync.Mutex
	process   ProcessFunc
	activated bool
	closed    bool
}

// OpenJack attaches to an already-running JACK server and registers the six
// audio ports. It never starts a server of its own; if none is running the
// returned error is the startup condition the process reports before a clean
// exit.
func OpenJack(clientName string, log *logrus.Logger) (*JackClient, error) {
	client, status := jack.ClientOpen(clientName, jack.NoStartServer)
	if client == nil || status != 0 {
		return nil, fmt.Errorf("no JACK server available: %s", jack.StrError(status))
	}

	c := &JackClient{
		client: client,
		name:   client.GetName(),
		log:    log.WithField("component", "jack"),
	}

	ports := []struct {
		target **jack.Port
		name   string
		flags  uint64
	}{
		{&c.primaryInL, PortPrimaryInL, jack.PortIsInput},
		{&c.primaryInR, PortPrimaryInR, jack.PortIsInput},
		{&c.secondaryInL, PortSecondaryInL, jack.PortIsInput},
		{&c.secondaryInR, PortSecondaryInR, jack.PortIsInput},
		{&c.outputL, PortOutputL, jack.PortIsOutput},
		{&c.outputR, PortOutputR, jack.PortIsOutput},
	}
	for _, p := range ports {
		port := client.PortRegister(p.name, jack.DEFAULT_AUDIO_TYPE, p.flags, 0)
		if port == nil {
			client.Close()
			return nil, fmt.Errorf("could not register port %q", p.name)
		}
		*p.target = port
	}

	client.OnShutdown(func() {
		c.log.Warn("JACK server shut down")
	})

	return c, nil
}

// SampleRate returns the server samplerate in Hz.
func (c *JackClient) SampleRate() int {
	return int(c.client.GetSampleRate())
}

// BufferSize returns the server block size in samples.
func (c *JackClient) BufferSize() int {
	return int(c.client.GetBufferSize())
}

// Ports returns the fully qualified names of the six registered ports.
func (c *JackClient) Ports() PortNames {
	return PortNames{
		PrimaryIn:   []string{c.primaryInL.GetName(), c.primaryInR.GetName()},
		SecondaryIn: []string{c.secondaryInL.GetName(), c.secondaryInR.GetName()},
		Output:      []string{c.outputL.GetName(), c.outputR.GetName()},
	}
}

// Activate installs the process function and starts real-time callbacks.
func (c *JackClient) Activate(fn ProcessFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("client is closed")
	}
	if c.activated {
		return fmt.Errorf("client already active")
	}
	if fn == nil {
		return fmt.Errorf("nil process function")
	}

	c.process = fn
	if code := c.client.SetProcessCallback(c.onProcess); code != 0 {
		return fmt.Errorf("could not set process callback: %s", jack.StrError(code))
	}
	if code := c.client.Activate(); code != 0 {
		return fmt.Errorf("could not activate client: %s", jack.StrError(code))
	}

	c.activated = true
	c.log.WithFields(logrus.Fields{
		"client":     c.name,
		"samplerate": c.SampleRate(),
		"blocksize":  c.BufferSize(),
	}).Info("JACK client activated")

	return nil
}

// onProcess is the JACK process callback. It hands the six port buffers to
// the guarded process function and always reports success to the server; a
// failed block produces silence and a recorded fault instead of stopping the
// graph.
func (c *JackClient) onProcess(nframes uint32) int {
	primL := asFloat32(c.primaryInL.GetBuffer(nframes))
	primR := asFloat32(c.primaryInR.GetBuffer(nframes))
	secL := asFloat32(c.secondaryInL.GetBuffer(nframes))
	secR := asFloat32(c.secondaryInR.GetBuffer(nframes))
	outL := asFloat32(c.outputL.GetBuffer(nframes))
	outR := asFloat32(c.outputR.GetBuffer(nframes))

	Guard(c.process, &c.faults, primL, primR, secL, secR, outL, outR)
	return 0
}

// Deactivate stops real-time callbacks. After it returns the process
// function is no longer invoked.
func (c *JackClient) Deactivate() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.activated {
		return nil
	}
	c.activated = false

	if code := c.client.Deactivate(); code != 0 {
		return fmt.Errorf("could not deactivate client: %s", jack.StrError(code))
	}
	return nil
}

// Connect wires source to destination in the server graph. A pair that is
// already connected counts as success.
func (c *JackClient) Connect(source, destination string) error {
	code := c.client.Connect(source, destination)
	switch code {
	case 0, jackAlreadyConnected:
		return nil
	default:
		return fmt.Errorf("jack connect failed: %s", jack.StrError(code))
	}
}

// Faults exposes the recorder for block-processing failures.
func (c *JackClient) Faults() *FaultRecorder {
	return &c.faults
}

// Close releases the JACK client.
func (c *JackClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if code := c.client.Close(); code != 0 {
		return fmt.Errorf("could not close client: %s", jack.StrError(code))
	}
	return nil
}

// asFloat32 reinterprets a JACK audio buffer as []float32 without copying.
// jack.AudioSample is a defined float32 type, so the memory layout is
// identical.
func asFloat32(buf []jack.AudioSample) []float32 {
	if len(buf) == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&buf[0])), len(buf))
}
