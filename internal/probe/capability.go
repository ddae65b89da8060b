package probe

import (
	"context"
	"time"
)

// The interfaces below are the platform primitives the probes consume. The
// core never implements them; hosts supply them (see internal/platform for
// workstation implementations).

// LibraryLoader attempts to load a library by name. A missing library is
// (false, nil). An error means the load primitive itself could not run.
type LibraryLoader interface {
	TryLoad(name string) (bool, error)
}

// ImageLister enumerates the images (shared objects, dylibs) mapped into the
// current process.
type ImageLister interface {
	LoadedImages(ctx context.Context) ([]string, error)
}

// DeviceProperties is the fixed set of device identity strings.
type DeviceProperties struct {
	Fingerprint  string `json:"fingerprint" yaml:"fingerprint"`
	Model        string `json:"model" yaml:"model"`
	Manufacturer string `json:"manufacturer" yaml:"manufacturer"`
	Brand        string `json:"brand" yaml:"brand"`
	Device       string `json:"device" yaml:"device"`
}

type PropertyReader interface {
	ReadProperties(ctx context.Context) (DeviceProperties, error)
}

// HandshakeState is what a completed TLS handshake exposes to the core.
// ChainPins holds one pin per presented certificate, leaf first.
type HandshakeState struct {
	ChainPins []string
}

// Handshaker opens a connection to hostname and completes a TLS handshake.
// Any returned error means the handshake did not complete. Implementations
// must honour ctx cancellation by closing the underlying connection.
type Handshaker interface {
	Handshake(ctx context.Context, hostname string) (HandshakeState, error)
}

// FileStater reports whether a filesystem path exists. An error means the
// check could not be performed (for example permission denied).
type FileStater interface {
	Exists(path string) (bool, error)
}

type Clock func() time.Time

// TracerInfo identifies the process tracing the current one. PID 0 means no
// tracer is attached. Name is empty when it could not be read.
type TracerInfo struct {
	PID  int
	Name string
}

// TracerReader reports the debugger or tracer attached to the current
// process.
type TracerReader interface {
	Tracer(ctx context.Context) (TracerInfo, error)
}
