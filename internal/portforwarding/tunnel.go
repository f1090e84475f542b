package portforwarding

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTunnelExited is wrapped by Establish when a tunnel died during its settle interval.
var ErrTunnelExited = errors.New("tunnel exited immediately")

// Target identifies the cluster service a tunnel forwards to.
type Target struct {
	Unit       int
	Namespace  string
	Service    string
	RemotePort int
}

// Tunnel is one live forward from a local port to a cluster service.
type Tunnel interface {
	// LocalPort is the loopback port the tunnel accepts connections on.
	LocalPort() int
	// Alive reports whether the tunnel is still forwarding.
	Alive() bool
	// Done is closed once the tunnel has stopped, for whatever reason.
	Done() <-chan struct{}
	// Diagnostics returns any error output the tunnel produced.
	Diagnostics() string
	// Stop asks the tunnel to terminate and forces it after grace.
	Stop(grace time.Duration) error
}

// Opener starts tunnels. The reservation carries the negotiated local port; openers
// either take over its listener or release it before binding the port themselves.
type Opener interface {
	Open(ctx context.Context, target Target, res *Reservation) (Tunnel, error)
}

// syncBuffer is a bytes.Buffer safe for concurrent writers and readers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
