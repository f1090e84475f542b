package portforwarding

import (
	"fmt"
	"net"
	"sync"

	"sumctl/internal/kube"
)

// loopback is the only interface tunnels listen on.
const loopback = "127.0.0.1"

// Reservation is a local port held open by a listening socket.
// Ownership of the socket passes to whoever calls Listener; otherwise Release closes it.
type Reservation struct {
	mu        sync.Mutex
	ln        net.Listener
	port      int
	preferred bool
}

// Allocate binds the preferred port on loopback, falling back to an OS-assigned
// port when it is taken. The socket stays bound until Release or Listener is called.
func Allocate(preferred int) (*Reservation, error) {
	if preferred > 0 {
		if ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", loopback, preferred)); err == nil {
			return &Reservation{ln: ln, port: preferred, preferred: true}, nil
		}
	}

	ln, err := net.Listen("tcp", loopback+":0")
	if err != nil {
		return nil, &kube.OpError{Op: "allocate-port", Target: fmt.Sprintf("%s:%d", loopback, preferred), Kind: kube.KindPortUnavailable, Err: err}
	}
	return &Reservation{ln: ln, port: ln.Addr().(*net.TCPAddr).Port}, nil
}

// AvailablePort probes for a free port and releases it immediately.
// Another process may bind the port before the caller does.
func AvailablePort(preferred int) (int, error) {
	res, err := Allocate(preferred)
	if err != nil {
		return 0, err
	}
	port := res.Port()
	if err := res.Release(); err != nil {
		return 0, err
	}
	return port, nil
}

// Port returns the bound port.
func (r *Reservation) Port() int { return r.port }

// Preferred reports whether the requested port was obtained.
func (r *Reservation) Preferred() bool { return r.preferred }

// Listener hands over the bound socket. The reservation no longer owns it afterwards,
// and subsequent calls return nil.
func (r *Reservation) Listener() net.Listener {
	r.mu.Lock()
	defer r.mu.Unlock()
	ln := r.ln
	r.ln = nil
	return ln
}

// Release closes the socket if it is still owned. Safe to call more than once.
func (r *Reservation) Release() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ln == nil {
		return nil
	}
	err := r.ln.Close()
	r.ln = nil
	return err
}
