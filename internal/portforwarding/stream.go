package portforwarding

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"sumctl/internal/kube"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/util/httpstream"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/portforward"
	"k8s.io/client-go/transport/spdy"
)

// StreamOpener forwards through SPDY streams negotiated with the API server.
// It serves the reservation's listener in-process, so the port is never released
// between allocation and use.
type StreamOpener struct {
	Clientset kubernetes.Interface
	Config    *rest.Config

	// Dial opens a port-forward connection to a pod. Nil means SPDY via the API server.
	Dial func(ctx context.Context, namespace, pod string) (httpstream.Connection, error)
}

// NewStreamOpener creates a StreamOpener dialing through the given cluster config.
func NewStreamOpener(clientset kubernetes.Interface, config *rest.Config) *StreamOpener {
	return &StreamOpener{Clientset: clientset, Config: config}
}

func (o *StreamOpener) dial(ctx context.Context, namespace, pod string) (httpstream.Connection, error) {
	if o.Dial != nil {
		return o.Dial(ctx, namespace, pod)
	}

	// POST https://<server>/api/v1/namespaces/<namespace>/pods/<pod>/portforward
	reqURL := o.Clientset.CoreV1().RESTClient().Post().
		Resource("pods").
		Namespace(namespace).
		Name(pod).
		SubResource("portforward").
		URL()

	transport, upgrader, err := spdy.RoundTripperFor(o.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to create SPDY round tripper: %w", err)
	}
	dialer := spdy.NewDialer(upgrader, &http.Client{Transport: transport}, http.MethodPost, reqURL)
	conn, _, err := dialer.Dial(portforward.PortForwardProtocolV1Name)
	if err != nil {
		return nil, fmt.Errorf("error upgrading connection: %w", err)
	}
	return conn, nil
}

// Open picks a ready pod behind the service, dials it and starts accepting on the held listener.
func (o *StreamOpener) Open(ctx context.Context, target Target, res *Reservation) (Tunnel, error) {
	pod, err := kube.ReadyPodForService(ctx, o.Clientset, target.Namespace, target.Service)
	if err != nil {
		return nil, &kube.OpError{Op: "port-forward", Target: target.Service, Kind: kube.KindCommandFailed, Err: err}
	}

	conn, err := o.dial(ctx, target.Namespace, pod)
	if err != nil {
		return nil, &kube.OpError{Op: "port-forward", Target: target.Service, Kind: kube.KindCommandFailed, Err: err}
	}

	ln := res.Listener()
	if ln == nil {
		conn.Close()
		return nil, &kube.OpError{Op: "port-forward", Target: target.Service, Kind: kube.KindPortUnavailable, Err: errors.New("reservation already released")}
	}

	t := &streamTunnel{
		conn:       conn,
		ln:         ln,
		pod:        pod,
		localPort:  res.Port(),
		remotePort: target.RemotePort,
		done:       make(chan struct{}),
	}
	go t.serve()
	go t.watchConnection()
	return t, nil
}

type streamTunnel struct {
	conn       httpstream.Connection
	ln         net.Listener
	pod        string
	localPort  int
	remotePort int

	requestID atomic.Int32
	diag      syncBuffer

	// mu orders active.Add against shutdown, so Stop never waits while a connection is added
	mu     sync.Mutex
	closed bool
	active sync.WaitGroup

	done      chan struct{}
	closeOnce sync.Once
}

func (t *streamTunnel) LocalPort() int        { return t.localPort }
func (t *streamTunnel) Done() <-chan struct{} { return t.done }

func (t *streamTunnel) Alive() bool {
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

func (t *streamTunnel) Diagnostics() string { return strings.TrimSpace(t.diag.String()) }

// Stop closes the listener and the pod connection, then waits up to grace for open
// connections to drain.
func (t *streamTunnel) Stop(grace time.Duration) error {
	t.shutdown()

	drained := make(chan struct{})
	go func() {
		t.active.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		return nil
	case <-time.After(grace):
		return fmt.Errorf("connections to pod %s still open after %s", t.pod, grace)
	}
}

func (t *streamTunnel) shutdown() {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		t.mu.Unlock()
		t.ln.Close()
		t.conn.Close()
		close(t.done)
	})
}

func (t *streamTunnel) note(format string, args ...interface{}) {
	fmt.Fprintf(&t.diag, format+"\n", args...)
}

func (t *streamTunnel) serve() {
	for {
		local, err := t.ln.Accept()
		if err != nil {
			if !isClosed(err) {
				t.note("error accepting connection on port %d: %v", t.localPort, err)
			}
			t.shutdown()
			return
		}
		if !t.track() {
			local.Close()
			return
		}
		go func() {
			defer t.active.Done()
			t.handle(local)
		}()
	}
}

// track counts a new connection, unless the tunnel is already shutting down.
func (t *streamTunnel) track() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	t.active.Add(1)
	return true
}

func (t *streamTunnel) watchConnection() {
	select {
	case <-t.conn.CloseChan():
		t.note("lost connection to pod %s", t.pod)
		t.shutdown()
	case <-t.done:
	}
}

// handle copies one local connection through a fresh error/data stream pair.
func (t *streamTunnel) handle(local net.Conn) {
	defer local.Close()

	requestID := t.requestID.Add(1)
	headers := http.Header{}
	headers.Set(corev1.StreamType, corev1.StreamTypeError)
	headers.Set(corev1.PortHeader, strconv.Itoa(t.remotePort))
	headers.Set(corev1.PortForwardRequestIDHeader, strconv.Itoa(int(requestID)))

	errorStream, err := t.conn.CreateStream(headers)
	if err != nil {
		t.note("error creating error stream for port %d -> %d: %v", t.localPort, t.remotePort, err)
		return
	}
	// nothing is ever written to the error stream
	errorStream.Close()
	defer t.conn.RemoveStreams(errorStream)

	errorChan := make(chan error, 1)
	go func() {
		message, err := io.ReadAll(errorStream)
		switch {
		case err != nil:
			errorChan <- fmt.Errorf("error reading from error stream for port %d -> %d: %w", t.localPort, t.remotePort, err)
		case len(message) > 0:
			errorChan <- fmt.Errorf("an error occurred forwarding %d -> %d: %s", t.localPort, t.remotePort, string(message))
		}
		close(errorChan)
	}()

	headers.Set(corev1.StreamType, corev1.StreamTypeData)
	dataStream, err := t.conn.CreateStream(headers)
	if err != nil {
		t.note("error creating forwarding stream for port %d -> %d: %v", t.localPort, t.remotePort, err)
		return
	}
	defer t.conn.RemoveStreams(dataStream)

	localError := make(chan struct{})
	remoteDone := make(chan struct{})

	go func() {
		if _, err := io.Copy(local, dataStream); err != nil && !isClosed(err) {
			t.note("error copying from remote stream to local connection: %v", err)
		}
		close(remoteDone)
	}()

	go func() {
		// tell the server no more data follows once the local side is done
		defer dataStream.Close()
		if _, err := io.Copy(dataStream, local); err != nil && !isClosed(err) {
			t.note("error copying from local connection to remote stream: %v", err)
			close(localError)
		}
	}()

	select {
	case <-remoteDone:
	case <-localError:
	}

	if err := <-errorChan; err != nil {
		t.note("%v", err)
	}
}

func isClosed(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, io.EOF)
}
