// Package gateway implements the UDP ingress/egress engine, the
// forwarder, and the background reaper for the HPSDR Protocol 1
// gateway (spec.md §4.D/E/F).
package gateway

import (
	"context"
	"fmt"
	"log"
	"net"
	"syscall"

	"github.com/ewancrowle/hpsdr-gateway/internal/hpsdr"
	"github.com/ewancrowle/hpsdr-gateway/internal/radio"
	"github.com/ewancrowle/hpsdr-gateway/internal/session"
)

// Config holds the engine's tunables, read from the proxy section of
// the application config.
type Config struct {
	ListenAddress string
	ListenPort    int
	BufferSize    int
}

// Engine owns the shared datagram socket, classifies the direction of
// every received datagram, and dispatches it to the forwarder.
type Engine struct {
	cfg       Config
	conn      *net.UDPConn
	radios    *radio.Table
	sessions  *session.Table
	forwarder *Forwarder
	classify  hpsdr.Counters
	Stats     Stats
}

// NewEngine constructs an Engine. The socket is not opened until Listen
// is called; the forwarder (which owns the authenticator and selector
// manager) is supplied separately to Run so it can be built around the
// same socket the engine opens.
func NewEngine(cfg Config, radios *radio.Table, sessions *session.Table) *Engine {
	return &Engine{
		cfg:      cfg,
		radios:   radios,
		sessions: sessions,
	}
}

// Listen opens and configures the shared datagram socket but does not
// start reading from it. Callers need the open socket to construct the
// Forwarder (which writes to the same socket) before handing it back to
// Run.
func (e *Engine) Listen() error {
	addr := &net.UDPAddr{IP: net.ParseIP(e.cfg.ListenAddress), Port: e.cfg.ListenPort}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return fmt.Errorf("gateway: failed to bind %s:%d: %w", e.cfg.ListenAddress, e.cfg.ListenPort, err)
	}
	e.conn = conn

	if err := configureSocket(conn, e.cfg.BufferSize); err != nil {
		log.Printf("gateway: socket configuration warning: %v", err)
	}

	log.Printf("gateway: listening on %s:%d", e.cfg.ListenAddress, e.cfg.ListenPort)
	return nil
}

// Conn returns the socket opened by Listen. Callers use it to construct
// a Forwarder bound to the same connection.
func (e *Engine) Conn() *net.UDPConn {
	return e.conn
}

// Run executes the receive loop until ctx is cancelled or a permanent
// I/O error occurs. Listen must be called first.
func (e *Engine) Run(ctx context.Context, forwarder *Forwarder) error {
	e.forwarder = forwarder
	defer e.conn.Close()

	// ReadFromUDP blocks indefinitely when no datagrams arrive; closing
	// the socket on cancellation is what actually unblocks it.
	go func() {
		<-ctx.Done()
		e.conn.Close()
	}()

	buf := make([]byte, e.cfg.BufferSize)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		n, src, err := e.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return fmt.Errorf("gateway: permanent read failure: %w", err)
		}

		datagram := make([]byte, n)
		copy(datagram, buf[:n])

		e.dispatch(ctx, datagram, src)
	}
}

// dispatch implements spec.md §4.D's fixed dispatch rule. Run calls it
// synchronously on the receive loop's goroutine, so datagrams from a
// single client endpoint are classified, routed and sent in arrival
// order.
func (e *Engine) dispatch(ctx context.Context, b []byte, src *net.UDPAddr) {
	e.Stats.PacketsReceived.Add(1)
	e.Stats.BytesReceived.Add(uint64(len(b)))

	if _, ok := e.radios.LookupByIP(src.IP.String()); ok {
		// radio-to-client frame: classify() is never invoked for these.
		e.forwarder.ToClient(b, src.String())
		return
	}

	clientEp := src.String()
	p := hpsdr.Classify(b)
	e.classify.Observe(p.Kind)

	switch p.Kind {
	case hpsdr.KindDiscovery:
		e.forwarder.HandleDiscovery(ctx, p, clientEp, b)
	case hpsdr.KindSetIP:
		e.forwarder.HandleSetIP(ctx, p, clientEp, b)
	case hpsdr.KindData, hpsdr.KindUnknown:
		// Unknown is treated identically to Data: the protocol's data
		// path emits packets that fail structured classification, and
		// dropping them would sever streaming.
		e.forwarder.HandleData(ctx, p, clientEp, b)
	}
}

// configureSocket sets SO_REUSEADDR, SO_BROADCAST, and a receive buffer
// sized at 100x the per-packet buffer, following the raw-socket-option
// idiom of reaching through SyscallConn into the OS socket.
func configureSocket(conn *net.UDPConn, bufferSize int) error {
	rawConn, err := conn.SyscallConn()
	if err != nil {
		return fmt.Errorf("failed to get raw connection: %w", err)
	}

	var controlErr error
	err = rawConn.Control(func(fd uintptr) {
		if err := syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1); err != nil {
			controlErr = fmt.Errorf("SO_REUSEADDR: %w", err)
			return
		}
		if err := syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_BROADCAST, 1); err != nil {
			controlErr = fmt.Errorf("SO_BROADCAST: %w", err)
			return
		}
		if err := syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_RCVBUF, bufferSize*100); err != nil {
			controlErr = fmt.Errorf("SO_RCVBUF: %w", err)
			return
		}
	})
	if err != nil {
		return err
	}
	if controlErr != nil {
		return controlErr
	}

	return nil
}
