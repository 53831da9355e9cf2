package gateway

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/ewancrowle/hpsdr-gateway/internal/auth"
	"github.com/ewancrowle/hpsdr-gateway/internal/hpsdr"
	"github.com/ewancrowle/hpsdr-gateway/internal/radio"
	"github.com/ewancrowle/hpsdr-gateway/internal/selector"
	"github.com/ewancrowle/hpsdr-gateway/internal/session"
)

func newLoopbackConn(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	if err != nil {
		t.Fatalf("failed to open loopback socket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestForwarderAnonymousDiscoveryBindsFirstAvailableRadio(t *testing.T) {
	radioSock := newLoopbackConn(t)
	engineSock := newLoopbackConn(t)

	radioEp := radioSock.LocalAddr().(*net.UDPAddr)
	radios := radio.NewTable([]radio.Spec{
		{Name: "shack-1", Hostname: "127.0.0.1", ControlPort: radioEp.Port, DataPort: radioEp.Port, Enabled: true},
	})

	tbl := session.NewTable(nil)
	stats := &Stats{}
	manager := selector.NewManager()
	manager.Register(selector.FirstAvailableName, selector.FirstAvailable{})

	fwd := NewForwarder(engineSock, radios, tbl, stats, auth.AnonymousOnly{}, false, manager, selector.FirstAvailableName, time.Minute)

	clientEp := "192.168.1.20:50000"
	raw := make([]byte, 63)
	raw[0], raw[1], raw[2] = 0xEF, 0xFE, 0x02
	p := hpsdr.Classify(raw)

	fwd.HandleDiscovery(context.Background(), p, clientEp, raw)

	s, ok := tbl.GetByClient(clientEp, time.Now())
	if !ok {
		t.Fatalf("expected an anonymous session to be created")
	}
	if s.RadioEndpoint != radios.Enabled()[0].ControlEndpoint() {
		t.Errorf("expected session bound to the control endpoint, got %q", s.RadioEndpoint)
	}
	if stats.PacketsForwardedToRadio.Load() != 1 {
		t.Errorf("expected one packet forwarded to radio, got %d", stats.PacketsForwardedToRadio.Load())
	}

	radioSock.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 2048)
	n, _, err := radioSock.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("expected the radio socket to receive the forwarded datagram: %v", err)
	}
	if n != len(raw) {
		t.Errorf("expected %d bytes forwarded unchanged, got %d", len(raw), n)
	}
}

func TestForwarderToClientDropsSilentlyWithoutSession(t *testing.T) {
	engineSock := newLoopbackConn(t)
	tbl := session.NewTable(nil)
	stats := &Stats{}

	fwd := NewForwarder(engineSock, radio.NewTable(nil), tbl, stats, auth.AnonymousOnly{}, false, selector.NewManager(), selector.FirstAvailableName, time.Minute)

	fwd.ToClient([]byte("hello"), "10.0.0.5:1024")

	if stats.PacketsForwardedToClient.Load() != 0 {
		t.Errorf("expected no packet forwarded when no session claims this radio endpoint")
	}
	if stats.Errors.Load() != 0 {
		t.Errorf("expected no error counted for the normal no-session case")
	}
}

func TestForwarderToRadioDropsWhenSessionAbsent(t *testing.T) {
	engineSock := newLoopbackConn(t)
	tbl := session.NewTable(nil)
	stats := &Stats{}
	fwd := NewForwarder(engineSock, radio.NewTable(nil), tbl, stats, auth.AnonymousOnly{}, false, selector.NewManager(), selector.FirstAvailableName, time.Minute)

	fwd.ToRadio([]byte("x"), "nobody:1", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 1024})

	if stats.DroppedNoSession.Load() != 1 {
		t.Errorf("expected dropped_no_session to be incremented, got %d", stats.DroppedNoSession.Load())
	}
}

func TestForwarderRequireAuthenticationBlocksAnonymousBinding(t *testing.T) {
	engineSock := newLoopbackConn(t)
	radios := radio.NewTable([]radio.Spec{
		{Name: "shack-1", Hostname: "127.0.0.1", ControlPort: 1024, Enabled: true},
	})
	tbl := session.NewTable(nil)
	stats := &Stats{}
	manager := selector.NewManager()
	manager.Register(selector.FirstAvailableName, selector.FirstAvailable{})

	fwd := NewForwarder(engineSock, radios, tbl, stats, auth.AnonymousOnly{}, true, manager, selector.FirstAvailableName, time.Minute)

	raw := []byte{0xEF, 0xFE, 0x02}
	p := hpsdr.Classify(raw)
	fwd.HandleDiscovery(context.Background(), p, "C:1", raw)

	if _, ok := tbl.GetByClient("C:1", time.Now()); ok {
		t.Errorf("expected no session to be created when authentication is required and no token was supplied")
	}
	if stats.DroppedNoRadio.Load() != 1 {
		t.Errorf("expected dropped_no_radio to be incremented")
	}
}
