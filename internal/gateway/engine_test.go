package gateway

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/ewancrowle/hpsdr-gateway/internal/auth"
	"github.com/ewancrowle/hpsdr-gateway/internal/radio"
	"github.com/ewancrowle/hpsdr-gateway/internal/selector"
	"github.com/ewancrowle/hpsdr-gateway/internal/session"
)

func TestDispatchRadioSourceSkipsClassification(t *testing.T) {
	clientSock := newLoopbackConn(t)
	engineSock := newLoopbackConn(t)

	radioAddr := &net.UDPAddr{IP: net.ParseIP("10.0.0.5"), Port: 1024}
	radios := radio.NewTable([]radio.Spec{
		{Name: "shack-1", Hostname: "10.0.0.5", ControlPort: 1024, Enabled: true},
	})

	tbl := session.NewTable(nil)
	clientEp := clientSock.LocalAddr().(*net.UDPAddr)
	tbl.Create(session.Principal{Anonymous: true}, clientEp.String(), time.Now(), time.Minute)
	tbl.AssignRadio(clientEp.String(), radioAddr.String(), "shack-1")

	stats := &Stats{}
	manager := selector.NewManager()
	fwd := NewForwarder(engineSock, radios, tbl, stats, auth.AnonymousOnly{}, false, manager, selector.FirstAvailableName, time.Minute)

	e := NewEngine(Config{ListenAddress: "127.0.0.1", ListenPort: 0, BufferSize: 2048}, radios, tbl)
	e.forwarder = fwd

	raw := []byte("radio reply payload")
	e.dispatch(context.Background(), raw, radioAddr)

	if e.classify.Total.Load() != 0 {
		t.Errorf("expected classify() to never be invoked for a known-radio source, got %d observations", e.classify.Total.Load())
	}
	if e.Stats.PacketsReceived.Load() != 1 {
		t.Errorf("expected packets_received to be incremented")
	}

	clientSock.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 2048)
	n, _, err := clientSock.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("expected the client socket to receive the routed reply: %v", err)
	}
	if string(buf[:n]) != string(raw) {
		t.Errorf("expected payload forwarded unchanged, got %q", buf[:n])
	}
}
