package gateway

import (
	"context"
	"log"
	"net"
	"time"

	"github.com/ewancrowle/hpsdr-gateway/internal/auth"
	"github.com/ewancrowle/hpsdr-gateway/internal/hpsdr"
	"github.com/ewancrowle/hpsdr-gateway/internal/radio"
	"github.com/ewancrowle/hpsdr-gateway/internal/selector"
	"github.com/ewancrowle/hpsdr-gateway/internal/session"
)

// Forwarder implements spec.md §4.E: the two-directional routing of
// parsed packets through the session table, plus the anonymous-session
// binding sub-protocol on Discovery/Data/SetIP.
type Forwarder struct {
	conn   *net.UDPConn
	radios *radio.Table
	tbl    *session.Table
	stats  *Stats

	auth             auth.Authenticator
	anonymousAllowed bool
	selectors        *selector.Manager
	selectorName     selector.Name
	sessionTimeout   time.Duration
}

// NewForwarder wires the forwarder's collaborators. requireAuthentication
// inverts spec.md's "anonymous-allowed" flag.
func NewForwarder(conn *net.UDPConn, radios *radio.Table, tbl *session.Table, stats *Stats, authenticator auth.Authenticator, requireAuthentication bool, selectors *selector.Manager, selectorName selector.Name, sessionTimeout time.Duration) *Forwarder {
	return &Forwarder{
		conn:             conn,
		radios:           radios,
		tbl:              tbl,
		stats:            stats,
		auth:             authenticator,
		anonymousAllowed: !requireAuthentication,
		selectors:        selectors,
		selectorName:     selectorName,
		sessionTimeout:   sessionTimeout,
	}
}

// ToRadio sends bytes to the radio bound to clientEp's session, if any.
func (f *Forwarder) ToRadio(bytes []byte, clientEp string, radioAddr *net.UDPAddr) {
	now := time.Now()
	s, ok := f.tbl.GetByClient(clientEp, now)
	if !ok {
		f.stats.DroppedNoSession.Add(1)
		return
	}
	if _, bound := f.tbl.RadioEndpointFor(clientEp, now); !bound {
		f.stats.DroppedNoRadio.Add(1)
		return
	}

	if _, err := f.conn.WriteToUDP(bytes, radioAddr); err != nil {
		f.stats.Errors.Add(1)
		log.Printf("gateway: send to radio %s failed: %v", radioAddr, err)
		return
	}

	f.stats.PacketsForwardedToRadio.Add(1)
	f.stats.BytesForwardedToRadio.Add(uint64(len(bytes)))
	s.PacketsToRadio.Add(1)
	s.BytesToRadio.Add(uint64(len(bytes)))
	f.tbl.Touch(clientEp, now)
}

// ToClient sends bytes back to the client bound to radioEp via the
// reverse index. Absence is the normal case for radio broadcasts not
// tied to any session and is dropped silently (no counter).
func (f *Forwarder) ToClient(bytes []byte, radioEp string) {
	clientEp, ok := f.tbl.GetClientByRadio(radioEp)
	if !ok {
		return
	}

	clientAddr, err := net.ResolveUDPAddr("udp4", clientEp)
	if err != nil {
		f.stats.Errors.Add(1)
		return
	}

	if _, err := f.conn.WriteToUDP(bytes, clientAddr); err != nil {
		f.stats.Errors.Add(1)
		log.Printf("gateway: send to client %s failed: %v", clientEp, err)
		return
	}

	f.stats.PacketsForwardedToClient.Add(1)
	f.stats.BytesForwardedToClient.Add(uint64(len(bytes)))

	now := time.Now()
	if s, ok := f.tbl.GetByClient(clientEp, now); ok {
		s.PacketsToClient.Add(1)
		s.BytesToClient.Add(uint64(len(bytes)))
	}
}

// bindAnonymous picks a radio via the configured selection policy and
// creates (or replaces) an anonymous session for clientEp. Returns the
// selected radio descriptor, or nil if none is available; the caller
// assigns the descriptor's control or data endpoint to the session.
func (f *Forwarder) bindAnonymous(ctx context.Context, clientEp string) *radio.Descriptor {
	if !f.anonymousAllowed {
		return nil
	}

	sel, ok := f.selectors.Get(f.selectorName)
	if !ok {
		log.Printf("gateway: no radio selector registered for %q", f.selectorName)
		return nil
	}

	d, err := sel.Select(ctx, f.radios.Enabled())
	if err != nil {
		log.Printf("gateway: radio selection failed for %s: %v", clientEp, err)
		return nil
	}

	now := time.Now()
	if f.tbl.Replaced(clientEp) {
		log.Printf("gateway: replacing existing session for %s", clientEp)
	}
	principal := f.auth.CreateAnonymousPrincipal()
	f.tbl.Create(principal, clientEp, now, f.sessionTimeout)

	return d
}

// HandleDiscovery implements the Discovery sub-protocol: an anonymous
// session is created on first contact, bound to the control port of the
// radio the configured selector picks (the first enabled radio under the
// default first_available policy), and the original bytes are forwarded unchanged
// (wire transparency — the forwarder never rewrites payload bytes).
func (f *Forwarder) HandleDiscovery(ctx context.Context, _ hpsdr.Packet, clientEp string, raw []byte) {
	if _, ok := f.tbl.GetByClient(clientEp, time.Now()); !ok {
		d := f.bindAnonymous(ctx, clientEp)
		if d == nil {
			f.stats.DroppedNoRadio.Add(1)
			return
		}
		f.tbl.AssignRadio(clientEp, d.ControlEndpoint(), d.Name)
	}

	radioEp, ok := f.tbl.RadioEndpointFor(clientEp, time.Now())
	if !ok {
		f.stats.DroppedNoRadio.Add(1)
		return
	}
	addr, err := net.ResolveUDPAddr("udp4", radioEp)
	if err != nil {
		f.stats.Errors.Add(1)
		return
	}
	f.ToRadio(raw, clientEp, addr)
}

// HandleSetIP binds (if needed) to the control port and forwards,
// exactly like Discovery — SetIP on Hermes-Lite 2 is itself a control
// command, not a data-path packet.
func (f *Forwarder) HandleSetIP(ctx context.Context, p hpsdr.Packet, clientEp string, raw []byte) {
	f.HandleDiscovery(ctx, p, clientEp, raw)
}

// HandleData binds (if needed) to the assigned radio's data port and
// forwards. Unknown-classified packets are routed identically (spec.md
// §4.D: dropping them would sever streaming).
func (f *Forwarder) HandleData(ctx context.Context, _ hpsdr.Packet, clientEp string, raw []byte) {
	if _, ok := f.tbl.GetByClient(clientEp, time.Now()); !ok {
		d := f.bindAnonymous(ctx, clientEp)
		if d == nil {
			f.stats.DroppedNoRadio.Add(1)
			return
		}
		f.tbl.AssignRadio(clientEp, d.DataEndpoint(), d.Name)
	}

	radioEp, ok := f.tbl.RadioEndpointFor(clientEp, time.Now())
	if !ok {
		f.stats.DroppedNoRadio.Add(1)
		return
	}
	addr, err := net.ResolveUDPAddr("udp4", radioEp)
	if err != nil {
		f.stats.Errors.Add(1)
		return
	}
	f.ToRadio(raw, clientEp, addr)
}
