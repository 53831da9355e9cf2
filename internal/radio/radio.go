// Package radio resolves configured HPSDR radios to network endpoints
// once at startup and exposes the resulting descriptor set to the rest
// of the gateway.
package radio

import (
	"fmt"
	"log"
	"net"
)

// Descriptor is immutable after resolution.
type Descriptor struct {
	Name        string
	Hostname    string
	ResolvedIP  string // set once at startup; falls back to Hostname on resolution failure
	ControlPort int
	DataPort    int
	Enabled     bool
}

// ControlEndpoint returns the "ip:port" string for the control port.
func (d *Descriptor) ControlEndpoint() string {
	return fmt.Sprintf("%s:%d", d.ResolvedIP, d.ControlPort)
}

// DataEndpoint returns the "ip:port" string for the data port.
func (d *Descriptor) DataEndpoint() string {
	return fmt.Sprintf("%s:%d", d.ResolvedIP, d.DataPort)
}

// Table holds the resolved radio set, indexed two ways: by configured
// hostname (for logs/admin lookups) and by resolved IP (the hot path —
// the UDP engine checks every datagram's source IP against this map).
type Table struct {
	byHostname map[string]*Descriptor
	byIP       map[string]*Descriptor
	all        []*Descriptor
}

// Spec describes one radio entry from configuration.
type Spec struct {
	Name        string
	Hostname    string
	ControlPort int
	DataPort    int
	Enabled     bool
}

// NewTable resolves every configured radio hostname once via the OS
// resolver. Resolution failures are non-fatal: the hostname string
// itself is retained as an opaque fallback key, a warning is logged,
// and startup continues.
func NewTable(specs []Spec) *Table {
	t := &Table{
		byHostname: make(map[string]*Descriptor),
		byIP:       make(map[string]*Descriptor),
	}

	for _, s := range specs {
		dataPort := s.DataPort
		if dataPort == 0 {
			dataPort = s.ControlPort
		}

		d := &Descriptor{
			Name:        s.Name,
			Hostname:    s.Hostname,
			ControlPort: s.ControlPort,
			DataPort:    dataPort,
			Enabled:     s.Enabled,
		}

		addr, err := net.ResolveIPAddr("ip4", s.Hostname)
		if err != nil {
			log.Printf("radio: failed to resolve %q (%s): %v; using hostname as fallback key", s.Name, s.Hostname, err)
			d.ResolvedIP = s.Hostname
		} else {
			d.ResolvedIP = addr.IP.String()
		}

		t.byHostname[s.Hostname] = d
		t.byIP[d.ResolvedIP] = d
		t.all = append(t.all, d)
	}

	return t
}

// LookupByIP returns the descriptor whose resolved IP matches ip, or
// (nil, false).
func (t *Table) LookupByIP(ip string) (*Descriptor, bool) {
	d, ok := t.byIP[ip]
	return d, ok
}

// LookupByHostname returns the descriptor registered under hostname, or
// (nil, false).
func (t *Table) LookupByHostname(hostname string) (*Descriptor, bool) {
	d, ok := t.byHostname[hostname]
	return d, ok
}

// Enabled returns every descriptor with Enabled == true, in
// configuration order.
func (t *Table) Enabled() []*Descriptor {
	out := make([]*Descriptor, 0, len(t.all))
	for _, d := range t.all {
		if d.Enabled {
			out = append(out, d)
		}
	}
	return out
}

// All returns every configured descriptor, in configuration order.
func (t *Table) All() []*Descriptor {
	return t.all
}
