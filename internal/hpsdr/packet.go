// Package hpsdr implements the HPSDR Protocol 1 (Hermes/Metis) wire
// format: framing, command identification, and the handful of derived
// fields the gateway needs to route a datagram without decoding its
// payload.
package hpsdr

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync/atomic"
)

// Kind tags the variant carried by a Packet.
type Kind int

const (
	KindUnknown Kind = iota
	KindDiscovery
	KindSetIP
	KindData
)

func (k Kind) String() string {
	switch k {
	case KindDiscovery:
		return "discovery"
	case KindSetIP:
		return "set_ip"
	case KindData:
		return "data"
	default:
		return "unknown"
	}
}

// DiscoveryRole distinguishes a Discovery request from a response.
type DiscoveryRole int

const (
	RoleRequest DiscoveryRole = iota
	RoleResponse
)

const (
	magic0 = 0xEF
	magic1 = 0xFE

	cmdSetIP     = 0x04
	cmdDiscovery = 0x02
	cmdData      = 0x01

	hermesClock = 122_880_000 // 122.88 MHz, HPSDR Protocol 1 reference clock
)

// Packet is the tagged-variant output of Classify. Only the fields
// meaningful to Kind are populated; the rest are zero values.
type Packet struct {
	Kind Kind
	Raw  []byte

	// Discovery
	Role    DiscoveryRole
	MAC     string // lowercase colon-separated hex, empty if not present
	BoardID byte
	HasMAC  bool

	// SetIP
	TargetIP string // dotted-quad, empty if packet too short

	// Data
	Sequence   uint32
	C          [5]byte // C0..C4 control-byte window
	PTT        bool
	FreqChange bool
	HasControl bool
}

// Classify implements the fixed dispatch order from the protocol
// specification: SetIP is checked before Discovery because both share
// the 0xEFFE prefix and SetIP carries the heavier semantic weight (it
// triggers streaming on Hermes-Lite 2). Data is checked next, and
// anything else falls through to Unknown.
func Classify(b []byte) Packet {
	p := Packet{Kind: KindUnknown, Raw: b}

	if len(b) >= 3 && b[0] == magic0 && b[1] == magic1 {
		switch b[2] {
		case cmdSetIP:
			p.Kind = KindSetIP
			if len(b) >= 8 {
				p.TargetIP = fmt.Sprintf("%d.%d.%d.%d", b[4], b[5], b[6], b[7])
			}
			return p
		case cmdDiscovery:
			p.Kind = KindDiscovery
			if len(b) >= 9 {
				nonZero := false
				for _, c := range b[3:9] {
					if c != 0 {
						nonZero = true
						break
					}
				}
				if nonZero {
					p.Role = RoleResponse
					p.HasMAC = true
					p.MAC = formatMAC(b[3:9])
					if len(b) >= 10 {
						p.BoardID = b[9]
					}
				} else {
					p.Role = RoleRequest
				}
			} else {
				p.Role = RoleRequest
			}
			return p
		case cmdData:
			if len(b) >= 8 {
				p.Kind = KindData
				p.Sequence = binary.BigEndian.Uint32(b[3:7])
				if len(b) >= 16 {
					copy(p.C[:], b[11:16])
					p.HasControl = true
					p.PTT = p.C[0]&0x01 != 0
					p.FreqChange = p.C[0]&0x02 != 0
				}
				return p
			}
		}
	}

	return p
}

func formatMAC(b []byte) string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", b[0], b[1], b[2], b[3], b[4], b[5])
}

// ExtractFrequencyHz derives the tuned frequency from a Data packet's
// control-byte window C1..C4, per the fixed-point encoding
// freq_hz = round(freq_word * 122.88MHz / 2^32).
func ExtractFrequencyHz(p Packet) (uint32, bool) {
	if p.Kind != KindData || !p.HasControl {
		return 0, false
	}
	word := binary.BigEndian.Uint32(p.C[1:5])
	hz := math.Round(float64(word) * float64(hermesClock) / 4294967296.0)
	return uint32(hz), true
}

// Counters accumulates classification totals. All fields are updated
// with atomic operations; Reset is the only way to clear them.
type Counters struct {
	Total     atomic.Uint64
	Discovery atomic.Uint64
	SetIP     atomic.Uint64
	Data      atomic.Uint64
	Unknown   atomic.Uint64
	Errors    atomic.Uint64
}

// Observe records the kind of a classified packet.
func (c *Counters) Observe(k Kind) {
	c.Total.Add(1)
	switch k {
	case KindDiscovery:
		c.Discovery.Add(1)
	case KindSetIP:
		c.SetIP.Add(1)
	case KindData:
		c.Data.Add(1)
	default:
		c.Unknown.Add(1)
	}
}

// Reset zeroes every counter.
func (c *Counters) Reset() {
	c.Total.Store(0)
	c.Discovery.Store(0)
	c.SetIP.Store(0)
	c.Data.Store(0)
	c.Unknown.Store(0)
	c.Errors.Store(0)
}
