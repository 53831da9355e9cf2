package radio

import "testing"

func TestNewTableDefaultsDataPortToControlPort(t *testing.T) {
	tbl := NewTable([]Spec{
		{Name: "shack-1", Hostname: "127.0.0.1", ControlPort: 1024, Enabled: true},
	})

	d, ok := tbl.LookupByHostname("127.0.0.1")
	if !ok {
		t.Fatalf("expected descriptor for 127.0.0.1")
	}
	if d.DataPort != 1024 {
		t.Errorf("expected data port to default to control port 1024, got %d", d.DataPort)
	}
}

func TestNewTableResolvesIPLiteralAndIndexes(t *testing.T) {
	tbl := NewTable([]Spec{
		{Name: "shack-1", Hostname: "10.0.0.5", ControlPort: 1024, DataPort: 1025, Enabled: true},
		{Name: "shack-2", Hostname: "10.0.0.6", ControlPort: 1024, Enabled: false},
	})

	d, ok := tbl.LookupByIP("10.0.0.5")
	if !ok {
		t.Fatalf("expected descriptor indexed by resolved IP")
	}
	if d.ControlEndpoint() != "10.0.0.5:1024" {
		t.Errorf("unexpected control endpoint: %s", d.ControlEndpoint())
	}
	if d.DataEndpoint() != "10.0.0.5:1025" {
		t.Errorf("unexpected data endpoint: %s", d.DataEndpoint())
	}

	enabled := tbl.Enabled()
	if len(enabled) != 1 || enabled[0].Name != "shack-1" {
		t.Errorf("expected exactly one enabled radio (shack-1), got %+v", enabled)
	}

	if len(tbl.All()) != 2 {
		t.Errorf("expected 2 total radios, got %d", len(tbl.All()))
	}
}

func TestNewTableUnresolvableHostFallsBackToHostname(t *testing.T) {
	tbl := NewTable([]Spec{
		{Name: "ghost", Hostname: "this-host-does-not-resolve.invalid", ControlPort: 1024, Enabled: true},
	})

	d, ok := tbl.LookupByHostname("this-host-does-not-resolve.invalid")
	if !ok {
		t.Fatalf("expected descriptor even on resolution failure")
	}
	if d.ResolvedIP != "this-host-does-not-resolve.invalid" {
		t.Errorf("expected fallback resolved IP to equal hostname, got %q", d.ResolvedIP)
	}
	if _, ok := tbl.LookupByIP("this-host-does-not-resolve.invalid"); !ok {
		t.Errorf("expected the fallback key to also be indexed in byIP")
	}
}
