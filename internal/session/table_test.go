package session

import (
	"testing"
	"time"
)

type recordingHook struct {
	created    []uint64
	terminated []string
}

func (h *recordingHook) RecordSessionCreated(s *Session) {
	h.created = append(h.created, s.ID)
}

func (h *recordingHook) RecordSessionTerminated(id uint64, clientEndpoint, reason string) {
	h.terminated = append(h.terminated, clientEndpoint+":"+reason)
}

func TestCreateAndGetByClient(t *testing.T) {
	tbl := NewTable(nil)
	now := time.Now()

	s := tbl.Create(Principal{Anonymous: true}, "192.168.1.20:50000", now, time.Minute)
	got, ok := tbl.GetByClient("192.168.1.20:50000", now)
	if !ok || got.ID != s.ID {
		t.Fatalf("expected to find created session, got ok=%v", ok)
	}
}

func TestCreateReplacesExistingSession(t *testing.T) {
	tbl := NewTable(nil)
	now := time.Now()

	first := tbl.Create(Principal{Anonymous: true}, "C:1", now, time.Minute)
	tbl.AssignRadio("C:1", "R:1024", "shack-1")

	if !tbl.Replaced("C:1") {
		t.Fatalf("expected Replaced to report true before second Create")
	}

	second := tbl.Create(Principal{Anonymous: true}, "C:1", now, time.Minute)
	if second.ID == first.ID {
		t.Errorf("expected a new session id on replacement")
	}

	got, ok := tbl.GetByClient("C:1", now)
	if !ok || got.ID != second.ID {
		t.Fatalf("expected lookup to return the replacement session")
	}

	if _, ok := tbl.GetClientByRadio("R:1024"); ok {
		t.Errorf("expected displaced session's reverse-index entry to be cleared")
	}
}

func TestAssignRadioUpdatesReverseIndex(t *testing.T) {
	tbl := NewTable(nil)
	now := time.Now()
	tbl.Create(Principal{Anonymous: true}, "C:1", now, time.Minute)

	if !tbl.AssignRadio("C:1", "10.0.0.5:1024", "shack-1") {
		t.Fatalf("expected AssignRadio to succeed for a live session")
	}

	clientEp, ok := tbl.GetClientByRadio("10.0.0.5:1024")
	if !ok || clientEp != "C:1" {
		t.Fatalf("expected reverse index to resolve back to C:1, got %q ok=%v", clientEp, ok)
	}
}

func TestAssignRadioLastWriterWinsOnContention(t *testing.T) {
	tbl := NewTable(nil)
	now := time.Now()
	tbl.Create(Principal{Anonymous: true}, "C:1", now, time.Minute)
	tbl.Create(Principal{Anonymous: true}, "C:2", now, time.Minute)

	tbl.AssignRadio("C:1", "10.0.0.5:1024", "shack-1")
	tbl.AssignRadio("C:2", "10.0.0.5:1024", "shack-1")

	clientEp, _ := tbl.GetClientByRadio("10.0.0.5:1024")
	if clientEp != "C:2" {
		t.Fatalf("expected last writer C:2 to win, got %q", clientEp)
	}

	s1, ok := tbl.GetByClient("C:1", now)
	if !ok {
		t.Fatalf("expected C:1's session to still exist")
	}
	if s1.RadioEndpoint != "10.0.0.5:1024" {
		t.Errorf("expected displaced session's RadioEndpoint field to remain set per spec invariant 2")
	}
}

func TestTerminateIsIdempotentAndInvokesHook(t *testing.T) {
	hook := &recordingHook{}
	tbl := NewTable(hook)
	now := time.Now()
	tbl.Create(Principal{Anonymous: true}, "C:1", now, time.Minute)

	tbl.Terminate("C:1", "timeout", now)
	tbl.Terminate("C:1", "timeout", now)

	if _, ok := tbl.GetByClient("C:1", now); ok {
		t.Errorf("expected session to be gone after termination")
	}
	if len(hook.terminated) != 1 {
		t.Errorf("expected exactly one hook invocation despite two Terminate calls, got %d", len(hook.terminated))
	}
}

func TestSweepClassifiesExpiredAndIdle(t *testing.T) {
	tbl := NewTable(nil)
	base := time.Now()

	tbl.Create(Principal{Anonymous: true}, "expired:1", base, time.Second) // will be expired quickly
	tbl.Create(Principal{Anonymous: true}, "idle:1", base, time.Hour)
	tbl.Create(Principal{Anonymous: true}, "live:1", base, time.Hour)

	later := base.Add(2 * time.Minute)
	tbl.Touch("live:1", base.Add(90*time.Second)) // active within the idle window
	expired, idle := tbl.Sweep(later, time.Minute)

	if len(expired) != 1 || expired[0] != "expired:1" {
		t.Errorf("expected expired:1 to be classified as expired, got %v", expired)
	}
	if len(idle) != 1 || idle[0] != "idle:1" {
		t.Errorf("expected idle:1 to be classified as idle, got %v", idle)
	}
}

func TestGetByClientFiltersExpiredEntries(t *testing.T) {
	tbl := NewTable(nil)
	base := time.Now()
	tbl.Create(Principal{Anonymous: true}, "C:1", base, time.Second)

	if _, ok := tbl.GetByClient("C:1", base.Add(time.Hour)); ok {
		t.Errorf("expected expired session to be filtered out at read time even before the reaper removes it")
	}
}
