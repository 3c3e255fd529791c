package session

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"pairpad/internal/models"
)

func TestMonitorEvictsSilentConnection(t *testing.T) {
	f := newHubFixture(t, 0, 0)
	a, _ := f.connect(t, "ua")
	b, capB := f.connect(t, "ub")
	f.join(t, a, "Alice")
	f.join(t, b, "Bob")

	monitor := NewMonitor(f.hub, f.registry, time.Minute, time.Minute, zap.NewNop())

	// A went silent; B pinged recently.
	a.lastPing.Store(time.Now().Add(-2 * time.Minute).UnixNano())
	b.TouchPing()

	monitor.Sweep(time.Now())

	left := capB.byType(models.TypeUserLeft)
	if len(left) != 1 {
		t.Fatalf("expected exactly one user-left at B, got %#v", capB.list())
	}
	var data models.UserLeftData
	_ = models.DecodeData(left[0].Data, &data)
	if data.ParticipantCount != 1 {
		t.Fatalf("expected count 1 after eviction, got %d", data.ParticipantCount)
	}
	if f.registry.Count("s1") != 1 {
		t.Fatalf("stale connection should be out of the live set, got %d", f.registry.Count("s1"))
	}
	if !a.closed.Load() {
		t.Fatal("stale transport should be force-closed")
	}

	// A second sweep must not produce another user-left.
	monitor.Sweep(time.Now())
	if len(capB.byType(models.TypeUserLeft)) != 1 {
		t.Fatal("eviction must broadcast user-left exactly once")
	}
}

func TestMonitorLeavesFreshConnectionsAlone(t *testing.T) {
	f := newHubFixture(t, 0, 0)
	a, _ := f.connect(t, "ua")
	f.join(t, a, "Alice")

	monitor := NewMonitor(f.hub, f.registry, time.Minute, time.Minute, zap.NewNop())
	monitor.Sweep(time.Now())

	if f.registry.Count("s1") != 1 {
		t.Fatal("fresh connection should survive the sweep")
	}
	if a.closed.Load() {
		t.Fatal("fresh connection must not be closed")
	}
}
