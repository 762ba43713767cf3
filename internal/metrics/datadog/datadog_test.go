package datadog

import (
	"net"
	"sort"
	"strings"
	"testing"
	"time"

	"importkit/internal/metrics"
)

func TestNewBackendRequiresAddr(t *testing.T) {
	if _, err := NewBackend(Config{}); err == nil {
		t.Fatal("NewBackend with empty Addr: want error")
	}
}

// TestNamespaceAndTagsApplied points the client at a local UDP socket and
// checks the emitted datagram, so the namespace and global tags configured
// through the statsd options are verified on the wire.
func TestNamespaceAndTagsApplied(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen udp: %v", err)
	}
	defer pc.Close()

	b, err := NewBackend(Config{
		Addr:       pc.LocalAddr().String(),
		Namespace:  "importkit.",
		GlobalTags: []string{"env:test"},
	})
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}

	b.IncCounter("step_total", 1, metrics.Labels{"config": "warehouse"})
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	buf := make([]byte, 4096)
	_ = pc.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := pc.ReadFrom(buf)
	if err != nil {
		t.Fatalf("read datagram: %v", err)
	}
	got := string(buf[:n])

	for _, want := range []string{"importkit.step_total", "env:test", "config:warehouse"} {
		if !strings.Contains(got, want) {
			t.Errorf("datagram missing %q:\n%s", want, got)
		}
	}
}

func TestLabelsToTags(t *testing.T) {
	if got := labelsToTags(nil); got != nil {
		t.Errorf("nil labels: got %v", got)
	}
	got := labelsToTags(metrics.Labels{"step": "compile", "status": "success"})
	sort.Strings(got)
	want := []string{"status:success", "step:compile"}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("tags: got %v, want %v", got, want)
	}
}
