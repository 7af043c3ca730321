package datadog

import (
	"net"
	"reflect"
	"strings"
	"testing"
	"time"

	"sql2csv/internal/metrics"
)

func TestNewBackendRequiresAddr(t *testing.T) {
	t.Parallel()

	b, err := NewBackend(Config{})
	if err == nil {
		t.Fatalf("NewBackend(empty) error = nil, want non-nil")
	}
	if b != nil {
		t.Fatalf("NewBackend(empty) backend = %v, want nil", b)
	}
}

func TestLabelsToTags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   metrics.Labels
		want []string
	}{
		{name: "nil", in: nil, want: nil},
		{name: "empty", in: metrics.Labels{}, want: nil},
		{
			name: "sorted",
			in:   metrics.Labels{"stage": "reader", "job": "j", "status": "success"},
			want: []string{"job:j", "stage:reader", "status:success"},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := labelsToTags(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("labelsToTags(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestZeroBackendIsSafe(t *testing.T) {
	t.Parallel()

	b := &Backend{}
	b.IncCounter(metrics.RowsTotal, 1, nil)
	b.ObserveHistogram(metrics.StageDuration, 1, nil)
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() = %v, want nil", err)
	}
}

func TestFlushSendsToAgent(t *testing.T) {
	t.Parallel()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("udp listen unavailable: %v", err)
	}
	defer pc.Close()

	b, err := NewBackend(Config{Addr: pc.LocalAddr().String(), Namespace: "test."})
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}
	b.IncCounter(metrics.RowsTotal, 7, metrics.Labels{"kind": "written"})
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	_ = pc.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 4096)
	n, _, err := pc.ReadFrom(buf)
	if err != nil {
		t.Fatalf("ReadFrom() error = %v", err)
	}
	got := string(buf[:n])
	if !strings.Contains(got, "test."+metrics.RowsTotal+":7|c") {
		t.Fatalf("payload %q does not contain the count", got)
	}
	if !strings.Contains(got, "kind:written") {
		t.Fatalf("payload %q does not contain the kind tag", got)
	}
}
