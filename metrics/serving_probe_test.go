package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestHTTPProber(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	if err := (HTTPProber{URL: srv.URL}).Probe(context.Background()); err != nil {
		t.Errorf("Probe() on live server = %v", err)
	}

	url := srv.URL
	srv.Close()
	if err := (HTTPProber{URL: url, Client: &http.Client{Timeout: time.Second}}).Probe(context.Background()); err == nil {
		t.Error("Probe() on closed server = nil, want error")
	}
}

func TestServingProbe_ProbeOnce(t *testing.T) {
	var fail atomic.Bool
	prober := ProberFunc(func(ctx context.Context) error {
		if fail.Load() {
			return errors.New("connection refused")
		}
		return nil
	})

	var published []ServingStatus
	probe := NewServingProbe(ServingProbeConfig{URL: "http://tf:8501"}, prober, func(s ServingStatus) {
		published = append(published, s)
	})

	status := probe.probeOnce()
	if !status.Reachable || status.Error != "" || status.URL != "http://tf:8501" {
		t.Errorf("healthy probe = %+v", status)
	}

	fail.Store(true)
	status = probe.probeOnce()
	if status.Reachable || status.Error != "connection refused" {
		t.Errorf("failing probe = %+v", status)
	}
	if probe.Last().Reachable {
		t.Error("Last() should report the failing probe")
	}
	if len(published) != 2 {
		t.Errorf("onStatus called %d times, want 2", len(published))
	}
}

func TestServingProbe_StartStop(t *testing.T) {
	store := NewStore(DefaultStoreConfig(), time.Now())
	calls := make(chan struct{}, 16)

	probe := NewServingProbe(ServingProbeConfig{URL: "http://tf:8501", Interval: 10 * time.Millisecond},
		ProberFunc(func(ctx context.Context) error {
			select {
			case calls <- struct{}{}:
			default:
			}
			return errors.New("down")
		}),
		store.UpdateServingStatus)
	probe.Start()

	for i := 0; i < 2; i++ {
		select {
		case <-calls:
		case <-time.After(2 * time.Second):
			t.Fatalf("probe %d did not run", i+1)
		}
	}
	probe.Stop()

	if got := store.GetSystemStatus().Health; got != SystemHealthDegraded {
		t.Errorf("Health = %s, want degraded after failed probes", got)
	}
}
