package infra

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func poolOf(addrs []string, probe ProbeFunc) *EndpointPool {
	return NewEndpointPool(addrs, probe, 10*time.Millisecond, 20*time.Millisecond, nil)
}

func TestEndpointPool_ActiveEndpoint(t *testing.T) {
	p := poolOf([]string{"https://a", "https://b"}, nil)

	ep := p.ActiveEndpoint()
	if ep.Address != "https://a" {
		t.Errorf("active = %s, want https://a", ep.Address)
	}
	if !ep.Healthy {
		t.Error("endpoints should start healthy")
	}
}

func TestEndpointPool_ReportFailureAdvances(t *testing.T) {
	p := poolOf([]string{"https://a", "https://b", "https://c"}, nil)

	p.ReportFailure("https://a")

	if got := p.ActiveEndpoint().Address; got != "https://b" {
		t.Errorf("active = %s, want https://b", got)
	}

	// Failing a non-active endpoint flags it without moving the pointer.
	p.ReportFailure("https://c")
	if got := p.ActiveEndpoint().Address; got != "https://b" {
		t.Errorf("active = %s, want https://b", got)
	}

	eps := p.Endpoints()
	if eps[0].Healthy || eps[2].Healthy {
		t.Error("failed endpoints should be flagged unhealthy")
	}
}

func TestEndpointPool_SkipsUnhealthy(t *testing.T) {
	p := poolOf([]string{"https://a", "https://b", "https://c"}, nil)

	p.ReportFailure("https://b") // flag b while a is active
	p.ReportFailure("https://a") // now advance: must skip b

	if got := p.ActiveEndpoint().Address; got != "https://c" {
		t.Errorf("active = %s, want https://c", got)
	}
}

func TestEndpointPool_AllUnhealthyStillAdvances(t *testing.T) {
	p := poolOf([]string{"https://a", "https://b"}, nil)

	p.ReportFailure("https://a")
	p.ReportFailure("https://b")

	// Everything is down; the pool must still hand out the next
	// endpoint rather than deadlock.
	ep := p.ActiveEndpoint()
	if ep.Address != "https://a" && ep.Address != "https://b" {
		t.Fatalf("unexpected active endpoint %s", ep.Address)
	}

	before := p.ActiveEndpoint().Address
	p.ReportFailure(before)
	after := p.ActiveEndpoint().Address
	if after == before {
		t.Error("pool should rotate even when all endpoints are unhealthy")
	}
}

func TestEndpointPool_HealthMonitorRecovers(t *testing.T) {
	var mu sync.Mutex
	verdict := map[string]bool{"https://a": false, "https://b": true}

	probe := func(ctx context.Context, addr string) (bool, error) {
		mu.Lock()
		defer mu.Unlock()
		return verdict[addr], nil
	}

	p := poolOf([]string{"https://a", "https://b"}, probe)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p.Start(ctx)
	defer p.Stop()

	// Monitor should flag a and move the active pointer to b.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if p.ActiveEndpoint().Address == "https://b" {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := p.ActiveEndpoint().Address; got != "https://b" {
		t.Fatalf("active = %s, want https://b after probe cycle", got)
	}

	// Endpoint a comes back; the flag must recover on a later cycle.
	mu.Lock()
	verdict["https://a"] = true
	mu.Unlock()

	deadline = time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if p.Endpoints()[0].Healthy {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !p.Endpoints()[0].Healthy {
		t.Error("recovered endpoint should be healthy again")
	}
}

func TestEndpointPool_ProbeErrorKeepsVerdict(t *testing.T) {
	probe := func(ctx context.Context, addr string) (bool, error) {
		return false, errors.New("dns failure")
	}

	p := poolOf([]string{"https://a"}, probe)

	if err := p.probeAll(context.Background()); err == nil {
		t.Fatal("probeAll should surface the local error")
	}

	// A local probe error must not flip the health flag.
	if !p.Endpoints()[0].Healthy {
		t.Error("endpoint verdict should be unchanged on local probe error")
	}
}
