package infra

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Endpoint is one backend server in the failover set.
type Endpoint struct {
	Address   string
	Healthy   bool
	LastCheck time.Time
}

// ProbeFunc checks one endpoint's liveness. The bool is the remote
// verdict; a non-nil error means the probe itself failed locally and
// says nothing about the endpoint.
type ProbeFunc func(ctx context.Context, address string) (bool, error)

// EndpointPool owns the candidate ledger endpoints, tracks per-endpoint
// health and selects the active one with round-robin failover. All
// selection state sits behind one narrow mutex; no call ever blocks on
// the network.
type EndpointPool struct {
	mu        sync.RWMutex
	endpoints []Endpoint
	active    int

	probe         ProbeFunc
	probeInterval time.Duration
	probeBackoff  time.Duration
	metrics       *Metrics

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewEndpointPool creates a pool over the configured addresses.
// Endpoints start healthy and are never removed, only flagged.
func NewEndpointPool(addresses []string, probe ProbeFunc, probeInterval, probeBackoff time.Duration, metrics *Metrics) *EndpointPool {
	eps := make([]Endpoint, len(addresses))
	for i, addr := range addresses {
		eps[i] = Endpoint{Address: addr, Healthy: true}
	}
	return &EndpointPool{
		endpoints:     eps,
		probe:         probe,
		probeInterval: probeInterval,
		probeBackoff:  probeBackoff,
		metrics:       metrics,
	}
}

// ActiveEndpoint returns the currently selected endpoint. Never blocks.
func (p *EndpointPool) ActiveEndpoint() Endpoint {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.endpoints[p.active]
}

// Endpoints returns a snapshot of all endpoints (for monitoring).
func (p *EndpointPool) Endpoints() []Endpoint {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Endpoint, len(p.endpoints))
	copy(out, p.endpoints)
	return out
}

// ReportFailure marks the endpoint unhealthy and advances the active
// pointer. Callers report the endpoint a failed request was routed to.
func (p *EndpointPool) ReportFailure(address string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.endpoints {
		if p.endpoints[i].Address == address {
			p.endpoints[i].Healthy = false
			p.endpoints[i].LastCheck = time.Now()
			p.observeHealth(&p.endpoints[i])
			break
		}
	}

	if p.endpoints[p.active].Address == address {
		p.advanceLocked()
	}
}

// advanceLocked moves the active pointer to the next healthy endpoint.
// If every endpoint is unhealthy it still advances to the numerically
// next one so the system keeps trying instead of deadlocking.
func (p *EndpointPool) advanceLocked() {
	n := len(p.endpoints)
	for i := 1; i <= n; i++ {
		next := (p.active + i) % n
		if p.endpoints[next].Healthy {
			p.active = next
			slog.Info("Endpoint pool failover",
				slog.String("active", p.endpoints[next].Address))
			return
		}
	}
	p.active = (p.active + 1) % n
	slog.Warn("All endpoints unhealthy, advancing anyway",
		slog.String("active", p.endpoints[p.active].Address))
}

// Start launches the background health monitor.
func (p *EndpointPool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(1)
	go p.runHealthMonitor(ctx)
}

// Stop cancels the monitor and waits for the current cycle to finish.
func (p *EndpointPool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

// runHealthMonitor probes every endpoint on a fixed interval. A probe
// failure never removes an endpoint; it is retried next cycle. A local
// probe error backs the whole loop off to probeBackoff.
func (p *EndpointPool) runHealthMonitor(ctx context.Context) {
	defer p.wg.Done()

	interval := p.probeInterval
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Endpoint health monitor stopped")
			return
		case <-timer.C:
		}

		if err := p.probeAll(ctx); err != nil {
			slog.Warn("Health probe cycle errored, backing off",
				slog.Any("error", err))
			interval = p.probeBackoff
		} else {
			interval = p.probeInterval
		}
		timer.Reset(interval)
	}
}

// probeAll runs one probe cycle. Returns an error only for local probe
// failures; remote verdicts just flip health flags.
func (p *EndpointPool) probeAll(ctx context.Context) error {
	addrs := make([]string, 0, len(p.endpoints))
	p.mu.RLock()
	for _, ep := range p.endpoints {
		addrs = append(addrs, ep.Address)
	}
	p.mu.RUnlock()

	var localErr error
	verdicts := make(map[string]bool, len(addrs))
	for _, addr := range addrs {
		healthy, err := p.probe(ctx, addr)
		if err != nil {
			localErr = err
			continue // keep the previous verdict
		}
		verdicts[addr] = healthy
	}

	p.mu.Lock()
	for i := range p.endpoints {
		healthy, ok := verdicts[p.endpoints[i].Address]
		if !ok {
			continue
		}
		p.endpoints[i].Healthy = healthy
		p.endpoints[i].LastCheck = time.Now()
		p.observeHealth(&p.endpoints[i])
	}
	// Proactively leave a freshly failed active endpoint.
	if !p.endpoints[p.active].Healthy {
		p.advanceLocked()
	}
	p.mu.Unlock()

	return localErr
}

// observeHealth mirrors a flag into metrics. Called with the lock held.
func (p *EndpointPool) observeHealth(ep *Endpoint) {
	if p.metrics == nil {
		return
	}
	v := 0.0
	if ep.Healthy {
		v = 1.0
	}
	p.metrics.EndpointHealthy.WithLabelValues(ep.Address).Set(v)
}
