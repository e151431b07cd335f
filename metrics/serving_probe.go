package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Prober checks the model server once.
type Prober interface {
	Probe(ctx context.Context) error
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context) error

// Probe calls f.
func (f ProberFunc) Probe(ctx context.Context) error { return f(ctx) }

// HTTPProber issues a GET against the server root. Any HTTP response
// counts as reachable; TensorFlow Serving answers 404 there.
type HTTPProber struct {
	URL    string
	Client *http.Client
}

// Probe implements Prober.
func (p HTTPProber) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return fmt.Errorf("build probe request: %w", err)
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// ServingProbeConfig configures the ServingProbe.
type ServingProbeConfig struct {
	URL      string
	Interval time.Duration
	Timeout  time.Duration
}

// DefaultServingProbeConfig returns a default configuration for url.
func DefaultServingProbeConfig(url string) ServingProbeConfig {
	return ServingProbeConfig{
		URL:      url,
		Interval: 30 * time.Second,
		Timeout:  5 * time.Second,
	}
}

// ServingProbe periodically checks model server reachability and reports
// each result through onStatus.
type ServingProbe struct {
	mu sync.RWMutex

	config ServingProbeConfig
	prober Prober
	last   ServingStatus

	onStatus func(ServingStatus)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServingProbe creates a probe. onStatus may be nil.
func NewServingProbe(config ServingProbeConfig, prober Prober, onStatus func(ServingStatus)) *ServingProbe {
	if config.Interval <= 0 {
		config.Interval = 30 * time.Second
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &ServingProbe{
		config:   config,
		prober:   prober,
		onStatus: onStatus,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start probes immediately and then every Interval in the background.
func (p *ServingProbe) Start() {
	p.wg.Add(1)
	go p.loop()
}

// Stop halts probing and waits for the goroutine to exit.
func (p *ServingProbe) Stop() {
	p.cancel()
	p.wg.Wait()
}

// Last returns the most recent probe result.
func (p *ServingProbe) Last() ServingStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last
}

func (p *ServingProbe) loop() {
	defer p.wg.Done()

	p.probeOnce()

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.probeOnce()
		}
	}
}

// probeOnce runs one check and publishes the result.
func (p *ServingProbe) probeOnce() ServingStatus {
	ctx, cancel := context.WithTimeout(p.ctx, p.config.Timeout)
	defer cancel()

	start := time.Now()
	err := p.prober.Probe(ctx)
	status := ServingStatus{
		URL:       p.config.URL,
		Reachable: err == nil,
		Latency:   time.Since(start),
		LastCheck: time.Now(),
	}
	if err != nil {
		status.Error = err.Error()
	}

	p.mu.Lock()
	p.last = status
	p.mu.Unlock()

	if p.onStatus != nil {
		p.onStatus(status)
	}
	return status
}
