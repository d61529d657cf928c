// Package monitor watches named detection regions from the reader side and
// exposes their state over HTTP for health checks and scraping.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/heptiolabs/healthcheck"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/srediag/detection-shm/pkg/detection"
	"github.com/srediag/detection-shm/pkg/shm"
)

const (
	defaultInterval  = time.Second
	defaultPoolSize  = 4
	attachRetries    = 2
	attachRetryDelay = 50 * time.Millisecond
	maxGoroutines    = 1000
	metricsNamespace = "shmctl"
)

// Target is one region to watch.
type Target struct {
	Name   string
	Layout detection.Layout
}

// Snapshot is the latest observation of a region.
type Snapshot struct {
	Name     string             `json:"name"`
	Count    int32              `json:"count"`
	Records  []detection.Record `json:"records"`
	Sequence uint32             `json:"sequence"`
	ReadAt   time.Time          `json:"read_at"`
	Error    string             `json:"error,omitempty"`
}

// Options configures a Monitor.
type Options struct {
	Targets  []Target
	Interval time.Duration
	PoolSize int
	Logger   *zap.Logger
}

type watched struct {
	target Target
	region *shm.Region
	reader *detection.Reader
}

// Monitor polls regions without writing to them.
type Monitor struct {
	targets   []Target
	interval  time.Duration
	pool      *ants.Pool
	watched   cmap.ConcurrentMap[string, *watched]
	snapshots cmap.ConcurrentMap[string, Snapshot]
	registry  *prometheus.Registry
	health    healthcheck.Handler
	logger    *zap.Logger

	count      *prometheus.GaugeVec
	sequence   *prometheus.GaugeVec
	readErrors *prometheus.CounterVec
}

// New creates a Monitor. Regions are attached lazily on the first poll.
func New(opts Options) (*Monitor, error) {
	if len(opts.Targets) == 0 {
		return nil, errors.New("no regions to watch")
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = defaultPoolSize
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	pool, err := ants.NewPool(opts.PoolSize)
	if err != nil {
		return nil, fmt.Errorf("create poll pool: %w", err)
	}

	registry := prometheus.NewRegistry()
	m := &Monitor{
		targets:   opts.Targets,
		interval:  opts.Interval,
		pool:      pool,
		watched:   cmap.New[*watched](),
		snapshots: cmap.New[Snapshot](),
		registry:  registry,
		health:    healthcheck.NewMetricsHandler(registry, metricsNamespace),
		logger:    opts.Logger,
		count: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "region_detection_count",
			Help:      "Valid detection records in the region.",
		}, []string{"region"}),
		sequence: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "region_sequence",
			Help:      "Sequence counter of sequenced regions.",
		}, []string{"region"}),
		readErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "region_read_errors_total",
			Help:      "Failed attaches or reads per region.",
		}, []string{"region"}),
	}
	registry.MustRegister(m.count, m.sequence, m.readErrors)

	m.health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(maxGoroutines))
	for _, t := range opts.Targets {
		name := t.Name
		m.health.AddReadinessCheck("region:"+name, func() error {
			s, ok := m.snapshots.Get(name)
			if !ok {
				return errors.New("not polled yet")
			}
			if s.Error != "" {
				return errors.New(s.Error)
			}
			return nil
		})
	}
	return m, nil
}

// Poll reads every region once, concurrently, and waits for all reads.
func (m *Monitor) Poll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, t := range m.targets {
		wg.Add(1)
		if err := m.pool.Submit(func() {
			defer wg.Done()
			m.pollOne(ctx, t)
		}); err != nil {
			wg.Done()
			m.record(t, Snapshot{}, err)
		}
	}
	wg.Wait()
}

// Run polls every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		m.Poll(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *Monitor) pollOne(ctx context.Context, t Target) {
	w, err := m.attach(ctx, t)
	if err != nil {
		m.record(t, Snapshot{}, err)
		return
	}
	batch, err := w.reader.Snapshot(ctx)
	if err != nil {
		m.detach(w)
		m.record(t, Snapshot{}, err)
		return
	}
	m.record(t, Snapshot{
		Count:    batch.Count,
		Records:  append([]detection.Record(nil), batch.Valid()...),
		Sequence: w.reader.Sequence(),
	}, nil)
}

func (m *Monitor) attach(ctx context.Context, t Target) (*watched, error) {
	if w, ok := m.watched.Get(t.Name); ok {
		if !w.region.Stale() {
			return w, nil
		}
		m.logger.Info("region removed or replaced, re-attaching", zap.String("name", t.Name))
		m.detach(w)
	}
	var region *shm.Region
	op := func() error {
		r, err := shm.Attach(ctx, shm.Options{Name: t.Name, Size: t.Layout.Size()})
		if err != nil {
			if errors.Is(err, shm.ErrInvalidName) {
				return backoff.Permanent(err)
			}
			return err
		}
		region = r
		return nil
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(attachRetryDelay), attachRetries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	reader, err := detection.NewReader(region.Bytes(), t.Layout)
	if err != nil {
		_ = region.Close()
		return nil, err
	}
	w := &watched{target: t, region: region, reader: reader}
	m.watched.Set(t.Name, w)
	m.logger.Info("attached to region", zap.String("name", t.Name), zap.String("layout", string(t.Layout)))
	return w, nil
}

// detach drops the cached mapping so the next poll attaches again.
func (m *Monitor) detach(w *watched) {
	m.watched.Remove(w.target.Name)
	if err := w.region.Close(); err != nil {
		m.logger.Warn("unmap failed", zap.String("name", w.target.Name), zap.Error(err))
	}
}

func (m *Monitor) record(t Target, s Snapshot, err error) {
	s.Name = t.Name
	s.ReadAt = time.Now()
	if err != nil {
		s.Error = err.Error()
		m.readErrors.WithLabelValues(t.Name).Inc()
		m.logger.Warn("region read failed", zap.String("name", t.Name), zap.Error(err))
	} else {
		m.count.WithLabelValues(t.Name).Set(float64(s.Count))
		m.sequence.WithLabelValues(t.Name).Set(float64(s.Sequence))
	}
	m.snapshots.Set(t.Name, s)
}

// Snapshot returns the latest observation of the named region.
func (m *Monitor) Snapshot(name string) (Snapshot, bool) {
	return m.snapshots.Get(name)
}

// Handler serves /live, /ready, /metrics and /snapshot.
func (m *Monitor) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/live", m.health)
	mux.Handle("/ready", m.health)
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/snapshot", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(m.snapshots.Items()); err != nil {
			m.logger.Warn("encode snapshot failed", zap.Error(err))
		}
	})
	return mux
}

// Close releases the pool and unmaps every attached region. The regions
// themselves are left in place.
func (m *Monitor) Close() {
	m.pool.Release()
	for _, w := range m.watched.Items() {
		if err := w.region.Close(); err != nil {
			m.logger.Warn("unmap failed", zap.String("name", w.target.Name), zap.Error(err))
		}
	}
}
