package health

import (
	"context"
	"runtime"
	"time"

	"github.com/ceyewan/aegis/breaker"
	"github.com/ceyewan/aegis/clog"
	"github.com/ceyewan/aegis/guard"
	"github.com/ceyewan/aegis/metrics"
)

// aggregator 健康聚合器实现
type aggregator struct {
	cfg      *Config
	registry breaker.Registry
	degrader *guard.Degrader
	logger   clog.Logger
	started  time.Time
}

func newAggregator(cfg *Config, registry breaker.Registry, opts ...Option) (*aggregator, error) {
	o := &options{logger: clog.Discard()}
	for _, opt := range opts {
		opt(o)
	}
	return &aggregator{
		cfg:      cfg,
		registry: registry,
		degrader: o.degrader,
		logger:   o.logger,
		started:  time.Now(),
	}, nil
}

func (a *aggregator) Snapshot() Snapshot {
	breakers := a.registry.Snapshot()

	var mode guard.Mode
	if a.degrader != nil {
		mode = a.degrader.Evaluate()
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	var ratio float64
	if ms.HeapSys > 0 {
		ratio = float64(ms.HeapAlloc) / float64(ms.HeapSys)
	}

	status := StatusOK
	if mode.Degraded() || anyOpen(breakers) {
		status = StatusDegraded
	}

	return Snapshot{
		Status:          status,
		Service:         a.cfg.Service,
		Time:            time.Now(),
		DegradationMode: mode.String(),
		Breakers:        breakers,
		Process: ProcessStats{
			Goroutines:     runtime.NumGoroutine(),
			HeapAllocBytes: ms.HeapAlloc,
			HeapSysBytes:   ms.HeapSys,
			HeapRatio:      ratio,
			UptimeSeconds:  time.Since(a.started).Seconds(),
		},
	}
}

func anyOpen(breakers map[string]breaker.Snapshot) bool {
	for _, snap := range breakers {
		if snap.State == breaker.StateOpen.String() {
			return true
		}
	}
	return false
}

// admin 运维操作实现
type admin struct {
	registry breaker.Registry
	logger   clog.Logger
	meter    metrics.Meter
}

func newAdmin(registry breaker.Registry, opts ...Option) (*admin, error) {
	o := &options{logger: clog.Discard()}
	for _, opt := range opts {
		opt(o)
	}
	return &admin{
		registry: registry,
		logger:   o.logger,
		meter:    o.meter,
	}, nil
}

func (a *admin) ResetAll() {
	a.registry.ResetAll()
	a.logger.Warn("all breakers reset")
	a.countAction("reset_all", "")
}

func (a *admin) Reset(name string) error {
	if err := a.known(name); err != nil {
		return err
	}
	a.registry.Reset(name)
	a.logger.Warn("breaker reset", clog.String("name", name))
	a.countAction("reset", name)
	return nil
}

func (a *admin) ForceOpen(name string) error {
	if err := a.known(name); err != nil {
		return err
	}
	a.registry.ForceOpen(name)
	a.logger.Warn("breaker forced open", clog.String("name", name))
	a.countAction("force_open", name)
	return nil
}

func (a *admin) ForceClose(name string) error {
	if err := a.known(name); err != nil {
		return err
	}
	a.registry.ForceClose(name)
	a.logger.Warn("breaker forced closed", clog.String("name", name))
	a.countAction("force_close", name)
	return nil
}

// known 校验熔断器名称已注册，避免运维误操作创建新实例
func (a *admin) known(name string) error {
	if _, ok := a.registry.Snapshot()[name]; !ok {
		return ErrUnknownBreaker
	}
	return nil
}

func (a *admin) countAction(action, name string) {
	if a.meter == nil {
		return
	}
	if counter, err := a.meter.Counter(MetricAdminActions, "Administrative breaker actions"); err == nil {
		counter.Inc(context.Background(),
			metrics.Label{Key: LabelAction, Value: action},
			metrics.Label{Key: LabelBreaker, Value: name},
		)
	}
}
