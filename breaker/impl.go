package breaker

import (
	"context"
	"sync"
	"time"

	"github.com/ceyewan/aegis/clog"
	"github.com/ceyewan/aegis/metrics"
	"github.com/ceyewan/aegis/xerrors"
)

// registry 熔断器注册表实现（非导出）
type registry struct {
	cfg      *Config
	logger   clog.Logger
	meter    metrics.Meter
	fallback FallbackFunc

	// 按名称管理熔断器实例
	instances sync.Map // map[string]*instance

	lmu       sync.RWMutex
	listeners []Listener
}

// newRegistry 创建熔断器注册表（内部函数）
// 注意：cfg 已在 New() 中调用 validate() 设置了默认值
func newRegistry(
	cfg *Config,
	logger clog.Logger,
	meter metrics.Meter,
	fallback FallbackFunc,
	listeners []Listener,
) (Registry, error) {
	return &registry{
		cfg:       cfg,
		logger:    logger,
		meter:     meter,
		fallback:  fallback,
		listeners: listeners,
	}, nil
}

// Execute 执行受熔断保护的函数
func (r *registry) Execute(ctx context.Context, name string, class Class, fn func(ctx context.Context) (any, error)) (any, error) {
	if name == "" {
		return nil, ErrNameEmpty
	}

	inst := r.getOrCreate(name, class)

	isProbe, events, acqErr := inst.acquire()
	r.emit(events...)

	if acqErr != nil {
		r.logger.Warn("circuit breaker rejected call",
			clog.String("name", name),
			clog.String("class", string(class)),
			clog.Error(acqErr))
		r.recordMetrics(ctx, inst, EventReject, 0)
		return nil, r.reject(ctx, inst, acqErr)
	}

	cctx, cancel := context.WithTimeout(ctx, inst.policy.Timeout)
	defer cancel()

	start := time.Now()
	result, err, timedOut := r.await(cctx, fn)
	duration := time.Since(start)

	switch {
	case timedOut && ctx.Err() == nil:
		r.emit(inst.record(isProbe, outcomeTimeout)...)
		r.recordMetrics(ctx, inst, EventTimeout, duration)
		r.logger.Warn("operation timed out",
			clog.String("name", name),
			clog.Duration("timeout", inst.policy.Timeout))
		return nil, &FallbackError{
			Name: name, Class: class,
			Message: inst.policy.UserMessage,
			Err:     ErrTimeout,
		}
	case err != nil && ctx.Err() != nil && xerrors.Is(err, context.Canceled):
		// 调用方取消（如客户端断连）不是依赖故障：一阵断连不应
		// 把健康的依赖熔断掉
		r.emit(inst.record(isProbe, outcomeAbandoned)...)
		return nil, err
	case err != nil:
		r.emit(inst.record(isProbe, outcomeFailure)...)
		r.recordMetrics(ctx, inst, EventFailure, duration)
		// 操作自身的错误原样透传，保留可诊断性
		return nil, err
	default:
		r.emit(inst.record(isProbe, outcomeSuccess)...)
		r.recordMetrics(ctx, inst, EventSuccess, duration)
		return result, nil
	}
}

// await 在带超时的 context 下等待 fn 完成
// 超时后立即返回；迟到的结果被丢弃，不会泄漏 goroutine。
func (r *registry) await(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error, bool) {
	type callResult struct {
		value any
		err   error
	}
	done := make(chan callResult, 1)

	go func() {
		v, err := fn(ctx)
		done <- callResult{v, err}
	}()

	select {
	case res := <-done:
		if res.err != nil && xerrors.Is(res.err, context.DeadlineExceeded) && ctx.Err() != nil {
			return nil, res.err, true
		}
		return res.value, res.err, false
	case <-ctx.Done():
		return nil, ctx.Err(), xerrors.Is(ctx.Err(), context.DeadlineExceeded)
	}
}

// reject 处理快速失败路径：先走自定义降级，再落到类别级降级错误
func (r *registry) reject(ctx context.Context, inst *instance, cause error) error {
	if r.fallback != nil {
		// 降级函数返回 nil 表示降级成功
		return r.fallback(ctx, inst.name, cause)
	}
	return &FallbackError{
		Name:    inst.name,
		Class:   inst.class,
		Message: inst.policy.UserMessage,
		Err:     cause,
	}
}

// State 获取指定名称的熔断器状态
func (r *registry) State(name string) State {
	val, ok := r.instances.Load(name)
	if !ok {
		return StateClosed
	}
	return val.(*instance).currentState()
}

// Snapshot 返回所有熔断器的只读快照
func (r *registry) Snapshot() map[string]Snapshot {
	out := make(map[string]Snapshot)
	r.instances.Range(func(key, value any) bool {
		out[key.(string)] = value.(*instance).snapshot()
		return true
	})
	return out
}

// Subscribe 注册事件监听器
func (r *registry) Subscribe(l Listener) {
	if l == nil {
		return
	}
	r.lmu.Lock()
	defer r.lmu.Unlock()
	r.listeners = append(r.listeners, l)
}

// Reset 重置指定熔断器
func (r *registry) Reset(name string) {
	if val, ok := r.instances.Load(name); ok {
		r.emit(val.(*instance).reset()...)
		r.logger.Info("circuit breaker reset", clog.String("name", name))
	}
}

// ResetAll 重置所有熔断器
func (r *registry) ResetAll() {
	r.instances.Range(func(key, value any) bool {
		r.emit(value.(*instance).reset()...)
		return true
	})
	r.logger.Info("all circuit breakers reset")
}

// ForceOpen 强制打开指定熔断器
func (r *registry) ForceOpen(name string) {
	inst := r.getOrCreate(name, "")
	r.emit(inst.forceOpen()...)
	r.logger.Warn("circuit breaker forced open", clog.String("name", name))
}

// ForceClose 强制闭合指定熔断器
func (r *registry) ForceClose(name string) {
	inst := r.getOrCreate(name, "")
	r.emit(inst.forceClose()...)
	r.logger.Warn("circuit breaker forced closed", clog.String("name", name))
}

// getOrCreate 获取或懒创建指定名称的熔断器实例
func (r *registry) getOrCreate(name string, class Class) *instance {
	if val, ok := r.instances.Load(name); ok {
		return val.(*instance)
	}

	inst := newInstance(name, class, r.cfg.policyFor(name, class))

	// 可能有并发创建，使用 LoadOrStore
	actual, loaded := r.instances.LoadOrStore(name, inst)
	if !loaded {
		r.logger.Info("circuit breaker created",
			clog.String("name", name),
			clog.String("class", string(class)),
			clog.Duration("timeout", inst.policy.Timeout),
			clog.Float64("error_threshold", inst.policy.ErrorThresholdPercentage),
			clog.Duration("reset_timeout", inst.policy.ResetTimeout))
	}
	return actual.(*instance)
}

// emit 将事件发给所有监听器并记录状态切换日志
func (r *registry) emit(events ...Event) {
	if len(events) == 0 {
		return
	}

	r.lmu.RLock()
	listeners := r.listeners
	r.lmu.RUnlock()

	for _, e := range events {
		switch e.Type {
		case EventOpen, EventHalfOpen, EventClose:
			r.logger.Info("circuit breaker state changed",
				clog.String("name", e.Name),
				clog.String("from", e.From.String()),
				clog.String("to", e.To.String()))
			if r.meter != nil {
				if counter, err := r.meter.Counter(MetricStateChanges, "Circuit breaker state changes"); err == nil {
					counter.Inc(context.Background(),
						metrics.L(LabelName, e.Name),
						metrics.L(LabelFromState, e.From.String()),
						metrics.L(LabelToState, e.To.String()))
				}
			}
		}

		for _, l := range listeners {
			l(e)
		}
	}
}

// recordMetrics 记录调用指标
func (r *registry) recordMetrics(ctx context.Context, inst *instance, typ EventType, duration time.Duration) {
	if r.meter == nil {
		return
	}

	if counter, err := r.meter.Counter(MetricRequestsTotal, "Total requests"); err == nil {
		counter.Inc(ctx,
			metrics.L(LabelName, inst.name),
			metrics.L(LabelClass, string(inst.class)),
			metrics.L(LabelResult, string(typ)))
	}

	if typ == EventSuccess || typ == EventFailure || typ == EventTimeout {
		if histogram, err := r.meter.Histogram(MetricRequestDuration, "Request duration", metrics.WithUnit("seconds")); err == nil {
			histogram.Record(ctx, duration.Seconds(), metrics.L(LabelName, inst.name))
		}
	}
}
