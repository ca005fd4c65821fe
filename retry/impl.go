package retry

import (
	"context"
	"time"

	"github.com/ceyewan/aegis/breaker"
	"github.com/ceyewan/aegis/clog"
	"github.com/ceyewan/aegis/metrics"
)

// retryer 重试编排器实现（非导出）
type retryer struct {
	cfg        *Config
	logger     clog.Logger
	meter      metrics.Meter
	breaker    breaker.Registry
	classifier *Classifier
}

// newRetryer 创建重试编排器（内部函数）
// 注意：cfg 已在 New() 中调用 validate() 设置了默认值
func newRetryer(cfg *Config, logger clog.Logger, meter metrics.Meter, reg breaker.Registry, classifier *Classifier) *retryer {
	return &retryer{
		cfg:        cfg,
		logger:     logger,
		meter:      meter,
		breaker:    reg,
		classifier: classifier,
	}
}

// Classifier 返回使用中的错误分类器
func (r *retryer) Classifier() *Classifier {
	return r.classifier
}

// Do 执行无返回值的操作
func (r *retryer) Do(ctx context.Context, name string, class breaker.Class, fn func(ctx context.Context) error, opts ...DoOption) error {
	_, err := r.DoValue(ctx, name, class, func(ctx context.Context) (any, error) {
		return nil, fn(ctx)
	}, opts...)
	return err
}

// DoValue 执行有返回值的操作
func (r *retryer) DoValue(ctx context.Context, name string, class breaker.Class, fn func(ctx context.Context) (any, error), opts ...DoOption) (any, error) {
	if name == "" {
		return nil, ErrNameEmpty
	}

	do := doOptions{}
	for _, opt := range opts {
		opt(&do)
	}

	policy := r.cfg.policyFor(class)
	if do.policy != nil {
		policy = *do.policy
	}

	bo := policy.newBackOff()
	start := time.Now()
	attempts := policy.Retries + 1
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := r.invoke(ctx, name, class, fn)
		if err == nil {
			if attempt > 1 {
				r.logger.Info("operation recovered after retry",
					clog.String("operation", name),
					clog.String("class", string(class)),
					clog.Int("attempt", attempt))
			}
			r.count(ctx, name, class, "success")
			return result, nil
		}
		lastErr = err

		category, ruleName := r.classifier.Classify(err, class)
		retriesLeft := attempts - attempt

		if category == CategoryTerminal {
			r.count(ctx, name, class, "terminal")
			r.logger.Warn("terminal error, not retrying",
				clog.String("operation", name),
				clog.String("class", string(class)),
				clog.Int("attempt", attempt),
				clog.String("rule", ruleName),
				clog.Error(err))
			r.notify(do, Attempt{
				Operation: name, Class: class,
				Number: attempt, RetriesLeft: retriesLeft,
				Err: err, Category: category, Rule: ruleName,
				Start: start,
			})
			// 终态错误原样返回，保留可诊断性
			return nil, err
		}

		r.count(ctx, name, class, "retryable")

		var delay time.Duration
		if retriesLeft > 0 {
			delay = bo.NextBackOff()
		}
		r.logger.Warn("attempt failed",
			clog.String("operation", name),
			clog.String("class", string(class)),
			clog.Int("attempt", attempt),
			clog.Int("retries_left", retriesLeft),
			clog.String("rule", ruleName),
			clog.Duration("next_delay", delay),
			clog.Error(err))
		r.notify(do, Attempt{
			Operation: name, Class: class,
			Number: attempt, RetriesLeft: retriesLeft,
			Err: err, Category: category, Rule: ruleName,
			Delay: delay, Start: start,
		})

		if retriesLeft == 0 {
			break
		}

		if r.meter != nil {
			if histogram, err := r.meter.Histogram(MetricBackoffDuration, "Backoff delay", metrics.WithUnit("seconds")); err == nil {
				histogram.Record(ctx, delay.Seconds(),
					metrics.L(LabelOperation, name),
					metrics.L(LabelClass, string(class)))
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	if r.meter != nil {
		if counter, err := r.meter.Counter(MetricExhaustedTotal, "Retry budget exhausted"); err == nil {
			counter.Inc(ctx,
				metrics.L(LabelOperation, name),
				metrics.L(LabelClass, string(class)))
		}
	}
	r.logger.Error("retry budget exhausted",
		clog.String("operation", name),
		clog.String("class", string(class)),
		clog.Int("attempts", attempts),
		clog.Error(lastErr))
	// 预算耗尽后重抛最后一次的底层错误，不做泛化包装
	return nil, lastErr
}

// invoke 执行单次尝试，配置了熔断器时经过熔断器
func (r *retryer) invoke(ctx context.Context, name string, class breaker.Class, fn func(ctx context.Context) (any, error)) (any, error) {
	if r.breaker != nil {
		return r.breaker.Execute(ctx, name, class, fn)
	}
	return fn(ctx)
}

func (r *retryer) notify(do doOptions, a Attempt) {
	if do.notify != nil {
		do.notify(a)
	}
}

// count 记录尝试指标
func (r *retryer) count(ctx context.Context, name string, class breaker.Class, result string) {
	if r.meter == nil {
		return
	}
	if counter, err := r.meter.Counter(MetricAttemptsTotal, "Total attempts"); err == nil {
		counter.Inc(ctx,
			metrics.L(LabelOperation, name),
			metrics.L(LabelClass, string(class)),
			metrics.L(LabelResult, result))
	}
}
