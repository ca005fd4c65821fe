package breaker

import "time"

// Class 操作类别
// 每个类别拥有固定的策略包（超时、失败率阈值、恢复时间、滚动窗口），
// 进程启动时由配置确定，之后不可变。
type Class string

const (
	// ClassDatabase 数据库操作
	ClassDatabase Class = "database"
	// ClassExternalAPI 外部 API 调用
	ClassExternalAPI Class = "external_api"
	// ClassCritical 关键业务操作，调用方对延迟敏感
	ClassCritical Class = "critical"
	// ClassFileOps 文件操作
	ClassFileOps Class = "file_ops"
)

// Policy 熔断策略
type Policy struct {
	// Timeout 单次调用超时时间
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`

	// ErrorThresholdPercentage 失败率阈值 (0-100)
	// 滚动窗口内失败率（含超时）达到此值时触发熔断
	ErrorThresholdPercentage float64 `mapstructure:"error_threshold_percentage" yaml:"error_threshold_percentage" json:"error_threshold_percentage"`

	// MinimumRequests 最小请求数
	// 窗口内请求数未达到此值前，不触发熔断判断
	MinimumRequests int `mapstructure:"minimum_requests" yaml:"minimum_requests" json:"minimum_requests"`

	// ResetTimeout 熔断持续时间
	// 进入 Open 状态后，等待此时间后转为 HalfOpen 探测
	ResetTimeout time.Duration `mapstructure:"reset_timeout" yaml:"reset_timeout" json:"reset_timeout"`

	// RollingWindow 滚动统计窗口总时长
	RollingWindow time.Duration `mapstructure:"rolling_window" yaml:"rolling_window" json:"rolling_window"`

	// RollingBuckets 滚动窗口分桶数
	RollingBuckets int `mapstructure:"rolling_buckets" yaml:"rolling_buckets" json:"rolling_buckets"`

	// UserMessage 熔断拒绝时返回给调用方的用户安全文案
	// 不应包含底层依赖细节
	UserMessage string `mapstructure:"user_message" yaml:"user_message" json:"user_message"`
}

// setDefaults 填充策略缺省值
func (p *Policy) setDefaults() {
	if p.Timeout == 0 {
		p.Timeout = 10 * time.Second
	}
	if p.ErrorThresholdPercentage == 0 {
		p.ErrorThresholdPercentage = 50
	}
	if p.MinimumRequests == 0 {
		p.MinimumRequests = 10
	}
	if p.ResetTimeout == 0 {
		p.ResetTimeout = 30 * time.Second
	}
	if p.RollingWindow == 0 {
		p.RollingWindow = 10 * time.Second
	}
	if p.RollingBuckets == 0 {
		p.RollingBuckets = 10
	}
	if p.UserMessage == "" {
		p.UserMessage = "service temporarily unavailable"
	}
}

// Config 熔断器组件配置
type Config struct {
	// Classes 按操作类别配置策略
	// 未出现的类别使用 DefaultPolicies() 中的缺省策略
	Classes map[Class]Policy `mapstructure:"classes" yaml:"classes" json:"classes"`

	// Overrides 按熔断器名称覆盖策略（可选）
	// Key 为熔断器名称（如 "DatabaseOperations"）
	Overrides map[string]Policy `mapstructure:"overrides" yaml:"overrides" json:"overrides"`
}

// DefaultPolicies 返回各操作类别的缺省策略
//
// critical 类别的超时和恢复时间最紧：调用方对延迟敏感，
// 快速的确定性失败优于用户可见的挂起。
func DefaultPolicies() map[Class]Policy {
	return map[Class]Policy{
		ClassDatabase: {
			Timeout:                  10 * time.Second,
			ErrorThresholdPercentage: 50,
			MinimumRequests:          10,
			ResetTimeout:             30 * time.Second,
			RollingWindow:            10 * time.Second,
			RollingBuckets:           10,
			UserMessage:              "database temporarily unavailable",
		},
		ClassExternalAPI: {
			Timeout:                  10 * time.Second,
			ErrorThresholdPercentage: 60,
			MinimumRequests:          10,
			ResetTimeout:             60 * time.Second,
			RollingWindow:            10 * time.Second,
			RollingBuckets:           10,
			UserMessage:              "external service temporarily unavailable",
		},
		ClassCritical: {
			Timeout:                  5 * time.Second,
			ErrorThresholdPercentage: 35,
			MinimumRequests:          5,
			ResetTimeout:             20 * time.Second,
			RollingWindow:            10 * time.Second,
			RollingBuckets:           10,
			UserMessage:              "service temporarily unavailable",
		},
		ClassFileOps: {
			Timeout:                  8 * time.Second,
			ErrorThresholdPercentage: 50,
			MinimumRequests:          10,
			ResetTimeout:             30 * time.Second,
			RollingWindow:            10 * time.Second,
			RollingBuckets:           10,
			UserMessage:              "file storage temporarily unavailable",
		},
	}
}

// DefaultConfig 返回缺省配置
func DefaultConfig() *Config {
	return &Config{
		Classes:   DefaultPolicies(),
		Overrides: make(map[string]Policy),
	}
}

// validate 设置默认值并验证配置
func (c *Config) validate() error {
	if c.Classes == nil {
		c.Classes = DefaultPolicies()
	}
	defaults := DefaultPolicies()
	for class, p := range defaults {
		if _, ok := c.Classes[class]; !ok {
			c.Classes[class] = p
		}
	}
	for class, p := range c.Classes {
		p.setDefaults()
		if p.ErrorThresholdPercentage < 0 || p.ErrorThresholdPercentage > 100 {
			return ErrInvalidConfig
		}
		c.Classes[class] = p
	}
	for name, p := range c.Overrides {
		p.setDefaults()
		c.Overrides[name] = p
	}
	return nil
}

// policyFor 按名称与类别解析生效策略：名称覆盖优先，其次类别策略
func (c *Config) policyFor(name string, class Class) Policy {
	if p, ok := c.Overrides[name]; ok {
		return p
	}
	if p, ok := c.Classes[class]; ok {
		return p
	}
	p := Policy{}
	p.setDefaults()
	return p
}
