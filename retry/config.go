package retry

import (
	"time"

	"github.com/ceyewan/aegis/breaker"
)

// Policy 重试策略
type Policy struct {
	// Retries 最大重试次数（不含首次尝试）
	Retries int `mapstructure:"retries" yaml:"retries" json:"retries"`

	// MinTimeout 首次退避延迟
	MinTimeout time.Duration `mapstructure:"min_timeout" yaml:"min_timeout" json:"min_timeout"`

	// MaxTimeout 退避延迟上限
	MaxTimeout time.Duration `mapstructure:"max_timeout" yaml:"max_timeout" json:"max_timeout"`

	// Factor 指数退避倍率
	Factor float64 `mapstructure:"factor" yaml:"factor" json:"factor"`
}

// setDefaults 填充策略缺省值
func (p *Policy) setDefaults() {
	if p.Retries == 0 {
		p.Retries = 3
	}
	if p.MinTimeout == 0 {
		p.MinTimeout = time.Second
	}
	if p.MaxTimeout == 0 {
		p.MaxTimeout = 30 * time.Second
	}
	if p.Factor == 0 {
		p.Factor = 2
	}
}

// Config 重试组件配置
type Config struct {
	// Classes 按操作类别配置策略
	// 未出现的类别使用 DefaultPolicies() 中的缺省策略
	Classes map[breaker.Class]Policy `mapstructure:"classes" yaml:"classes" json:"classes"`
}

// DefaultPolicies 返回各操作类别的缺省重试策略
//
// critical 类别重试最少、退避最紧：调用方对延迟敏感，
// 快速的确定性失败优于长时间等待。
func DefaultPolicies() map[breaker.Class]Policy {
	return map[breaker.Class]Policy{
		breaker.ClassDatabase: {
			Retries:    3,
			MinTimeout: time.Second,
			MaxTimeout: 10 * time.Second,
			Factor:     2,
		},
		breaker.ClassExternalAPI: {
			Retries:    5,
			MinTimeout: 2 * time.Second,
			MaxTimeout: 60 * time.Second,
			Factor:     2,
		},
		breaker.ClassCritical: {
			Retries:    2,
			MinTimeout: 500 * time.Millisecond,
			MaxTimeout: 5 * time.Second,
			Factor:     2,
		},
		breaker.ClassFileOps: {
			Retries:    4,
			MinTimeout: time.Second,
			MaxTimeout: 30 * time.Second,
			Factor:     2,
		},
	}
}

// DefaultConfig 返回缺省配置
func DefaultConfig() *Config {
	return &Config{
		Classes: DefaultPolicies(),
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
		if p.Retries < 0 || p.Factor < 1 || p.MinTimeout > p.MaxTimeout {
			return ErrInvalidConfig
		}
		c.Classes[class] = p
	}
	return nil
}

// policyFor 按类别解析生效策略
func (c *Config) policyFor(class breaker.Class) Policy {
	if p, ok := c.Classes[class]; ok {
		return p
	}
	p := Policy{}
	p.setDefaults()
	return p
}
