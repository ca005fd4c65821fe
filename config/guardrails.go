package config

import (
	"github.com/ceyewan/aegis/breaker"
	"github.com/ceyewan/aegis/guard"
	"github.com/ceyewan/aegis/health"
	"github.com/ceyewan/aegis/ratelimit"
	"github.com/ceyewan/aegis/retry"
)

// Guardrails 治理层聚合配置，对应配置文件的顶层结构
//
// 配置文件示例（aegis.yaml）：
//
//	breaker:
//	  classes:
//	    database:
//	      timeout: 10s
//	      error_threshold_percentage: 50
//	retry:
//	  classes:
//	    external_api:
//	      retries: 5
//	ratelimit:
//	  prefix: "aegis:ratelimit:"
//	  policies:
//	    - name: auth
//	      max: 10
//	      window: 15m
//	guard:
//	  max_body_bytes: 10485760
//	  timeout: 30s
//	health:
//	  service: orders
type Guardrails struct {
	Breaker   breaker.Config   `mapstructure:"breaker" yaml:"breaker" json:"breaker"`
	Retry     retry.Config     `mapstructure:"retry" yaml:"retry" json:"retry"`
	RateLimit RateLimitSection `mapstructure:"ratelimit" yaml:"ratelimit" json:"ratelimit"`
	Guard     guard.Config     `mapstructure:"guard" yaml:"guard" json:"guard"`
	Health    health.Config    `mapstructure:"health" yaml:"health" json:"health"`
}

// RateLimitSection 限流配置段：组件配置加上具名策略列表
type RateLimitSection struct {
	ratelimit.Config `mapstructure:",squash" yaml:",inline" json:",inline"`

	// Policies 具名限流策略，供路由按名称引用
	Policies []ratelimit.Policy `mapstructure:"policies" yaml:"policies" json:"policies"`
}

// Policy 按名称查找限流策略；未找到时第二个返回值为 false
func (s *RateLimitSection) Policy(name string) (ratelimit.Policy, bool) {
	for _, p := range s.Policies {
		if p.Name == name {
			return p, true
		}
	}
	return ratelimit.Policy{}, false
}

// DefaultGuardrails 返回带缺省值的聚合配置
// 未在配置文件中出现的段落回落到各组件的 DefaultConfig()。
func DefaultGuardrails() *Guardrails {
	return &Guardrails{
		Breaker: *breaker.DefaultConfig(),
		Retry:   *retry.DefaultConfig(),
		RateLimit: RateLimitSection{
			Config: *ratelimit.DefaultConfig(),
			Policies: []ratelimit.Policy{
				ratelimit.PolicyGlobal(),
				ratelimit.PolicyAuth(),
				ratelimit.PolicyAPI(),
				ratelimit.PolicyCheckout(),
			},
		},
		Guard:  *guard.DefaultConfig(),
		Health: *health.DefaultConfig(),
	}
}
