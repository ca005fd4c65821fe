package metrics

// Config 指标系统的配置结构体
//
// 典型配置示例（YAML）：
//
//	metrics:
//	  enabled: true
//	  service_name: "aegis"
//	  version: "v1.0.0"
//	  port: 9090
//	  path: "/metrics"
type Config struct {
	// Enabled 是否启用指标收集
	// 为 false 时，metrics.New() 会返回 noop Meter，所有操作都是空操作
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`

	// ServiceName 服务名称，作为 OTel Resource 的 service.name 属性
	ServiceName string `mapstructure:"service_name" yaml:"service_name" json:"service_name"`

	// Version 服务版本，作为 OTel Resource 的 service.version 属性
	Version string `mapstructure:"version" yaml:"version" json:"version"`

	// Port Prometheus HTTP 服务器监听的端口
	// 大于 0 时会启动 HTTP 服务器用于暴露 Prometheus 格式的指标
	Port int `mapstructure:"port" yaml:"port" json:"port"`

	// Path Prometheus 指标的 HTTP 路径，必须以 "/" 开头
	Path string `mapstructure:"path" yaml:"path" json:"path"`
}

// setDefaults 设置默认值（内部使用）
func (c *Config) setDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "aegis"
	}
	if c.Path == "" {
		c.Path = "/metrics"
	}
}
