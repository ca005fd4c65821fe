package retry

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strings"
	"sync"
	"syscall"

	"github.com/ceyewan/aegis/breaker"
	"github.com/ceyewan/aegis/ratelimit"
	"github.com/ceyewan/aegis/xerrors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Category 错误分类结果
type Category int

const (
	// CategoryTerminal 终态错误，立即放弃，原始错误直接返回
	CategoryTerminal Category = iota
	// CategoryRetryable 瞬时错误，消耗一次重试预算后再次尝试
	CategoryRetryable
)

// String 返回分类的字符串表示
func (c Category) String() string {
	switch c {
	case CategoryRetryable:
		return "retryable"
	case CategoryTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// HTTPStatusError 将外部 API 调用的 HTTP 状态码带入错误链
// 分类器按状态码段分类：5xx 可重试，4xx 终态。
type HTTPStatusError struct {
	StatusCode int
	Err        error
}

func (e *HTTPStatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("http status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("http status %d", e.StatusCode)
}

func (e *HTTPStatusError) Unwrap() error {
	return e.Err
}

// rule 单条分类规则
type rule struct {
	name     string
	category Category
	matches  func(error) bool
}

// Classifier 封闭的错误分类表
//
// 分类按注册顺序逐条匹配，类别专属规则优先于全局规则，
// 首条命中即为最终结果。未命中任何规则的错误视为终态：
// 新错误源必须显式注册，不做启发式推断。
type Classifier struct {
	mu         sync.RWMutex
	global     []rule
	classRules map[breaker.Class][]rule
}

// NewClassifier 创建带缺省规则表的分类器
func NewClassifier() *Classifier {
	c := &Classifier{
		classRules: make(map[breaker.Class][]rule),
	}
	c.registerDefaults()
	return c
}

// Register 注册全局分类规则，追加到表尾
func (c *Classifier) Register(name string, category Category, matches func(error) bool) {
	if matches == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.global = append(c.global, rule{name: name, category: category, matches: matches})
}

// RegisterForClass 注册类别专属分类规则，优先于全局规则匹配
func (c *Classifier) RegisterForClass(class breaker.Class, name string, category Category, matches func(error) bool) {
	if matches == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.classRules[class] = append(c.classRules[class], rule{name: name, category: category, matches: matches})
}

// Classify 对错误进行分类，返回分类结果与命中的规则名
// 分类决策是最终的：一个错误不会被重试超过其分类允许的范围。
func (c *Classifier) Classify(err error, class breaker.Class) (Category, string) {
	if err == nil {
		return CategoryTerminal, "nil"
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, r := range c.classRules[class] {
		if r.matches(err) {
			return r.category, r.name
		}
	}
	for _, r := range c.global {
		if r.matches(err) {
			return r.category, r.name
		}
	}
	return CategoryTerminal, "unclassified"
}

// terminalCodes 错误链中携带这些错误码时视为终态
var terminalCodes = map[string]struct{}{
	"VALIDATION":    {},
	"UNAUTHORIZED":  {},
	"FORBIDDEN":     {},
	"NOT_FOUND":     {},
	"CONFLICT":      {},
	"UNPROCESSABLE": {},
}

// registerDefaults 安装缺省规则表
func (c *Classifier) registerDefaults() {
	// 熔断拒绝：调用方不得绕过打开的熔断器
	c.Register("circuit_open", CategoryTerminal, func(err error) bool {
		return xerrors.Is(err, breaker.ErrOpenState) || xerrors.Is(err, breaker.ErrTooManyProbes)
	})

	// 限流：重试只会加剧过载，向调用方透出 reset 时间
	c.Register("rate_limited", CategoryTerminal, func(err error) bool {
		var limited *ratelimit.LimitExceededError
		return xerrors.As(err, &limited)
	})

	// 业务错误码：校验 / 认证 / 权限 / 不存在 / 冲突 / 不可处理
	c.Register("coded_terminal", CategoryTerminal, func(err error) bool {
		code := xerrors.GetCode(err)
		_, ok := terminalCodes[code]
		return ok
	})

	c.Register("not_found", CategoryTerminal, func(err error) bool {
		return xerrors.Is(err, sql.ErrNoRows)
	})

	// 超时：包括熔断策略超时与网络层超时
	c.Register("timeout", CategoryRetryable, func(err error) bool {
		if xerrors.Is(err, breaker.ErrTimeout) || xerrors.Is(err, context.DeadlineExceeded) {
			return true
		}
		var ne net.Error
		return xerrors.As(err, &ne) && ne.Timeout()
	})

	c.Register("connection", CategoryRetryable, func(err error) bool {
		return xerrors.Is(err, syscall.ECONNRESET) ||
			xerrors.Is(err, syscall.ECONNREFUSED) ||
			xerrors.Is(err, syscall.EPIPE)
	})

	c.Register("dns", CategoryRetryable, func(err error) bool {
		var dnsErr *net.DNSError
		return xerrors.As(err, &dnsErr)
	})

	// gRPC 状态码
	c.Register("grpc_status", CategoryRetryable, func(err error) bool {
		st, ok := status.FromError(err)
		if !ok {
			return false
		}
		switch st.Code() {
		case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted:
			return true
		}
		return false
	})

	// HTTP 状态码：5xx 可重试
	c.Register("http_5xx", CategoryRetryable, func(err error) bool {
		var he *HTTPStatusError
		return xerrors.As(err, &he) && he.StatusCode >= 500
	})

	// 数据库类别专属：约束冲突重试必然再失败
	c.RegisterForClass(breaker.ClassDatabase, "db_constraint", CategoryTerminal, func(err error) bool {
		msg := err.Error()
		return strings.Contains(msg, "unique constraint") ||
			strings.Contains(msg, "duplicate key") ||
			strings.Contains(msg, "Duplicate entry") ||
			strings.Contains(msg, "foreign key constraint")
	})
}
