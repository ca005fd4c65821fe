package clog

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// loggerImpl 是 Logger 接口的具体实现
type loggerImpl struct {
	handler   slog.Handler
	level     *slog.LevelVar
	options   *options
	baseAttrs []slog.Attr
}

// newLogger 创建 Logger 实例（内部使用）
func newLogger(config *Config, opts *options) (Logger, error) {
	level := new(slog.LevelVar)
	parsed, err := ParseLevel(config.Level)
	if err != nil {
		return nil, err
	}
	level.Set(slog.Level(parsed))

	var out io.Writer
	switch config.Output {
	case "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		out = f
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     level,
		AddSource: config.AddSource,
	}

	var handler slog.Handler
	if strings.ToLower(config.Format) == "json" {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
	}

	l := &loggerImpl{
		handler: handler,
		level:   level,
		options: opts,
	}

	if ns := strings.Join(opts.namespaceParts, "."); ns != "" {
		l.baseAttrs = append(l.baseAttrs, slog.String("namespace", ns))
	}

	return l, nil
}

func (l *loggerImpl) Debug(msg string, fields ...Field) {
	l.log(context.Background(), DebugLevel, msg, fields...)
}

func (l *loggerImpl) Info(msg string, fields ...Field) {
	l.log(context.Background(), InfoLevel, msg, fields...)
}

func (l *loggerImpl) Warn(msg string, fields ...Field) {
	l.log(context.Background(), WarnLevel, msg, fields...)
}

func (l *loggerImpl) Error(msg string, fields ...Field) {
	l.log(context.Background(), ErrorLevel, msg, fields...)
}

func (l *loggerImpl) Fatal(msg string, fields ...Field) {
	l.log(context.Background(), FatalLevel, msg, fields...)
}

func (l *loggerImpl) DebugContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, DebugLevel, msg, fields...)
}

func (l *loggerImpl) InfoContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, InfoLevel, msg, fields...)
}

func (l *loggerImpl) WarnContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, WarnLevel, msg, fields...)
}

func (l *loggerImpl) ErrorContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, ErrorLevel, msg, fields...)
}

func (l *loggerImpl) FatalContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, FatalLevel, msg, fields...)
}

func (l *loggerImpl) With(fields ...Field) Logger {
	child := *l
	child.baseAttrs = append(append([]slog.Attr{}, l.baseAttrs...), fields...)
	return &child
}

func (l *loggerImpl) WithNamespace(parts ...string) Logger {
	newOpts := *l.options
	newOpts.namespaceParts = append(append([]string{}, l.options.namespaceParts...), parts...)

	child := *l
	child.options = &newOpts

	// 重建 namespace 字段，保留其他预设字段
	attrs := make([]slog.Attr, 0, len(l.baseAttrs)+1)
	for _, a := range l.baseAttrs {
		if a.Key != "namespace" {
			attrs = append(attrs, a)
		}
	}
	attrs = append(attrs, slog.String("namespace", strings.Join(newOpts.namespaceParts, ".")))
	child.baseAttrs = attrs

	return &child
}

// SetLevel 动态调整日志级别
func (l *loggerImpl) SetLevel(level Level) error {
	l.level.Set(slog.Level(level))
	return nil
}

// log 组装属性并写出一条日志记录（内部方法）
func (l *loggerImpl) log(ctx context.Context, level Level, msg string, fields ...Field) {
	slogLevel := slog.Level(level)
	if level == FatalLevel {
		// Fatal 在 slog 中没有显式常量，使用高于 Error 的值
		slogLevel = slog.LevelError + 4
	}

	if !l.handler.Enabled(ctx, slogLevel) {
		if level == FatalLevel {
			os.Exit(1)
		}
		return
	}

	attrs := make([]slog.Attr, 0, len(l.baseAttrs)+len(fields)+len(l.options.contextFields))
	attrs = append(attrs, l.baseAttrs...)
	attrs = append(attrs, fields...)
	attrs = append(attrs, extractContextFields(ctx, l.options)...)

	logger := slog.New(l.handler)
	logger.LogAttrs(ctx, slogLevel, msg, attrs...)

	if level == FatalLevel {
		os.Exit(1)
	}
}

// extractContextFields 按配置从 context 中提取关联字段
func extractContextFields(ctx context.Context, opts *options) []slog.Attr {
	if ctx == nil || len(opts.contextFields) == 0 {
		return nil
	}

	var attrs []slog.Attr
	for _, cf := range opts.contextFields {
		if val := ctx.Value(cf.Key); val != nil {
			attrs = append(attrs, slog.Any(cf.FieldName, val))
		}
	}
	return attrs
}
