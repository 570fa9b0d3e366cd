// Package tracing 链路追踪：全局 TracerProvider 初始化与业务 span 辅助
package tracing

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/dumeirei/school-portal-backend/internal/common/config"
)

const instrumentation = "github.com/dumeirei/school-portal-backend"

// 业务 span 属性
var (
	AttrAffiliateID  = attribute.Key("affiliate.id")
	AttrSignupID     = attribute.Key("signup.id")
	AttrReferralCode = attribute.Key("referral.code")
	AttrOutcome      = attribute.Key("attribution.outcome")
	AttrPath         = attribute.Key("attribution.path")
	AttrWithdrawalID = attribute.Key("withdrawal.id")
	AttrReference    = attribute.Key("payment.reference")
)

// ShutdownFunc 刷出未导出的 span
type ShutdownFunc func(context.Context) error

// Setup 按配置安装全局 TracerProvider 与 W3C 传播器
// 未启用时保留 otel 默认的空操作实现
func Setup(ctx context.Context, cfg *config.TracingConfig, version, env string) (ShutdownFunc, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	if cfg == nil || !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(version),
		semconv.DeploymentEnvironment(env),
	))
	if err != nil {
		return nil, fmt.Errorf("tracing resource: %w", err)
	}

	var exporter sdktrace.SpanExporter
	if cfg.Endpoint != "" {
		exporter, err = otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(cfg.Endpoint), otlptracegrpc.WithInsecure())
	} else {
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(os.Stderr))
	}
	if err != nil {
		return nil, fmt.Errorf("tracing exporter: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler(cfg.SampleRate))),
	)
	otel.SetTracerProvider(provider)
	return provider.Shutdown, nil
}

func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	}
	return sdktrace.TraceIDRatioBased(rate)
}

// Tracer 当前全局 provider 下的业务 tracer
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentation)
}

// Start 开始业务 span，配合 End 使用
//
//	ctx, span := tracing.Start(ctx, "referral.attribute", tracing.AttrSignupID.Int64(id))
//	defer func() { tracing.End(span, err) }()
func Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// End 结束 span，err 非空时标记失败
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// TraceID 上下文中的 trace id，没有时为空
func TraceID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}
