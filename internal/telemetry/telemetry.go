package telemetry

import (
	"context"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/odpf/salt/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"

	"github.com/raystack/scale/config"
)

const (
	MetricWaitInterval = time.Second * 2

	metricUptime    = "application_uptime_seconds"
	metricHeartbeat = "application_heartbeat"
)

// Init starts the jaeger exporter and the metrics server when they are
// configured, the returned func stops both.
func Init(l log.Logger, conf config.TelemetryConfig) (func(), error) {
	var tp *tracesdk.TracerProvider
	var err error
	if conf.JaegerAddr != "" {
		l.Debug("enabling jaeger traces at %s", conf.JaegerAddr)
		tp, err = tracerProvider(conf.JaegerAddr)
		if err != nil {
			return nil, err
		}

		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	}

	var metricServer *http.Server
	stopHeartbeat := make(chan struct{})
	if conf.MetricsAddr != "" {
		l.Debug("enabling metrics at %s", conf.MetricsAddr)
		go heartbeat(stopHeartbeat)

		metricServer = MetricsServer(conf.MetricsAddr)
		go func() {
			if err := metricServer.ListenAndServe(); err != http.ErrServerClosed {
				l.Warn("failed while serving metrics: %s", err)
			}
		}()
	}
	return func() {
		close(stopHeartbeat)
		if tp != nil {
			if err := tp.Shutdown(context.Background()); err != nil {
				l.Warn("failed to shutdown trace provider: %s", err)
			}
		}
		if metricServer != nil {
			if err := metricServer.Close(); err != nil {
				l.Warn("failed to shutdown metrics http server: %s", err)
			}
		}
	}, nil
}

func heartbeat(stop <-chan struct{}) {
	appUptime := NewGauge(metricUptime, nil)
	appHeartbeat := NewCounter(metricHeartbeat, nil)
	startTime := time.Now()

	ticker := time.NewTicker(MetricWaitInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			appUptime.Set(time.Since(startTime).Seconds())
			appHeartbeat.Inc()
		}
	}
}

// tracerProvider returns an OpenTelemetry TracerProvider configured to use
// the Jaeger exporter that will send spans to the provided url.
func tracerProvider(url string) (*tracesdk.TracerProvider, error) {
	jaegerExporter, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(url)))
	if err != nil {
		return nil, err
	}
	tp := tracesdk.NewTracerProvider(
		tracesdk.WithBatcher(jaegerExporter),
		tracesdk.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(config.AppName),
			semconv.ServiceVersionKey.String(config.BuildVersion),
			attribute.String("build_commit", config.BuildCommit),
			attribute.String("build_date", config.BuildDate),
		)),
	)

	return tp, nil
}

func MetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: time.Second * 5,
	}
}
