// Package interceptor routes outgoing requests through the active
// generation's caching strategies.
//
// Transport is an http.RoundTripper for embedding the cache in a Go
// client; Handler exposes the same routing as an HTTP proxy.
package interceptor

import (
	"net/http"

	"github.com/Sternrassler/offline-cache/pkg/classify"
	"github.com/Sternrassler/offline-cache/pkg/client"
	"github.com/Sternrassler/offline-cache/pkg/lifecycle"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/Sternrassler/offline-cache/pkg/interceptor"

var requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "offline_cache_requests_total",
	Help: "Intercepted requests by class",
}, []string{"class"})

// Config configures a Transport.
type Config struct {
	// Registration supplies the active controller
	Registration *lifecycle.Registration

	// Classifier decides the strategy (default: classify.DefaultRemoteAssetRule)
	Classifier *classify.Classifier

	// Passthrough serves bypassed requests and everything while no
	// controller is active. It must not route back through the Transport.
	Passthrough client.Fetcher

	// TracerProvider defaults to the global provider
	TracerProvider trace.TracerProvider

	Logger zerolog.Logger
}

// Transport intercepts requests and answers them with the active
// controller's strategy engine.
type Transport struct {
	registration *lifecycle.Registration
	classifier   *classify.Classifier
	passthrough  client.Fetcher
	tracer       trace.Tracer
	logger       zerolog.Logger
}

// NewTransport creates an interceptor.
func NewTransport(cfg Config) *Transport {
	if cfg.Registration == nil {
		panic("registration cannot be nil")
	}
	if cfg.Passthrough == nil {
		panic("passthrough fetcher cannot be nil")
	}
	if cfg.Classifier == nil {
		cfg.Classifier = classify.New(classify.DefaultRemoteAssetRule())
	}
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}

	return &Transport{
		registration: cfg.Registration,
		classifier:   cfg.Classifier,
		passthrough:  cfg.Passthrough,
		tracer:       cfg.TracerProvider.Tracer(tracerName),
		logger:       cfg.Logger.With().Str("component", "interceptor").Logger(),
	}
}

// RoundTrip implements http.RoundTripper.
// Bypassed requests go to the network untouched, without a cache read or
// write. Errors wrapping strategy.ErrNoResponse mean neither cache nor
// network could answer.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	class := t.classifier.Classify(req)
	requestsTotal.WithLabelValues(class.String()).Inc()

	if class == classify.Bypass {
		return t.pass(req)
	}

	active := t.registration.Active()
	if active == nil {
		t.logger.Debug().Str("url", req.URL.String()).Msg("No active controller, passing through")
		return t.pass(req)
	}

	ctx, span := t.tracer.Start(req.Context(), "offline_cache."+class.String(),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.full", req.URL.String()),
			attribute.String("offline_cache.class", class.String()),
			attribute.String("offline_cache.static_bucket", active.Names().Static),
		),
	)
	defer span.End()

	out := outgoing(req.Clone(ctx))

	resp, err := active.Engine().Handle(class, out)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		t.logger.Debug().Err(err).Str("url", req.URL.String()).Str("class", class.String()).Msg("No response")
		return nil, err
	}

	resp.Request = req
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	return resp, nil
}

func (t *Transport) pass(req *http.Request) (*http.Response, error) {
	resp, err := t.passthrough.Do(outgoing(req.Clone(req.Context())))
	if err != nil {
		return nil, err
	}
	resp.Request = req
	return resp, nil
}

// outgoing prepares a clone for a client: fetchers may set headers on it,
// and proxied server requests still carry a RequestURI that http.Client
// refuses.
func outgoing(req *http.Request) *http.Request {
	req.RequestURI = ""
	return req
}
