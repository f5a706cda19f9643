package interceptor

import (
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/Sternrassler/offline-cache/pkg/strategy"
	"github.com/rs/zerolog"
)

// Handler is an HTTP proxy in front of an upstream origin. Requests in
// origin form are sent to the upstream; absolute-form requests (forward
// proxy use) keep their own target. Every request goes through the
// Transport.
type Handler struct {
	proxy  *httputil.ReverseProxy
	logger zerolog.Logger
}

// NewHandler creates a proxy handler.
func NewHandler(upstream *url.URL, transport *Transport, logger zerolog.Logger) *Handler {
	if upstream == nil {
		panic("upstream cannot be nil")
	}
	if transport == nil {
		panic("transport cannot be nil")
	}

	h := &Handler{
		logger: logger.With().Str("component", "proxy").Str("upstream", upstream.String()).Logger(),
	}
	h.proxy = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			if !pr.In.URL.IsAbs() {
				pr.SetURL(upstream)
			}
			pr.SetXForwarded()
		},
		Transport:    transport,
		ErrorHandler: h.handleError,
	}
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.proxy.ServeHTTP(w, r)
}

// handleError maps "nothing available" to 504 and other transport
// failures to 502.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusBadGateway
	if errors.Is(err, strategy.ErrNoResponse) {
		status = http.StatusGatewayTimeout
	}

	h.logger.Warn().
		Err(err).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", status).
		Msg("Proxy request failed")

	http.Error(w, http.StatusText(status), status)
}
