package testutil

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// ErrScriptedFailure is the transport error returned for failing routes.
var ErrScriptedFailure = errors.New("scripted network failure")

type route struct {
	status int
	body   string
	header http.Header
	fail   bool
	gate   chan struct{}
}

// ScriptedNetwork is an http.RoundTripper that answers from a script keyed
// by absolute URL. Unscripted URLs fail like an unreachable host.
type ScriptedNetwork struct {
	mu      sync.Mutex
	routes  map[string]*route
	calls   map[string]int
	offline bool
}

// NewScriptedNetwork creates an empty script.
func NewScriptedNetwork() *ScriptedNetwork {
	return &ScriptedNetwork{
		routes: make(map[string]*route),
		calls:  make(map[string]int),
	}
}

// Respond scripts a response for url.
func (n *ScriptedNetwork) Respond(url string, status int, body string) {
	n.RespondWithHeader(url, status, body, http.Header{"Content-Type": []string{"text/plain; charset=utf-8"}})
}

// RespondWithHeader scripts a response with explicit headers.
func (n *ScriptedNetwork) RespondWithHeader(url string, status int, body string, header http.Header) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.routes[url] = &route{status: status, body: body, header: header}
}

// Fail makes requests for url fail at the transport level.
func (n *ScriptedNetwork) Fail(url string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.routes[url] = &route{fail: true}
}

// SetOffline makes every request fail regardless of the script.
func (n *ScriptedNetwork) SetOffline(offline bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.offline = offline
}

// Hold blocks requests for url until the returned release func is called.
// The scripted outcome for url is applied once released.
func (n *ScriptedNetwork) Hold(url string) (release func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	r, ok := n.routes[url]
	if !ok {
		r = &route{fail: true}
		n.routes[url] = r
	}
	gate := make(chan struct{})
	r.gate = gate
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// Calls returns how many requests reached url.
func (n *ScriptedNetwork) Calls(url string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[url]
}

// TotalCalls returns the number of requests across all URLs.
func (n *ScriptedNetwork) TotalCalls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, c := range n.calls {
		total += c
	}
	return total
}

// Client returns an http.Client using this network as transport.
func (n *ScriptedNetwork) Client() *http.Client {
	return &http.Client{Transport: n}
}

// RoundTrip implements http.RoundTripper.
func (n *ScriptedNetwork) RoundTrip(req *http.Request) (*http.Response, error) {
	url := req.URL.String()

	n.mu.Lock()
	n.calls[url]++
	r, ok := n.routes[url]
	var gate chan struct{}
	if ok {
		gate = r.gate
	}
	n.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-req.Context().Done():
			return nil, req.Context().Err()
		}
	}

	n.mu.Lock()
	offline := n.offline
	n.mu.Unlock()

	if offline || !ok || r.fail {
		return nil, fmt.Errorf("%w: %s %s", ErrScriptedFailure, req.Method, url)
	}

	header := r.header.Clone()
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", r.status, http.StatusText(r.status)),
		StatusCode:    r.status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader([]byte(r.body))),
		ContentLength: int64(len(r.body)),
		Request:       req,
	}, nil
}
