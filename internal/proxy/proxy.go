package proxy

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"sumctl/internal/config"
	"sumctl/internal/digit"
	"sumctl/internal/kube"
	"sumctl/internal/orchestrator"
)

const subsystem = "Proxy"

// Fleet is the part of the orchestrator the proxy drives.
type Fleet interface {
	MaxUnits() int
	Names() kube.Names
	BringUpUnits(ctx context.Context, n int) (*orchestrator.Lease, error)
	Resolve(unit int) orchestrator.Endpoint
	ScaleDownAsync(lease *orchestrator.Lease, delay time.Duration)
}

// DigitAdder sends one digit position to a unit.
type DigitAdder interface {
	Add(ctx context.Context, baseURL string, req digit.Request) (digit.Response, error)
}

// Options configures a Proxy.
type Options struct {
	Config         config.ProxyConfig
	ScaleDownDelay time.Duration
}

// Proxy serves the addition API, the log stream and the static UI.
type Proxy struct {
	cfg            config.ProxyConfig
	scaleDownDelay time.Duration

	fleet  Fleet
	digits DigitAdder
	lookup kube.AddressLookup
	hub    *Hub
}

// New wires a proxy. lookup may be nil, in which case the external links report an error.
// A nil hub gets a private one that nothing publishes to.
func New(opts Options, fleet Fleet, digits DigitAdder, lookup kube.AddressLookup, hub *Hub) *Proxy {
	if digits == nil {
		digits = digit.NewClient(opts.Config.DigitTimeout)
	}
	if hub == nil {
		hub = NewHub(opts.Config.LogBuffer)
	}
	return &Proxy{
		cfg:            opts.Config,
		scaleDownDelay: opts.ScaleDownDelay,
		fleet:          fleet,
		digits:         digits,
		lookup:         lookup,
		hub:            hub,
	}
}

// Handler returns the routed HTTP handler with CORS applied.
func (p *Proxy) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /suma-n-digitos", p.handleSum)
	mux.HandleFunc("GET /terminal-stream", p.handleStream)
	mux.HandleFunc("GET /logs/stream", p.handleStream)
	mux.HandleFunc("POST /terminal-clear", p.handleClear)
	for name, ref := range p.cfg.ExternalServices {
		mux.HandleFunc("GET /"+name+"-url", p.linkHandler(name, ref))
	}
	if p.cfg.StaticDir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(p.cfg.StaticDir)))
	}
	return withCORS(mux)
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
