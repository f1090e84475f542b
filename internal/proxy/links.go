package proxy

import (
	"context"
	"net/http"
	"time"

	"sumctl/internal/config"
	"sumctl/pkg/logging"
)

const lookupTimeout = 5 * time.Second

const (
	linkOK      = "ok"
	linkPending = "pending"
	linkError   = "error"
)

// LinkResponse tells the UI whether an external service has an address yet.
// URL is null unless Status is "ok".
type LinkResponse struct {
	Status string  `json:"status"`
	URL    *string `json:"url"`
}

func (p *Proxy) linkHandler(name string, ref config.ServiceRef) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, p.resolveLink(r.Context(), name, ref))
	}
}

func (p *Proxy) resolveLink(ctx context.Context, name string, ref config.ServiceRef) LinkResponse {
	if p.lookup == nil {
		return LinkResponse{Status: linkError}
	}
	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	addr, err := p.lookup.ExternalAddress(ctx, ref.Namespace, ref.Service)
	if err != nil {
		logging.Debug(subsystem, "Looking up %s (%s/%s) failed: %v", name, ref.Namespace, ref.Service, err)
		return LinkResponse{Status: linkError}
	}
	if addr == "" {
		return LinkResponse{Status: linkPending}
	}
	url := "http://" + addr
	return LinkResponse{Status: linkOK, URL: &url}
}
