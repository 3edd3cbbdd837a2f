// Package proxy translates REST operations into cache, fetch and session
// calls. Reads route through the fetch coordinator; writes go straight to
// the backend and invalidate the affected cache entries before the
// response is written, so no reader can observe pre-mutation data after a
// mutation response has been sent.
package proxy

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/secretsgate/bws-rest-proxy/pkg/cache"
	"github.com/secretsgate/bws-rest-proxy/pkg/fetch"
	"github.com/secretsgate/bws-rest-proxy/pkg/session"
	"github.com/secretsgate/bws-rest-proxy/pkg/upstream"
)

// Prometheus metrics for proxy requests.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bws_requests_total",
		Help: "Total proxy requests by operation and status",
	}, []string{"operation", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bws_request_duration_seconds",
		Help:    "Proxy request duration in seconds by operation",
		Buckets: []float64{0.005, 0.025, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"operation"})
)

// Proxy holds the handler dependencies. Invalidation goes through the
// coordinator, not the store directly, so an in-flight fetch that predates
// a mutation is never joined by readers arriving after it.
type Proxy struct {
	coordinator *fetch.Coordinator
	sessions    *session.Holder
	logger      zerolog.Logger
}

// New creates the proxy handler set.
func New(coordinator *fetch.Coordinator, sessions *session.Holder, logger zerolog.Logger) *Proxy {
	return &Proxy{
		coordinator: coordinator,
		sessions:    sessions,
		logger:      logger,
	}
}

// writeRequest is the JSON body of create and update operations.
type writeRequest struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	Note      string `json:"note"`
	ProjectID string `json:"project_id"`
}

// Routes returns the proxy's request mux.
func (p *Proxy) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{org_id}/{project_id}/secret/{secret_id}", p.instrument("get", p.handleGetSecret))
	mux.HandleFunc("GET /{org_id}/{project_id}/secrets", p.instrument("list", p.handleListSecrets))
	mux.HandleFunc("POST /{org_id}/{project_id}/secret", p.instrument("create", p.handleCreateSecret))
	mux.HandleFunc("PUT /{org_id}/{project_id}/secret/{secret_id}", p.instrument("update", p.handleUpdateSecret))
	mux.HandleFunc("DELETE /{org_id}/{project_id}/secret/{secret_id}", p.instrument("delete", p.handleDeleteSecret))

	mux.HandleFunc("GET /_health", p.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not Found")
	})

	return mux
}

// statusRecorder captures the status for request metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (p *Proxy) instrument(operation string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next(rec, r)

		requestsTotal.WithLabelValues(operation, strconv.Itoa(rec.status)).Inc()
		requestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

func (p *Proxy) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "Ok")
}

func (p *Proxy) handleGetSecret(w http.ResponseWriter, r *http.Request) {
	orgID, _, secretID, ok := p.pathIDs(w, r, true)
	if !ok {
		return
	}

	p.logger.Info().
		Str("org_id", orgID).
		Str("secret_id", secretID).
		Msg("get secret request")

	secret, err := p.coordinator.GetSecret(r.Context(), cache.SecretKey(orgID, secretID), readOptions(r))
	if err != nil {
		p.writeUpstreamError(w, err)
		return
	}

	// The backend resolves secrets by ID alone; reject reads addressed
	// through the wrong organization scope.
	if secret.OrganizationID != orgID {
		writeError(w, http.StatusBadRequest, "Bad Request")
		return
	}

	writeJSON(w, http.StatusOK, structuredSecret(secret))
}

func (p *Proxy) handleListSecrets(w http.ResponseWriter, r *http.Request) {
	orgID, projectID, _, ok := p.pathIDs(w, r, false)
	if !ok {
		return
	}

	identifiers, err := p.coordinator.ListSecrets(r.Context(), cache.ListKey(orgID), readOptions(r))
	if err != nil {
		p.writeUpstreamError(w, err)
		return
	}

	// The backend lists per organization; the project segment is part of
	// the route shape but does not narrow identifier listings.
	_ = projectID

	writeJSON(w, http.StatusOK, secretList(identifiers))
}

func (p *Proxy) handleCreateSecret(w http.ResponseWriter, r *http.Request) {
	orgID, projectID, _, ok := p.pathIDs(w, r, false)
	if !ok {
		return
	}

	var body writeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Key == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}
	if body.ProjectID == "" {
		body.ProjectID = projectID
	}

	client, gen, err := p.sessions.Get(r.Context())
	if err != nil {
		p.writeUpstreamError(w, err)
		return
	}

	secret, err := client.CreateSecret(r.Context(), orgID, upstream.SecretWrite{
		Key:       body.Key,
		Value:     body.Value,
		Note:      body.Note,
		ProjectID: body.ProjectID,
	})
	if err != nil {
		p.handleWriteError(gen, err)
		p.writeUpstreamError(w, err)
		return
	}

	// Invalidate before responding: once the caller sees the create
	// succeed, no reader may observe the pre-create listing.
	p.coordinator.Invalidate(cache.ListKey(orgID))

	writeJSON(w, http.StatusCreated, structuredSecret(secret))
}

func (p *Proxy) handleUpdateSecret(w http.ResponseWriter, r *http.Request) {
	orgID, projectID, secretID, ok := p.pathIDs(w, r, true)
	if !ok {
		return
	}

	var body writeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Key == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}
	if body.ProjectID == "" {
		body.ProjectID = projectID
	}

	client, gen, err := p.sessions.Get(r.Context())
	if err != nil {
		p.writeUpstreamError(w, err)
		return
	}

	secret, err := client.UpdateSecret(r.Context(), secretID, orgID, upstream.SecretWrite{
		Key:       body.Key,
		Value:     body.Value,
		Note:      body.Note,
		ProjectID: body.ProjectID,
	})
	if err != nil {
		p.handleWriteError(gen, err)
		p.writeUpstreamError(w, err)
		return
	}

	// Writes never pre-populate the cache; the next read repopulates it
	// with backend-confirmed data.
	p.coordinator.Invalidate(cache.SecretKey(orgID, secretID))
	p.coordinator.Invalidate(cache.ListKey(orgID))

	writeJSON(w, http.StatusOK, structuredSecret(secret))
}

func (p *Proxy) handleDeleteSecret(w http.ResponseWriter, r *http.Request) {
	orgID, _, secretID, ok := p.pathIDs(w, r, true)
	if !ok {
		return
	}

	client, gen, err := p.sessions.Get(r.Context())
	if err != nil {
		p.writeUpstreamError(w, err)
		return
	}

	if err := client.DeleteSecret(r.Context(), secretID); err != nil {
		p.handleWriteError(gen, err)
		p.writeUpstreamError(w, err)
		return
	}

	p.coordinator.Invalidate(cache.SecretKey(orgID, secretID))
	p.coordinator.Invalidate(cache.ListKey(orgID))

	w.WriteHeader(http.StatusNoContent)
}

// handleWriteError applies the auth policy for direct writes: flush the
// cache and discard the session so the next request re-authenticates,
// rather than retrying within this request.
func (p *Proxy) handleWriteError(gen uint64, err error) {
	if upstream.IsAuth(err) {
		p.coordinator.InvalidateAll()
		p.sessions.Invalidate(gen)
	}
}

func (p *Proxy) writeUpstreamError(w http.ResponseWriter, err error) {
	status, message := statusForError(err)
	if status >= http.StatusInternalServerError {
		p.logger.Error().Err(err).Msg("upstream request failed")
	}
	writeError(w, status, message)
}

// pathIDs extracts and validates the UUID path segments.
func (p *Proxy) pathIDs(w http.ResponseWriter, r *http.Request, wantSecret bool) (orgID, projectID, secretID string, ok bool) {
	orgID = r.PathValue("org_id")
	projectID = r.PathValue("project_id")
	secretID = r.PathValue("secret_id")

	ids := []string{orgID, projectID}
	if wantSecret {
		ids = append(ids, secretID)
	}
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			writeError(w, http.StatusBadRequest, "Bad Request")
			return "", "", "", false
		}
	}
	return orgID, projectID, secretID, true
}

// readOptions maps cache-bypass request signals onto fetch options.
// `Cache-Control: no-cache` or `?refresh=1` forces a fresh read;
// `?max_age=<seconds>` shortens (never extends) the freshness bound.
func readOptions(r *http.Request) fetch.Options {
	var opts fetch.Options
	if cacheControlNoCache(r.Header.Get("Cache-Control")) || r.URL.Query().Get("refresh") == "1" {
		opts.Refresh = true
	}
	if raw := r.URL.Query().Get("max_age"); raw != "" {
		if seconds, err := strconv.Atoi(raw); err == nil && seconds >= 0 {
			opts.MaxAge = time.Duration(seconds) * time.Second
			if seconds == 0 {
				opts.Refresh = true
			}
		}
	}
	return opts
}

// cacheControlNoCache reports whether the no-cache directive appears in a
// comma-separated Cache-Control value (e.g. "no-cache, max-age=0").
func cacheControlNoCache(value string) bool {
	for _, directive := range strings.Split(value, ",") {
		if strings.EqualFold(strings.TrimSpace(directive), "no-cache") {
			return true
		}
	}
	return false
}
