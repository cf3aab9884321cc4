package pageconfig

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"agridash/internal/logging"
	"agridash/internal/observability"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// LoaderConfig holds the parameters for fetching the page configuration.
type LoaderConfig struct {
	URL          string
	CacheTTL     time.Duration
	FetchTimeout time.Duration
}

// Loader fetches the YAML page configuration over HTTP and caches the parsed
// document for a bounded duration. A failed refresh serves the previous
// document instead of failing the request. Concurrent refreshes of an
// expired document are harmless duplicates, so no request coalescing is done.
type Loader struct {
	cfg     LoaderConfig
	client  *http.Client
	metrics *observability.DashboardMetrics

	mu        sync.Mutex
	cached    *Document
	fetchedAt time.Time
}

// NewLoader creates a loader. Metrics may be nil.
func NewLoader(cfg LoaderConfig, metrics *observability.DashboardMetrics) *Loader {
	return &Loader{
		cfg: cfg,
		client: &http.Client{
			Timeout:   cfg.FetchTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		metrics: metrics,
	}
}

// Load returns the current page configuration, fetching it if the cache is
// empty or older than the TTL.
func (l *Loader) Load(ctx context.Context) (*Document, error) {
	l.mu.Lock()
	if l.cached != nil && time.Since(l.fetchedAt) < l.cfg.CacheTTL {
		doc := l.cached
		l.mu.Unlock()
		return doc, nil
	}
	stale := l.cached
	l.mu.Unlock()

	doc, err := l.fetch(ctx)
	if l.metrics != nil {
		l.metrics.RecordConfigRefresh(ctx, err == nil)
	}
	if err != nil {
		if stale != nil {
			logging.FromContext(ctx).Warn("page configuration refresh failed, serving stale document",
				"url", l.cfg.URL, "error", err.Error())
			if l.metrics != nil {
				l.metrics.RecordConfigStaleServe(ctx)
			}
			return stale, nil
		}
		return nil, err
	}

	l.mu.Lock()
	l.cached = doc
	l.fetchedAt = time.Now()
	l.mu.Unlock()

	logging.FromContext(ctx).Info("page configuration loaded",
		"url", l.cfg.URL,
		"config_version", doc.Metadata.ConfigVersion,
		"components", len(doc.PageBuilder))
	return doc, nil
}

// Invalidate drops the cached document so the next Load fetches afresh.
func (l *Loader) Invalidate() {
	l.mu.Lock()
	l.cached = nil
	l.fetchedAt = time.Time{}
	l.mu.Unlock()
}

func (l *Loader) fetch(ctx context.Context) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build page configuration request: %w", err)
	}
	req.Header.Set("Accept", "application/yaml, text/yaml, text/plain")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page configuration: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("page configuration fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read page configuration body: %w", err)
	}

	return Parse(body)
}
