// Package collector is the development backend for the mini app. It
// accepts tracker events and invoice requests and exposes what it has
// seen as prometheus metrics.
package collector

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/krevetka/krevetka/pkg/analytics"
	"github.com/krevetka/krevetka/pkg/content"
	"github.com/krevetka/krevetka/pkg/platform"
)

const (
	TrackPath   = "/krevetka-api/track"
	InvoicePath = "/krevetka-api/create-invoice"
	MetricsPath = "/metrics"

	maxBody = 64 << 10
	// MaxSessions bounds the set of remembered tracker sessions.
	MaxSessions = 100000

	otherLabel = "other"
)

type Config struct {
	Catalog *content.Catalog
	// InvoiceBase prefixes generated invoice links.
	InvoiceBase string
	// Username and Password protect /metrics when either is set.
	Username string
	Password string
	Log      platform.Logger
}

type Collector struct {
	cfg      Config
	registry *prometheus.Registry
	events   *prometheus.CounterVec
	rarities *prometheus.CounterVec
	invoices *prometheus.CounterVec
	rejected prometheus.Counter

	mu       sync.Mutex
	sessions map[string]struct{}
}

func New(cfg Config) *Collector {
	if cfg.Catalog == nil {
		cfg.Catalog = content.Default()
	}
	if cfg.InvoiceBase == "" {
		cfg.InvoiceBase = "https://t.me/$krevetka"
	}
	if cfg.Log == nil {
		cfg.Log = platform.NopLogger()
	}
	c := &Collector{
		cfg:      cfg,
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "krevetka",
			Name:      "events_total",
			Help:      "Tracked events by name and platform.",
		}, []string{"event", "platform"}),
		rarities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "krevetka",
			Name:      "cards_total",
			Help:      "Revealed cards by rarity and mode.",
		}, []string{"rarity", "mode"}),
		invoices: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "krevetka",
			Name:      "invoices_total",
			Help:      "Invoice requests by product and outcome.",
		}, []string{"product", "result"}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "krevetka",
			Name:      "rejected_payloads_total",
			Help:      "Tracker payloads that could not be decoded.",
		}),
		sessions: map[string]struct{}{},
	}
	c.registry.MustRegister(c.events, c.rarities, c.invoices, c.rejected)
	return c
}

// Handler returns the router with every route mounted.
func (c *Collector) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post(TrackPath, c.handleTrack)
	r.Post(InvoicePath, c.handleInvoice)
	r.With(c.basicAuth).Handle(MetricsPath, promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))
	return r
}

// Sessions reports how many distinct tracker sessions have posted.
func (c *Collector) Sessions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// ListenAndServe serves until ctx is cancelled.
func (c *Collector) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           c.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	c.cfg.Log.Infof("collector: listening on %s", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (c *Collector) handleTrack(w http.ResponseWriter, r *http.Request) {
	var p analytics.Payload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&p); err != nil || p.Event == "" {
		c.rejected.Inc()
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}
	event := p.Event
	if !analytics.KnownEvent(event) {
		event = otherLabel
	}
	platformName := otherLabel
	if prof, ok := platform.ParseProfile(p.Platform); ok {
		platformName = string(prof)
	}
	c.events.WithLabelValues(event, platformName).Inc()
	if event == analytics.EventTap {
		rs, _ := p.Data["rarity"].(string)
		ms, _ := p.Data["mode"].(string)
		rarity, rok := content.ParseRarity(rs)
		mode, mok := content.ParseMode(ms)
		if rok && mok {
			c.rarities.WithLabelValues(string(rarity), string(mode)).Inc()
		}
	}
	if id, err := uuid.Parse(r.Header.Get(analytics.SessionHeader)); err == nil {
		c.mu.Lock()
		if len(c.sessions) < MaxSessions {
			c.sessions[id.String()] = struct{}{}
		}
		c.mu.Unlock()
	}
	c.cfg.Log.Debugf("collector: %s from %s", event, platformName)
	w.WriteHeader(http.StatusNoContent)
}

type invoiceRequest struct {
	ProductID string `json:"product_id"`
	UserID    string `json:"user_id"`
}

func (c *Collector) handleInvoice(w http.ResponseWriter, r *http.Request) {
	var req invoiceRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	product, err := c.cfg.Catalog.Product(req.ProductID)
	if err != nil {
		c.invoices.WithLabelValues("unknown", "rejected").Inc()
		writeJSON(w, http.StatusOK, map[string]interface{}{"ok": false, "error": "unknown_product"})
		return
	}
	c.invoices.WithLabelValues(product.ID, "created").Inc()
	link := strings.TrimRight(c.cfg.InvoiceBase, "/") + "_" + product.ID + "_" + uuid.NewString()
	c.cfg.Log.Infof("collector: invoice %s for user %s", product.ID, req.UserID)
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "url": link})
}

func (c *Collector) basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c.cfg.Username == "" && c.cfg.Password == "" {
			next.ServeHTTP(w, r)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != c.cfg.Username || pass != c.cfg.Password {
			w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// cors lets the mini app webview post from its own origin.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+analytics.SessionHeader)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
