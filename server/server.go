package server

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/serisow/claimdesk/handlers"
	"github.com/urfave/negroni"
	"golang.org/x/crypto/acme/autocert"
)

type Config struct {
	Domains      []string
	CertCacheDir string
	HTTPPort     string
	HTTPSPort    string
	IdleTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// RequestTimeout bounds a run request. The write timeout is kept longer
	// so the answers or the error still reach the client.
	RequestTimeout time.Duration
}

const (
	defaultRequestTimeout = 15 * time.Minute
	writeMargin           = 30 * time.Second
)

func (c Config) withDefaults() Config {
	if c.HTTPPort == "" {
		c.HTTPPort = "8086"
	}
	if c.HTTPSPort == "" {
		c.HTTPSPort = "443"
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = time.Minute
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 5 * time.Second
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.WriteTimeout < c.RequestTimeout+writeMargin {
		c.WriteTimeout = c.RequestTimeout + writeMargin
	}
	return c
}

// Services are what the routes dispatch to.
type Services struct {
	Runner     handlers.Runner
	Ingestor   handlers.Ingestor
	Retriever  handlers.Retriever
	Executions handlers.ExecutionLookup
}

func SetupRoutes(services Services, cfg Config, logger *slog.Logger) *mux.Router {
	cfg = cfg.withDefaults()
	r := mux.NewRouter()

	r.HandleFunc("/", handlers.Health).Methods("GET")

	r.Handle("/hackrx/run", handlers.NewRunHandler(services.Runner, cfg.RequestTimeout, logger)).Methods("POST")

	r.Handle("/documents/ingest", handlers.NewIngestHandler(services.Ingestor, logger)).Methods("POST")
	r.Handle("/documents/search", handlers.NewDocumentSearchHandler(services.Retriever, logger)).Methods("POST")

	executionHandler := handlers.NewExecutionHandler(services.Executions, logger)
	r.HandleFunc("/runs/{id}", executionHandler.GetExecution).Methods("GET")

	return r
}

// SetupNegroni wraps the router with panic recovery and request logging,
// both writing to logger.
func SetupNegroni(r *mux.Router, logger *slog.Logger) *negroni.Negroni {
	n := negroni.New()

	recovery := negroni.NewRecovery()
	recovery.Logger = slog.NewLogLogger(logger.Handler(), slog.LevelError)
	recovery.PrintStack = false
	n.Use(recovery)

	requestLogger := negroni.NewLogger()
	requestLogger.ALogger = slog.NewLogLogger(logger.Handler(), slog.LevelInfo)
	n.Use(requestLogger)

	n.UseHandler(r)
	return n
}

// ServeProduction serves HTTPS with certificates from Let's Encrypt until ctx ends.
func ServeProduction(ctx context.Context, handler http.Handler, cfg Config, logger *slog.Logger) error {
	cfg = cfg.withDefaults()

	autocertManager := autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(cfg.Domains...),
		Cache:      autocert.DirCache(cfg.CertCacheDir),
	}

	// Port 80 answers ACME "http-01" challenges and redirects everything else to HTTPS.
	challengeSrv := &http.Server{
		Addr:         ":80",
		Handler:      autocertManager.HTTPHandler(nil),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		if err := challengeSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ACME challenge server stopped", slog.String("error", err.Error()))
		}
	}()
	defer challengeSrv.Close()

	tlsConfig := &tls.Config{
		GetCertificate:   autocertManager.GetCertificate,
		CurvePreferences: []tls.CurveID{tls.X25519, tls.CurveP256},
	}

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPSPort,
		Handler:      handler,
		TLSConfig:    tlsConfig,
		IdleTimeout:  cfg.IdleTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	logger.Info("Serving HTTPS", slog.String("addr", srv.Addr), slog.Any("domains", cfg.Domains))
	return serve(ctx, srv, func() error {
		return srv.ListenAndServeTLS("", "") // Key and cert provided automatically by autocert.
	})
}

// ServeDevelopment serves plain HTTP until ctx ends.
func ServeDevelopment(ctx context.Context, handler http.Handler, cfg Config, logger *slog.Logger) error {
	cfg = cfg.withDefaults()
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      handler,
		IdleTimeout:  cfg.IdleTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	logger.Info("Serving HTTP", slog.String("addr", srv.Addr))
	return serve(ctx, srv, srv.ListenAndServe)
}

func serve(ctx context.Context, srv *http.Server, listen func() error) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- listen()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
