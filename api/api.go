package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/verivote/dreip-node/authority"
	"github.com/verivote/dreip-node/log"
)

const (
	maxRequestBodyLog = 512 // Maximum length of request body to log
)

// APIConfig type represents the configuration for the API HTTP server.
// It includes the host, port and the election authority instance.
type APIConfig struct {
	Host      string
	Port      int
	Authority *authority.Authority
}

// API type represents the API HTTP server exposing the election authority
// boundary operations.
type API struct {
	router    *chi.Mux
	authority *authority.Authority
}

// New creates a new API instance with the given configuration and starts the
// HTTP server.
func New(conf *APIConfig) (*API, error) {
	if conf == nil {
		return nil, fmt.Errorf("missing API configuration")
	}
	if conf.Authority == nil {
		return nil, fmt.Errorf("missing authority instance")
	}
	a := &API{
		authority: conf.Authority,
	}

	// Initialize router
	a.initRouter()
	go func() {
		log.Infow("starting API server", "host", conf.Host, "port", conf.Port)
		if err := http.ListenAndServe(fmt.Sprintf("%s:%d", conf.Host, conf.Port), a.router); err != nil {
			log.Fatalf("failed to start the API server: %v", err)
		}
	}()
	return a, nil
}

// Router returns the chi router for testing purposes
func (a *API) Router() *chi.Mux {
	return a.router
}

// registerHandlers registers all the HTTP handlers for the API endpoints.
func (a *API) registerHandlers() {
	log.Infow("register handler", "endpoint", PingEndpoint, "method", "GET")
	a.router.Get(PingEndpoint, func(w http.ResponseWriter, r *http.Request) {
		httpWriteOK(w)
	})
	// election endpoints
	log.Infow("register handler", "endpoint", ElectionsEndpoint, "method", "POST")
	a.router.Post(ElectionsEndpoint, a.newElection)
	log.Infow("register handler", "endpoint", ElectionsEndpoint, "method", "GET")
	a.router.Get(ElectionsEndpoint, a.listElections)
	log.Infow("register handler", "endpoint", ElectionEndpoint, "method", "GET")
	a.router.Get(ElectionEndpoint, a.election)
	log.Infow("register handler", "endpoint", ElectionCloseEndpoint, "method", "POST")
	a.router.Post(ElectionCloseEndpoint, a.closeElection)
	log.Infow("register handler", "endpoint", ElectionExportEndpoint, "method", "GET")
	a.router.Get(ElectionExportEndpoint, a.exportElection)
	// voter endpoints
	log.Infow("register handler", "endpoint", VotersEndpoint, "method", "POST")
	a.router.Post(VotersEndpoint, a.uploadRoster)
	log.Infow("register handler", "endpoint", VoterAuthEndpoint, "method", "POST")
	a.router.Post(VoterAuthEndpoint, a.authenticateVoter)
	// ballot endpoints
	log.Infow("register handler", "endpoint", BallotsEndpoint, "method", "POST")
	a.router.Post(BallotsEndpoint, a.castBallot)
	log.Infow("register handler", "endpoint", BallotEndpoint, "method", "GET")
	a.router.Get(BallotEndpoint, a.ballot)
	log.Infow("register handler", "endpoint", BallotAuditEndpoint, "method", "POST")
	a.router.Post(BallotAuditEndpoint, a.auditBallot)
	log.Infow("register handler", "endpoint", BallotConfirmEndpoint, "method", "POST")
	a.router.Post(BallotConfirmEndpoint, a.confirmBallot)
}

// initRouter creates the router with all the routes and middleware.
func (a *API) initRouter() {
	a.router = chi.NewRouter()
	a.router.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)
	a.router.Use(loggingMiddleware(maxRequestBodyLog))
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Throttle(100))
	a.router.Use(middleware.ThrottleBacklog(5000, 40000, 60*time.Second))
	a.router.Use(middleware.Timeout(45 * time.Second))

	a.registerHandlers()
}
