package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/gridbase/automations/automation"
	"github.com/gridbase/automations/base"
	"github.com/gridbase/automations/dispatch"
	"github.com/gridbase/automations/internal/logger"
	"github.com/gridbase/automations/transport"
)

type Server struct {
	db         *sql.DB
	manager    *base.Manager
	dispatcher *dispatch.Dispatcher
	runs       automation.RunStore
	email      *transport.NATSEmailPublisher
	router     *chi.Mux
}

type Config struct {
	Port            string
	DatabaseURL     string
	NATSURL         string
	TableServiceURL string
	WebhookTimeout  time.Duration
}

func loadConfig() Config {
	cfg := Config{
		Port:            os.Getenv("PORT"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		NATSURL:         os.Getenv("NATS_URL"),
		TableServiceURL: os.Getenv("TABLE_SERVICE_URL"),
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if secs, err := strconv.Atoi(os.Getenv("WEBHOOK_TIMEOUT_SECONDS")); err == nil && secs > 0 {
		cfg.WebhookTimeout = time.Duration(secs) * time.Second
	}
	return cfg
}

func NewServer(cfg Config) (*Server, error) {
	var db *sql.DB
	if cfg.DatabaseURL != "" {
		var err error
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
	} else {
		logger.Warn("DATABASE_URL not set, definitions and runs will not survive a restart")
	}

	var data automation.DataStore
	var records dispatch.RecordSource
	if cfg.TableServiceURL != "" {
		client := transport.NewHTTPRecordClient(cfg.TableServiceURL, 10*time.Second)
		data = client
		records = client
	} else {
		logger.Warn("TABLE_SERVICE_URL not set, record actions and condition polls are disabled")
	}

	var email *transport.NATSEmailPublisher
	var sender automation.EmailSender
	if cfg.NATSURL != "" {
		var err error
		email, err = transport.ConnectEmailPublisher(cfg.NATSURL)
		if err != nil {
			return nil, err
		}
		sender = email
	} else {
		logger.Warn("NATS_URL not set, send_email actions will fail")
	}

	webhooks := transport.NewHTTPWebhookCaller(cfg.WebhookTimeout)

	manager := base.NewManager(db, data, sender, webhooks)
	if db != nil {
		logger.Info("loading bases from database")
		if err := manager.LoadAllBases(); err != nil {
			return nil, fmt.Errorf("failed to load bases: %w", err)
		}
		logger.Info("bases loaded", "count", len(manager.ListBases()))
	}

	var runs automation.RunStore
	if db != nil {
		runs = automation.NewPostgresRunStore(db)
	} else {
		runs = automation.NewInMemoryRunStore()
	}

	s := &Server{
		db:         db,
		manager:    manager,
		dispatcher: dispatch.NewDispatcher(manager, runs, records),
		runs:       runs,
		email:      email,
	}
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/api/v1/health", s.handleHealth)
	r.Get("/api/v1/metrics", s.handleMetrics)

	r.Route("/api/v1/bases", func(r chi.Router) {
		r.Get("/", s.handleListBases)
		r.Post("/", s.handleCreateBase)

		r.Route("/{baseId}", func(r chi.Router) {
			r.Get("/schemas", s.handleGetSchemas)
			r.Post("/schemas", s.handleUpdateSchemas)

			r.Post("/events", s.handleRecordEvent)
			r.Post("/webhooks/{webhookId}", s.handleIncomingWebhook)

			r.Route("/automations", func(r chi.Router) {
				r.Get("/", s.handleListAutomations)
				r.Post("/", s.handleCreateAutomation)

				r.Route("/{automationId}", func(r chi.Router) {
					r.Get("/", s.handleGetAutomation)
					r.Put("/", s.handleUpdateAutomation)
					r.Delete("/", s.handleDeleteAutomation)
					r.Get("/formula", s.handleGetFormula)
					r.Post("/dry-run", s.handleDryRun)
					r.Get("/runs", s.handleListRuns)
				})
			})
		})
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Ping(); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:      "healthy",
		BasesLoaded: len(s.manager.ListBases()),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]int64{
		"runsStarted":   logger.RunsStarted.Load(),
		"runsFailed":    logger.RunsFailed.Load(),
		"runsSuspended": logger.RunsSuspended.Load(),
		"actionsFailed": logger.ActionsFailed.Load(),
		"totalErrors":   logger.TotalErrors.Load(),
		"totalWarnings": logger.TotalWarnings.Load(),
	})
}

func (s *Server) handleListBases(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"bases": s.manager.ListBases(),
	})
}

func (s *Server) handleCreateBase(w http.ResponseWriter, r *http.Request) {
	var req CreateBaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Schemas == nil {
		req.Schemas = base.Schemas{}
	}

	if s.db != nil {
		schemaJSON, err := json.Marshal(req.Schemas)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to marshal schemas", err)
			return
		}
		if _, err := s.db.Exec(`
			INSERT INTO bases (id, name, created_at, updated_at)
			VALUES ($1, $2, NOW(), NOW())
		`, req.ID, req.Name); err != nil {
			respondError(w, http.StatusInternalServerError, "failed to create base", err)
			return
		}
		if _, err := s.db.Exec(`
			INSERT INTO base_schemas (base_id, version, definition, active, created_at)
			VALUES ($1, 1, $2, true, NOW())
		`, req.ID, schemaJSON); err != nil {
			respondError(w, http.StatusInternalServerError, "failed to save schemas", err)
			return
		}
	}

	if err := s.manager.CreateBase(req.ID, req.Schemas); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to initialize base", err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"id":   req.ID,
		"name": req.Name,
	})
}

func (s *Server) handleGetSchemas(w http.ResponseWriter, r *http.Request) {
	be, ok := s.base(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"schemas": be.Schemas,
	})
}

func (s *Server) handleUpdateSchemas(w http.ResponseWriter, r *http.Request) {
	baseID := chi.URLParam(r, "baseId")

	var req UpdateSchemasRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if err := s.manager.UpdateBaseSchemas(baseID, req.Schemas); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update schemas", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "active"})
}

func (s *Server) handleListAutomations(w http.ResponseWriter, r *http.Request) {
	be, ok := s.base(w, r)
	if !ok {
		return
	}
	automations, err := be.Store.List()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list automations", err)
		return
	}
	if automations == nil {
		automations = []*automation.Automation{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"automations": automations,
	})
}

func (s *Server) handleCreateAutomation(w http.ResponseWriter, r *http.Request) {
	be, ok := s.base(w, r)
	if !ok {
		return
	}

	var a automation.Automation
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.BaseID = be.BaseID
	for _, g := range a.ActionGroups {
		if g.ID == "" {
			g.ID = uuid.NewString()
		}
	}

	if err := be.AddAutomation(&a); err != nil {
		respondError(w, http.StatusBadRequest, "failed to add automation", err)
		return
	}
	respondJSON(w, http.StatusCreated, &a)
}

func (s *Server) handleGetAutomation(w http.ResponseWriter, r *http.Request) {
	be, ok := s.base(w, r)
	if !ok {
		return
	}
	a, err := be.Store.Get(chi.URLParam(r, "automationId"))
	if err != nil {
		respondError(w, http.StatusNotFound, "automation not found", err)
		return
	}
	respondJSON(w, http.StatusOK, a)
}

func (s *Server) handleUpdateAutomation(w http.ResponseWriter, r *http.Request) {
	be, ok := s.base(w, r)
	if !ok {
		return
	}

	var a automation.Automation
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	a.ID = chi.URLParam(r, "automationId")
	a.BaseID = be.BaseID

	if err := be.UpdateAutomation(&a); err != nil {
		respondError(w, http.StatusBadRequest, "failed to update automation", err)
		return
	}
	respondJSON(w, http.StatusOK, &a)
}

func (s *Server) handleDeleteAutomation(w http.ResponseWriter, r *http.Request) {
	be, ok := s.base(w, r)
	if !ok {
		return
	}
	if err := be.DeleteAutomation(chi.URLParam(r, "automationId")); err != nil {
		respondError(w, http.StatusNotFound, "automation not found", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetFormula renders an automation's conditions in their formula and
// natural-language forms, as shown in the builder UI.
func (s *Server) handleGetFormula(w http.ResponseWriter, r *http.Request) {
	be, ok := s.base(w, r)
	if !ok {
		return
	}
	a, err := be.Store.Get(chi.URLParam(r, "automationId"))
	if err != nil {
		respondError(w, http.StatusNotFound, "automation not found", err)
		return
	}
	schema := be.Schemas[a.TableID]

	type rendered struct {
		ID      string `json:"id,omitempty"`
		Formula string `json:"formula"`
		Summary string `json:"summary"`
	}
	groups := make([]rendered, 0, len(a.ActionGroups))
	for _, g := range a.ActionGroups {
		groups = append(groups, rendered{
			ID:      g.ID,
			Formula: automation.ToFormula(g.Condition, schema),
			Summary: automation.ToSummary(g.Condition, schema),
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"condition": rendered{
			Formula: automation.ToFormula(a.Condition, schema),
			Summary: automation.ToSummary(a.Condition, schema),
		},
		"groups": groups,
	})
}

func (s *Server) handleDryRun(w http.ResponseWriter, r *http.Request) {
	be, ok := s.base(w, r)
	if !ok {
		return
	}
	a, err := be.Store.Get(chi.URLParam(r, "automationId"))
	if err != nil {
		respondError(w, http.StatusNotFound, "automation not found", err)
		return
	}

	var req DryRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.TableID == "" {
		req.TableID = a.TableID
	}

	tc := automation.NewTriggerContext(req.TableID, req.RecordID, req.Record, time.Now(), req.User)
	trace := be.Engine.DryRun(r.Context(), a, tc)
	respondJSON(w, http.StatusOK, trace)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	automationID := chi.URLParam(r, "automationId")
	limit := 20
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 && n <= 200 {
		limit = n
	}

	traces, err := s.runs.ListTraces(automationID, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list runs", err)
		return
	}
	if traces == nil {
		traces = []*automation.Trace{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"runs": traces,
	})
}

func (s *Server) handleRecordEvent(w http.ResponseWriter, r *http.Request) {
	baseID := chi.URLParam(r, "baseId")

	var ev dispatch.RecordEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	switch ev.Type {
	case automation.TriggerRowCreated, automation.TriggerRowUpdated, automation.TriggerRowDeleted:
	default:
		respondError(w, http.StatusBadRequest, fmt.Sprintf("unsupported event type %q", ev.Type), nil)
		return
	}

	traces, err := s.dispatcher.DispatchRecordEvent(r.Context(), baseID, ev)
	if err != nil {
		respondError(w, http.StatusNotFound, "failed to dispatch event", err)
		return
	}
	if traces == nil {
		traces = []*automation.Trace{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"triggered": len(traces),
		"runs":      traces,
	})
}

func (s *Server) handleIncomingWebhook(w http.ResponseWriter, r *http.Request) {
	baseID := chi.URLParam(r, "baseId")
	webhookID := chi.URLParam(r, "webhookId")

	var payload map[string]any
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			respondError(w, http.StatusBadRequest, "invalid webhook payload", err)
			return
		}
	}

	traces, err := s.dispatcher.DispatchWebhook(r.Context(), baseID, webhookID, payload)
	if err != nil {
		respondError(w, http.StatusNotFound, "failed to dispatch webhook", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"triggered": len(traces),
	})
}

func (s *Server) base(w http.ResponseWriter, r *http.Request) (*base.BaseEngine, bool) {
	be, err := s.manager.GetBase(chi.URLParam(r, "baseId"))
	if err != nil {
		respondError(w, http.StatusNotFound, "base not found", err)
		return nil, false
	}
	return be, true
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	respondJSON(w, status, resp)
}

func main() {
	cfg := loadConfig()

	server, err := NewServer(cfg)
	if err != nil {
		logger.Fatal("failed to create server", "error", err)
	}
	if server.db != nil {
		defer server.db.Close()
	}
	if server.email != nil {
		defer server.email.Close()
	}

	if err := server.dispatcher.Start(); err != nil {
		logger.Fatal("failed to start dispatcher", "error", err)
	}

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed to start", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	server.dispatcher.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := logger.Shutdown(ctx); err != nil {
		logger.Error("logger shutdown error", "error", err)
	}
}
