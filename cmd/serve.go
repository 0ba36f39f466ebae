package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/compliance-cli/internal/deadline"
	"github.com/sells-group/compliance-cli/internal/model"
	"github.com/sells-group/compliance-cli/internal/notice"
	"github.com/sells-group/compliance-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the compliance HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
		}))

		api := &apiServer{env: env}
		api.routes(r)

		// Keep severities fresh while the API is up.
		go newChecker(env).Run(ctx)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			// The signal context is already cancelled; give in-flight
			// requests their own drain window.
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Error("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

type apiServer struct {
	env *env
}

func (a *apiServer) routes(r chi.Router) {
	r.Get("/health", a.handleHealth)

	r.Route("/clauses", func(r chi.Router) {
		r.Post("/", a.handleCreateClause)
		r.Post("/{id}/confirm", a.handleConfirmClause)
	})

	r.Post("/triggers", a.handleTrigger)

	r.Route("/deadlines", func(r chi.Router) {
		r.Get("/{id}", a.handleGetDeadline)
		r.Post("/{id}/waive", a.handleWaive)
		r.Post("/{id}/notice", a.handleDraftNotice)
	})

	r.Route("/notices", func(r chi.Router) {
		r.Get("/{id}", a.handleGetNotice)
		r.Patch("/{id}", a.handleEditNotice)
		r.Delete("/{id}", a.handleDeleteNotice)
		r.Post("/{id}/submit", a.handleSubmitNotice)
		r.Post("/{id}/send", a.handleSendNotice)
		r.Post("/{id}/confirm", a.handleConfirmDelivery)
		r.Post("/{id}/void", a.handleVoidNotice)
		r.Post("/{id}/fail", a.handleFailNotice)
	})

	r.Route("/projects/{projectID}", func(r chi.Router) {
		r.Get("/clauses", a.handleListClauses)
		r.Get("/deadlines", a.handleListDeadlines)
		r.Get("/notices", a.handleListNotices)
		r.Get("/score", a.handleScore)
		r.Get("/score/trend", a.handleTrend)
		r.Get("/health", a.handleProjectHealth)
		r.Get("/audit", a.handleAudit)
	})

	r.Post("/sweep", a.handleSweep)
}

// ---- handlers ----

func (a *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *apiServer) handleCreateClause(w http.ResponseWriter, r *http.Request) {
	var c model.ContractClause
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, eris.New("invalid request body"))
		return
	}
	created, err := a.env.Store.CreateClause(r.Context(), &c)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (a *apiServer) handleConfirmClause(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Actor  string                `json:"actor"`
		Clause *model.ContractClause `json:"clause"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Clause == nil {
		writeError(w, http.StatusBadRequest, eris.New("invalid request body"))
		return
	}
	clause, err := a.env.Store.ConfirmClause(r.Context(), chi.URLParam(r, "id"), req.Actor, req.Clause)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, clause)
}

func (a *apiServer) handleListClauses(w http.ResponseWriter, r *http.Request) {
	clauses, err := a.env.Store.ListClauses(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, clauses)
}

func (a *apiServer) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var req deadline.TriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, eris.New("invalid request body"))
		return
	}
	d, err := a.env.Deadlines.NotifyTrigger(r.Context(), req)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (a *apiServer) handleGetDeadline(w http.ResponseWriter, r *http.Request) {
	d, err := a.env.Deadlines.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (a *apiServer) handleListDeadlines(w http.ResponseWriter, r *http.Request) {
	filter := store.DeadlineFilter{
		ProjectID: chi.URLParam(r, "projectID"),
		Status:    model.DeadlineStatus(r.URL.Query().Get("status")),
	}
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
		filter.Limit = limit
	}
	deadlines, err := a.env.Deadlines.List(r.Context(), filter)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, deadlines)
}

func (a *apiServer) handleWaive(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
		Actor  string `json:"actor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, eris.New("invalid request body"))
		return
	}
	d, err := a.env.Deadlines.Waive(r.Context(), chi.URLParam(r, "id"), req.Reason, req.Actor)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (a *apiServer) handleDraftNotice(w http.ResponseWriter, r *http.Request) {
	var req notice.DraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, eris.New("invalid request body"))
		return
	}
	req.DeadlineID = chi.URLParam(r, "id")
	n, err := a.env.Notices.Draft(r.Context(), req)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

func (a *apiServer) handleGetNotice(w http.ResponseWriter, r *http.Request) {
	n, err := a.env.Notices.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (a *apiServer) handleListNotices(w http.ResponseWriter, r *http.Request) {
	filter := store.NoticeFilter{ProjectID: chi.URLParam(r, "projectID")}
	if st := r.URL.Query().Get("status"); st != "" {
		filter.Statuses = []model.NoticeStatus{model.NoticeStatus(st)}
	}
	notices, err := a.env.Notices.List(r.Context(), filter)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, notices)
}

func (a *apiServer) handleEditNotice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
		Actor   string `json:"actor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, eris.New("invalid request body"))
		return
	}
	n, err := a.env.Notices.Edit(r.Context(), chi.URLParam(r, "id"), req.Content, req.Actor)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (a *apiServer) handleDeleteNotice(w http.ResponseWriter, r *http.Request) {
	actor := r.URL.Query().Get("actor")
	if err := a.env.Notices.Delete(r.Context(), chi.URLParam(r, "id"), actor); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *apiServer) handleSubmitNotice(w http.ResponseWriter, r *http.Request) {
	actor := r.URL.Query().Get("actor")
	n, err := a.env.Notices.SubmitForReview(r.Context(), chi.URLParam(r, "id"), actor)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (a *apiServer) handleSendNotice(w http.ResponseWriter, r *http.Request) {
	actor := r.URL.Query().Get("actor")
	result, err := a.env.Notices.Send(r.Context(), chi.URLParam(r, "id"), actor)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	status := http.StatusOK
	if len(result.Succeeded) == 0 {
		// Total dispatch failure; the notice stayed in DRAFT.
		status = http.StatusBadGateway
	}
	writeJSON(w, status, result)
}

func (a *apiServer) handleConfirmDelivery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Method       model.DeliveryKind `json:"method"`
		Confirmation json.RawMessage    `json:"confirmation"`
		Actor        string             `json:"actor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, eris.New("invalid request body"))
		return
	}
	conf, err := model.DecodeConfirmation(req.Method, req.Confirmation)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	n, err := a.env.Notices.ConfirmDelivery(r.Context(), chi.URLParam(r, "id"), conf, req.Actor)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (a *apiServer) handleVoidNotice(w http.ResponseWriter, r *http.Request) {
	actor := r.URL.Query().Get("actor")
	n, err := a.env.Notices.Void(r.Context(), chi.URLParam(r, "id"), actor)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (a *apiServer) handleFailNotice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
		Actor  string `json:"actor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, eris.New("invalid request body"))
		return
	}
	n, err := a.env.Notices.MarkFailed(r.Context(), chi.URLParam(r, "id"), req.Reason, req.Actor)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (a *apiServer) handleScore(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"
	score, err := a.env.Scoring.Score(r.Context(), chi.URLParam(r, "projectID"), force)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, score)
}

func (a *apiServer) handleTrend(w http.ResponseWriter, r *http.Request) {
	g := model.Granularity(r.URL.Query().Get("granularity"))
	if g == "" {
		g = model.GranularityDaily
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	snaps, err := a.env.Scoring.Trend(r.Context(), chi.URLParam(r, "projectID"), g, limit)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, snaps)
}

func (a *apiServer) handleProjectHealth(w http.ResponseWriter, r *http.Request) {
	health, err := a.env.Scoring.Health(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, health)
}

func (a *apiServer) handleAudit(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entityType := r.URL.Query().Get("entity_type")
	entityID := r.URL.Query().Get("entity_id")

	var entries []model.AuditLogEntry
	var err error
	if entityType != "" || entityID != "" {
		entries, err = a.env.Trail.ForEntity(r.Context(), chi.URLParam(r, "projectID"), entityType, entityID, limit)
	} else {
		entries, err = a.env.Trail.ForProject(r.Context(), chi.URLParam(r, "projectID"), limit)
	}
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *apiServer) handleSweep(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	result, err := a.env.Deadlines.ReEvaluateAll(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	alerted := a.env.Alerter.SendAll(r.Context(), result.Escalations)
	for _, id := range alerted {
		if err := a.env.Deadlines.MarkAlerted(r.Context(), id); err != nil {
			zap.L().Error("failed to stamp alert time", zap.String("deadline_id", id), zap.Error(err))
		}
	}
	zap.L().Info("manual sweep complete",
		zap.Int("evaluated", result.Evaluated),
		zap.Duration("took", time.Since(start)),
	)
	writeJSON(w, http.StatusOK, result)
}

// ---- helpers ----

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// statusFor maps domain sentinels to HTTP statuses.
func statusFor(err error) int {
	switch {
	case eris.Is(err, model.ErrClauseNotFound),
		eris.Is(err, model.ErrDeadlineNotFound),
		eris.Is(err, model.ErrNoticeNotFound):
		return http.StatusNotFound
	case eris.Is(err, model.ErrInvalidTransition),
		eris.Is(err, model.ErrAlreadyLinked),
		eris.Is(err, model.ErrNotEditable),
		eris.Is(err, model.ErrDuplicateTrigger):
		return http.StatusConflict
	case eris.Is(err, model.ErrInvalidClauseConfiguration):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
