package main

import (
	"net/http"

	"github.com/annexops/registry/internal/authn"
	"github.com/annexops/registry/internal/observability"
	"github.com/annexops/registry/pkg/ratelimit"
)

// routes wires every handler onto a stdlib ServeMux using Go's
// method+pattern routing, then wraps it in the standard middleware chain:
// request ID, access log, tracing, auth. Rate limiting is applied per route
// (login and draft generation), not in this chain.
func (s *server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("GET /readiness", s.handleReadiness)

	mux.HandleFunc("POST /api/v1/organizations", s.handleBootstrapOrg)
	mux.Handle("POST /api/v1/auth/login",
		authn.RateLimitMiddleware(s.limiter, loginPolicy(s.cfg.LoginRPM))(http.HandlerFunc(s.handleLogin)))

	mux.HandleFunc("POST /api/v1/ai-systems", s.handleCreateSystem)
	mux.HandleFunc("GET /api/v1/ai-systems/{id}", s.handleGetSystem)
	mux.HandleFunc("PATCH /api/v1/ai-systems/{id}", s.handleUpdateSystem)
	mux.HandleFunc("DELETE /api/v1/ai-systems/{id}", s.handleDeleteSystem)

	mux.HandleFunc("POST /api/v1/ai-systems/{system_id}/versions", s.handleCreateVersion)
	mux.HandleFunc("GET /api/v1/ai-systems/{system_id}/versions/{id}", s.handleGetVersion)
	mux.HandleFunc("PATCH /api/v1/ai-systems/{system_id}/versions/{id}", s.handleUpdateVersion)
	mux.HandleFunc("POST /api/v1/ai-systems/{system_id}/versions/{id}/transition", s.handleTransitionVersion)
	mux.HandleFunc("POST /api/v1/ai-systems/{system_id}/versions/{id}/clone", s.handleCloneVersion)
	mux.HandleFunc("DELETE /api/v1/ai-systems/{system_id}/versions/{id}", s.handleDeleteVersion)
	mux.HandleFunc("GET /api/v1/ai-systems/{system_id}/versions/{id}/diff", s.handleDiffVersion)

	mux.HandleFunc("GET /api/v1/versions/{version_id}/sections", s.handleListSections)
	mux.HandleFunc("GET /api/v1/versions/{version_id}/sections/{key}", s.handleGetSection)
	mux.HandleFunc("PUT /api/v1/versions/{version_id}/sections/{key}", s.handleUpdateSection)

	mux.HandleFunc("POST /api/v1/evidence", s.handleCreateEvidence)
	mux.HandleFunc("GET /api/v1/evidence", s.handleListEvidence)
	mux.HandleFunc("GET /api/v1/evidence/{id}", s.handleGetEvidence)
	mux.HandleFunc("PATCH /api/v1/evidence/{id}", s.handleUpdateEvidence)
	mux.HandleFunc("DELETE /api/v1/evidence/{id}", s.handleDeleteEvidence)

	mux.HandleFunc("POST /api/v1/versions/{version_id}/mappings", s.handleCreateMapping)
	mux.HandleFunc("GET /api/v1/versions/{version_id}/mappings", s.handleListMappings)
	mux.HandleFunc("DELETE /api/v1/mappings/{id}", s.handleDeleteMapping)

	mux.HandleFunc("POST /api/v1/ai-systems/{system_id}/versions/{version_id}/exports", s.handleCreateExport)
	mux.HandleFunc("GET /api/v1/exports/{id}/download", s.handleDownloadExport)

	mux.HandleFunc("POST /api/v1/versions/{version_id}/logging-keys", s.handleEnableLogging)
	mux.HandleFunc("POST /api/v1/logging-keys/{id}/revoke", s.handleRevokeLoggingKey)
	mux.HandleFunc("POST /api/v1/decision-logs/ingest", s.handleIngestDecisionLog)
	mux.HandleFunc("GET /api/v1/versions/{version_id}/decision-logs", s.handleListDecisionLogs)
	mux.HandleFunc("GET /api/v1/versions/{version_id}/decision-logs/export", s.handleExportDecisionLogs)

	mux.HandleFunc("GET /api/v1/assessment-questions", s.handleListQuestions)
	mux.HandleFunc("POST /api/v1/versions/{version_id}/assessments", s.handleSubmitAssessment)
	mux.HandleFunc("GET /api/v1/versions/{version_id}/assessments", s.handleListAssessments)
	mux.HandleFunc("GET /api/v1/versions/{version_id}/assessments/latest", s.handleLatestAssessment)

	mux.Handle("POST /api/v1/versions/{version_id}/sections/{key}/draft",
		authn.RateLimitMiddleware(s.limiter, draftPolicy(s.cfg.LLMDraftRPM))(http.HandlerFunc(s.handleGenerateDraft)))
	mux.HandleFunc("GET /api/v1/versions/{version_id}/llm-interactions", s.handleListInteractions)

	var handler http.Handler = mux
	handler = authn.NewMiddleware(s.validator)(handler)
	handler = observability.TracingMiddleware("annexops-registry")(handler)
	handler = observability.AccessLogMiddleware(handler)
	handler = observability.RequestIDMiddleware(handler)
	return handler
}

func loginPolicy(rpm int) ratelimit.BackpressurePolicy {
	return ratelimit.BackpressurePolicy{RPM: rpm, Burst: rpm, WindowSeconds: 60}
}

func draftPolicy(rpm int) ratelimit.BackpressurePolicy {
	return ratelimit.BackpressurePolicy{RPM: rpm, Burst: rpm, WindowSeconds: 60}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if err := s.db.PingContext(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"not ready"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}
