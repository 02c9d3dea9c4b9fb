package api

import (
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/renderq/engine"
	"github.com/xraph/renderq/health"
	"github.com/xraph/renderq/job"
)

// API wires all Forge-style HTTP handlers together for the renderq system.
type API struct {
	eng    *engine.Engine
	router forge.Router
}

// New creates an API from a renderq Engine.
func New(eng *engine.Engine, router forge.Router) *API {
	return &API{eng: eng, router: router}
}

// Handler returns the fully assembled http.Handler with all routes.
func (a *API) Handler() http.Handler {
	if a.router == nil {
		a.router = forge.NewRouter()
	}
	a.RegisterRoutes(a.router)
	return a.router.Handler()
}

// RegisterRoutes registers all renderq API routes into the given Forge
// router with full OpenAPI metadata.
func (a *API) RegisterRoutes(router forge.Router) {
	a.registerJobRoutes(router)
	a.registerProviderRoutes(router)
	a.registerStatsRoutes(router)
}

// registerJobRoutes registers job management routes.
func (a *API) registerJobRoutes(router forge.Router) {
	g := router.Group("/v1", forge.WithGroupTags("jobs"))

	_ = g.POST("/jobs", a.submitJob,
		forge.WithSummary("Submit job"),
		forge.WithDescription("Queues a new video generation job."),
		forge.WithOperationID("submitJob"),
		forge.WithRequestSchema(SubmitJobRequest{}),
		forge.WithCreatedResponse(&job.Job{}),
		forge.WithErrorResponses(),
	)

	_ = g.GET("/jobs", a.listJobs,
		forge.WithSummary("List jobs"),
		forge.WithDescription("Returns jobs filtered by status and lane."),
		forge.WithOperationID("listJobs"),
		forge.WithRequestSchema(ListJobsRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Job list", []*job.Job{}),
		forge.WithErrorResponses(),
	)

	_ = g.GET("/jobs/:jobId", a.getJob,
		forge.WithSummary("Get job"),
		forge.WithDescription("Returns details of a specific job."),
		forge.WithOperationID("getJob"),
		forge.WithResponseSchema(http.StatusOK, "Job details", &job.Job{}),
		forge.WithErrorResponses(),
	)

	_ = g.POST("/jobs/:jobId/cancel", a.cancelJob,
		forge.WithSummary("Cancel job"),
		forge.WithDescription("Cancels a queued job immediately; a processing job is flagged and cancelled after its in-flight attempt."),
		forge.WithOperationID("cancelJob"),
		forge.WithResponseSchema(http.StatusOK, "Job after cancellation", &job.Job{}),
		forge.WithErrorResponses(),
	)

	_ = g.POST("/jobs/:jobId/retry", a.retryJob,
		forge.WithSummary("Retry job"),
		forge.WithDescription("Re-queues a failed or cancelled job if retry budget remains."),
		forge.WithOperationID("retryJob"),
		forge.WithResponseSchema(http.StatusOK, "Re-queued job", &job.Job{}),
		forge.WithErrorResponses(),
	)
}

// registerProviderRoutes registers provider health and probing routes.
func (a *API) registerProviderRoutes(router forge.Router) {
	g := router.Group("/v1", forge.WithGroupTags("providers"))

	_ = g.GET("/providers", a.listProviders,
		forge.WithSummary("List provider health"),
		forge.WithDescription("Returns live health records for all registered providers."),
		forge.WithOperationID("listProviders"),
		forge.WithResponseSchema(http.StatusOK, "Provider health records", []health.Record{}),
		forge.WithErrorResponses(),
	)

	_ = g.POST("/providers/:name/probe", a.probeProvider,
		forge.WithSummary("Probe provider"),
		forge.WithDescription("Runs one on-demand health probe against a provider and records the outcome."),
		forge.WithOperationID("probeProvider"),
		forge.WithResponseSchema(http.StatusOK, "Post-probe health record", health.Record{}),
		forge.WithErrorResponses(),
	)

	_ = g.POST("/providers/probe", a.probeAllProviders,
		forge.WithSummary("Probe all providers"),
		forge.WithDescription("Probes every registered provider concurrently."),
		forge.WithOperationID("probeAllProviders"),
		forge.WithResponseSchema(http.StatusOK, "Health records by provider", map[string]health.Record{}),
		forge.WithErrorResponses(),
	)
}

// registerStatsRoutes registers aggregate statistics routes.
func (a *API) registerStatsRoutes(router forge.Router) {
	g := router.Group("/v1", forge.WithGroupTags("stats"))

	_ = g.GET("/stats", a.stats,
		forge.WithSummary("Job stats"),
		forge.WithDescription("Returns aggregate job counts by status."),
		forge.WithOperationID("jobStats"),
		forge.WithResponseSchema(http.StatusOK, "Job statistics", StatsResponse{}),
		forge.WithErrorResponses(),
	)
}
