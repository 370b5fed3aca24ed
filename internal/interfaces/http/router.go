// Package http assembles the gin router and the HTTP server lifecycle.
package http

import (
	"github.com/gin-gonic/gin"

	appdocket "github.com/ipdocket/ipdocket/internal/application/docket"
	appmatter "github.com/ipdocket/ipdocket/internal/application/matter"
	apprenewal "github.com/ipdocket/ipdocket/internal/application/renewal"
	"github.com/ipdocket/ipdocket/internal/domain/docket"
	"github.com/ipdocket/ipdocket/internal/infrastructure/monitoring/logging"
	"github.com/ipdocket/ipdocket/internal/infrastructure/monitoring/prometheus"
	"github.com/ipdocket/ipdocket/internal/interfaces/http/handlers"
	"github.com/ipdocket/ipdocket/internal/interfaces/http/middleware"
)

// Deps bundles everything the router mounts.  Optional fields may be nil;
// their routes then answer with a not-implemented error or are skipped.
type Deps struct {
	Matters   *appmatter.Service
	Rules     *appdocket.RuleAdminService
	Workflow  *apprenewal.WorkflowService
	Fees      *apprenewal.FeeService
	Export    *apprenewal.ExportService
	Reminders *apprenewal.ReminderService
	Tasks     docket.TaskRepository
	Configs   docket.RenewalConfigRepository

	Checks  map[string]handlers.Check
	Logger  logging.Logger
	Metrics *prometheus.Metrics
	Mode    string
}

// NewRouter builds the fully wired gin engine.
func NewRouter(d Deps) *gin.Engine {
	if d.Mode != "" {
		gin.SetMode(d.Mode)
	}
	r := gin.New()
	r.Use(middleware.Recovery(d.Logger))
	r.Use(middleware.RequestLogger(d.Logger, d.Metrics))

	handlers.NewHealthHandler(d.Checks).Register(r)
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	api := r.Group("/api/v1")
	handlers.NewMatterHandler(d.Matters).Register(api)
	handlers.NewTaskHandler(d.Tasks).Register(api)
	handlers.NewRuleHandler(d.Rules, d.Configs).Register(api)
	handlers.NewRenewalHandler(d.Workflow, d.Fees, d.Export, d.Reminders).Register(api)
	return r
}
