package controllers

import (
	"net/http"

	"github.com/gorilla/csrf"

	appctx "github.com/cavotieno/forgery-analyzer/context"
	"github.com/cavotieno/forgery-analyzer/internal/middleware"
	"github.com/cavotieno/forgery-analyzer/internal/models"
	"github.com/cavotieno/forgery-analyzer/internal/views"
)

// DashboardController renders the HTML pages.
type DashboardController struct {
	store             AnalysisStore
	homeTemplate      *views.Template
	dashboardTemplate *views.Template
}

func NewDashboardController(store AnalysisStore, homeTpl, dashboardTpl *views.Template) *DashboardController {
	return &DashboardController{
		store:             store,
		homeTemplate:      homeTpl,
		dashboardTemplate: dashboardTpl,
	}
}

// DashboardData holds data for the dashboard template.
type DashboardData struct {
	Stats  *models.Statistics
	Recent []*models.Analysis
}

// GetHome renders the landing page.
func (dc *DashboardController) GetHome(w http.ResponseWriter, r *http.Request) {
	dc.homeTemplate.ExecuteHTTP(w, r, &views.TemplateData{
		CurrentUser: appctx.ContextGetUser(r.Context()),
		CSRFToken:   csrf.TemplateField(r),
	})
}

// GetDashboard renders aggregate statistics and recent analyses.
func (dc *DashboardController) GetDashboard(w http.ResponseWriter, r *http.Request) {
	user := middleware.MustCurrentUser(r)

	stats, err := dc.store.Statistics(r.Context())
	if err != nil {
		http.Error(w, "Failed to load statistics", http.StatusInternalServerError)
		return
	}

	recent, err := dc.store.List(r.Context(), models.AnalysisFilter{Limit: 20})
	if err != nil {
		http.Error(w, "Failed to load analyses", http.StatusInternalServerError)
		return
	}

	dc.dashboardTemplate.ExecuteHTTP(w, r, &views.TemplateData{
		Title:       "Dashboard",
		CurrentUser: user,
		CSRFToken:   csrf.TemplateField(r),
		Data: &DashboardData{
			Stats:  stats,
			Recent: recent,
		},
	})
}
