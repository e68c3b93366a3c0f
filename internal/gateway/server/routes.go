package server

import (
	"net/http"

	"siteplan/internal/gateway/handler"
	"siteplan/internal/gateway/middleware"
)

func NewMux(sessions *handler.SessionHandler, watch *handler.WatchHandler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/sessions/{id}", sessions.State)
	mux.HandleFunc("GET /api/sessions/{id}/watch", watch.Handle)
	mux.HandleFunc("GET /api/sessions/{id}/artifacts/{role}", sessions.Artifact)

	mux.HandleFunc("POST /api/sessions/{id}/upload", sessions.Upload)
	mux.HandleFunc("POST /api/sessions/{id}/choose", sessions.Choose)
	mux.HandleFunc("POST /api/sessions/{id}/boundary", sessions.ProceedToBoundary)
	mux.HandleFunc("POST /api/sessions/{id}/boundary/retry", sessions.RetryDetection)
	mux.HandleFunc("POST /api/sessions/{id}/boundary/edit", sessions.EditBoundary)
	mux.HandleFunc("POST /api/sessions/{id}/boundary/refine", sessions.RefineBoundary)
	mux.HandleFunc("POST /api/sessions/{id}/boundary/confirm", sessions.ConfirmBoundary)
	mux.HandleFunc("POST /api/sessions/{id}/access-points/decline", sessions.DeclineAccessPoints)
	mux.HandleFunc("POST /api/sessions/{id}/access-points/opt", sessions.OptAccessPoints)
	mux.HandleFunc("POST /api/sessions/{id}/access-points/confirm", sessions.ConfirmAccessPoints)
	mux.HandleFunc("POST /api/sessions/{id}/concepts/choose", sessions.ChooseConcept)
	mux.HandleFunc("POST /api/sessions/{id}/plan/refine", sessions.RefinePlan)
	mux.HandleFunc("POST /api/sessions/{id}/plan/edit", sessions.StartPlanEdit)
	mux.HandleFunc("POST /api/sessions/{id}/plan/visual-refine", sessions.VisualRefinePlan)
	mux.HandleFunc("POST /api/sessions/{id}/plan/analyze", sessions.AnalyzePlan)
	mux.HandleFunc("PUT /api/sessions/{id}/params", sessions.UpdateParams)
	mux.HandleFunc("POST /api/sessions/{id}/params/query", sessions.ParamsQuery)
	mux.HandleFunc("POST /api/sessions/{id}/back", sessions.Back)
	mux.HandleFunc("POST /api/sessions/{id}/reset", sessions.Reset)

	return middleware.CORS(mux)
}
