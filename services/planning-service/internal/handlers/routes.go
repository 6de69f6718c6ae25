package handlers

import "net/http"

// Register mounts the planning routes on mux. adminAuth guards the
// maintenance route; nil leaves it unmounted.
func Register(mux *http.ServeMux, planning *PlanningHandler, admin *AdminHandler, adminAuth func(http.Handler) http.Handler) {
	mux.HandleFunc("GET /api/v1/availability", planning.Availability)
	mux.HandleFunc("GET /api/v1/availability/week", planning.Week)
	mux.HandleFunc("GET /api/v1/planning/week-window", planning.WeekWindow)
	mux.HandleFunc("GET /api/v1/planning/board", planning.Board)
	if admin != nil && adminAuth != nil {
		mux.Handle("POST /api/v1/admin/planning/deduplicate", adminAuth(http.HandlerFunc(admin.Deduplicate)))
	}
}
