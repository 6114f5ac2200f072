package api

import "net/http"

// indexResponse describes the demo surface for GET /.
type indexResponse struct {
	Message   string            `json:"message"`
	Endpoints map[string]string `json:"endpoints"`
	Note      string            `json:"note"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, indexResponse{
		Message: "postflight: deferred background tasks demo",
		Endpoints: map[string]string{
			"GET /test":                 "Schedules a background task that sleeps for 10 seconds",
			"POST /register":            "User registration with a deferred welcome email",
			"POST /upload":              "File upload with deferred processing pipeline",
			"GET /product/{id}":         "Product view with deferred analytics logging",
			"POST /invalidate-cache":    "Cache invalidation with deferred warming",
			"POST /complete-order":      "Order completion scheduling three independent tasks",
			"GET /v1/tasks":             "Task history, newest first",
			"GET /v1/requests/{id}/...": "Tasks and completion events for one request",
			"GET /v1/stats":             "Aggregate task statistics",
		},
		Note: "All endpoints return immediately while tasks run in the background",
	})
}
