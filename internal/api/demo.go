package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kdells/postflight/internal/jobs"
	"github.com/kdells/postflight/internal/model"
	"github.com/kdells/postflight/internal/tasks"
)

const maxBodySize = 1 << 20 // 1 MB

// Simulated job delays. Package variables rather than constants so tests can
// shrink them.
var (
	sleepTaskDelay  = 10 * time.Second
	emailDelay      = 2 * time.Second
	analyticsDelay  = 500 * time.Millisecond
	cacheWarmDelay  = 3 * time.Second
	uploadStepDelay = time.Second
)

// handleTest schedules one long sleep task and returns "ok" without waiting
// for it.
func (s *Server) handleTest(w http.ResponseWriter, r *http.Request) {
	list := tasks.FromContext(r.Context())
	taskID := list.Add("background_sleep", jobs.Sleep(s.logger, sleepTaskDelay))

	s.logger.Info("returning immediately", "task_id", taskID)
	s.writeJSON(w, http.StatusOK, "ok")
}

// registerRequest is the JSON body for POST /register.
type registerRequest struct {
	Email string `json:"email"`
}

type registerResponse struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Status string `json:"status"`
	Note   string `json:"note"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		s.writeError(w, http.StatusBadRequest, "a valid email is required")
		return
	}

	// Registering the user is the fast part; the welcome email is deferred.
	userID := "user-" + model.NewID()
	tasks.FromContext(r.Context()).Add("send_email",
		jobs.SendEmail(s.logger, req.Email, "Welcome to our service!", emailDelay))

	s.writeJSON(w, http.StatusOK, registerResponse{
		UserID: userID,
		Email:  req.Email,
		Status: "registered",
		Note:   "welcome email will be sent shortly",
	})
}

// uploadRequest is the JSON body for POST /upload.
type uploadRequest struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

type uploadResponse struct {
	FileID   string `json:"file_id"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	Status   string `json:"status"`
	Note     string `json:"note"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Filename == "" {
		s.writeError(w, http.StatusBadRequest, "filename is required")
		return
	}
	if req.Size < 0 {
		s.writeError(w, http.StatusBadRequest, "size must not be negative")
		return
	}

	fileID := "file-" + model.NewID()
	tasks.FromContext(r.Context()).Add("process_upload",
		jobs.ProcessUpload(s.logger, fileID, req.Size, uploadStepDelay))

	s.writeJSON(w, http.StatusOK, uploadResponse{
		FileID:   fileID,
		Filename: req.Filename,
		Size:     req.Size,
		Status:   "uploaded",
		Note:     "file is being processed in the background",
	})
}

type productResponse struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	InStock   bool    `json:"in_stock"`
}

func (s *Server) handleViewProduct(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "id")
	userID := r.URL.Query().Get("user_id")

	tasks.FromContext(r.Context()).Add("log_analytics",
		jobs.LogAnalytics(s.logger, "product_view", userID, map[string]any{
			"product_id": productID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339),
		}, analyticsDelay))

	s.writeJSON(w, http.StatusOK, productResponse{
		ProductID: productID,
		Name:      "Product " + productID,
		Price:     99.99,
		InStock:   true,
	})
}

// invalidateCacheRequest is the JSON body for POST /invalidate-cache.
type invalidateCacheRequest struct {
	CacheKey string `json:"cache_key"`
}

type invalidateCacheResponse struct {
	CacheKey string `json:"cache_key"`
	Status   string `json:"status"`
	Note     string `json:"note"`
}

func (s *Server) handleInvalidateCache(w http.ResponseWriter, r *http.Request) {
	var req invalidateCacheRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.CacheKey == "" {
		s.writeError(w, http.StatusBadRequest, "cache_key is required")
		return
	}

	tasks.FromContext(r.Context()).Add("warm_cache",
		jobs.WarmCache(s.logger, req.CacheKey, "expensive_computation_result", cacheWarmDelay))

	s.writeJSON(w, http.StatusOK, invalidateCacheResponse{
		CacheKey: req.CacheKey,
		Status:   "invalidated",
		Note:     "cache is being warmed in the background",
	})
}

// completeOrderRequest is the JSON body for POST /complete-order.
type completeOrderRequest struct {
	OrderID   string `json:"order_id"`
	UserEmail string `json:"user_email"`
}

type completeOrderResponse struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Note    string `json:"note"`
}

// handleCompleteOrder schedules three independent tasks for one request:
// confirmation email, analytics event, and a cache warm. They are dispatched
// in registration order but may finish in any order.
func (s *Server) handleCompleteOrder(w http.ResponseWriter, r *http.Request) {
	var req completeOrderRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.OrderID == "" {
		s.writeError(w, http.StatusBadRequest, "order_id is required")
		return
	}
	if req.UserEmail == "" || !strings.Contains(req.UserEmail, "@") {
		s.writeError(w, http.StatusBadRequest, "a valid user_email is required")
		return
	}

	list := tasks.FromContext(r.Context())
	list.Add("send_email",
		jobs.SendEmail(s.logger, req.UserEmail, "Order "+req.OrderID+" confirmed!", emailDelay))
	list.Add("log_analytics",
		jobs.LogAnalytics(s.logger, "order_completed", req.UserEmail, map[string]any{
			"order_id": req.OrderID,
		}, analyticsDelay))
	list.Add("warm_cache",
		jobs.WarmCache(s.logger, "user-orders-"+req.UserEmail, "fetch_user_order_history", cacheWarmDelay))

	s.writeJSON(w, http.StatusOK, completeOrderResponse{
		OrderID: req.OrderID,
		Status:  "completed",
		Note:    "email, analytics, and cache updates scheduled",
	})
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
