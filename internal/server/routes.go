package server

import (
	"net/http"
	"strings"
)

// setupRoutes registers the HTTP surface
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Submission
	mux.HandleFunc("/crawl", s.app.CrawlHandler.SubmitHandler)           // POST - single task or ad-hoc config
	mux.HandleFunc("/crawl/batch", s.app.CrawlHandler.BatchHandler)      // POST - every task of a named job
	mux.HandleFunc("/crawl/queue", s.app.CrawlHandler.QueueStatsHandler) // GET - queue counts by status

	// Per-job status and results
	mux.HandleFunc("/crawl/status/", s.handleStatusRoutes)   // GET /{jobId}
	mux.HandleFunc("/crawl/results/", s.handleResultsRoutes) // GET /{jobId}

	// Registry and health
	mux.HandleFunc("/configurations", s.app.ConfigHandler.ListConfigurationsHandler) // GET
	mux.HandleFunc("/health", s.app.ConfigHandler.HealthHandler)                     // GET

	return mux
}

func (s *Server) handleStatusRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if len(r.URL.Path) <= len("/crawl/status/") || strings.Contains(strings.TrimPrefix(r.URL.Path, "/crawl/status/"), "/") {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	s.app.CrawlHandler.StatusHandler(w, r)
}

func (s *Server) handleResultsRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if len(r.URL.Path) <= len("/crawl/results/") || strings.Contains(strings.TrimPrefix(r.URL.Path, "/crawl/results/"), "/") {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	s.app.CrawlHandler.ResultsHandler(w, r)
}
