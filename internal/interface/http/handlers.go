package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gymstats/gymstats-hub/internal/infrastructure/scheduler"
	"github.com/gymstats/gymstats-hub/pkg/logger"
)

// defaultHistoryLimit bounds /jobs/history without ?limit.
const defaultHistoryLimit = 50

// handleRoot lists the endpoints.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	endpoints := map[string]string{
		"health":    "/healthz",
		"readiness": "/readyz",
		"liveness":  "/livez",
		"jobs":      "/jobs",
		"history":   "/jobs/history",
		"enable":    "POST /jobs/{name}/enable",
		"disable":   "POST /jobs/{name}/disable",
	}
	if s.deps.Metrics != nil {
		endpoints["metrics"] = "/metrics"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":      "gymstats-worker",
		"version":   s.deps.Version,
		"endpoints": endpoints,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "healthy",
			"uptime":  s.Uptime().Round(time.Second).String(),
			"version": s.deps.Version,
		})
		return
	}

	status := s.deps.Health.Check(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health != nil {
		status := s.deps.Health.Check(r.Context())
		if !status.Ready {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"reason": status.Message,
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// jobDTO is the public view of a scheduled job.
type jobDTO struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Enabled     bool       `json:"enabled"`
	Schedule    string     `json:"schedule"`
	LastRun     *time.Time `json:"last_run,omitempty"`
	NextRun     *time.Time `json:"next_run,omitempty"`
	RunCount    int64      `json:"run_count"`
	FailCount   int64      `json:"fail_count"`
	LastError   string     `json:"last_error,omitempty"`
	LastLatency string     `json:"last_duration,omitempty"`
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if s.deps.Jobs == nil {
		writeJSON(w, http.StatusOK, map[string]any{"jobs": []jobDTO{}})
		return
	}

	infos := s.deps.Jobs.ListJobs()
	jobs := make([]jobDTO, 0, len(infos))
	for _, info := range infos {
		dto := jobDTO{
			Name:        info.Name,
			Description: info.Description,
			Enabled:     info.Enabled,
			Schedule:    info.Schedule,
			RunCount:    info.RunCount,
			FailCount:   info.FailCount,
			LastRun:     timePtr(info.LastRun),
			NextRun:     timePtr(info.NextRun),
		}
		if res := info.LastResult; res != nil {
			dto.LastLatency = res.Duration.String()
			if res.Error != nil {
				dto.LastError = res.Error.Error()
			}
		}
		jobs = append(jobs, dto)
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

// runDTO is one finished run.
type runDTO struct {
	Job       string     `json:"job"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	Duration  string     `json:"duration"`
	Success   bool       `json:"success"`
	Manual    bool       `json:"manual"`
	Error     string     `json:"error,omitempty"`
}

// handleJobHistory returns the latest runs, oldest first. ?job keeps the runs
// of one job, ?limit caps the count.
func (s *Server) handleJobHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSONError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}
	if s.deps.Jobs == nil {
		writeJSON(w, http.StatusOK, map[string]any{"runs": []runDTO{}})
		return
	}

	job := r.URL.Query().Get("job")
	runs := []runDTO{}
	for _, res := range s.deps.Jobs.GetHistory(0) {
		if job != "" && res.JobName != job {
			continue
		}
		dto := runDTO{
			Job:       res.JobName,
			StartedAt: timePtr(res.StartedAt),
			Duration:  res.Duration.String(),
			Success:   res.Success,
			Manual:    res.Manual,
		}
		if res.Error != nil {
			dto.Error = res.Error.Error()
		}
		runs = append(runs, dto)
	}
	if len(runs) > limit {
		runs = runs[len(runs)-limit:]
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// handleJobToggle switches scheduling of the {name} job on or off. Manual
// runs are not affected.
func (s *Server) handleJobToggle(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		if s.deps.Jobs == nil {
			writeJSONError(w, http.StatusNotFound, "job_not_found", "no job named "+name)
			return
		}

		toggle := s.deps.Jobs.DisableJob
		if enabled {
			toggle = s.deps.Jobs.EnableJob
		}
		if err := toggle(name); err != nil {
			if errors.Is(err, scheduler.ErrJobNotFound) {
				writeJSONError(w, http.StatusNotFound, "job_not_found", "no job named "+name)
				return
			}
			s.logger.Error("job toggle failed", logger.String("job", name), logger.Err(err))
			writeJSONError(w, http.StatusInternalServerError, "internal_server_error", err.Error())
			return
		}

		s.logger.Info("job toggled", logger.String("job", name), logger.Bool("enabled", enabled))
		writeJSON(w, http.StatusOK, map[string]any{"name": name, "enabled": enabled})
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}
