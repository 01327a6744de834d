package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/imkarma/taskhive/internal/apperr"
	"github.com/imkarma/taskhive/internal/importer"
	"github.com/imkarma/taskhive/internal/pathguard"
	"github.com/imkarma/taskhive/internal/store"
)

// scopeRequest identifies the owner scope of an import.
type scopeRequest struct {
	UserID    string `json:"user_id"`
	ProjectID string `json:"project_id"`
	BoardID   string `json:"board_id"`
}

func (r scopeRequest) scope() store.OwnerScope {
	return store.OwnerScope{UserID: r.UserID, ProjectID: r.ProjectID, BoardID: r.BoardID}
}

type importOptions struct {
	DryRun         bool `json:"dry_run"`
	Strict         bool `json:"strict"`
	SkipDuplicates bool `json:"skip_duplicates"`
	TimeoutSeconds int  `json:"timeout_seconds"`
}

func (o importOptions) options() importer.Options {
	return importer.Options{
		DryRun:         o.DryRun,
		Strict:         o.Strict,
		SkipDuplicates: o.SkipDuplicates,
		Timeout:        time.Duration(o.TimeoutSeconds) * time.Second,
	}
}

type importRequest struct {
	scopeRequest
	importOptions
	Path string `json:"path"`
}

type importAllRequest struct {
	scopeRequest
	importOptions
	Paths []string `json:"paths"`
}

type scanRequest struct {
	Root              string `json:"root"`
	MaxDepth          int    `json:"max_depth"`
	MinChecklistItems int    `json:"min_checklist_items"`
}

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.store.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "database unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "status": "ok"})
}

// requireAgent reads the caller's agent identity and rejects the request
// when it is missing.
func (s *Server) requireAgent(c *gin.Context, op string) (string, bool) {
	agent := strings.TrimSpace(c.GetHeader(AgentHeader))
	if agent == "" {
		s.writeError(c, apperr.InvalidInput(op, AgentHeader+" header is required"))
		return "", false
	}
	return agent, true
}

func (s *Server) handleImport(c *gin.Context) {
	agent, ok := s.requireAgent(c, "import file")
	if !ok {
		return
	}
	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, apperr.InvalidInput("import file", err.Error()))
		return
	}
	if req.Path == "" {
		s.writeError(c, apperr.InvalidInput("import file", "path is required"))
		return
	}

	res, err := s.importer.ImportOne(c.Request.Context(), req.scope(), req.Path, req.options())
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.log.Info("import requested", "agent", agent, "path", res.File, "created", res.Created)

	status := http.StatusOK
	if perr := res.Err(); perr != nil {
		status = statusFor(apperr.KindOf(perr))
	}
	c.JSON(status, gin.H{
		"success": status == http.StatusOK,
		"created": res.Created,
		"errors":  res.Errors,
		"data":    res,
	})
}

func (s *Server) handleImportAll(c *gin.Context) {
	agent, ok := s.requireAgent(c, "import files")
	if !ok {
		return
	}
	var req importAllRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, apperr.InvalidInput("import files", err.Error()))
		return
	}

	batch, err := s.importer.ImportMany(c.Request.Context(), req.scope(), req.Paths, req.options())
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.log.Info("batch import requested", "agent", agent, "files", len(batch.Files), "created", batch.TotalCreated)

	status := http.StatusOK
	if perr := batch.Err(); perr != nil {
		status = statusFor(apperr.KindOf(perr))
	}
	c.JSON(status, gin.H{
		"success":       status == http.StatusOK,
		"total_created": batch.TotalCreated,
		"files":         batch.Files,
	})
}

func (s *Server) handleScan(c *gin.Context) {
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, apperr.InvalidInput("scan", err.Error()))
		return
	}

	found, err := s.importer.Scan(c.Request.Context(), req.Root, importer.ScanOptions{
		MaxDepth:          req.MaxDepth,
		MinChecklistItems: req.MinChecklistItems,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"candidates": found,
		"count":      len(found),
	})
}

func (s *Server) handleListTasks(c *gin.Context) {
	filter := store.TaskFilter{
		Phase:    c.Query("phase"),
		Category: c.Query("category"),
		Holder:   c.Query("holder"),
	}
	if userID := c.Query("user_id"); userID != "" {
		filter.Scope = &store.OwnerScope{
			UserID:    userID,
			ProjectID: c.Query("project_id"),
			BoardID:   c.Query("board_id"),
		}
	}
	if raw := c.Query("status"); raw != "" {
		st, ok := store.ParseStatus(raw)
		if !ok {
			s.writeError(c, apperr.InvalidInput("list tasks", "unknown status "+raw))
			return
		}
		filter.Status = st
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(c, apperr.InvalidInput("list tasks", "limit must be a non-negative integer"))
			return
		}
		filter.Limit = n
	}

	tasks, err := s.store.ListTasks(c.Request.Context(), filter)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if tasks == nil {
		tasks = []store.Task{}
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"tasks":   tasks,
		"count":   len(tasks),
	})
}

func (s *Server) handleGetTask(c *gin.Context) {
	task, err := s.store.GetTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	events, err := s.store.GetEvents(c.Request.Context(), task.ID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    task,
		"events":  events,
	})
}

func (s *Server) handleClaim(c *gin.Context) {
	agent, ok := s.requireAgent(c, "claim task")
	if !ok {
		return
	}

	task, err := s.ledger.Claim(c.Request.Context(), c.Param("id"), agent)
	if err != nil {
		s.writeError(c, err)
		return
	}

	resp := gin.H{"success": true, "data": task}
	if c.Query("brief") == "true" {
		text, err := s.briefs.Build(c.Request.Context(), task)
		if err != nil {
			s.writeError(c, err)
			return
		}
		resp["brief"] = text
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleRelease(c *gin.Context) {
	task, err := s.ledger.Release(c.Request.Context(), c.Param("id"), c.GetHeader(AgentHeader))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": task})
}

func (s *Server) handleListClaims(c *gin.Context) {
	tasks, err := s.ledger.ListClaimedBy(c.Request.Context(), c.Param("agent"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	if tasks == nil {
		tasks = []store.Task{}
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"tasks":   tasks,
		"count":   len(tasks),
	})
}

// statusFor maps an error kind to an HTTP status.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindInvalidInput:
		return http.StatusBadRequest
	case apperr.KindPathRejected:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindPartialImportFailure:
		return http.StatusMultiStatus
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err. Path rejections expose only the reason code and
// the per-path failures, never the underlying filesystem error.
func (s *Server) writeError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)
	body := gin.H{
		"success": false,
		"kind":    kind,
	}

	switch kind {
	case apperr.KindPathRejected:
		body["error"] = "path rejected"
		body["reason"] = apperr.ReasonOf(err)
		var be *pathguard.BatchError
		if errors.As(err, &be) {
			body["failures"] = be.Failures
		}
	case apperr.KindConflict:
		body["error"] = err.Error()
		body["holder"] = apperr.HolderOf(err)
	case apperr.KindInternalStore:
		s.log.Error("request failed", "path", c.FullPath(), "err", err)
		body["error"] = "internal error"
	default:
		body["error"] = err.Error()
	}

	c.JSON(status, body)
}
