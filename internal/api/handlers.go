package api

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/goatkit/funcflow/internal/execlog"
	"github.com/goatkit/funcflow/internal/gateway"
	"github.com/goatkit/funcflow/internal/registry"
)

// functionSummary is the list-view projection of a descriptor.
type functionSummary struct {
	Name    string   `json:"name"`
	Params  []string `json:"params"`
	Summary string   `json:"summary"`
}

// handleListFunctions handles GET /api/v1/functions.
func (s *Server) handleListFunctions(c *gin.Context) {
	reg := s.store.Current()
	functions := make([]functionSummary, 0, reg.Len())
	for _, desc := range reg.Descriptors() {
		functions = append(functions, functionSummary{
			Name:    desc.Name,
			Params:  desc.ParamNames(),
			Summary: desc.Summary,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"epoch":     reg.Epoch(),
		"built_at":  reg.BuiltAt().UTC().Format(time.RFC3339),
		"total":     reg.Len(),
		"functions": functions,
	})
}

// handleDescribeFunction handles GET /api/v1/functions/*name.
func (s *Server) handleDescribeFunction(c *gin.Context) {
	name := strings.TrimPrefix(c.Param("name"), "/")
	reg := s.store.Current()
	desc, ok := reg.Lookup(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": (&registry.ResolutionError{Name: name}).Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"function":  desc,
		"signature": desc.Signature(),
		"epoch":     reg.Epoch(),
	})
}

// handleRebuild handles POST /api/v1/rebuild: an immediate registry
// rebuild outside the watcher's debounce path.
func (s *Server) handleRebuild(c *gin.Context) {
	reg, err := s.builder.Rebuild(c.Request.Context(), "forced")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"epoch":     reg.Epoch(),
		"functions": reg.Len(),
	})
}

type executeRequest struct {
	Name      string            `json:"name" binding:"required"`
	Arguments map[string]string `json:"arguments"`
	Origin    string            `json:"origin"`
}

// handleExecute handles POST /api/v1/execute.
func (s *Server) handleExecute(c *gin.Context) {
	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	origin := execlog.Origin(req.Origin)
	switch origin {
	case execlog.OriginExplicit, execlog.OriginAuto, execlog.OriginManual:
	case "":
		origin = execlog.OriginManual
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown origin " + strconv.Quote(req.Origin)})
		return
	}

	args := make([]gateway.Arg, 0, len(req.Arguments))
	for _, name := range sortedKeys(req.Arguments) {
		args = append(args, gateway.Arg{Name: name, Value: req.Arguments[name]})
	}

	result, err := s.gateway.Do(c.Request.Context(), gateway.Request{
		Name:   req.Name,
		Args:   args,
		Origin: origin,
	})
	if err != nil {
		status, body := executionErrorResponse(err)
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   execlog.StatusSuccess,
		"function": req.Name,
		"result":   result,
	})
}

// executionErrorResponse maps the gateway error taxonomy onto HTTP.
func executionErrorResponse(err error) (int, gin.H) {
	var resErr *registry.ResolutionError
	if errors.As(err, &resErr) {
		return http.StatusNotFound, gin.H{"status": execlog.StatusError, "error": err.Error()}
	}
	var argErr *registry.ArgumentError
	if errors.As(err, &argErr) {
		return http.StatusBadRequest, gin.H{
			"status":    execlog.StatusError,
			"error":     err.Error(),
			"signature": argErr.Signature,
		}
	}
	// Plugin-body failure: the call was well-formed, the function broke.
	return http.StatusOK, gin.H{"status": execlog.StatusError, "error": err.Error()}
}

type processRequest struct {
	Text     string `json:"text"`
	Question string `json:"question"`
}

// handleProcess handles POST /api/v1/process: the text-generation
// post-processing step, explicit tags plus auto-detection.
func (s *Server) handleProcess(c *gin.Context) {
	var req processRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	processed, outputs := s.pipeline.Process(c.Request.Context(), req.Text, req.Question)
	c.JSON(http.StatusOK, gin.H{
		"text":    processed,
		"outputs": outputs,
	})
}

type suggestRequest struct {
	Question string `json:"question" binding:"required"`
	TopN     int    `json:"top_n"`
}

// handleSuggest handles POST /api/v1/suggest: detection without
// execution, for UI hints.
func (s *Server) handleSuggest(c *gin.Context) {
	var req suggestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.TopN <= 0 {
		req.TopN = 3
	}
	c.JSON(http.StatusOK, gin.H{
		"suggestions": s.engine.Suggest(req.Question, req.TopN),
	})
}

// handleExecutions handles GET /api/v1/executions?limit=N.
func (s *Server) handleExecutions(c *gin.Context) {
	if s.execs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "execution log not configured"})
		return
	}
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	records, err := s.execs.Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"executions": records})
}

// sortedKeys keeps argument order stable so execution records are
// reproducible.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
