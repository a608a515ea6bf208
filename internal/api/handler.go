// Package api implements the geosync HTTP API on gin. Every record kind is
// served under /v1/:kind; writes require an HS256 bearer token whose roles
// claim carries the caller's permissions.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/constraint"
	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/metrics"
	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/models"
	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/store"
	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/upsert"
	"github.com/sirupsen/logrus"
)

const (
	actionRead   = "Read"
	actionCreate = "Create"
	actionUpdate = "Update"
	actionDelete = "Delete"

	defaultChangesLimit = 50
	defaultEditSource   = "api"
)

// Config holds the dependencies of the router
type Config struct {
	Registry      *upsert.Registry
	Tokens        TokenService
	Logger        logrus.FieldLogger
	Metrics       *metrics.Collector          // optional
	Health        func(context.Context) error // optional readiness probe
	CompareIgnore []string
	MaxBodyBytes  int64
}

type server struct {
	cfg    Config
	logger logrus.FieldLogger
}

// NewRouter creates the gin engine with all routes and middleware
func NewRouter(cfg Config) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 64 * 1024 * 1024
	}
	s := &server{cfg: cfg, logger: cfg.Logger}

	r := gin.New()
	r.Use(requestIDMiddleware(), loggingMiddleware(cfg.Logger), recoveryMiddleware(cfg.Logger))
	if cfg.Metrics != nil {
		r.Use(metricsMiddleware(cfg.Metrics))
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}
	r.GET("/health", s.health)

	read := r.Group("/v1/:kind", optionalAuth(cfg.Tokens))
	read.GET("/:id", s.get)
	read.GET("/:id/changes", s.changes)

	write := r.Group("/v1/:kind", requireAuth(cfg.Tokens))
	write.POST("", s.create)
	write.PUT("", s.batch)
	write.PUT("/:id", s.update)
	write.DELETE("/:id", s.delete)

	return r
}

func (s *server) health(c *gin.Context) {
	if s.cfg.Health != nil {
		if err := s.cfg.Health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "message": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handler resolves the :kind parameter, writing 404 for unknown kinds
func (s *server) handler(c *gin.Context) (upsert.Handler, bool) {
	h, err := s.cfg.Registry.Lookup(c.Param("kind"))
	if err != nil {
		abortJSON(c, http.StatusNotFound, "not_found", err.Error())
		return nil, false
	}
	return h, true
}

// permit writes 403 unless the caller may perform every action on kind
func permit(c *gin.Context, kind models.Kind, actions ...string) bool {
	roles := rolesOf(c)
	for _, action := range actions {
		if !constraint.HasPermission(roles, string(kind), action) {
			abortJSON(c, http.StatusForbidden, "forbidden", "missing permission "+string(kind)+"_"+action)
			return false
		}
	}
	return true
}

func edit(c *gin.Context) models.EditInfo {
	source := c.GetHeader("X-Edit-Source")
	if source == "" {
		source = defaultEditSource
	}
	return models.EditInfo{Editor: claimsOf(c).Editor(), Source: source}
}

func queryBool(c *gin.Context, name string) bool {
	v, err := strconv.ParseBool(c.DefaultQuery(name, "false"))
	return err == nil && v
}

func (s *server) readBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		abortJSON(c, http.StatusBadRequest, "bad_request", "failed to read request body: "+err.Error())
		return nil, false
	}
	return body, true
}

// visible reads a record with the caller's read constraints
func (s *server) visible(c *gin.Context, h upsert.Handler, id string, reduced bool) (models.Record, bool) {
	cons := constraint.FromRoles(rolesOf(c), string(h.Kind()), actionRead)
	rec, err := h.GetRecord(c.Request.Context(), id, reduced, cons.AccessRoles)
	if err == nil && !constraint.Allowed(rec, cons.Condition) {
		err = store.ErrNotFound
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		abortJSON(c, http.StatusNotFound, "not_found", upsert.ReasonNotFound)
		return nil, false
	case err != nil:
		s.internalError(c, err)
		return nil, false
	}
	return rec, true
}

func (s *server) get(c *gin.Context) {
	h, ok := s.handler(c)
	if !ok {
		return
	}
	rec, ok := s.visible(c, h, c.Param("id"), queryBool(c, "reduced"))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, rec)
}

type changeView struct {
	ID         int64           `json:"id"`
	EditSource string          `json:"editsource"`
	EditedBy   string          `json:"editedby"`
	Date       time.Time       `json:"date"`
	DataSource string          `json:"datasource"`
	Changes    json.RawMessage `json:"changes,omitempty"`
	Type       string          `json:"type"`
	License    string          `json:"license"`
}

func (s *server) changes(c *gin.Context) {
	h, ok := s.handler(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if _, ok := s.visible(c, h, id, false); !ok {
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultChangesLimit)))
	if err != nil || limit <= 0 {
		abortJSON(c, http.StatusBadRequest, "bad_request", "limit must be a positive integer")
		return
	}

	entries, err := h.Changes(c.Request.Context(), id, limit)
	if err != nil {
		s.internalError(c, err)
		return
	}
	out := make([]changeView, 0, len(entries))
	for _, e := range entries {
		out = append(out, changeView{
			ID:         e.ID,
			EditSource: e.EditSource,
			EditedBy:   e.EditedBy,
			Date:       e.Date.UTC(),
			DataSource: e.DataSource,
			Changes:    json.RawMessage(e.Changes),
			Type:       e.Type,
			License:    e.License,
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *server) create(c *gin.Context) {
	h, ok := s.handler(c)
	if !ok || !permit(c, h.Kind(), actionCreate) {
		return
	}
	body, ok := s.readBody(c)
	if !ok {
		return
	}
	cons := constraint.FromRoles(rolesOf(c), string(h.Kind()), actionCreate)
	req := upsert.Request{
		Info:   models.DataInfo{Operation: models.OperationCreate, ErrorWhenDataExists: true, SaveChangesToDB: true},
		Edit:   edit(c),
		Create: cons,
		Update: cons,
	}
	res, err := h.UpsertJSON(c.Request.Context(), body, req)
	s.writeResult(c, res, err)
}

func (s *server) update(c *gin.Context) {
	h, ok := s.handler(c)
	if !ok || !permit(c, h.Kind(), actionUpdate) {
		return
	}
	body, ok := s.readBody(c)
	if !ok {
		return
	}
	body, err := withID(body, c.Param("id"))
	if err != nil {
		abortJSON(c, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	cons := constraint.FromRoles(rolesOf(c), string(h.Kind()), actionUpdate)
	req := upsert.Request{
		Info:    models.DataInfo{Operation: models.OperationUpdate, ErrorWhenDataIsNew: true, SaveChangesToDB: true},
		Edit:    edit(c),
		Create:  cons,
		Update:  cons,
		Compare: s.compare(),
	}
	res, err := h.UpsertJSON(c.Request.Context(), body, req)
	s.writeResult(c, res, err)
}

func (s *server) batch(c *gin.Context) {
	h, ok := s.handler(c)
	if !ok || !permit(c, h.Kind(), actionCreate, actionUpdate) {
		return
	}
	mode, err := upsert.ParseMode(c.Query("mode"))
	if err != nil {
		abortJSON(c, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	body, ok := s.readBody(c)
	if !ok {
		return
	}
	roles := rolesOf(c)
	req := upsert.Request{
		Info:    models.DataInfo{Operation: models.OperationCreateAndUpdate, SaveChangesToDB: true},
		Edit:    edit(c),
		Create:  constraint.FromRoles(roles, string(h.Kind()), actionCreate),
		Update:  constraint.FromRoles(roles, string(h.Kind()), actionUpdate),
		Compare: s.compare(),
	}

	out, err := h.UpsertBatchJSON(c.Request.Context(), body, req, mode)
	var verr *upsert.BatchValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "validation_failed",
			"message": verr.Error(),
			"errors":  verr.Errors,
		})
	case errors.Is(err, upsert.ErrInvalidRecord):
		abortJSON(c, http.StatusBadRequest, "bad_request", err.Error())
	case err != nil:
		s.internalError(c, err)
	default:
		c.JSON(http.StatusOK, out)
	}
}

func (s *server) delete(c *gin.Context) {
	h, ok := s.handler(c)
	if !ok || !permit(c, h.Kind(), actionDelete) {
		return
	}
	req := upsert.DeleteRequest{
		Info:        models.DataInfo{Operation: models.OperationDelete, SaveChangesToDB: true},
		Edit:        edit(c),
		Constraints: constraint.FromRoles(rolesOf(c), string(h.Kind()), actionDelete),
		Reduced:     queryBool(c, "reduced"),
	}
	res, err := h.Delete(c.Request.Context(), c.Param("id"), req)
	s.writeResult(c, res, err)
}

func (s *server) compare() models.CompareConfig {
	return models.CompareConfig{CompareData: true, CompareImages: true, FieldsToIgnore: s.cfg.CompareIgnore}
}

func (s *server) writeResult(c *gin.Context, res upsert.Result, err error) {
	switch {
	case errors.Is(err, upsert.ErrInvalidRecord):
		abortJSON(c, http.StatusBadRequest, "bad_request", err.Error())
	case err != nil:
		s.internalError(c, err)
	default:
		c.JSON(StatusOf(res), res)
	}
}

func (s *server) internalError(c *gin.Context, err error) {
	_ = c.Error(err)
	s.logger.WithError(err).WithField("request_id", c.GetString(ctxRequestIDKey)).Error("request failed")
	abortJSON(c, http.StatusInternalServerError, "internal_error", upsert.ReasonInternalError)
}

// StatusOf maps an engine result to an HTTP status
func StatusOf(res upsert.Result) int {
	switch res.ErrorReason {
	case "":
		if res.Created > 0 {
			return http.StatusCreated
		}
		return http.StatusOK
	case upsert.ReasonNotAllowed:
		return http.StatusForbidden
	case upsert.ReasonNotFound, upsert.ReasonUpdateNotFound:
		return http.StatusNotFound
	case upsert.ReasonExistsAlready:
		return http.StatusConflict
	case upsert.ReasonBadRequest, upsert.ReasonNoData:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

var errIDMismatch = errors.New("record Id does not match the path")

// withID sets the record id of a JSON object to id. A different non-empty
// id in the body is rejected; null bodies pass through unchanged.
func withID(body []byte, id string) ([]byte, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return body, nil
	}
	for k, v := range doc {
		if !strings.EqualFold(k, "id") {
			continue
		}
		var got string
		if err := json.Unmarshal(v, &got); err != nil {
			return nil, errIDMismatch
		}
		if got != "" && !strings.EqualFold(got, id) {
			return nil, errIDMismatch
		}
		delete(doc, k)
	}
	raw, err := json.Marshal(id)
	if err != nil {
		return nil, err
	}
	doc["Id"] = raw
	return json.Marshal(doc)
}
