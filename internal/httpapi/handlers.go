package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"approval-platform/internal/audit"
	"approval-platform/internal/auth"
	"approval-platform/internal/config"
	"approval-platform/internal/rbac"
	"approval-platform/internal/request"
	"approval-platform/internal/template"
	"approval-platform/pkg/logger"
	"approval-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth      *auth.Manager
	Templates *template.Service
	Requests  *request.Service
	Audit     *audit.Service

	// Redis + Workflow drive the per-workspace open-request cap.
	// Redis may be nil when the cap is disabled.
	Redis    *redis.Client
	Workflow config.WorkflowConfig
}

// identity pulls the authenticated caller from the request context.
func identity(c *gin.Context) (userID, workspaceID, role string, ok bool) {
	ctx := c.Request.Context()
	userID, err := auth.UserID(ctx)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return "", "", "", false
	}
	workspaceID, err = auth.WorkspaceID(ctx)
	if err != nil || workspaceID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "workspace_id required"})
		return "", "", "", false
	}
	role, _ = auth.Role(ctx)
	return userID, workspaceID, role, true
}

// writeError maps service errors to HTTP statuses. Validation failures
// carry the full reason list so clients can render every problem at once.
func writeError(c *gin.Context, err error) {
	var tplVErr *template.ValidationError
	var reqVErr *request.ValidationError

	switch {
	case errors.As(err, &tplVErr):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "validation failed", "reasons": tplVErr.Reasons})
	case errors.As(err, &reqVErr):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "validation failed", "reasons": reqVErr.Reasons})
	case errors.Is(err, template.ErrNotFound), errors.Is(err, request.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, template.ErrConflict), errors.Is(err, request.ErrConflict):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, request.ErrPermission):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "permission denied"})
	case errors.Is(err, template.ErrInvalidArgument), errors.Is(err, request.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		logger.FromGin(c).Error("internal error", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// --- Auth ---

type loginRequest struct {
	UserID      string `json:"user_id"`
	WorkspaceID string `json:"workspace_id"`
	Role        string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.WorkspaceID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, workspace_id, role required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.WorkspaceID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Templates ---

type stepPayload struct {
	AssigneeKind string `json:"assignee_kind"`
	RoleName     string `json:"role_name,omitempty"`
	RuleID       string `json:"rule_id,omitempty"`
	ActionLabel  string `json:"action_label"`
	Kind         string `json:"kind,omitempty"`
}

type templatePayload struct {
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Steps       []stepPayload `json:"steps"`
}

func (p templatePayload) steps() []template.StepDefinition {
	out := make([]template.StepDefinition, len(p.Steps))
	for i, s := range p.Steps {
		out[i] = template.StepDefinition{
			Index:        i,
			AssigneeKind: template.AssigneeKind(s.AssigneeKind),
			RoleName:     s.RoleName,
			RuleID:       s.RuleID,
			ActionLabel:  s.ActionLabel,
			Kind:         template.StepKind(s.Kind),
		}
	}
	return out
}

func (h Handlers) CreateTemplate(c *gin.Context) {
	_, workspaceID, _, ok := identity(c)
	if !ok {
		return
	}
	var p templatePayload
	if err := c.ShouldBindJSON(&p); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	t, err := h.Templates.Create(c.Request.Context(), workspaceID, template.CreateRequest{
		Name:        p.Name,
		Description: p.Description,
		Steps:       p.steps(),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (h Handlers) UpdateTemplate(c *gin.Context) {
	_, workspaceID, _, ok := identity(c)
	if !ok {
		return
	}
	var p templatePayload
	if err := c.ShouldBindJSON(&p); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	t, err := h.Templates.Update(c.Request.Context(), workspaceID, c.Param("template_id"), template.UpdateRequest{
		Name:        p.Name,
		Description: p.Description,
		Steps:       p.steps(),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

type archiveTemplateRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (h Handlers) ArchiveTemplate(c *gin.Context) {
	userID, workspaceID, _, ok := identity(c)
	if !ok {
		return
	}
	var p archiveTemplateRequest
	if err := c.ShouldBindJSON(&p); err != nil {
		// Body is optional for archive.
		p = archiveTemplateRequest{}
	}
	t, err := h.Templates.Archive(c.Request.Context(), workspaceID, c.Param("template_id"), p.Reason, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h Handlers) RestoreTemplate(c *gin.Context) {
	_, workspaceID, _, ok := identity(c)
	if !ok {
		return
	}
	t, err := h.Templates.Restore(c.Request.Context(), workspaceID, c.Param("template_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h Handlers) GetTemplate(c *gin.Context) {
	_, workspaceID, _, ok := identity(c)
	if !ok {
		return
	}
	t, err := h.Templates.Get(c.Request.Context(), workspaceID, c.Param("template_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h Handlers) ListTemplates(c *gin.Context) {
	_, workspaceID, _, ok := identity(c)
	if !ok {
		return
	}
	includeArchived := c.Query("include_archived") == "true"
	ts, err := h.Templates.List(c.Request.Context(), workspaceID, includeArchived)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"templates": ts})
}

// --- Requests ---

type createRequestPayload struct {
	TemplateID  string `json:"template_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Data        string `json:"data,omitempty"`
	Draft       bool   `json:"draft,omitempty"`
}

func openSlotKey(workspaceID string) string {
	return fmt.Sprintf("workflow:open:%s", workspaceID)
}

// capEnabled reports whether the per-workspace open-request cap applies.
func (h Handlers) capEnabled() bool {
	return h.Redis != nil && h.Workflow.MaxOpenRequests > 0
}

func (h Handlers) CreateRequest(c *gin.Context) {
	userID, workspaceID, _, ok := identity(c)
	if !ok {
		return
	}
	var p createRequestPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	// Drafts do not hold an open slot; they acquire one at submit.
	acquired := false
	if !p.Draft && h.capEnabled() {
		got, err := utils.AcquireOpenSlot(c.Request.Context(), h.Redis, openSlotKey(workspaceID), h.Workflow.MaxOpenRequests, h.Workflow.OpenSlotTTL)
		if err != nil {
			// The cap is a guard rail, not a correctness mechanism;
			// redis being down must not block approvals.
			logger.FromGin(c).Warn("open slot acquire failed, proceeding", "err", err)
		} else if !got {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "workspace open request limit reached"})
			return
		} else {
			acquired = true
		}
	}

	req, err := h.Requests.Create(c.Request.Context(), workspaceID, request.CreateInput{
		TemplateID:  p.TemplateID,
		InitiatorID: userID,
		Title:       p.Title,
		Description: p.Description,
		Data:        p.Data,
		Draft:       p.Draft,
	})
	if err != nil {
		if acquired {
			_ = utils.ReleaseOpenSlot(c.Request.Context(), h.Redis, openSlotKey(workspaceID))
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, req)
}

func (h Handlers) SubmitRequest(c *gin.Context) {
	userID, workspaceID, _, ok := identity(c)
	if !ok {
		return
	}

	acquired := false
	if h.capEnabled() {
		got, err := utils.AcquireOpenSlot(c.Request.Context(), h.Redis, openSlotKey(workspaceID), h.Workflow.MaxOpenRequests, h.Workflow.OpenSlotTTL)
		if err != nil {
			logger.FromGin(c).Warn("open slot acquire failed, proceeding", "err", err)
		} else if !got {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "workspace open request limit reached"})
			return
		} else {
			acquired = true
		}
	}

	req, err := h.Requests.Submit(c.Request.Context(), workspaceID, c.Param("request_id"), userID)
	if err != nil {
		if acquired {
			_ = utils.ReleaseOpenSlot(c.Request.Context(), h.Redis, openSlotKey(workspaceID))
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

type decisionPayload struct {
	Comment  string `json:"comment,omitempty"`
	Override bool   `json:"override,omitempty"`
}

func (h Handlers) ApproveRequest(c *gin.Context) {
	h.decide(c, true)
}

func (h Handlers) RejectRequest(c *gin.Context) {
	h.decide(c, false)
}

func (h Handlers) decide(c *gin.Context, approve bool) {
	userID, workspaceID, role, ok := identity(c)
	if !ok {
		return
	}
	var p decisionPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		// Comment and override are optional; an empty body is fine.
		p = decisionPayload{}
	}

	in := request.ActionInput{
		ActorID:   userID,
		ActorRole: role,
		Comment:   p.Comment,
		Override:  p.Override,
	}

	var (
		req request.Request
		err error
	)
	if approve {
		req, err = h.Requests.Approve(c.Request.Context(), workspaceID, c.Param("request_id"), in)
	} else {
		req, err = h.Requests.Reject(c.Request.Context(), workspaceID, c.Param("request_id"), in)
	}
	if err != nil {
		writeError(c, err)
		return
	}

	if req.Status.Terminal() && h.capEnabled() {
		if rerr := utils.ReleaseOpenSlot(c.Request.Context(), h.Redis, openSlotKey(workspaceID)); rerr != nil {
			logger.FromGin(c).Warn("open slot release failed", "err", rerr)
		}
	}
	c.JSON(http.StatusOK, req)
}

type cancelPayload struct {
	Reason string `json:"reason,omitempty"`
}

func (h Handlers) CancelRequest(c *gin.Context) {
	userID, workspaceID, role, ok := identity(c)
	if !ok {
		return
	}
	var p cancelPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		p = cancelPayload{}
	}
	req, err := h.Requests.Cancel(c.Request.Context(), workspaceID, c.Param("request_id"), userID, role, p.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	if h.capEnabled() {
		if rerr := utils.ReleaseOpenSlot(c.Request.Context(), h.Redis, openSlotKey(workspaceID)); rerr != nil {
			logger.FromGin(c).Warn("open slot release failed", "err", rerr)
		}
	}
	c.JSON(http.StatusOK, req)
}

func (h Handlers) GetRequest(c *gin.Context) {
	_, workspaceID, _, ok := identity(c)
	if !ok {
		return
	}
	req, entries, err := h.Requests.Get(c.Request.Context(), workspaceID, c.Param("request_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"request": req, "ledger": entries})
}

func (h Handlers) ListRequests(c *gin.Context) {
	_, workspaceID, _, ok := identity(c)
	if !ok {
		return
	}
	reqs, err := h.Requests.List(c.Request.Context(), workspaceID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": reqs})
}

// PendingInbox returns the caller's actionable approvals.
func (h Handlers) PendingInbox(c *gin.Context) {
	userID, workspaceID, _, ok := identity(c)
	if !ok {
		return
	}
	items, err := h.Requests.PendingForUser(c.Request.Context(), workspaceID, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending": items})
}

type commentPayload struct {
	Comment string `json:"comment"`
}

func (h Handlers) AddComment(c *gin.Context) {
	userID, workspaceID, _, ok := identity(c)
	if !ok {
		return
	}
	var p commentPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if err := h.Requests.AddComment(c.Request.Context(), workspaceID, c.Param("request_id"), userID, p.Comment); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "ok"})
}

// --- Audit ---

// ListAuditEvents returns the audit trail for a request, newest first.
func (h Handlers) ListAuditEvents(c *gin.Context) {
	_, workspaceID, _, ok := identity(c)
	if !ok {
		return
	}
	evs, err := h.Audit.List(c.Request.Context(), workspaceID, c.Param("request_id"))
	if err != nil {
		if errors.Is(err, audit.ErrInvalidEvent) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "workspace and request required"})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": evs})
}

// Convenience middleware bundles.

func RequireWorkspaceAndAnyRole(roles ...string) []gin.HandlerFunc {
	return []gin.HandlerFunc{rbac.RequireWorkspace(), rbac.RequireAnyRole(roles...)}
}
