package main

import (
	"database/sql"
	"net/http"
	"time"

	"approval-platform/internal/httpapi"
	"approval-platform/internal/rbac"
	"approval-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc, db *sql.DB, rdb *redis.Client) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), db, 2*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "postgres": err.Error()})
			return
		}
		if err := rdb.Ping(c.Request.Context()).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "redis": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// AUTH routes (token issuance).
	// NOTE: This is a placeholder login route; real credential validation is not implemented.
	r.POST("/v1/auth/login", h.Login)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	v1.Use(rbac.RequireWorkspace())
	{
		// TEMPLATE routes. Definition management is owner-only; reads
		// are open to all workspace members.
		templates := v1.Group("/templates")
		{
			templates.GET("", h.ListTemplates)
			templates.GET("/:template_id", h.GetTemplate)

			write := templates.Group("")
			write.Use(rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleSuperAdmin))
			{
				write.POST("", h.CreateTemplate)
				write.PUT("/:template_id", h.UpdateTemplate)
				write.POST("/:template_id/archive", h.ArchiveTemplate)
				write.POST("/:template_id/restore", h.RestoreTemplate)
			}
		}

		// REQUEST routes. Any workspace member may initiate and act;
		// per-step ownership is enforced by the state machine, not RBAC.
		requests := v1.Group("/requests")
		requests.Use(rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleMember))
		{
			requests.POST("", h.CreateRequest)
			requests.GET("", h.ListRequests)
			requests.GET("/:request_id", h.GetRequest)
			requests.POST("/:request_id/submit", h.SubmitRequest)
			requests.POST("/:request_id/approve", h.ApproveRequest)
			requests.POST("/:request_id/reject", h.RejectRequest)
			requests.POST("/:request_id/cancel", h.CancelRequest)
			requests.POST("/:request_id/comments", h.AddComment)
		}

		// The approver's actionable inbox.
		v1.GET("/approvals/pending",
			rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleMember),
			h.PendingInbox)

		// AUDIT trail. Kept outside the member-only group so the hidden
		// compliance_officer role can read it; that role is granted here
		// explicitly and nowhere else.
		v1.GET("/requests/:request_id/audit",
			rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleMember, rbac.RoleComplianceOfficer),
			h.ListAuditEvents)
	}
}
