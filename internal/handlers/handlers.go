package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"librarydesk/internal/services"
)

// Services is everything the HTTP surface calls into.
type Services struct {
	Accounts  services.AccountService
	Library   services.LibraryService
	Issues    services.IssueService
	Dashboard services.DashboardService
	// Ping reports store reachability for /healthz. Optional.
	Ping func(ctx context.Context) error
}

type LibraryHandler struct {
	svc Services
	log *zap.Logger
}

func RegisterRoutes(r *gin.Engine, svc Services, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &LibraryHandler{svc: svc, log: logger.Named("http")}

	// Public endpoints
	r.GET("/healthz", h.healthz)
	r.POST("/auth/register", h.register)
	r.POST("/auth/login", h.login)

	authed := r.Group("/", Authenticate(svc.Accounts))

	// Catalogue
	authed.GET("/books", h.listBooks)
	authed.GET("/books/:id", h.getBook)
	authed.POST("/books", h.createBook)
	authed.PUT("/books/:id", h.updateBook)
	authed.DELETE("/books/:id", h.deleteBook)
	authed.GET("/categories", h.listCategories)
	authed.POST("/categories", h.createCategory)
	authed.DELETE("/categories/:id", h.deleteCategory)

	// Borrower endpoints
	issues := authed.Group("/issues")
	issues.POST("/request-issue/:book_id", h.requestIssue)
	issues.PUT("/request-return/:issue_id", h.requestReturn)
	issues.GET("/my-books", h.myBooks)
	issues.GET("/my-history", h.myHistory)

	// Admin issue desk
	desk := issues.Group("/admin")
	desk.GET("/pending-issues", h.pendingIssues)
	desk.GET("/pending-returns", h.pendingReturns)
	desk.GET("/history", h.history)
	desk.GET("/overdue", h.overdue)
	desk.POST("/overdue/recompute", h.overdue)
	desk.PUT("/approve-issue/:id", h.approveIssue)
	desk.PUT("/reject-issue/:id", h.rejectIssue)
	desk.PUT("/approve-return/:id", h.approveReturn)
	desk.PUT("/reject-return/:id", h.rejectReturn)

	// Dashboards
	authed.GET("/user/dashboard", h.userDashboard)
	authed.GET("/admin/dashboard/summary", h.adminSummary)
	authed.GET("/admin/dashboard/pending-issues", h.pendingIssues)
	authed.GET("/admin/dashboard/pending-returns", h.pendingReturns)
	authed.GET("/admin/dashboard/books", h.bookInventory)
}

func (h *LibraryHandler) healthz(c *gin.Context) {
	if h.svc.Ping != nil {
		if err := h.svc.Ping(c.Request.Context()); err != nil {
			h.log.Error("health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

// statusFor maps a service error kind to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrConflict), errors.Is(err, services.ErrInvalid):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// respondError writes {"error": msg}. Store failures are logged and hidden.
func (h *LibraryHandler) respondError(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		h.log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		msg = "internal server error"
	}
	if status == http.StatusUnauthorized {
		c.Header("WWW-Authenticate", "Bearer")
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}

func parseID(c *gin.Context, param, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		badRequest(c, "invalid "+what+" id")
		return uuid.Nil, false
	}
	return id, true
}
