package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *LibraryHandler) userDashboard(c *gin.Context) {
	dash, err := h.svc.Dashboard.UserDashboard(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dash)
}

func (h *LibraryHandler) adminSummary(c *gin.Context) {
	summary, err := h.svc.Dashboard.AdminSummary(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *LibraryHandler) bookInventory(c *gin.Context) {
	books, err := h.svc.Dashboard.BookInventory(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, books)
}
