package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"librarydesk/internal/repositories"
	"librarydesk/internal/services"
)

// ─── Books ────────────────────────────────────────────────────────────────────

type createBookRequest struct {
	Title       string `json:"title" binding:"required,max=100"`
	Author      string `json:"author" binding:"required,max=100"`
	ISBN        string `json:"isbn" binding:"required,max=20"`
	TotalCopies *int   `json:"total_copies" binding:"required,min=0"`
	CategoryID  string `json:"category_id" binding:"required,uuid"`
}

func (h *LibraryHandler) createBook(c *gin.Context) {
	var req createBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	book, err := h.svc.Library.CreateBook(c.Request.Context(), actorFrom(c), services.NewBook{
		Title:       req.Title,
		Author:      req.Author,
		ISBN:        req.ISBN,
		TotalCopies: *req.TotalCopies,
		CategoryID:  uuid.MustParse(req.CategoryID),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, book)
}

type updateBookRequest struct {
	Title       *string `json:"title" binding:"omitempty,min=1,max=100"`
	Author      *string `json:"author" binding:"omitempty,min=1,max=100"`
	TotalCopies *int    `json:"total_copies" binding:"omitempty,min=0"`
	CategoryID  *string `json:"category_id" binding:"omitempty,uuid"`
}

func (h *LibraryHandler) updateBook(c *gin.Context) {
	bookID, ok := parseID(c, "id", "book")
	if !ok {
		return
	}
	var req updateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	changes := services.BookChanges{
		Title:       req.Title,
		Author:      req.Author,
		TotalCopies: req.TotalCopies,
	}
	if req.CategoryID != nil {
		id := uuid.MustParse(*req.CategoryID)
		changes.CategoryID = &id
	}

	book, err := h.svc.Library.UpdateBook(c.Request.Context(), actorFrom(c), bookID, changes)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

func (h *LibraryHandler) deleteBook(c *gin.Context) {
	bookID, ok := parseID(c, "id", "book")
	if !ok {
		return
	}
	if err := h.svc.Library.DeleteBook(c.Request.Context(), actorFrom(c), bookID); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Book deleted successfully"})
}

func (h *LibraryHandler) getBook(c *gin.Context) {
	bookID, ok := parseID(c, "id", "book")
	if !ok {
		return
	}
	book, err := h.svc.Library.GetBook(c.Request.Context(), bookID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

type listBooksQuery struct {
	Search     string `form:"search"`
	CategoryID string `form:"category_id" binding:"omitempty,uuid"`
	Page       int    `form:"page,default=1" binding:"min=1"`
	Size       int    `form:"size,default=5" binding:"min=1,max=50"`
	SortBy     string `form:"sort_by,default=title"`
	Order      string `form:"order,default=asc" binding:"oneof=asc desc"`
}

func (h *LibraryHandler) listBooks(c *gin.Context) {
	var q listBooksQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err.Error())
		return
	}

	query := repositories.BookQuery{
		Search: q.Search,
		SortBy: q.SortBy,
		Desc:   q.Order == "desc",
		Page:   q.Page,
		Size:   q.Size,
	}
	if q.CategoryID != "" {
		id := uuid.MustParse(q.CategoryID)
		query.CategoryID = &id
	}

	page, err := h.svc.Library.SearchBooks(c.Request.Context(), query)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// ─── Categories ───────────────────────────────────────────────────────────────

type createCategoryRequest struct {
	Name string `json:"name" binding:"required,max=100"`
}

func (h *LibraryHandler) createCategory(c *gin.Context) {
	var req createCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	category, err := h.svc.Library.CreateCategory(c.Request.Context(), actorFrom(c), req.Name)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, category)
}

func (h *LibraryHandler) listCategories(c *gin.Context) {
	categories, err := h.svc.Library.ListCategories(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, categories)
}

func (h *LibraryHandler) deleteCategory(c *gin.Context) {
	categoryID, ok := parseID(c, "id", "category")
	if !ok {
		return
	}
	if err := h.svc.Library.DeleteCategory(c.Request.Context(), actorFrom(c), categoryID); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Category deleted successfully"})
}
