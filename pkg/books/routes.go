package books

import (
	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"
)

// RegisterRoutes registers all of the routes for books.
func RegisterRoutes(e *echo.Echo, db *bun.DB) {
	h := &handler{
		bookService: NewService(db),
	}

	g := e.Group("/books")
	g.GET("", h.list)
	g.GET("/:id", h.retrieve)
	g.GET("/title/:title", h.retrieveByTitle)
	g.POST("", h.create)
	g.PATCH("/:id", h.update)
	g.DELETE("/:id", h.deleteBook)
}
