package authors

import (
	"net/http"
	"strconv"

	"github.com/hondanabooks/hondana/pkg/errcodes"
	"github.com/hondanabooks/hondana/pkg/models"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

type handler struct {
	authorService *Service
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()

	params := ListAuthorsQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	authors, total, err := h.authorService.ListAuthorsWithTotal(ctx, ListAuthorsOptions{
		Limit:  &params.Limit,
		Offset: &params.Offset,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	response := map[string]interface{}{
		"authors": authors,
		"total":   total,
	}

	return errors.WithStack(c.JSON(http.StatusOK, response))
}

func (h *handler) retrieve(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Author")
	}

	author, err := h.authorService.RetrieveAuthor(ctx, RetrieveAuthorOptions{
		ID: &id,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	count, err := h.authorService.AuthoredBookCount(ctx, id)
	if err != nil {
		return errors.WithStack(err)
	}

	response := struct {
		*models.Author
		AuthoredBookCount int `json:"authored_book_count"`
	}{author, count}

	return errors.WithStack(c.JSON(http.StatusOK, response))
}

func (h *handler) authoredBooks(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Author")
	}

	// 404 if the author itself doesn't exist.
	if _, err := h.authorService.RetrieveAuthor(ctx, RetrieveAuthorOptions{ID: &id}); err != nil {
		return errors.WithStack(err)
	}

	books, err := h.authorService.AuthoredBooks(ctx, id)
	if err != nil {
		return errors.WithStack(err)
	}

	response := map[string]interface{}{
		"books": books,
		"total": len(books),
	}

	return errors.WithStack(c.JSON(http.StatusOK, response))
}
