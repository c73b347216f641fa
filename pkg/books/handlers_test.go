package books

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/hondanabooks/hondana/pkg/binder"
	"github.com/hondanabooks/hondana/pkg/errcodes"
	"github.com/hondanabooks/hondana/pkg/models"
	"github.com/labstack/echo/v4"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

func setupTestServer(t *testing.T) (*echo.Echo, *bun.DB) {
	t.Helper()

	db := setupTestDB(t)

	e := echo.New()
	b, err := binder.New()
	require.NoError(t, err)
	e.Binder = b
	e.HTTPErrorHandler = errcodes.NewHandler().Handle
	RegisterRoutes(e, db)

	return e, db
}

func executeRequest(t *testing.T, e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rr := httptest.NewRecorder()
	e.ServeHTTP(rr, req)
	return rr
}

func decodeBook(t *testing.T, body []byte) *models.Book {
	t.Helper()

	book := &models.Book{}
	require.NoError(t, json.Unmarshal(body, book))
	return book
}

func TestCreateBookEndpoint(t *testing.T) {
	e, _ := setupTestServer(t)

	rr := executeRequest(t, e, http.MethodPost, "/books", `{"title":"Dune","year":1965,"authors":[{"name":"Frank Herbert"}]}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	book := decodeBook(t, rr.Body.Bytes())
	assert.NotZero(t, book.ID)
	assert.Equal(t, "Dune", book.Title)
	require.NotNil(t, book.Year)
	assert.Equal(t, 1965, *book.Year)
	require.Len(t, book.Authors, 1)
	assert.Equal(t, "Frank Herbert", book.Authors[0].Name)
}

func TestCreateBookEndpointConflict(t *testing.T) {
	e, _ := setupTestServer(t)

	rr := executeRequest(t, e, http.MethodPost, "/books", `{"title":"Dune","year":1965}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = executeRequest(t, e, http.MethodPost, "/books", `{"title":"Dune","year":1965}`)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, rr.Body.String(), `"code":"conflict"`)
}

func TestCreateBookEndpointValidation(t *testing.T) {
	e, _ := setupTestServer(t)

	rr := executeRequest(t, e, http.MethodPost, "/books", `{"year":1965}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Contains(t, rr.Body.String(), `is required`)

	rr = executeRequest(t, e, http.MethodPost, "/books", `{"title":"Dune","authors":[{"name":""}]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestRetrieveBookEndpoint(t *testing.T) {
	e, db := setupTestServer(t)

	svc := NewService(db)
	book := &models.Book{Title: "Dune", Year: intptr(1965)}
	require.NoError(t, svc.CreateBook(context.Background(), book, []string{"Frank Herbert"}))

	rr := executeRequest(t, e, http.MethodGet, "/books/"+strconv.Itoa(book.ID), "")
	require.Equal(t, http.StatusOK, rr.Code)

	got := decodeBook(t, rr.Body.Bytes())
	assert.Equal(t, book.ID, got.ID)
	require.Len(t, got.Authors, 1)
	assert.Equal(t, "Frank Herbert", got.Authors[0].Name)
}

func TestRetrieveBookEndpointAbsent(t *testing.T) {
	e, _ := setupTestServer(t)

	rr := executeRequest(t, e, http.MethodGet, "/books/12345", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, rr.Body.String())

	rr = executeRequest(t, e, http.MethodGet, "/books/not-a-number", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestRetrieveBookByTitleEndpoint(t *testing.T) {
	e, db := setupTestServer(t)

	svc := NewService(db)
	book := &models.Book{Title: "Dune Messiah", Year: intptr(1969)}
	require.NoError(t, svc.CreateBook(context.Background(), book, nil))

	rr := executeRequest(t, e, http.MethodGet, "/books/title/Dune%20Messiah", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, book.ID, decodeBook(t, rr.Body.Bytes()).ID)

	rr = executeRequest(t, e, http.MethodGet, "/books/title/Nope", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestUpdateBookEndpoint(t *testing.T) {
	e, db := setupTestServer(t)

	svc := NewService(db)
	book := &models.Book{Title: "T", Year: intptr(2000)}
	require.NoError(t, svc.CreateBook(context.Background(), book, nil))

	rr := executeRequest(t, e, http.MethodPatch, "/books/"+strconv.Itoa(book.ID), `{"year":2001}`)
	require.Equal(t, http.StatusOK, rr.Code)

	got := decodeBook(t, rr.Body.Bytes())
	assert.Equal(t, "T", got.Title)
	require.NotNil(t, got.Year)
	assert.Equal(t, 2001, *got.Year)
	assert.Empty(t, got.Authors)
}

func TestUpdateBookEndpointNotFound(t *testing.T) {
	e, _ := setupTestServer(t)

	rr := executeRequest(t, e, http.MethodPatch, "/books/12345", `{"year":2001}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "Book not found.")
}

func TestDeleteBookEndpoint(t *testing.T) {
	e, db := setupTestServer(t)

	svc := NewService(db)
	book := &models.Book{Title: "Dune", Year: intptr(1965)}
	require.NoError(t, svc.CreateBook(context.Background(), book, nil))

	rr := executeRequest(t, e, http.MethodDelete, "/books/"+strconv.Itoa(book.ID), "")
	assert.Equal(t, http.StatusNoContent, rr.Code)

	// Deleting again is a no-op.
	rr = executeRequest(t, e, http.MethodDelete, "/books/"+strconv.Itoa(book.ID), "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestListBooksEndpoint(t *testing.T) {
	e, db := setupTestServer(t)

	svc := NewService(db)
	require.NoError(t, svc.CreateBook(context.Background(), &models.Book{Title: "Dune", Year: intptr(1965)}, []string{"Frank Herbert"}))
	require.NoError(t, svc.CreateBook(context.Background(), &models.Book{Title: "Dune Messiah", Year: intptr(1969)}, []string{"Frank Herbert"}))

	rr := executeRequest(t, e, http.MethodGet, "/books?limit=1", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var response struct {
		Books []*models.Book `json:"books"`
		Total int            `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
	assert.Equal(t, 2, response.Total)
	require.Len(t, response.Books, 1)
	assert.Equal(t, "Dune", response.Books[0].Title)
}
