package books

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/hondanabooks/hondana/pkg/authors"
	"github.com/hondanabooks/hondana/pkg/database"
	"github.com/hondanabooks/hondana/pkg/errcodes"
	"github.com/hondanabooks/hondana/pkg/models"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

type RetrieveBookOptions struct {
	ID    *int
	Title *string
}

type ListBooksOptions struct {
	Limit  *int
	Offset *int

	includeTotal bool
}

// BookPatch is a partial update. Nil fields are left untouched on the stored
// book. Authors replaces the whole association set, but only when it has at
// least one entry; an empty or absent list leaves the stored set unchanged,
// which means this operation can't clear a book's authors.
type BookPatch struct {
	Title   *string
	Year    *int
	Authors []string
}

type Service struct {
	db            *bun.DB
	authorService *authors.Service
}

func NewService(db *bun.DB) *Service {
	return &Service{db, authors.NewService(db)}
}

// CreateBook inserts the book and its author associations in one transaction.
// Author names are reconciled against existing rows; only unknown names create
// new authors. A failed insert rolls the whole thing back, including any
// authors created for it.
func (svc *Service) CreateBook(ctx context.Context, book *models.Book, authorNames []string) error {
	now := time.Now()
	if book.CreatedAt.IsZero() {
		book.CreatedAt = now
	}
	book.UpdatedAt = book.CreatedAt

	err := svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		resolved, err := svc.authorService.Resolve(ctx, tx, authorNames)
		if err != nil {
			return err
		}

		_, err = tx.
			NewInsert().
			Model(book).
			Returning("*").
			Exec(ctx)
		if err != nil {
			if database.IsUniqueViolation(err) {
				return errcodes.Conflict("Book")
			}
			return errors.WithStack(err)
		}

		if err := replaceAssociations(ctx, tx, book.ID, resolved); err != nil {
			return err
		}

		sortByName(resolved)
		book.Authors = resolved

		return nil
	})

	return errors.WithStack(err)
}

// UpdateBook merges the patch into the stored book and persists the result,
// all in one transaction. See BookPatch for the merge rules.
func (svc *Service) UpdateBook(ctx context.Context, id int, patch BookPatch) (*models.Book, error) {
	book := &models.Book{}

	err := svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		err := tx.
			NewSelect().
			Model(book).
			Where("b.id = ?", id).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errcodes.NotFound("Book")
			}
			return errors.WithStack(err)
		}

		if patch.Title != nil && *patch.Title != "" {
			book.Title = *patch.Title
		}
		if patch.Year != nil {
			book.Year = patch.Year
		}

		// Check the merged identity against other books before writing. The
		// unique index would catch this too, but an explicit check keeps the
		// conflict distinguishable from an author-name race.
		collides, err := tx.
			NewSelect().
			Model((*models.Book)(nil)).
			Where("b.title = ?", book.Title).
			Where("COALESCE(b.publish_year, -1) = COALESCE(?, -1)", book.Year).
			Where("b.id != ?", book.ID).
			Exists(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		if collides {
			return errcodes.Conflict("Book")
		}

		book.UpdatedAt = time.Now()
		_, err = tx.
			NewUpdate().
			Model(book).
			WherePK().
			Exec(ctx)
		if err != nil {
			if database.IsUniqueViolation(err) {
				return errcodes.Conflict("Book")
			}
			return errors.WithStack(err)
		}

		if len(patch.Authors) > 0 {
			resolved, err := svc.authorService.Resolve(ctx, tx, patch.Authors)
			if err != nil {
				return err
			}

			_, err = tx.
				NewDelete().
				Model((*models.BookAuthor)(nil)).
				Where("book_id = ?", book.ID).
				Exec(ctx)
			if err != nil {
				return errors.WithStack(err)
			}

			if err := replaceAssociations(ctx, tx, book.ID, resolved); err != nil {
				return err
			}

			sortByName(resolved)
			book.Authors = resolved

			return nil
		}

		// Load the untouched association set so the caller always gets the
		// full book back.
		existing := []*models.Author{}
		err = tx.
			NewSelect().
			Model(&existing).
			Join("INNER JOIN book_authors ba ON ba.author_id = a.id").
			Where("ba.book_id = ?", book.ID).
			Order("a.name ASC").
			Scan(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		book.Authors = existing

		return nil
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return book, nil
}

// DeleteBook removes the book and its author associations. Author rows are
// never deleted, they may be referenced by other books. Deleting an unknown id
// is a no-op.
func (svc *Service) DeleteBook(ctx context.Context, id int) error {
	err := svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.
			NewDelete().
			Model((*models.BookAuthor)(nil)).
			Where("book_id = ?", id).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = tx.
			NewDelete().
			Model((*models.Book)(nil)).
			Where("id = ?", id).
			Exec(ctx)
		return errors.WithStack(err)
	})

	return errors.WithStack(err)
}

// RetrieveBook returns (nil, nil) when no book matches, so handlers can
// respond with an empty body instead of an error.
func (svc *Service) RetrieveBook(ctx context.Context, opts RetrieveBookOptions) (*models.Book, error) {
	book := &models.Book{}

	q := svc.db.
		NewSelect().
		Model(book).
		Relation("Authors", func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.Order("a.name ASC")
		})

	if opts.ID != nil {
		q = q.Where("b.id = ?", *opts.ID)
	}
	if opts.Title != nil {
		q = q.Where("b.title = ?", *opts.Title)
	}

	err := q.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.WithStack(err)
	}

	return book, nil
}

func (svc *Service) ListBooks(ctx context.Context, opts ListBooksOptions) ([]*models.Book, error) {
	books, _, err := svc.listBooksWithTotal(ctx, opts)
	return books, errors.WithStack(err)
}

func (svc *Service) ListBooksWithTotal(ctx context.Context, opts ListBooksOptions) ([]*models.Book, int, error) {
	opts.includeTotal = true
	return svc.listBooksWithTotal(ctx, opts)
}

func (svc *Service) listBooksWithTotal(ctx context.Context, opts ListBooksOptions) ([]*models.Book, int, error) {
	books := []*models.Book{}
	var total int
	var err error

	q := svc.db.
		NewSelect().
		Model(&books).
		Relation("Authors", func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.Order("a.name ASC")
		}).
		Order("b.created_at ASC").
		Order("b.id ASC")

	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}
	if opts.Offset != nil {
		q = q.Offset(*opts.Offset)
	}

	if opts.includeTotal {
		total, err = q.ScanAndCount(ctx)
	} else {
		err = q.Scan(ctx)
	}
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}

	return books, total, nil
}

func replaceAssociations(ctx context.Context, tx bun.Tx, bookID int, resolved []*models.Author) error {
	if len(resolved) == 0 {
		return nil
	}

	joins := make([]*models.BookAuthor, 0, len(resolved))
	for _, author := range resolved {
		joins = append(joins, &models.BookAuthor{
			BookID:   bookID,
			AuthorID: author.ID,
		})
	}

	_, err := tx.
		NewInsert().
		Model(&joins).
		Exec(ctx)
	return errors.WithStack(err)
}

func sortByName(resolved []*models.Author) {
	sort.Slice(resolved, func(i, j int) bool {
		return resolved[i].Name < resolved[j].Name
	})
}
