package authors

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/hondanabooks/hondana/pkg/database"
	"github.com/hondanabooks/hondana/pkg/errcodes"
	"github.com/hondanabooks/hondana/pkg/models"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

type RetrieveAuthorOptions struct {
	ID   *int
	Name *string
}

type ListAuthorsOptions struct {
	Limit  *int
	Offset *int

	includeTotal bool
}

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

// Resolve deduplicates a batch of author names against the authors table,
// creating rows only for the names that don't exist yet. Duplicate names
// within the batch collapse to one entry; the result has one row per distinct
// name, in first-seen order. It runs against the caller's handle so book
// writes can resolve authors inside their own transaction.
//
// Names are the only identity authors have, so an input that matches an
// existing row resolves to that row and everything else about the input is
// discarded.
func (svc *Service) Resolve(ctx context.Context, idb bun.IDB, names []string) ([]*models.Author, error) {
	seen := map[string]bool{}
	distinct := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		distinct = append(distinct, name)
	}
	if len(distinct) == 0 {
		return []*models.Author{}, nil
	}

	resolved := make(map[string]*models.Author, len(distinct))
	staged := []*models.Author{}
	now := time.Now()
	for _, name := range distinct {
		author, err := svc.retrieveByName(ctx, idb, name)
		if err != nil {
			return nil, err
		}
		if author != nil {
			resolved[name] = author
			continue
		}
		staged = append(staged, &models.Author{
			Name:      name,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	if len(staged) > 0 {
		inserted, err := svc.insertStaged(ctx, idb, staged)
		if err != nil {
			return nil, err
		}
		for _, author := range inserted {
			resolved[author.Name] = author
		}
	}

	authors := make([]*models.Author, 0, len(distinct))
	for _, name := range distinct {
		authors = append(authors, resolved[name])
	}
	return authors, nil
}

// insertStaged writes all staged authors in one batched insert. If the batch
// hits the unique name index, a concurrent writer created one of the names
// between our lookup and the insert; each staged name is then re-resolved
// individually so the loser of the race adopts the winner's row instead of
// surfacing a duplicate-author error.
func (svc *Service) insertStaged(ctx context.Context, idb bun.IDB, staged []*models.Author) ([]*models.Author, error) {
	_, err := idb.NewInsert().Model(&staged).Returning("*").Exec(ctx)
	if err == nil {
		return staged, nil
	}
	if !database.IsUniqueViolation(err) {
		return nil, errors.WithStack(err)
	}

	authors := make([]*models.Author, 0, len(staged))
	for _, author := range staged {
		existing, err := svc.retrieveByName(ctx, idb, author.Name)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			authors = append(authors, existing)
			continue
		}
		if _, err := idb.NewInsert().Model(author).Returning("*").Exec(ctx); err != nil {
			if database.IsUniqueViolation(err) {
				return nil, errcodes.Conflict("Author")
			}
			return nil, errors.WithStack(err)
		}
		authors = append(authors, author)
	}
	return authors, nil
}

func (svc *Service) retrieveByName(ctx context.Context, idb bun.IDB, name string) (*models.Author, error) {
	author := &models.Author{}
	err := idb.
		NewSelect().
		Model(author).
		Where("a.name = ?", name).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.WithStack(err)
	}
	return author, nil
}

func (svc *Service) RetrieveAuthor(ctx context.Context, opts RetrieveAuthorOptions) (*models.Author, error) {
	author := &models.Author{}

	q := svc.db.
		NewSelect().
		Model(author)

	if opts.ID != nil {
		q = q.Where("a.id = ?", *opts.ID)
	}
	if opts.Name != nil {
		q = q.Where("a.name = ?", *opts.Name)
	}

	err := q.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Author")
		}
		return nil, errors.WithStack(err)
	}

	return author, nil
}

func (svc *Service) ListAuthors(ctx context.Context, opts ListAuthorsOptions) ([]*models.Author, error) {
	a, _, err := svc.listAuthorsWithTotal(ctx, opts)
	return a, errors.WithStack(err)
}

func (svc *Service) ListAuthorsWithTotal(ctx context.Context, opts ListAuthorsOptions) ([]*models.Author, int, error) {
	opts.includeTotal = true
	return svc.listAuthorsWithTotal(ctx, opts)
}

func (svc *Service) listAuthorsWithTotal(ctx context.Context, opts ListAuthorsOptions) ([]*models.Author, int, error) {
	authors := []*models.Author{}
	var total int
	var err error

	q := svc.db.
		NewSelect().
		Model(&authors).
		Order("a.name ASC")

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

	return authors, total, nil
}

// AuthoredBooks returns all books referencing this author.
func (svc *Service) AuthoredBooks(ctx context.Context, authorID int) ([]*models.Book, error) {
	var books []*models.Book

	err := svc.db.
		NewSelect().
		Model(&books).
		Join("INNER JOIN book_authors ba ON ba.book_id = b.id").
		Where("ba.author_id = ?", authorID).
		Order("b.title ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return books, nil
}

// AuthoredBookCount returns the number of books referencing this author.
func (svc *Service) AuthoredBookCount(ctx context.Context, authorID int) (int, error) {
	count, err := svc.db.
		NewSelect().
		Model((*models.BookAuthor)(nil)).
		Where("ba.author_id = ?", authorID).
		Count(ctx)
	return count, errors.WithStack(err)
}
