package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Book struct {
	bun.BaseModel `bun:"table:books,alias:b"`

	ID        int       `bun:",pk,nullzero" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Title     string    `bun:",nullzero" json:"title"`
	Year      *int      `bun:"publish_year" json:"year"`
	Authors   []*Author `bun:"m2m:book_authors,join:Book=Author" json:"authors"`
}

// BookAuthor joins books to their deduplicated authors. It has to be
// registered with bun (db.RegisterModel) for the m2m relation to resolve.
type BookAuthor struct {
	bun.BaseModel `bun:"table:book_authors,alias:ba"`

	BookID   int     `bun:",pk" json:"book_id"`
	Book     *Book   `bun:"rel:belongs-to,join:book_id=id" json:"-"`
	AuthorID int     `bun:",pk" json:"author_id"`
	Author   *Author `bun:"rel:belongs-to,join:author_id=id" json:"-"`
}
