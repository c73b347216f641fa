package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Author is a deduplicated author row. The name is globally unique and is the
// only identity an author has; rows are created implicitly through book writes
// and are never deleted or renamed.
type Author struct {
	bun.BaseModel `bun:"table:authors,alias:a"`

	ID        int       `bun:",pk,nullzero" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Name      string    `bun:",nullzero" json:"name"`
}
