// Package content holds the portfolio entities and the read-through cache
// the retrieval pipeline serves from.
//
// Entities live in three collections (projects, blogs, pages) and are small
// enough to snapshot wholesale, which is what the cache does.
package content

import (
	"errors"
	"time"
)

// Collection names.
const (
	CollectionProjects = "projects"
	CollectionBlogs    = "blogs"
	CollectionPages    = "pages"
)

// Collections lists every content collection in canonical order.
var Collections = []string{CollectionProjects, CollectionBlogs, CollectionPages}

var (
	// ErrNotFound indicates the entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrStorageUnavailable indicates the backing store failed.
	ErrStorageUnavailable = errors.New("content storage unavailable")

	// ErrInvalidInput indicates a missing collection or entity ID.
	ErrInvalidInput = errors.New("invalid content input")
)

// Entity is a single portfolio item: a project, blog post or page.
type Entity struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Snippet returns the leading portion of the body for search payloads and
// prompt context, cut at a rune boundary.
func (e Entity) Snippet(maxRunes int) string {
	runes := []rune(e.Body)
	if len(runes) <= maxRunes {
		return e.Body
	}
	return string(runes[:maxRunes])
}
