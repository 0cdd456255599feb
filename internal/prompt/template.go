// Package prompt assembles the retrieval-augmented prompt for the chat
// model: named templates from SQLite, hybrid search context per collection
// and a truncated conversation history.
package prompt

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the named template does not exist.
	ErrNotFound = errors.New("template not found")

	// ErrStorageUnavailable indicates the template store failed.
	ErrStorageUnavailable = errors.New("template storage unavailable")
)

// ChatTemplateName is the template the chat pipeline loads per build.
const ChatTemplateName = "chat"

// DefaultChatTemplate is used when no stored template named "chat" exists.
const DefaultChatTemplate = `You are the assistant for a personal portfolio site. Answer using the context below. If the context does not cover the question, say so instead of inventing details.

Projects:
{{projects}}

Blog posts:
{{blogs}}

Pages:
{{pages}}

Additional context:
{{webContext}}

Conversation so far:
{{history}}

User: {{query}}
AI:`

// Template is a stored prompt template. Parameters lists the placeholder
// names the template expects, kept for editing UIs; substitution itself is
// driven by the build input, not this list.
type Template struct {
	Name       string
	Template   string
	Parameters []string
}

// Store reads and writes prompt templates, keyed by unique name.
type Store struct {
	db *sql.DB
}

// NewStore creates a template store over an opened database.
func NewStore(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	return &Store{db: db}, nil
}

// Get returns the named template.
func (s *Store) Get(ctx context.Context, name string) (Template, error) {
	var t Template
	var params string
	err := s.db.QueryRowContext(ctx,
		`SELECT name, template, parameters FROM prompt_templates WHERE name = ?`, name).
		Scan(&t.Name, &t.Template, &params)
	if errors.Is(err, sql.ErrNoRows) {
		return Template{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return Template{}, fmt.Errorf("%w: getting template %s: %v", ErrStorageUnavailable, name, err)
	}
	if err := json.Unmarshal([]byte(params), &t.Parameters); err != nil {
		return Template{}, fmt.Errorf("%w: template %s has malformed parameters: %v", ErrStorageUnavailable, name, err)
	}
	return t, nil
}

// Put inserts or replaces a template.
func (s *Store) Put(ctx context.Context, t Template) error {
	if t.Name == "" {
		return errors.New("template name is required")
	}
	params, err := json.Marshal(t.Parameters)
	if err != nil {
		return fmt.Errorf("marshaling parameters: %w", err)
	}
	if t.Parameters == nil {
		params = []byte("[]")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO prompt_templates (name, template, parameters)
		 VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
			template = excluded.template,
			parameters = excluded.parameters`,
		t.Name, t.Template, string(params))
	if err != nil {
		return fmt.Errorf("%w: storing template %s: %v", ErrStorageUnavailable, t.Name, err)
	}
	return nil
}
