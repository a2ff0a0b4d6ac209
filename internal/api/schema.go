package api

import (
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"
)

// identifierPattern restricts table names to plain SQL identifiers; they
// are spliced into DDL text and cannot be bound.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// CreateTableRequest is the body of POST /tables.
type CreateTableRequest struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
}

// handleListTables returns the user tables, sorted by name.
func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	names, err := s.store.TableNames(r.Context())
	if err != nil {
		writeDatabaseError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tables": names,
		"count":  len(names),
	})
}

// handleListIndexes returns index names, optionally filtered by ?table=.
func (s *Server) handleListIndexes(w http.ResponseWriter, r *http.Request) {
	table := r.URL.Query().Get("table")
	if table != "" && !identifierPattern.MatchString(table) {
		writeValidationError(w, "table must be a plain identifier")
		return
	}

	names, err := s.store.IndexNames(r.Context(), table)
	if err != nil {
		writeDatabaseError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"indexes": names,
		"count":   len(names),
	})
}

// handleCreateTable creates a table if it does not already exist.
// An empty column list is passed through so the store reports 401.
func (s *Server) handleCreateTable(w http.ResponseWriter, r *http.Request) {
	var req CreateTableRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !identifierPattern.MatchString(req.Name) {
		writeValidationError(w, "name must be a plain identifier")
		return
	}

	if err := s.store.CreateTable(r.Context(), req.Name, req.Columns); err != nil {
		writeDatabaseError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"name":    req.Name,
		"columns": req.Columns,
	})
}

// handleDropTable drops the named table.
func (s *Server) handleDropTable(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !identifierPattern.MatchString(name) {
		writeValidationError(w, "name must be a plain identifier")
		return
	}

	if err := s.store.DropTable(r.Context(), name); err != nil {
		writeDatabaseError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
