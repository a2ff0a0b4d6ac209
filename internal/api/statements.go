package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/mhkashizadeh/sqlitedb/internal/infrastructure/database"
)

// StatementRequest is the body of POST /query and POST /exec.
type StatementRequest struct {
	SQL  string `json:"sql"`
	Args []any  `json:"args"`
}

// QueryResponse is returned by POST /query.
type QueryResponse struct {
	Rows   []database.Row `json:"rows"`
	Count  int            `json:"count"`
	Faults []ColumnFault  `json:"faults,omitempty"`
}

// ColumnFault reports a column that decoded to NULL because of a fault.
type ColumnFault struct {
	Row    int    `json:"row"`
	Column string `json:"column"`
	Error  string `json:"error"`
}

// ExecResponse is returned by POST /exec.
type ExecResponse struct {
	LastInsertID int64 `json:"last_insert_id"`
	RowsAffected int64 `json:"rows_affected"`
}

// handleQuery runs a row-returning statement.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	req, args, ok := decodeStatement(w, r)
	if !ok {
		return
	}

	rows, err := s.store.ExecuteQuery(r.Context(), req.SQL, args...)
	if err != nil {
		writeDatabaseError(w, err)
		return
	}
	if rows == nil {
		rows = []database.Row{}
	}

	writeJSON(w, http.StatusOK, QueryResponse{
		Rows:   rows,
		Count:  len(rows),
		Faults: collectFaults(rows),
	})
}

// handleExec runs a statement that produces no rows.
func (s *Server) handleExec(w http.ResponseWriter, r *http.Request) {
	req, args, ok := decodeStatement(w, r)
	if !ok {
		return
	}

	res, err := s.store.ExecuteChange(r.Context(), req.SQL, args...)
	if err != nil {
		writeDatabaseError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ExecResponse{
		LastInsertID: res.LastInsertID,
		RowsAffected: res.RowsAffected,
	})
}

// decodeStatement reads a StatementRequest and converts its arguments to
// bindable values. It writes the error response itself when ok is false.
func decodeStatement(w http.ResponseWriter, r *http.Request) (req StatementRequest, args []any, ok bool) {
	if !decodeBody(w, r, &req) {
		return req, nil, false
	}
	if strings.TrimSpace(req.SQL) == "" {
		writeValidationError(w, "sql is required")
		return req, nil, false
	}

	args, err := bindArgs(req.Args)
	if err != nil {
		writeValidationError(w, err.Error())
		return req, nil, false
	}
	return req, args, true
}

// decodeBody decodes the JSON request body into v, numbers as json.Number.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeTooLarge,
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return false
		}
		writeBadRequest(w, "invalid JSON body")
		return false
	}
	return true
}

// bindArgs converts decoded JSON values to driver arguments. Whole
// numbers bind as INTEGER, other numbers as REAL; strings, booleans and
// null pass through. Arrays and objects are rejected.
func bindArgs(in []any) ([]any, error) {
	out := make([]any, len(in))
	for i, v := range in {
		switch tv := v.(type) {
		case nil, string, bool:
			out[i] = tv
		case json.Number:
			if n, err := tv.Int64(); err == nil {
				out[i] = n
				continue
			}
			f, err := tv.Float64()
			if err != nil {
				return nil, fmt.Errorf("args[%d]: invalid number %q", i, tv.String())
			}
			out[i] = f
		default:
			return nil, fmt.Errorf("args[%d]: unsupported type %T", i, v)
		}
	}
	return out, nil
}

// collectFaults lists the columns that carry a decode fault. Duplicate
// names report once, matching Row's first-wins lookup.
func collectFaults(rows []database.Row) []ColumnFault {
	var faults []ColumnFault
	for i, row := range rows {
		seen := make(map[string]bool, row.Len())
		for j := 0; j < row.Len(); j++ {
			name, _ := row.At(j)
			if seen[name] {
				continue
			}
			seen[name] = true
			if err := row.Fault(name); err != nil {
				faults = append(faults, ColumnFault{Row: i, Column: name, Error: err.Error()})
			}
		}
	}
	return faults
}
