package panel

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/rendis/wfgraph/internal/dag"
	"github.com/rendis/wfgraph/pkg/schema"
)

// maxBodyBytes bounds request bodies; large executions run to a few MB.
const maxBodyBytes = 32 << 20

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

// statusFor maps an error code to its HTTP status.
func statusFor(code string) int {
	switch code {
	case schema.ErrCodeValidation, schema.ErrCodeInvalidCoordinate, schema.ErrCodeExpression:
		return http.StatusBadRequest
	case schema.ErrCodeNotFound:
		return http.StatusNotFound
	case schema.ErrCodeInvalidState:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeGraphError writes err with the status of its code. GraphErrors keep
// their code, task and details in the body.
func writeGraphError(w http.ResponseWriter, err error) {
	status := statusFor(schema.ErrorCode(err))

	var ge *schema.GraphError
	if !errors.As(err, &ge) {
		writeError(w, status, err.Error())
		return
	}
	body := map[string]any{"error": ge.Message, "code": ge.Code}
	if ge.TaskRef != "" {
		body["task_ref"] = ge.TaskRef
	}
	if len(ge.Details) > 0 {
		body["details"] = ge.Details
	}
	writeJSON(w, status, body)
}

// writeValidation writes a failed ValidationResult as a 400.
func writeValidation(w http.ResponseWriter, result *schema.ValidationResult) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"error":    "validation failed",
		"code":     schema.ErrCodeValidation,
		"errors":   result.Errors,
		"warnings": result.Warnings,
	})
}

// readBody reads a bounded request body.
func readBody(r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(data) > maxBodyBytes {
		return nil, fmt.Errorf("body exceeds %d bytes", maxBodyBytes)
	}
	return data, nil
}

// decodeBody decodes a bounded JSON request body into v.
func decodeBody(r *http.Request, v any) error {
	data, err := readBody(r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// queryInt extracts an integer query param with a default value.
func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// coordinate reads ?id= and ?ref=. One of them is required.
func coordinate(r *http.Request) (dag.TaskCoordinate, error) {
	c := dag.TaskCoordinate{
		ID:  r.URL.Query().Get("id"),
		Ref: r.URL.Query().Get("ref"),
	}
	if c.ID == "" && c.Ref == "" {
		return c, schema.NewError(schema.ErrCodeValidation, "id or ref query parameter is required")
	}
	return c, nil
}
