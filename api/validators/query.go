package validators

import (
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/convtrack-backend/pkg/errors"
)

// ParseQueryInt reads an optional integer query parameter bounded by [min, max].
func ParseQueryInt(r *http.Request, key string, fallback, min, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	switch {
	case err != nil:
		return 0, fieldError(key, "must be numeric")
	case n < min || n > max:
		return 0, fieldError(key, "out of range").WithDetails(map[string]any{"field": key, "min": min, "max": max})
	}
	return n, nil
}

// SourceParam returns the lowercased ?source= value. Sources are short slugs
// so they are safe as metric labels and key segments.
func SourceParam(r *http.Request) (string, error) {
	source := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("source")))
	if source == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "source query parameter is required")
	}
	if err := validate.Var(source, "max=64,source_slug"); err != nil {
		return "", fieldError("source", "must be a slug of at most 64 characters")
	}
	return source, nil
}

func fieldError(field, problem string) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeValidation, "query parameter "+field+" "+problem).WithDetails(map[string]any{"field": field})
}
