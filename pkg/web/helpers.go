package web

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
)

// MaxPathParamLength bounds identifiers taken from the URL path.
const MaxPathParamLength = 100

func RespondJSON(w http.ResponseWriter, logger *slog.Logger, status int, payload any) {
	// Handle nil payload
	if payload == nil {
		w.WriteHeader(status)
		return
	}

	response, err := json.Marshal(payload)
	if err != nil {
		logger.Error("Error encoding response to JSON", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(response)
}

func RespondError(w http.ResponseWriter, logger *slog.Logger, status int, message string) {
	RespondJSON(w, logger, status, map[string]string{"error": message})
}

// PathParam extracts a non-empty route parameter, decoded to the value the client escaped.
// chi routes on the escaped path when the URL carries one (an encoded '/' for example),
// so the parameter is unescaped in that case only. Whitespace is kept as part of the value.
// Returns the value and a boolean indicating success; on failure a 400 response has already been written.
func PathParam(w http.ResponseWriter, r *http.Request, logger *slog.Logger, key string) (string, bool) {
	value := chi.URLParam(r, key)
	if r.URL.RawPath != "" {
		unescaped, err := url.PathUnescape(value)
		if err != nil {
			RespondError(w, logger, http.StatusBadRequest, fmt.Sprintf("Invalid %s: %q", key, value))
			return "", false
		}
		value = unescaped
	}
	if value == "" || utf8.RuneCountInString(value) > MaxPathParamLength {
		RespondError(w, logger, http.StatusBadRequest, fmt.Sprintf("Invalid %s: %q", key, value))
		return "", false
	}
	return value, true
}
