package httpapi

import "net/http"

// apiKeyAuth returns middleware enforcing the X-API-Key allow-list
// (spec.md §6). An empty allow-list disables auth entirely — every request
// passes unchecked.
func apiKeyAuth(allowed []string) func(http.Handler) http.Handler {
	set := make(map[string]bool, len(allowed))
	for _, k := range allowed {
		set[k] = true
	}

	return func(next http.Handler) http.Handler {
		if len(set) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" || !set[key] {
				writeJSON(w, http.StatusUnauthorized, errorBody{Code: "unauthorized", Message: "missing or invalid X-API-Key"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
