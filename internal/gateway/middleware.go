package gateway

import (
	"net/http"

	"expensechat/internal/auth"
)

// corsAllowHeaders are the request headers browser clients may send.
const corsAllowHeaders = "authorization, x-client-info, apikey, content-type"

// OwnerAuth returns middleware that resolves "Authorization: Bearer <token>"
// to an owner id and stores it in the request context. Requests without a
// known token pass through unauthenticated; the chat layer then asks the user
// to sign in instead of touching the ledger.
func OwnerAuth(resolver *auth.TokenResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if owner, ok := resolver.Resolve(auth.BearerToken(r.Header.Get("Authorization"))); ok {
				r = r.WithContext(auth.WithOwner(r.Context(), owner))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CORS returns middleware that sets CORS headers and answers preflight
// requests. An empty list or "*" allows every origin.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			origin := r.Header.Get("Origin")
			switch {
			case allowsAny(allowedOrigins):
				h.Set("Access-Control-Allow-Origin", "*")
			case origin != "" && originAllowed(allowedOrigins, origin):
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			}
			h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func allowsAny(origins []string) bool {
	if len(origins) == 0 {
		return true
	}
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}

func originAllowed(origins []string, origin string) bool {
	if allowsAny(origins) {
		return true
	}
	for _, o := range origins {
		if o == origin {
			return true
		}
	}
	return false
}
