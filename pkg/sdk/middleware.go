package sdk

import (
	"log/slog"
	"net/http"
)

// GateOptions tunes SessionGate behavior.
type GateOptions struct {
	// FailOpen lets requests through when the backend is unreachable.
	// Default is fail closed: no verdict, no access.
	FailOpen bool

	// BlockWatch additionally blocks requests while the session is in
	// WATCH. Default only blocks RESTRICT and REAUTH.
	BlockWatch bool
}

// SessionGate is HTTP middleware for applications embedding Vigil: it
// checks the enforcement state of the caller's session before letting a
// request through to protected handlers.
//
//	mux.Handle("/vault/", sdk.SessionGate(client, sessionFromCookie, opts, vaultHandler))
//
// sessionID extracts the verification session ID from the request (a
// cookie, a header, however the application binds users to sessions).
// Requests without a session ID are always rejected.
func SessionGate(client *Client, sessionID func(*http.Request) string, opts GateOptions, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := sessionID(r)
		if id == "" {
			http.Error(w, "no verification session", http.StatusUnauthorized)
			return
		}

		detail, err := client.GetSession(r.Context(), id)
		if err != nil {
			if opts.FailOpen && !IsNotFound(err) {
				slog.Warn("session gate failing open", "session_id", id, "error", err)
				next.ServeHTTP(w, r)
				return
			}
			http.Error(w, "verification unavailable", http.StatusForbidden)
			return
		}

		switch detail.Session.State {
		case StateRestrict, StateReauth:
			http.Error(w, "session is "+detail.Session.State, http.StatusForbidden)
			return
		case StateWatch:
			if opts.BlockWatch {
				http.Error(w, "session is WATCH", http.StatusForbidden)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}
