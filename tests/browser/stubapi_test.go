package browser_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// stubUser is a seeded account of the stub API. Every password is "secret".
type stubUser struct {
	ID             string `json:"_id"`
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	Email          string `json:"email"`
	Role           string `json:"role"`
	OrganizationID string `json:"organizationId"`
	IsActive       bool   `json:"isActive"`
}

// stubAPI is an in-memory stand-in for the remote coaching API.
type stubAPI struct {
	mu            sync.Mutex
	users         []stubUser
	sessions      []map[string]any
	created       int
	conflictsDown bool
}

func newStubAPI(now time.Time) *stubAPI {
	return &stubAPI{
		users: []stubUser{
			{ID: "manager-1", FirstName: "Grace", LastName: "Hopper", Email: "manager@test.com", Role: "manager", OrganizationID: "org-1", IsActive: true},
			{ID: "coach-1", FirstName: "Alan", LastName: "Kay", Email: "coach@test.com", Role: "coach", OrganizationID: "org-1", IsActive: true},
			{ID: "ent-1", FirstName: "Ada", LastName: "Lovelace", Email: "founder@test.com", Role: "entrepreneur", OrganizationID: "org-1", IsActive: true},
		},
		sessions: []map[string]any{{
			"_id":            "s1",
			"coachId":        "coach-1",
			"entrepreneurId": map[string]any{"_id": "ent-1", "firstName": "Ada", "lastName": "Lovelace"},
			"scheduledAt":    now.Add(time.Hour).UTC().Format(time.RFC3339),
			"duration":       60,
			"status":         "scheduled",
		}},
	}
}

func (s *stubAPI) createdCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.created
}

// failConflicts makes the conflict endpoint answer 503 from now on.
func (s *stubAPI) failConflicts() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conflictsDown = true
}

func writeStub(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func listBody(items any, total int) map[string]any {
	return map[string]any{
		"data": items,
		"meta": map[string]int{"page": 1, "limit": 100, "total": total},
	}
}

// handler serves the endpoints the web app calls.
func (s *stubAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, u := range s.users {
			if u.Email == body.Email && body.Password == "secret" {
				writeStub(w, http.StatusOK, map[string]any{
					"accessToken":  "access-" + u.ID,
					"refreshToken": "refresh-" + u.ID,
					"user":         u,
				})
				return
			}
		}
		writeStub(w, http.StatusUnauthorized, map[string]string{"message": "Invalid credentials"})
	})
	mux.HandleFunc("POST /auth/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /sessions", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		writeStub(w, http.StatusOK, listBody(s.sessions, len(s.sessions)))
	})
	mux.HandleFunc("POST /sessions", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		s.mu.Lock()
		defer s.mu.Unlock()
		s.created++
		body["_id"] = fmt.Sprintf("s%d", len(s.sessions)+1)
		body["status"] = "scheduled"
		s.sessions = append(s.sessions, body)
		writeStub(w, http.StatusCreated, map[string]any{"data": body})
	})
	mux.HandleFunc("POST /sessions/check-conflict", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		down := s.conflictsDown
		s.mu.Unlock()
		if down {
			writeStub(w, http.StatusServiceUnavailable, map[string]string{"message": "Service Unavailable"})
			return
		}
		writeStub(w, http.StatusOK, map[string]any{"hasConflict": false})
	})
	mux.HandleFunc("GET /users", func(w http.ResponseWriter, r *http.Request) {
		role := r.URL.Query().Get("role")
		s.mu.Lock()
		defer s.mu.Unlock()
		var out []stubUser
		for _, u := range s.users {
			if role == "" || u.Role == role {
				out = append(out, u)
			}
		}
		writeStub(w, http.StatusOK, listBody(out, len(out)))
	})
	mux.HandleFunc("GET /goals", func(w http.ResponseWriter, r *http.Request) {
		writeStub(w, http.StatusOK, listBody([]any{}, 0))
	})
	mux.HandleFunc("GET /payments", func(w http.ResponseWriter, r *http.Request) {
		writeStub(w, http.StatusOK, listBody([]any{}, 0))
	})
	mux.HandleFunc("GET /organizations/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeStub(w, http.StatusOK, map[string]any{"_id": r.PathValue("id"), "name": "Launchpad"})
	})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/login" && !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer access-") {
			writeStub(w, http.StatusUnauthorized, map[string]string{"message": "Unauthorized"})
			return
		}
		mux.ServeHTTP(w, r)
	})
}
