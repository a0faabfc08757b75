// Package devserver is an in-memory stand-in for the remote scan service.
// It serves the same REST surface the client consumes and is used for local
// runs and end-to-end tests.
package devserver

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/kappi/internal/client/models"
	"github.com/dmitrijs2005/kappi/internal/clock"
	"github.com/dmitrijs2005/kappi/internal/common"
	"github.com/dmitrijs2005/kappi/internal/logging"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"
)

type ctxKey struct{}

// Config tunes a Server. Zero values pick defaults.
type Config struct {
	Secret     []byte
	TokenTTL   time.Duration
	BcryptCost int
	Clock      clock.Clock
	Logger     logging.Logger
}

// Server implements the remote REST boundary in memory.
type Server struct {
	secret   []byte
	tokenTTL time.Duration
	cost     int
	clock    clock.Clock
	logger   logging.Logger
	store    *memoryStore
	router   *mux.Router

	mu         sync.Mutex
	calls      map[string]int
	rejectScan func(models.Scan) bool
}

func New(cfg Config) *Server {
	s := &Server{
		secret:   cfg.Secret,
		tokenTTL: cfg.TokenTTL,
		cost:     cfg.BcryptCost,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
		store:    newMemoryStore(),
		calls:    map[string]int{},
	}
	if len(s.secret) == 0 {
		s.secret = []byte("kappi-dev-secret")
	}
	if s.tokenTTL == 0 {
		s.tokenTTL = common.CredentialTTL
	}
	if s.cost == 0 {
		s.cost = bcrypt.DefaultCost
	}
	if s.clock == nil {
		s.clock = clock.Real()
	}
	if s.logger == nil {
		s.logger = logging.Nop()
	}

	r := mux.NewRouter()
	r.Use(s.countCalls)
	r.HandleFunc("/health", s.health).Methods(http.MethodGet)

	a := r.PathPrefix("/auth").Subrouter()
	a.HandleFunc("/register", s.register).Methods(http.MethodPost)
	a.HandleFunc("/login", s.login).Methods(http.MethodPost)
	a.HandleFunc("/social-login", s.socialLogin).Methods(http.MethodPost)
	a.Handle("/link-social", s.requireAuth(http.HandlerFunc(s.linkSocial))).Methods(http.MethodPost)
	a.Handle("/location", s.requireAuth(http.HandlerFunc(s.updateLocation))).Methods(http.MethodPut)

	r.Handle("/scans", s.requireAuth(http.HandlerFunc(s.saveScan))).Methods(http.MethodPost)
	r.Handle("/scans", s.requireAuth(http.HandlerFunc(s.listScans))).Methods(http.MethodGet)

	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Calls returns how many requests hit path so far.
func (s *Server) Calls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

// RejectScans makes POST /scans answer 500 for every scan fn matches. nil
// restores normal behaviour.
func (s *Server) RejectScans(fn func(models.Scan) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectScan = fn
}

// ScanCount returns the number of scans stored for the user with email.
func (s *Server) ScanCount(email string) int {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	u, ok := s.store.userByEmail(email)
	if !ok {
		return 0
	}
	return len(s.store.scansFor(u.ID))
}

func (s *Server) countCalls(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[r.URL.Path]++
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get(common.AuthorizationHeaderName)
		token, ok := strings.CutPrefix(header, common.BearerPrefix)
		if !ok || token == "" {
			writeMessage(w, http.StatusUnauthorized, "Authentication required")
			return
		}

		userID, err := userIDFromToken(token, s.secret, s.clock.Now)
		if err != nil {
			writeMessage(w, http.StatusUnauthorized, "Authentication required")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, userID)))
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) issue(w http.ResponseWriter, r *http.Request, status int, u *user, isNew bool) {
	token, err := generateToken(u.ID, s.secret, s.clock.Now(), s.tokenTTL)
	if err != nil {
		s.logger.Error(r.Context(), "sign token", "error", err)
		writeMessage(w, http.StatusInternalServerError, "Error issuing token")
		return
	}
	writeJSON(w, status, models.AuthResult{Token: token, User: u.profile(), IsNewUser: isNew})
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FullName string `json:"fullName"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		writeMessage(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "Error creating user")
		return
	}

	s.store.mu.Lock()
	if _, exists := s.store.userByEmail(req.Email); exists {
		s.store.mu.Unlock()
		writeMessage(w, http.StatusBadRequest, "User already exists")
		return
	}
	u := &user{ID: uuid.NewString(), FullName: req.FullName, Email: req.Email, PasswordHash: hash}
	s.store.addUser(u)
	s.store.mu.Unlock()

	s.logger.Info(r.Context(), "user registered", "user_id", u.ID)
	s.issue(w, r, http.StatusCreated, u, true)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Malformed request")
		return
	}

	s.store.mu.Lock()
	u, ok := s.store.userByEmail(req.Email)
	s.store.mu.Unlock()
	if !ok {
		writeMessage(w, http.StatusNotFound, "User not found")
		return
	}
	if len(u.PasswordHash) == 0 || bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(req.Password)) != nil {
		writeMessage(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	s.issue(w, r, http.StatusOK, u, false)
}

func (s *Server) socialLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email          string `json:"email"`
		FullName       string `json:"fullName"`
		Provider       string `json:"provider"`
		ProviderID     string `json:"providerId"`
		IsRegistration bool   `json:"isRegistration"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Provider == "" || req.ProviderID == "" {
		writeMessage(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	s.store.mu.Lock()
	u, exists := s.store.userByEmail(req.Email)
	isNew := false
	switch {
	case !exists:
		u = &user{ID: uuid.NewString(), FullName: req.FullName, Email: req.Email,
			Providers: []provider{{Provider: req.Provider, ProviderID: req.ProviderID}}}
		s.store.addUser(u)
		isNew = true
	case !u.linked(req.Provider, req.ProviderID):
		if req.IsRegistration {
			s.store.mu.Unlock()
			writeMessage(w, http.StatusBadRequest, "This email is already registered. Please use the login screen instead.")
			return
		}
		u.Providers = append(u.Providers, provider{Provider: req.Provider, ProviderID: req.ProviderID})
	}
	s.store.mu.Unlock()

	s.issue(w, r, http.StatusOK, u, isNew)
}

func (s *Server) linkSocial(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Provider   string `json:"provider"`
		ProviderID string `json:"providerId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Provider == "" || req.ProviderID == "" {
		writeMessage(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	u, ok := s.store.userByID(userIDFrom(r))
	if !ok {
		writeMessage(w, http.StatusNotFound, "User not found")
		return
	}
	if u.linked(req.Provider, req.ProviderID) {
		writeMessage(w, http.StatusBadRequest, "This account is already linked")
		return
	}
	u.Providers = append(u.Providers, provider{Provider: req.Provider, ProviderID: req.ProviderID})

	writeJSON(w, http.StatusOK, map[string]any{"user": u.profile()})
}

func (s *Server) updateLocation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Coordinates models.Coordinates `json:"coordinates"`
		Address     models.Address     `json:"address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Malformed request")
		return
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	u, ok := s.store.userByID(userIDFrom(r))
	if !ok {
		writeMessage(w, http.StatusNotFound, "User not found")
		return
	}
	u.Coordinates = &req.Coordinates
	u.Address = &req.Address

	writeJSON(w, http.StatusOK, map[string]any{"user": u.profile()})
}

func (s *Server) saveScan(w http.ResponseWriter, r *http.Request) {
	var scan models.Scan
	if err := json.NewDecoder(r.Body).Decode(&scan); err != nil || scan.Disease == "" {
		writeMessage(w, http.StatusBadRequest, "Malformed scan")
		return
	}

	s.mu.Lock()
	reject := s.rejectScan
	s.mu.Unlock()
	if reject != nil && reject(scan) {
		writeMessage(w, http.StatusInternalServerError, "Error saving scan result")
		return
	}

	userID := userIDFrom(r)
	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	if prev, ok := s.store.scanByClientID(userID, scan.ClientID); ok {
		writeJSON(w, http.StatusOK, map[string]any{"scan": prev})
		return
	}

	scan.ID = uuid.NewString()
	scan.CreatedAt = s.clock.Now().UTC().Format(time.RFC3339)
	s.store.addScan(userID, scan)

	writeJSON(w, http.StatusCreated, map[string]any{"scan": scan})
}

func (s *Server) listScans(w http.ResponseWriter, r *http.Request) {
	s.store.mu.Lock()
	scans := s.store.scansFor(userIDFrom(r))
	s.store.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"scans": scans})
}

func userIDFrom(r *http.Request) string {
	id, _ := r.Context().Value(ctxKey{}).(string)
	return id
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}
