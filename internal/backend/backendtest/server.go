// Package backendtest runs an in-process fake of the try-on backend.
//
// It implements the REST contract the client depends on (identity, photo
// lists, uploads, try-on, image bytes) over an httptest.Server, backed by
// in-memory maps. Tests add users and photos, then point a backend.Client at
// Server.URL. Individual responses can be forced to fail with FailNext.
package backendtest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/tryon-studio/internal/model"
)

// Server is a running fake backend.
type Server struct {
	*httptest.Server
	Tokens *TokenService

	mu       sync.Mutex
	users    map[int64]model.Identity
	revoked  map[int64]bool
	photos   map[int64]map[model.Kind][]model.PhotoRef
	shop     []model.PhotoRef
	nextID   int64
	results  int
	failures map[string][]failure
	requests []string
}

type failure struct {
	status int
	detail string
}

// New starts a fake backend and stops it when the test finishes.
func New(t testing.TB) *Server {
	t.Helper()

	tokens, err := NewTokenService("backendtest-secret-0123456789")
	if err != nil {
		t.Fatalf("backendtest: %v", err)
	}

	s := &Server{
		Tokens:   tokens,
		users:    make(map[int64]model.Identity),
		revoked:  make(map[int64]bool),
		photos:   make(map[int64]map[model.Kind][]model.PhotoRef),
		shop:     []model.PhotoRef{},
		nextID:   1,
		failures: make(map[string][]failure),
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.record)
	r.Use(s.injectFailures)

	r.Get("/images/shop-clothes", s.handleShop)
	r.Get("/images/{category}/{filename}", s.handleImage)

	r.Group(func(r chi.Router) {
		r.Use(s.requireUser)
		r.Get("/users/me", s.handleMe)
		r.Get("/images/persons", s.handleList(model.KindPerson))
		r.Get("/images/my-clothes", s.handleList(model.KindGarment))
		r.Post("/upload/person", s.handleUpload(model.KindPerson))
		r.Post("/upload/cloth", s.handleUpload(model.KindGarment))
		r.Post("/tryon", s.handleTryOn)
	})
	return r
}

// AddUser registers a user and returns a valid one-hour credential for them.
func (s *Server) AddUser(id model.Identity) model.Credential {
	s.mu.Lock()
	s.users[id.ID] = id
	s.mu.Unlock()
	return s.Credential(id.ID, time.Hour)
}

// Credential signs a token for userID valid for d (negative = expired).
func (s *Server) Credential(userID int64, d time.Duration) model.Credential {
	tok, err := s.Tokens.Generate(strconv.FormatInt(userID, 10), d)
	if err != nil {
		panic(err)
	}
	return model.Credential(tok)
}

// Revoke makes every token of userID answer 401 from now on.
func (s *Server) Revoke(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[userID] = true
}

// AddPhoto stores a photo in a user's inventory and returns its ref.
func (s *Server) AddPhoto(userID int64, kind model.Kind, filename string) model.PhotoRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addPhotoLocked(userID, kind, filename)
}

func (s *Server) addPhotoLocked(userID int64, kind model.Kind, filename string) model.PhotoRef {
	p := model.PhotoRef{ID: s.nextID, Filename: filename}
	s.nextID++
	if s.photos[userID] == nil {
		s.photos[userID] = make(map[model.Kind][]model.PhotoRef)
	}
	s.photos[userID][kind] = append(s.photos[userID][kind], p)
	return p
}

// DeletePhoto removes a photo server-side, as the admin panel would.
func (s *Server) DeletePhoto(userID int64, kind model.Kind, photoID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.photos[userID][kind]
	for i, p := range list {
		if p.ID == photoID {
			s.photos[userID][kind] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// SetShop replaces the public garment feed.
func (s *Server) SetShop(photos ...model.PhotoRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shop = append([]model.PhotoRef{}, photos...)
}

// FailNext makes the next request to "METHOD /path" answer status with a
// {"detail": detail} body. Calls queue up in order.
func (s *Server) FailNext(method, path string, status int, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := method + " " + path
	s.failures[key] = append(s.failures[key], failure{status: status, detail: detail})
}

// Requests returns "METHOD /path" for every request received so far.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// CountRequests counts received requests matching "METHOD /path".
func (s *Server) CountRequests(key string) int {
	n := 0
	for _, r := range s.Requests() {
		if r == key {
			n++
		}
	}
	return n
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, r.Method+" "+r.URL.Path)
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) injectFailures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		s.mu.Lock()
		queue := s.failures[key]
		var f *failure
		if len(queue) > 0 {
			f = &queue[0]
			s.failures[key] = queue[1:]
		}
		s.mu.Unlock()

		if f != nil {
			writeDetail(w, f.status, f.detail)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type ctxUserKey struct{}

func contextWithUser(r *http.Request, userID int64) context.Context {
	return context.WithValue(r.Context(), ctxUserKey{}, userID)
}

func userFrom(r *http.Request) int64 {
	id, _ := r.Context().Value(ctxUserKey{}).(int64)
	return id
}

func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			writeDetail(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		sub, err := s.Tokens.Validate(raw)
		if err != nil {
			writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		userID, err := strconv.ParseInt(sub, 10, 64)
		if err != nil {
			writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}

		s.mu.Lock()
		_, exists := s.users[userID]
		revoked := s.revoked[userID]
		s.mu.Unlock()
		if !exists || revoked {
			writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}

		next.ServeHTTP(w, r.WithContext(contextWithUser(r, userID)))
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	u := s.users[userFrom(r)]
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleList(kind model.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		list := append([]model.PhotoRef{}, s.photos[userFrom(r)][kind]...)
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, list)
	}
}

func (s *Server) handleShop(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	list := append([]model.PhotoRef{}, s.shop...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleUpload(kind model.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		if err != nil {
			writeDetail(w, http.StatusBadRequest, "file is required")
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil || len(data) == 0 {
			writeDetail(w, http.StatusBadRequest, "Empty file.")
			return
		}
		if !strings.HasPrefix(http.DetectContentType(data), "image/") {
			writeDetail(w, http.StatusBadRequest, "Invalid image file.")
			return
		}

		s.mu.Lock()
		p := s.addPhotoLocked(userFrom(r), kind, header.Filename)
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, p)
	}
}

func (s *Server) handleTryOn(w http.ResponseWriter, r *http.Request) {
	var req model.GenerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}

	s.mu.Lock()
	userID := userFrom(r)
	_, personOK := find(s.photos[userID][model.KindPerson], req.PersonPhotoID)
	_, clothOK := find(s.photos[userID][model.KindGarment], req.ClothPhotoID)
	if !clothOK {
		_, clothOK = find(s.shop, req.ClothPhotoID)
	}
	s.results++
	n := s.results
	s.mu.Unlock()

	if !personOK || !clothOK {
		writeDetail(w, http.StatusNotFound, "Photo not found.")
		return
	}

	name := fmt.Sprintf("result_%d_%d_%d.png", req.PersonPhotoID, req.ClothPhotoID, n)
	writeJSON(w, http.StatusOK, model.GenerationResponse{
		ResultID:       int64(n),
		ResultFilename: name,
		ResultURL:      "/results/image/" + name,
	})
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	switch chi.URLParam(r, "category") {
	case "clothes", "persons", "results":
	default:
		writeDetail(w, http.StatusNotFound, "Image not found or invalid name.")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(PNG)
}

func find(list []model.PhotoRef, id int64) (model.PhotoRef, bool) {
	return model.Inventory(list).Find(id)
}

// PNG is the smallest valid PNG signature plus header; enough for
// http.DetectContentType to report image/png.
var PNG = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00\x1f\x15\xc4\x89")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
