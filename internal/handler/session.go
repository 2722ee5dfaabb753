package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/tryon-studio/internal/apperror"
	"github.com/sakif/tryon-studio/internal/auth"
	"github.com/sakif/tryon-studio/internal/middleware"
	"github.com/sakif/tryon-studio/internal/model"
	"github.com/sakif/tryon-studio/internal/service"
)

const (
	// MaxUploadBytes bounds one uploaded photo.
	MaxUploadBytes = 10 << 20
	// settleTimeout bounds how long ?wait=1 holds a request.
	settleTimeout = 10 * time.Second
)

var errNoSession = &apperror.AppError{
	Err:     apperror.ErrNotFound,
	Message: "No session. Create one with POST /api/session.",
}

// SessionHandler exposes one try-on session per browser over JSON.
//
// Commands answer 202 with the state as it stands once the command has
// been applied; network work started by the command is still running. A
// page either polls GET /api/state or adds ?wait=1 to any request to hold
// the answer until the session has settled.
type SessionHandler struct {
	sessions     *service.SessionService
	backendURL   string
	secureCookie bool
	logger       *slog.Logger
}

// NewSessionHandler creates a SessionHandler. backendURL is where GET /login
// sends the browser.
func NewSessionHandler(sessions *service.SessionService, backendURL string, secureCookie bool, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		sessions:     sessions,
		backendURL:   backendURL,
		secureCookie: secureCookie,
		logger:       logger,
	}
}

// session returns the request's session or answers 404.
func (h *SessionHandler) session(w http.ResponseWriter, r *http.Request) (*service.Session, bool) {
	sess := middleware.SessionFrom(r.Context())
	if sess == nil {
		writeError(w, errNoSession)
		return nil, false
	}
	return sess, true
}

// respond writes the session state, after settling when the request asked
// for it with ?wait=1.
func (h *SessionHandler) respond(w http.ResponseWriter, r *http.Request, sess *service.Session, status int) {
	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		ctx, cancel := context.WithTimeout(r.Context(), settleTimeout)
		defer cancel()
		if err := sess.Controller.Settle(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, status, sess.Controller.State())
}

func kindParam(r *http.Request) (model.Kind, error) {
	return service.ParseKind(chi.URLParam(r, "kind"))
}

// HandleCreate starts a new session and sets its cookie.
//
// HTTP: POST /api/session
func (h *SessionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Create(r.Context())
	if err != nil {
		h.logger.Error("failed to create session", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	middleware.SetSessionCookie(w, sess.ID, h.secureCookie)
	h.respond(w, r, sess, http.StatusCreated)
}

type tokenRequest struct {
	Token string `json:"token"`
}

// HandleToken accepts the login redirect's token, as read by the page from
// its location fragment, and resolves the session with it.
//
// HTTP: POST /api/session/token
func (h *SessionHandler) HandleToken(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("token", "Invalid JSON in request body."))
		return
	}
	if err := h.sessions.SubmitToken(r.Context(), sess, req.Token); err != nil {
		writeError(w, err)
		return
	}
	h.respond(w, r, sess, http.StatusAccepted)
}

// HandleState returns the current state.
//
// HTTP: GET /api/state
func (h *SessionHandler) HandleState(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	h.respond(w, r, sess, http.StatusOK)
}

// HandleResolve re-runs identity resolution, e.g. after "identity
// unavailable".
//
// HTTP: POST /api/session/resolve
func (h *SessionHandler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := sess.Controller.Resolve(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	h.respond(w, r, sess, http.StatusAccepted)
}

type selectRequest struct {
	ID int64 `json:"id"`
}

// HandleSelect selects a photo of one kind.
//
// HTTP: PUT /api/selection/{kind}   body: {"id": 12}
func (h *SessionHandler) HandleSelect(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	kind, err := kindParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("id", "Invalid JSON in request body."))
		return
	}
	if err := sess.Controller.OnSelect(r.Context(), kind, req.ID); err != nil {
		writeError(w, err)
		return
	}
	h.respond(w, r, sess, http.StatusOK)
}

// HandleReload fetches one inventory again.
//
// HTTP: POST /api/inventory/{kind}/reload
func (h *SessionHandler) HandleReload(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	kind, err := kindParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := sess.Controller.Reload(r.Context(), kind); err != nil {
		writeError(w, err)
		return
	}
	h.respond(w, r, sess, http.StatusAccepted)
}

// HandleUpload uploads one photo from the multipart field "file".
//
// HTTP: POST /api/upload/{kind}
func (h *SessionHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	kind, err := kindParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes+1<<20)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, apperror.ValidationFailed("file", "The selected file is too large."))
			return
		}
		writeError(w, apperror.ValidationFailed("file", "Please choose a file to upload."))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, MaxUploadBytes+1))
	if err != nil {
		writeError(w, apperror.ValidationFailed("file", "The selected file could not be read."))
		return
	}
	if len(data) > MaxUploadBytes {
		writeError(w, apperror.ValidationFailed("file", "The selected file is too large."))
		return
	}

	if err := sess.Controller.OnUpload(r.Context(), kind, header.Filename, data); err != nil {
		writeError(w, err)
		return
	}
	h.respond(w, r, sess, http.StatusAccepted)
}

// HandleGenerate submits the current selection for try-on.
//
// HTTP: POST /api/generate
func (h *SessionHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := sess.Controller.OnGenerate(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	h.respond(w, r, sess, http.StatusAccepted)
}

// ResultsResponse lists the session's results, oldest first.
type ResultsResponse struct {
	Results []model.ResultRef `json:"results"`
	URLs    []string          `json:"urls"`
	Text    string            `json:"text,omitempty"`
}

// HandleResults returns the results generated in this session.
//
// HTTP: GET /api/results
func (h *SessionHandler) HandleResults(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	s := sess.Controller.State()
	writeJSON(w, http.StatusOK, ResultsResponse{
		Results: s.Results,
		URLs:    s.ResultURLs(h.sessions.ImageBase()),
		Text:    s.ResultsText,
	})
}

// HandleLogout forgets the session's credential. A plain HTML form post
// is sent back to the page; API callers get the state.
//
// HTTP: POST /api/logout
func (h *SessionHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := h.sessions.Logout(r.Context(), sess); err != nil {
		writeError(w, err)
		return
	}
	if isFormPost(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	h.respond(w, r, sess, http.StatusOK)
}

// isFormPost reports whether r was submitted by an HTML form.
func isFormPost(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mt == "application/x-www-form-urlencoded" || mt == "multipart/form-data"
}

// HandleShopNext returns the next page of the public garment feed.
// ?reset=1 starts over from a fresh catalog.
//
// HTTP: GET /api/shop/next
func (h *SessionHandler) HandleShopNext(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if reset, _ := strconv.ParseBool(r.URL.Query().Get("reset")); reset {
		sess.Feed.Reset()
	}
	page, err := sess.Feed.Next(r.Context())
	if err != nil {
		h.logger.Warn("failed to load garment feed", slog.String("error", err.Error()))
		status, errorType := errorStatus(err)
		writeJSON(w, status, ErrorResponse{Error: errorType, Message: page.Text})
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// HandleLogin sends the browser to the backend's login page. The backend
// redirects back with "#token=..." in the fragment.
//
// HTTP: GET /login
func (h *SessionHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, auth.LoginURL(h.backendURL), http.StatusTemporaryRedirect)
}
