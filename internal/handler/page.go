// Package handler contains the HTTP handlers of the local session API.
//
// HANDLER RESPONSIBILITIES:
//  1. Parse the incoming HTTP request (path params, body, cookies)
//  2. Call the session (controller commands, feed paging)
//  3. Write the HTTP response (status code, headers, body)
//
// Handlers hold no try-on logic of their own; everything they answer comes
// from a tryon.State snapshot or a gallery.Page.
package handler

import (
	"context"
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/sakif/tryon-studio/internal/gallery"
	"github.com/sakif/tryon-studio/internal/middleware"
	"github.com/sakif/tryon-studio/internal/model"
	"github.com/sakif/tryon-studio/internal/service"
	"github.com/sakif/tryon-studio/internal/tryon"
)

//go:embed templates/*.html
var templateFS embed.FS

// PageHandler renders the try-on page server-side from the session state.
// Templates are parsed once at startup.
type PageHandler struct {
	templates    *template.Template
	sessions     *service.SessionService
	secureCookie bool
	logger       *slog.Logger
}

// NewPageHandler parses the embedded templates. base.html defines the page
// skeleton and pulls in the "content" block from tryon.html.
func NewPageHandler(sessions *service.SessionService, secureCookie bool, logger *slog.Logger) (*PageHandler, error) {
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"noun": func(k model.Kind) string { return k.Noun() },
	}).ParseFS(templateFS, "templates/base.html", "templates/tryon.html")
	if err != nil {
		return nil, err
	}
	return &PageHandler{
		templates:    tmpl,
		sessions:     sessions,
		secureCookie: secureCookie,
		logger:       logger,
	}, nil
}

// Page views, chosen with ?view=.
const (
	viewTryOn   = "tryon"
	viewResults = "results"
	viewShop    = "shop"
)

type pageData struct {
	Title      string
	View       string
	State      tryon.State
	Kinds      []tryon.KindView
	ResultURLs []string
	ShopNote   string
}

func pageView(r *http.Request) string {
	switch v := r.URL.Query().Get("view"); v {
	case viewResults, viewShop:
		return v
	default:
		return viewTryOn
	}
}

// HandlePage serves the try-on page. A visitor without a session gets one.
// ?view=results shows the session's results and ?view=shop the garment feed.
//
// HTTP: GET /
func (h *PageHandler) HandlePage(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFrom(r.Context())
	if sess == nil {
		var err error
		sess, err = h.sessions.Create(r.Context())
		if err != nil {
			h.logger.Error("failed to create session", slog.String("error", err.Error()))
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		middleware.SetSessionCookie(w, sess.ID, h.secureCookie)
	}

	// Render what the session settles into, not a half-resolved snapshot.
	ctx, cancel := context.WithTimeout(r.Context(), settleTimeout)
	defer cancel()
	if err := sess.Controller.Settle(ctx); err != nil {
		h.logger.Warn("rendering unsettled session", slog.String("error", err.Error()))
	}

	s := sess.Controller.State()
	data := pageData{
		Title: "Virtual Try-On",
		View:  pageView(r),
		State: s,
		Kinds: []tryon.KindView{s.Person, s.Garment},

		ResultURLs: s.ResultURLs(h.sessions.ImageBase()),
		ShopNote:   gallery.TextBrowseOnly,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.ExecuteTemplate(w, "base", data); err != nil {
		h.logger.Error("failed to render template", slog.String("error", err.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
