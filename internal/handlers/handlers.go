package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"mediaDownloader/internal/contact"
	"mediaDownloader/internal/models"
	"mediaDownloader/internal/poller"
	"mediaDownloader/internal/session"
	"mediaDownloader/templates"
)

const (
	sessionCookie  = "session_id"
	maxRequestBody = 64 << 10
)

// Preferences is the process-wide user preference store.
type Preferences interface {
	DarkMode() bool
	ToggleDarkMode() (bool, error)
}

// Deps are the collaborators the HTTP layer drives.
type Deps struct {
	Converter   session.Converter
	Poller      *poller.Poller
	Preferences Preferences
	Contact     contact.Sender
}

type App struct {
	logger *slog.Logger

	router   *chi.Mux
	sessions *session.Manager
	prefs    Preferences
	contact  contact.Sender

	mu   sync.RWMutex
	subs map[string]map[*subscriber]struct{}

	upgrader websocket.Upgrader
}

// NewApp wires the router. Polling loops started through the app are bound to ctx.
func NewApp(ctx context.Context, logger *slog.Logger, deps Deps) *App {
	app := &App{
		logger:  logger,
		router:  chi.NewRouter(),
		prefs:   deps.Preferences,
		contact: deps.Contact,
		subs:    make(map[string]map[*subscriber]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	app.sessions = session.NewManager(logger, func(id string) *session.Coordinator {
		return session.NewCoordinator(ctx, logger.With("session_id", id), deps.Converter, deps.Poller, func(snap models.Snapshot) {
			app.broadcast(id, snap)
		})
	})

	app.registerRoutes()
	return app
}

func (a *App) Router() http.Handler {
	return a.router
}

// Sessions exposes the session manager for the cleanup loop and shutdown.
func (a *App) Sessions() *session.Manager {
	return a.sessions
}

func (a *App) registerRoutes() {
	a.router.Use(middleware.RequestID)
	a.router.Use(middleware.RealIP)
	a.router.Use(a.requestLogger)
	a.router.Use(middleware.Recoverer)
	a.router.Use(a.corsMiddleware)

	a.router.Get("/ws", a.sessionWS)

	a.router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Get("/", a.index)
		r.Get("/healthz", a.health)

		r.Route("/api", func(r chi.Router) {
			r.Get("/state", a.state)
			r.Post("/download", a.download)
			r.Post("/cancel", a.cancel)
			r.Post("/format-menu", a.toggleFormatMenu)
			r.Post("/format", a.selectFormat)
			r.Post("/preferences/dark-mode", a.toggleDarkMode)
			r.Post("/contact", a.sendContact)
		})
	})
}

func (a *App) health(w http.ResponseWriter, r *http.Request) {
	a.respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "timestamp": time.Now().Format(time.RFC3339)})
}

func (a *App) index(w http.ResponseWriter, r *http.Request) {
	_, coord := a.session(w, r)
	a.render(w, r, templates.IndexPage(a.withPrefs(coord.Snapshot())))
}

func (a *App) state(w http.ResponseWriter, r *http.Request) {
	_, coord := a.session(w, r)
	a.respondState(w, http.StatusOK, coord.Snapshot(), nil)
}

type downloadRequest struct {
	URL    string `json:"url"`
	Format string `json:"format"`
}

func (a *App) download(w http.ResponseWriter, r *http.Request) {
	_, coord := a.session(w, r)

	var req downloadRequest
	if err := a.decodeJSON(w, r, &req); err != nil {
		a.respondState(w, http.StatusBadRequest, coord.Snapshot(), err)
		return
	}

	_, err := coord.Submit(r.Context(), req.URL, req.Format)
	a.respondState(w, statusFor(err), coord.Snapshot(), err)
}

func (a *App) cancel(w http.ResponseWriter, r *http.Request) {
	_, coord := a.session(w, r)
	coord.CancelPolling()
	a.respondState(w, http.StatusOK, coord.Snapshot(), nil)
}

func (a *App) toggleFormatMenu(w http.ResponseWriter, r *http.Request) {
	_, coord := a.session(w, r)
	a.respondState(w, http.StatusOK, coord.ToggleFormatMenu(), nil)
}

type formatRequest struct {
	Format string `json:"format"`
}

func (a *App) selectFormat(w http.ResponseWriter, r *http.Request) {
	_, coord := a.session(w, r)

	var req formatRequest
	if err := a.decodeJSON(w, r, &req); err != nil {
		a.respondState(w, http.StatusBadRequest, coord.Snapshot(), err)
		return
	}

	snap, err := coord.SelectFormat(req.Format)
	a.respondState(w, statusFor(err), snap, err)
}

func (a *App) toggleDarkMode(w http.ResponseWriter, r *http.Request) {
	_, coord := a.session(w, r)

	if _, err := a.prefs.ToggleDarkMode(); err != nil {
		a.logger.Error("failed to save preference", "error", err)
		a.respondState(w, http.StatusInternalServerError, coord.Snapshot(), err)
		return
	}

	a.broadcastAll()
	a.respondState(w, http.StatusOK, coord.Snapshot(), nil)
}

func (a *App) sendContact(w http.ResponseWriter, r *http.Request) {
	var form contact.Form
	if err := a.decodeJSON(w, r, &form); err != nil {
		a.respondJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error(), "form": form})
		return
	}

	if err := form.Submit(r.Context(), a.contact); err != nil {
		a.logger.Warn("contact message not sent", "error", err)
		a.respondJSON(w, statusFor(err), map[string]any{"error": err.Error(), "form": form})
		return
	}
	a.respondJSON(w, http.StatusOK, map[string]any{"status": "sent", "form": form})
}

// session resolves the caller's coordinator, issuing a cookie for new sessions.
func (a *App) session(w http.ResponseWriter, r *http.Request) (string, *session.Coordinator) {
	var current string
	if c, err := r.Cookie(sessionCookie); err == nil {
		current = c.Value
	}

	id, coord := a.sessions.Get(current)
	if id != current {
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookie,
			Value:    id,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return id, coord
}

func (a *App) withPrefs(snap models.Snapshot) models.Snapshot {
	if a.prefs != nil {
		snap.DarkMode = a.prefs.DarkMode()
	}
	return snap
}

func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, models.ErrInvalidRequest), errors.Is(err, models.ErrInvalidMessage):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, models.ErrRequestFailed), errors.Is(err, models.ErrSendFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (a *App) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.Wrap(err, "invalid json body")
	}
	return nil
}

func (a *App) respondState(w http.ResponseWriter, code int, snap models.Snapshot, err error) {
	payload := map[string]any{"state": a.withPrefs(snap)}
	if err != nil {
		payload["error"] = err.Error()
	}
	a.respondJSON(w, code, payload)
}

func (a *App) render(w http.ResponseWriter, r *http.Request, component templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := component.Render(r.Context(), w); err != nil {
		a.logger.Error("failed to render template", "error", err)
		http.Error(w, "failed to render page", http.StatusInternalServerError)
	}
}

func (a *App) respondJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		a.logger.Error("failed to encode json", "error", err)
	}
}

func (a *App) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		a.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (a *App) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
