package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/synadia-labs/workload-probe/internal/config"
)

type RequestId string

const (
	RequestIdKey RequestId = "request_id"
)

const maxMultipartMemory = 32 << 20

type Middleware func(http.Handler) http.Handler

type HTTPServer interface {
	Start() error
	Shutdown(ctx context.Context) error
}

type httpServer struct {
	log    *slog.Logger
	server *http.Server
}

func (s *httpServer) Start() error {
	s.log.Info("http server started", slog.String("addr", s.server.Addr))
	err := s.server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests for at most 5 seconds.
func (s *httpServer) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

func NewHTTPServer(cfg *config.Config, probe Probe, log *slog.Logger) HTTPServer {
	return &httpServer{
		log: log,
		server: &http.Server{
			Addr:    cfg.Addr(),
			Handler: NewRouter(cfg, probe, log),
			// must outlive the exec timeout
			ReadTimeout:  cfg.Exec.Timeout + 20*time.Second,
			WriteTimeout: cfg.Exec.Timeout + 20*time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

type handlers struct {
	probe        Probe
	log          *slog.Logger
	maxBodyBytes int64
}

// NewRouter wires the four operations. Static routes are matched before the
// catch-alls regardless of the order they are registered in.
func NewRouter(cfg *config.Config, probe Probe, log *slog.Logger) http.Handler {
	h := &handlers{probe: probe, log: log, maxBodyBytes: cfg.Limits.MaxBodyBytes}

	r := chi.NewRouter()
	r.Use(requestIdMiddleware, logMiddleware(log), recoverMiddleware(log))

	r.NotFound(h.notFound)
	r.MethodNotAllowed(h.notFound)

	r.Get("/health", h.health)
	r.With(h.limitBody).Post("/exec", h.exec)
	r.Get("/*", h.readFile)
	r.With(h.limitBody).Post("/*", h.writeFile)

	return r
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(h.probe.Health()))
}

func (h *handlers) exec(w http.ResponseWriter, r *http.Request) {
	command, _, err := requestParam(r, "command")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if command == "" {
		h.fail(w, r, newError(KindValidation, "missing command parameter"))
		return
	}

	result, err := h.probe.RunCommand(r.Context(), command)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handlers) readFile(w http.ResponseWriter, r *http.Request) {
	name, err := pathParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	content, err := h.probe.ReadFile(name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, content)
}

func (h *handlers) writeFile(w http.ResponseWriter, r *http.Request) {
	name, err := pathParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	content, ok, err := requestParam(r, "content")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !ok {
		h.fail(w, r, newError(KindValidation, "missing content parameter"))
		return
	}

	result, err := h.probe.WriteFile(name, content)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *handlers) notFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "Not found")
}

// fail is the only place an error becomes a status code.
func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := KindOf(err)
	status := kind.HTTPStatus()
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed",
			slog.Any(string(RequestIdKey), r.Context().Value(RequestIdKey)),
			slog.String("kind", string(kind)),
			slog.Any("err", err))
	}
	writeError(w, status, err.Error())
}

func (h *handlers) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
		next.ServeHTTP(w, r)
	})
}

// requestParam looks key up in the query string first and then in the form
// body. ok reports whether the key was present at all, even with an empty
// value.
func requestParam(r *http.Request, key string) (value string, ok bool, err error) {
	query := r.URL.Query()
	if query.Has(key) {
		return query.Get(key), true, nil
	}

	if err := parseBody(r); err != nil {
		return "", false, err
	}
	if r.PostForm.Has(key) {
		return r.PostForm.Get(key), true, nil
	}
	return "", false, nil
}

func parseBody(r *http.Request) error {
	var err error
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "multipart/form-data" {
		err = r.ParseMultipartForm(maxMultipartMemory)
	} else {
		err = r.ParseForm()
	}
	if err == nil {
		return nil
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return newError(KindSizeLimit, "request body too large (max %d bytes)", tooLarge.Limit)
	}
	return wrapError(KindValidation, err, "invalid form body")
}

// pathParam returns the captured remainder of the URL path, decoded once.
func pathParam(r *http.Request) (string, error) {
	name := chi.URLParam(r, "*")
	// chi routes on RawPath when the request path carries escapes
	if r.URL.RawPath != "" {
		decoded, err := url.PathUnescape(name)
		if err != nil {
			return "", wrapError(KindValidation, err, "invalid path")
		}
		name = decoded
	}
	if name == "" {
		return "", newError(KindNotFound, "Not found")
	}
	return name, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// Unique ID for each request
func requestIdMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()
		w.Header().Set("X-Request-Id", id)
		ctx := context.WithValue(r.Context(), RequestIdKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Log requests
func logMiddleware(log *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestId, _ := r.Context().Value(RequestIdKey).(string)

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			log.Info("request",
				slog.String(string(RequestIdKey), requestId),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Duration("duration", time.Since(start)))
		})
	}
}

// Turn handler panics into a JSON 500 instead of a dropped connection
func recoverMiddleware(log *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				log.Error("handler panic",
					slog.String("path", r.URL.Path),
					slog.Any("panic", rec))
				writeError(w, http.StatusInternalServerError, fmt.Sprintf("internal error: %v", rec))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
