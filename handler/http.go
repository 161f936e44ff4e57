package handler

import (
	"encoding/json"
	"io/fs"
	"net/http"
	"path"
	"time"

	"github.com/rs/zerolog"
)

// Routes mounts POST /api/generate and, when staticDir is set, a file server
// for staticDir at /.
func (h *Handler) Routes(staticDir string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+GeneratePath, h.ServeGenerate)
	if staticDir != "" {
		mux.Handle("/", http.FileServer(noListingFS{http.Dir(staticDir)}))
	}
	return h.withRequestLogging(mux)
}

// noListingFS hides directories without an index.html so the file server
// answers 404 instead of rendering a listing.
type noListingFS struct {
	fs http.FileSystem
}

func (n noListingFS) Open(name string) (http.File, error) {
	f, err := n.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if !info.IsDir() {
		return f, nil
	}
	index, err := n.fs.Open(path.Join(name, "index.html"))
	if err != nil {
		_ = f.Close()
		return nil, fs.ErrNotExist
	}
	_ = index.Close()
	return f, nil
}

// ServeGenerate handles POST /api/generate.
func (h *Handler) ServeGenerate(w http.ResponseWriter, r *http.Request) {
	logger := zerolog.Ctx(r.Context())
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error().Interface("panic", rec).Msg("server error")
			status, body := internalErrorResult()
			writeJSON(w, status, body, logger)
		}
	}()

	status, body := h.generate(r.Context(), r.Header.Get("Content-Type"), r.Body, *logger)
	writeJSON(w, status, body, logger)
}

func writeJSON(w http.ResponseWriter, status int, body any, logger *zerolog.Logger) {
	raw, err := json.Marshal(body)
	if err != nil {
		logger.Error().Err(err).Msg("encode response failed")
		status = http.StatusInternalServerError
		raw = []byte(`{"error":"An internal server error occurred."}`)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(raw); err != nil {
		logger.Debug().Err(err).Msg("write response failed")
	}
}

// statusRecorder remembers the status written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if !r.wrote {
		r.status = status
		r.wrote = true
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.wrote {
		r.status = http.StatusOK
		r.wrote = true
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// withRequestLogging attaches a correlation id and a request-scoped logger,
// and logs one line per completed request.
func (h *Handler) withRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		corrID := correlationID(r.Header.Get(correlationIDHeader))
		w.Header().Set(correlationIDHeader, corrID)

		logger := h.logger.With().
			Str("correlation_id", corrID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Logger()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(logger.WithContext(r.Context())))

		logger.Info().
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request completed")
	})
}
