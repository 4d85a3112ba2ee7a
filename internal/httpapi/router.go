package httpapi

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/intellicrop/weedmask-api/internal/store"
)

type Evaluator interface {
	Evaluate(ctx context.Context, inputPath string) (*store.Record, error)
}

type Options struct {
	UploadDir      string
	ResultDir      string
	AllowedOrigins []string
	MaxUploadBytes int64
}

type Server struct {
	opts      Options
	evaluator Evaluator
	records   store.Store
}

// New builds the HTTP adapter. records may be nil, in which case the prediction
// lookup routes answer 404.
func New(opts Options, evaluator Evaluator, records store.Store) *Server {
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return &Server{opts: opts, evaluator: evaluator, records: records}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	r.Post("/upload", s.handleUpload)
	r.Route("/predictions", func(pr chi.Router) {
		pr.Get("/", s.handleListPredictions)
		pr.Get("/{id}", s.handleGetPrediction)
	})
	files := http.StripPrefix("/tmp/", http.FileServer(fileOnlyFS{http.Dir(s.opts.ResultDir)}))
	for _, dir := range resultSubdirs {
		r.Handle("/tmp/"+dir+"/*", files)
	}
	return r
}

// resultSubdirs are the only parts of ResultDir published under /tmp/.
var resultSubdirs = []string{"input", "draw", "stats"}

// fileOnlyFS hides directories so the file server never renders a listing.
type fileOnlyFS struct {
	fs http.FileSystem
}

func (f fileOnlyFS) Open(name string) (http.File, error) {
	file, err := f.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil || info.IsDir() {
		file.Close()
		return nil, os.ErrNotExist
	}
	return file, nil
}

// NewHTTPServer wraps the routes with the timeouts used in production.
func (s *Server) NewHTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
}
