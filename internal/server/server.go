// Package server exposes the upload, batch, confirm and metrics endpoints.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"call-insights-go/internal/logger"
	"call-insights-go/internal/metrics"
	"call-insights-go/internal/pipeline"
	"call-insights-go/internal/processor"
	"call-insights-go/internal/types"
)

// maxUploadBytes caps the in-memory part of a multipart upload; the rest
// spills to disk.
const maxUploadBytes = 32 << 20

type SingleProcessor interface {
	ProcessOne(ctx context.Context, path string) types.Outcome
}

type BatchRunner interface {
	RunBatch(ctx context.Context, paths []string) (types.BatchResult, error)
}

type RecordInserter interface {
	InsertOne(ctx context.Context, row types.WarehouseRow) error
}

// Deps are the services behind the endpoints.
type Deps struct {
	Processor SingleProcessor
	Batches   BatchRunner
	Warehouse RecordInserter
	Metrics   *metrics.Recorder
}

// Options holds the directory settings. An empty UploadDir uses os.TempDir.
type Options struct {
	AudioDir  string
	UploadDir string
}

type Server struct {
	deps Deps
	opts Options
	log  *logger.Logger
}

func New(deps Deps, opts Options, log *logger.Logger) *Server {
	if opts.UploadDir == "" {
		opts.UploadDir = os.TempDir()
	}
	return &Server{deps: deps, opts: opts, log: log.Component("server")}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/upload_audio", s.uploadAudio)
	r.Post("/upload_batch", s.uploadBatch)
	r.Post("/confirm_upload", s.confirmUpload)
	r.Get("/metrics", s.getMetrics)
	r.Post("/reset_metrics", s.resetMetrics)
	return r
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.log.WithField("addr", srv.Addr).Info("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server: listen")
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.WithRequest(r).
			WithField("status", ww.Status()).
			WithField("duration_ms", time.Since(start).Milliseconds()).
			Info("request handled")
	})
}

// uploadResponse is what the review screen shows before confirmation.
type uploadResponse struct {
	CustomerID        string  `json:"customer_id"`
	PhoneNumber       string  `json:"phone_number"`
	ComplaintType     string  `json:"complaint_type"`
	CustomerSentiment string  `json:"customer_sentiment"`
	Resolved          bool    `json:"resolved"`
	Transcript        string  `json:"transcript"`
	ProcessingTimeSec float64 `json:"processing_time_sec"`
}

func (s *Server) uploadAudio(w http.ResponseWriter, r *http.Request) {
	log := s.log.WithRequest(r).WithField("handler", "upload_audio")

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	src, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file")
		return
	}
	defer src.Close()
	log = log.WithField("file", header.Filename)
	log.Info("received file")

	tmp := filepath.Join(s.opts.UploadDir, fmt.Sprintf("temp_%s_%s", uuid.NewString(), filepath.Base(header.Filename)))
	defer os.Remove(tmp)
	if err := saveUpload(tmp, src); err != nil {
		log.WithField("error", err.Error()).Error("single upload failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := s.deps.Processor.ProcessOne(context.WithoutCancel(r.Context()), tmp)
	if !out.Succeeded() {
		log.WithField("error", out.Error).Error("single upload failed")
		writeError(w, http.StatusInternalServerError, out.Error)
		return
	}

	rec := out.Record
	phone := processor.NotFound
	if rec.PhoneNumber != nil {
		phone = *rec.PhoneNumber
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"data": uploadResponse{
			CustomerID:        "TEMP",
			PhoneNumber:       phone,
			ComplaintType:     string(rec.ComplaintType),
			CustomerSentiment: string(rec.CustomerSentiment),
			Resolved:          rec.Resolved,
			Transcript:        rec.Transcript,
			ProcessingTimeSec: rec.ProcessingTimeSec,
		},
	})
}

func saveUpload(path string, src io.Reader) error {
	dst, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "server: create temp file")
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return eris.Wrap(err, "server: write temp file")
	}
	return eris.Wrap(dst.Close(), "server: close temp file")
}

func (s *Server) uploadBatch(w http.ResponseWriter, r *http.Request) {
	log := s.log.WithRequest(r).WithField("handler", "upload_batch")

	var req struct {
		FolderPath string `json:"folder_path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	folder := req.FolderPath
	if folder == "" {
		folder = s.opts.AudioDir
	}
	if fi, err := os.Stat(folder); folder == "" || err != nil || !fi.IsDir() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid folder path: %s", folder))
		return
	}
	files, err := pipeline.ListAudioFiles(folder)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "No audio files found in selected folder.")
		return
	}

	log.WithField("folder", folder).WithField("files", len(files)).Info("starting batch from folder")
	// A client disconnect must not cut the batch short.
	res, err := s.deps.Batches.RunBatch(context.WithoutCancel(r.Context()), files)
	body := map[string]any{
		"message": fmt.Sprintf("Processed %d files from %s in %.2fs", len(files), folder, res.TotalTimeSec),
		"details": res,
	}
	if err != nil {
		body["error"] = err.Error()
		writeJSON(w, http.StatusInternalServerError, body)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

// confirmRequest is the reviewed record. Fields beyond the six columns are ignored.
type confirmRequest struct {
	CustomerID        string       `json:"customer_id"`
	PhoneNumber       *string      `json:"phone_number"`
	Transcript        string       `json:"transcript"`
	ComplaintType     string       `json:"complaint_type"`
	CustomerSentiment string       `json:"customer_sentiment"`
	Resolved          types.Truthy `json:"resolved"`
}

func (s *Server) confirmUpload(w http.ResponseWriter, r *http.Request) {
	log := s.log.WithRequest(r).WithField("handler", "confirm_upload")

	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CustomerID == "" || req.CustomerID == "TEMP" {
		req.CustomerID = processor.GenerateCustomerID()
	}
	row := types.WarehouseRow{
		CustomerID:        req.CustomerID,
		PhoneNumber:       processor.NormalizePhone(req.PhoneNumber),
		Transcript:        req.Transcript,
		ComplaintType:     types.ParseComplaintType(req.ComplaintType),
		CustomerSentiment: types.ParseSentiment(req.CustomerSentiment),
		Resolved:          req.Resolved.Bool(),
	}

	if err := s.deps.Warehouse.InsertOne(context.WithoutCancel(r.Context()), row); err != nil {
		log.WithField("error", err.Error()).Error("confirm upload failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	log.WithField("customer_id", row.CustomerID).Info("confirmed and inserted record")
	writeJSON(w, http.StatusOK, map[string]string{
		"status":      "success",
		"message":     "Record inserted into warehouse.",
		"customer_id": row.CustomerID,
	})
}

func (s *Server) getMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]metrics.Snapshot{"summary": s.deps.Metrics.Snapshot()})
}

func (s *Server) resetMetrics(w http.ResponseWriter, r *http.Request) {
	s.deps.Metrics.Reset()
	s.log.WithRequest(r).Info("metrics reset to zero")
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Metrics reset successfully."})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
