package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/intellicrop/weedmask-api/internal/errs"
	"github.com/intellicrop/weedmask-api/internal/store"
	"github.com/rs/zerolog/log"
)

const previewSpectrum = "RGB"

type uploadResponse struct {
	Status           int               `json:"status"`
	ID               string            `json:"id"`
	InputImageURLs   []string          `json:"input_image_urls"`
	SpectrumNames    []string          `json:"spectrum_names"`
	PredictedMaskURL string            `json:"predicted_mask_url"`
	ImageInfo        map[string]string `json:"image_info"`
}

type errorResponse struct {
	Status int    `json:"status"`
	Error  string `json:"error"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.opts.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "no file part")
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if name == "." || name == string(filepath.Separator) || !strings.EqualFold(filepath.Ext(name), ".zip") {
		writeError(w, http.StatusBadRequest, "only .zip files are allowed")
		return
	}

	uploadPath, err := s.saveUpload(file, name)
	if err != nil {
		log.Error().Err(err).Msg("failed to save upload")
		writeError(w, http.StatusInternalServerError, "failed to save upload")
		return
	}

	record, err := s.evaluator.Evaluate(r.Context(), uploadPath)
	if err != nil {
		status := statusFor(err)
		log.Error().Err(err).Str("upload", uploadPath).Int("status", status).Msg("prediction failed")
		writeError(w, status, err.Error())
		return
	}

	host := hostURL(r)
	resp := uploadResponse{
		Status:           1,
		ID:               record.ID,
		InputImageURLs:   []string{},
		SpectrumNames:    []string{},
		PredictedMaskURL: resultURL(host, record.Files.Mask),
		ImageInfo:        record.ImageInfo,
	}
	if record.Files.Preview != "" {
		resp.InputImageURLs = append(resp.InputImageURLs, resultURL(host, record.Files.Preview))
		resp.SpectrumNames = append(resp.SpectrumNames, previewSpectrum)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetPrediction(w http.ResponseWriter, r *http.Request) {
	if s.records == nil {
		writeError(w, http.StatusNotFound, "prediction history is disabled")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	record, err := s.records.Get(ctx, chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db error")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleListPredictions(w http.ResponseWriter, r *http.Request) {
	if s.records == nil {
		writeJSON(w, http.StatusOK, []store.Record{})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	records, err := s.records.Recent(ctx, 20)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db error")
		return
	}
	if records == nil {
		records = []store.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

// saveUpload stores the archive under a unique name so concurrent uploads of the same
// file do not share an extraction directory.
func (s *Server) saveUpload(src io.Reader, name string) (string, error) {
	if err := os.MkdirAll(s.opts.UploadDir, os.ModePerm); err != nil {
		return "", err
	}
	dst := filepath.Join(s.opts.UploadDir, fmt.Sprintf("%s_%s", uuid.New().String(), name))
	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(dst)
		return "", err
	}
	return dst, out.Close()
}

func statusFor(err error) int {
	switch {
	case errs.IsEmptyDataset(err), errs.IsMissingChannel(err), errs.IsCorruptData(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errs.IsShapeMismatch(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func hostURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	return fmt.Sprintf("%s://%s/", scheme, r.Host)
}

func resultURL(host, rel string) string {
	if rel == "" {
		return ""
	}
	return host + path.Join("tmp", filepath.ToSlash(rel))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Status: 0, Error: msg})
}
