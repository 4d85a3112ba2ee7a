package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/intellicrop/weedmask-api/internal/errs"
	"github.com/intellicrop/weedmask-api/internal/store"
	"github.com/intellicrop/weedmask-api/output"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEvaluator struct {
	record *store.Record
	err    error
	paths  []string
}

func (s *stubEvaluator) Evaluate(_ context.Context, inputPath string) (*store.Record, error) {
	s.paths = append(s.paths, inputPath)
	return s.record, s.err
}

func upload(t *testing.T, h http.Handler, filename string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write(body)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "http://weeds.example.org/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func newTestServer(t *testing.T, ev Evaluator, records store.Store) *Server {
	t.Helper()
	return New(Options{UploadDir: t.TempDir(), ResultDir: t.TempDir(), MaxUploadBytes: 1 << 20}, ev, records)
}

func TestUploadReturnsPredictionURLs(t *testing.T) {
	ev := &stubEvaluator{record: &store.Record{
		ID:        "abc",
		ImageInfo: map[string]string{"Weed": "12.00%", "Vegetation": "80.00%", "Misc/Other": "8.00%"},
		Files: output.Files{
			Preview: filepath.Join("input", "abc_RGB.png"),
			Mask:    filepath.Join("draw", "abc_predicted.png"),
		},
	}}
	srv := newTestServer(t, ev, nil)

	rec := upload(t, srv.Routes(), "field7.zip", []byte("PK"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp uploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Status)
	assert.Equal(t, []string{"http://weeds.example.org/tmp/input/abc_RGB.png"}, resp.InputImageURLs)
	assert.Equal(t, []string{"RGB"}, resp.SpectrumNames)
	assert.Equal(t, "http://weeds.example.org/tmp/draw/abc_predicted.png", resp.PredictedMaskURL)
	assert.Equal(t, "12.00%", resp.ImageInfo["Weed"])

	require.Len(t, ev.paths, 1)
	data, err := os.ReadFile(ev.paths[0])
	require.NoError(t, err)
	assert.Equal(t, "PK", string(data))
	assert.Contains(t, filepath.Base(ev.paths[0]), "_field7.zip")
}

func TestUploadRejections(t *testing.T) {
	srv := newTestServer(t, &stubEvaluator{}, nil)

	rec := upload(t, srv.Routes(), "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = upload(t, srv.Routes(), "field7.tar.gz", []byte("x"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Status)
	assert.Contains(t, resp.Error, ".zip")
}

func TestUploadMapsPipelineErrors(t *testing.T) {
	for name, tc := range map[string]struct {
		err  error
		code int
	}{
		"empty dataset": {errs.NewEmptyDatasetError("/tmp/x", 3, 3), http.StatusUnprocessableEntity},
		"deadline":      {context.DeadlineExceeded, http.StatusGatewayTimeout},
		"shape":         {errs.NewShapeMismatchError("reconcile", []int{13}, []int{9}), http.StatusBadGateway},
		"other":         {assert.AnError, http.StatusInternalServerError},
	} {
		t.Run(name, func(t *testing.T) {
			srv := newTestServer(t, &stubEvaluator{err: tc.err}, nil)
			rec := upload(t, srv.Routes(), "field7.zip", []byte("PK"))
			assert.Equal(t, tc.code, rec.Code)

			var resp errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, 0, resp.Status)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestServesResultFiles(t *testing.T) {
	srv := newTestServer(t, &stubEvaluator{}, nil)
	require.NoError(t, os.MkdirAll(filepath.Join(srv.opts.ResultDir, "draw"), os.ModePerm))
	require.NoError(t, os.WriteFile(filepath.Join(srv.opts.ResultDir, "draw", "abc_predicted.png"), []byte("png"), 0o644))

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tmp/draw/abc_predicted.png", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "png", rec.Body.String())

	rec = httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestResultServingHidesUploadsAndListings(t *testing.T) {
	srv := newTestServer(t, &stubEvaluator{}, nil)
	root := srv.opts.ResultDir
	require.NoError(t, os.MkdirAll(filepath.Join(root, "uploads", "3f2a_field.partial"), os.ModePerm))
	require.NoError(t, os.WriteFile(filepath.Join(root, "uploads", "3f2a_field.zip"), []byte("PK"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "stats"), os.ModePerm))
	require.NoError(t, os.WriteFile(filepath.Join(root, "stats", "abc.csv"), []byte("class,share"), 0o644))

	for _, target := range []string{
		"/tmp/uploads/",
		"/tmp/uploads/3f2a_field.zip",
		"/tmp/draw/",
		"/tmp/stats/",
		"/tmp/",
	} {
		rec := httptest.NewRecorder()
		srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, target)
		assert.NotContains(t, rec.Body.String(), "3f2a_field", target)
	}

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tmp/stats/abc.csv", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "class,share", rec.Body.String())
}

func TestPredictionLookup(t *testing.T) {
	records := store.NewMemoryStore()
	require.NoError(t, records.Save(context.Background(), &store.Record{ID: "abc", CreatedAt: time.Now()}))
	srv := newTestServer(t, &stubEvaluator{}, records)

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/predictions/abc", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var got store.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "abc", got.ID)

	rec = httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/predictions/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/predictions/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list []store.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)
}

func TestPredictionLookupWithoutStore(t *testing.T) {
	srv := newTestServer(t, &stubEvaluator{}, nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/predictions/abc", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
