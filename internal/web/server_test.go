package web

import (
	"bytes"
	"context"
	"encoding/json"
	"image/color"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"photo-compressor-go/internal/compressor"
	"photo-compressor-go/internal/config"
	"photo-compressor-go/internal/session"

	"github.com/disintegration/imaging"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type upload struct {
	name        string
	contentType string
	data        []byte
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	engine := compressor.NewDefaultCompressor(compressor.Config{GroupSize: 2}, compressor.NewImagingTransformer(logger), logger)
	sess := session.New(session.Config{Compressor: engine, Logger: logger})
	srv := NewServer(config.DefaultConfig(), logger, sess)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Stop(context.Background())
	})
	return srv, ts
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, imaging.New(w, h, color.NRGBA{R: 10, G: 120, B: 200, A: 255}), imaging.JPEG))
	return buf.Bytes()
}

func postFiles(t *testing.T, url string, files []upload) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="files"; filename="`+f.name+`"`)
		h.Set("Content-Type", f.contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	resp, err := http.Post(url+"/api/images", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestUploadListAndRemove(t *testing.T) {
	_, ts := newTestServer(t)

	resp := postFiles(t, ts.URL, []upload{
		{"a.jpg", "image/jpeg", jpegBytes(t, 40, 40)},
		{"b.jpg", "image/jpeg", jpegBytes(t, 40, 40)},
		{"notes.txt", "text/plain", []byte("hi")},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var added struct {
		Success bool    `json:"success"`
		Data    AddInfo `json:"data"`
	}
	decode(t, resp, &added)
	assert.True(t, added.Success)
	assert.Equal(t, 2, added.Data.Accepted)
	assert.Equal(t, 1, added.Data.Rejected)

	resp, err := http.Get(ts.URL + "/api/images")
	require.NoError(t, err)
	var listed struct {
		Data []EntryInfo `json:"data"`
	}
	decode(t, resp, &listed)
	require.Len(t, listed.Data, 2)
	assert.Equal(t, "a.jpg", listed.Data[0].Name)
	assert.Equal(t, "pending", listed.Data[0].Status)

	preview, err := http.Get(ts.URL + listed.Data[0].PreviewURL)
	require.NoError(t, err)
	preview.Body.Close()
	assert.Equal(t, http.StatusOK, preview.StatusCode)
	assert.Equal(t, "image/jpeg", preview.Header.Get("Content-Type"))

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/images/"+listed.Data[0].ID, nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	gone, err := http.Get(ts.URL + listed.Data[0].PreviewURL)
	require.NoError(t, err)
	gone.Body.Close()
	assert.Equal(t, http.StatusNotFound, gone.StatusCode)
}

func TestUploadOnlyNonImages(t *testing.T) {
	_, ts := newTestServer(t)
	resp := postFiles(t, ts.URL, []upload{{"a.txt", "text/plain", []byte("x")}})
	resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestSettingsEndpoints(t *testing.T) {
	_, ts := newTestServer(t)

	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/api/settings", strings.NewReader(`{"quality":0.7,"max_dimension":800}`))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got struct {
		Data SettingsInfo `json:"data"`
	}
	decode(t, resp, &got)
	assert.InDelta(t, 0.7, got.Data.Quality, 1e-9)
	assert.Equal(t, 800, got.Data.MaxDimension)
	assert.InDelta(t, 0.8, got.Data.SizeBudgetMB, 1e-9)

	req, _ = http.NewRequest(http.MethodPut, ts.URL+"/api/settings", strings.NewReader(`{"quality":3}`))
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCompressReturnsZip(t *testing.T) {
	_, ts := newTestServer(t)
	resp := postFiles(t, ts.URL, []upload{
		{"big.jpg", "image/jpeg", jpegBytes(t, 300, 200)},
		{"small.jpg", "image/jpeg", jpegBytes(t, 50, 50)},
	})
	resp.Body.Close()

	resp, err := http.Post(ts.URL+"/api/compress", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/zip", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "compressed_images.zip")
	assert.Equal(t, "2", resp.Header.Get("X-Images-Compressed"))

	again, err := http.Post(ts.URL+"/api/compress", "application/json", nil)
	require.NoError(t, err)
	again.Body.Close()
	assert.Equal(t, http.StatusBadRequest, again.StatusCode)
}

func TestWebSocketRelaysEvents(t *testing.T) {
	_, ts := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// The handler registers the client after the upgrade completes.
	time.Sleep(50 * time.Millisecond)

	resp := postFiles(t, ts.URL, []upload{{"a.jpg", "image/jpeg", jpegBytes(t, 20, 20)}})
	resp.Body.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg struct {
		Type string        `json:"type"`
		Data session.Event `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "files_added", msg.Type)
	assert.Equal(t, 1, msg.Data.Count)
}

func TestStatisticsEndpoint(t *testing.T) {
	_, ts := newTestServer(t)
	resp := postFiles(t, ts.URL, []upload{{"a.jpg", "image/jpeg", jpegBytes(t, 20, 20)}})
	resp.Body.Close()

	resp, err := http.Get(ts.URL + "/api/statistics")
	require.NoError(t, err)
	var got struct {
		Data struct {
			Summary  string                 `json:"summary"`
			Counters map[string]interface{} `json:"counters"`
		} `json:"data"`
	}
	decode(t, resp, &got)
	assert.Contains(t, got.Data.Summary, "Added: 1")
	assert.Equal(t, float64(1), got.Data.Counters["files_added"])
}

func TestCompressIgnoresClientCancellation(t *testing.T) {
	srv, ts := newTestServer(t)
	resp := postFiles(t, ts.URL, []upload{
		{"a.jpg", "image/jpeg", jpegBytes(t, 60, 40)},
		{"b.jpg", "image/jpeg", jpegBytes(t, 40, 60)},
		{"c.jpg", "image/jpeg", jpegBytes(t, 50, 50)},
	})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/compress", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-Images-Fallback"))

	entries := srv.session.Entries()
	require.Len(t, entries, 3)
	for _, e := range entries {
		assert.Equal(t, "compressed", e.Status.String(), e.Original.Name)
		assert.False(t, e.Fallback, e.Original.Name)
	}
}

func TestUploadSniffsGenericContentType(t *testing.T) {
	_, ts := newTestServer(t)
	var png bytes.Buffer
	require.NoError(t, imaging.Encode(&png, imaging.New(16, 16, color.White), imaging.PNG))

	resp := postFiles(t, ts.URL, []upload{{"upload", "application/octet-stream", png.Bytes()}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var added struct {
		Data AddInfo `json:"data"`
	}
	decode(t, resp, &added)
	assert.Equal(t, 1, added.Data.Accepted)
	assert.Zero(t, added.Data.Rejected)
}
