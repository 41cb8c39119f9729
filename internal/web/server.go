package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"photo-compressor-go/internal/archive"
	"photo-compressor-go/internal/config"
	"photo-compressor-go/internal/preview"
	"photo-compressor-go/internal/session"
	"photo-compressor-go/internal/settings"
	"photo-compressor-go/internal/store"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

type Server struct {
	cfg         *config.Config
	log         *logrus.Logger
	session     *session.Session
	router      *mux.Router
	httpServer  *http.Server
	wsUpgrader  websocket.Upgrader
	wsClients   map[*websocket.Conn]*sync.Mutex
	wsMutex     sync.RWMutex
	unsubscribe func()
}

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type SettingsRequest struct {
	Quality      *float64 `json:"quality,omitempty"`
	MaxDimension *int     `json:"max_dimension,omitempty"`
}

type SettingsInfo struct {
	Quality      float64 `json:"quality"`
	MaxDimension int     `json:"max_dimension"`
	SizeBudgetMB float64 `json:"size_budget_mb"`
}

type EntryInfo struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	MimeType     string  `json:"mime_type"`
	OriginalSize int64   `json:"original_size"`
	CurrentSize  int64   `json:"current_size"`
	Ratio        float64 `json:"compression_ratio"`
	Status       string  `json:"status"`
	Fallback     bool    `json:"fallback"`
	PreviewURL   string  `json:"preview_url"`
}

type AddInfo struct {
	Accepted int      `json:"accepted"`
	Rejected int      `json:"rejected"`
	IDs      []string `json:"ids"`
}

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func NewServer(cfg *config.Config, log *logrus.Logger, sess *session.Session) *Server {
	s := &Server{
		cfg:       cfg,
		log:       log,
		session:   sess,
		router:    mux.NewRouter(),
		wsClients: make(map[*websocket.Conn]*sync.Mutex),
		wsUpgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // local single-user host
			},
		},
	}

	s.unsubscribe = sess.Subscribe(func(ev session.Event) {
		s.broadcastWSMessage(string(ev.Type), ev)
	})
	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/images", s.handleListImages).Methods("GET")
	api.HandleFunc("/images", s.handleAddImages).Methods("POST")
	api.HandleFunc("/images", s.handleClearImages).Methods("DELETE")
	api.HandleFunc("/images/{id}", s.handleRemoveImage).Methods("DELETE")
	api.HandleFunc("/previews/{handle}", s.handlePreview).Methods("GET")
	api.HandleFunc("/settings", s.handleGetSettings).Methods("GET")
	api.HandleFunc("/settings", s.handleUpdateSettings).Methods("PUT")
	api.HandleFunc("/compress", s.handleCompress).Methods("POST")
	api.HandleFunc("/statistics", s.handleGetStatistics).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
}

func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	s.log.Infof("Starting web server on http://localhost%s", addr)
	return s.httpServer.ListenAndServe()
}

// Stop shuts the HTTP server down and disposes the session.
func (s *Server) Stop(ctx context.Context) error {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.wsMutex.Lock()
	for conn := range s.wsClients {
		conn.Close()
	}
	s.wsClients = make(map[*websocket.Conn]*sync.Mutex)
	s.wsMutex.Unlock()

	defer s.session.Close()
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"running":       s.session.Running(),
			"images":        len(s.session.Entries()),
			"live_previews": s.session.Previews().Live(),
		},
	})
}

func (s *Server) handleListImages(w http.ResponseWriter, r *http.Request) {
	entries := s.session.Entries()
	out := make([]EntryInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryInfo(e))
	}
	s.writeJSON(w, APIResponse{Success: true, Data: out})
}

func (s *Server) handleAddImages(w http.ResponseWriter, r *http.Request) {
	maxBytes := int64(s.cfg.Server.MaxUploadMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.writeError(w, fmt.Sprintf("Invalid upload: %v", err), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		s.writeError(w, "No files uploaded (expected form field \"files\")", http.StatusBadRequest)
		return
	}

	blobs := make([]store.Blob, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			s.writeError(w, fmt.Sprintf("Failed to read %s: %v", fh.Filename, err), http.StatusBadRequest)
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			s.writeError(w, fmt.Sprintf("Failed to read %s: %v", fh.Filename, err), http.StatusBadRequest)
			return
		}
		blobs = append(blobs, store.Blob{
			Name:     fh.Filename,
			MimeType: fh.Header.Get("Content-Type"),
			Data:     data,
		})
	}

	res, err := s.session.Add(r.Context(), blobs)
	if err != nil {
		s.writeError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	resp := APIResponse{
		Success: res.Accepted > 0,
		Message: fmt.Sprintf("%d image(s) added, %d file(s) rejected", res.Accepted, res.Rejected),
		Data:    AddInfo{Accepted: res.Accepted, Rejected: res.Rejected, IDs: res.IDs},
	}
	if res.Accepted == 0 {
		resp.Error = "Please select image files only"
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(resp)
		return
	}
	s.writeJSON(w, resp)
}

func (s *Server) handleRemoveImage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	removed := s.session.Remove(r.Context(), id)
	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    map[string]interface{}{"removed": removed},
	})
}

func (s *Server) handleClearImages(w http.ResponseWriter, r *http.Request) {
	n := s.session.Clear(r.Context())
	s.writeJSON(w, APIResponse{
		Success: true,
		Message: "All images cleared",
		Data:    map[string]interface{}{"removed": n},
	})
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	h := preview.Handle(mux.Vars(r)["handle"])
	data, mimeType, ok := s.session.Preview(h)
	if !ok {
		s.writeError(w, "Preview not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Cache-Control", "no-store")
	w.Write(data)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, APIResponse{Success: true, Data: s.settingsInfo()})
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Quality != nil {
		if err := s.session.SetQuality(*req.Quality); err != nil {
			s.writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	if req.MaxDimension != nil {
		if err := s.session.SetMaxDimension(*req.MaxDimension); err != nil {
			s.writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	s.writeJSON(w, APIResponse{Success: true, Data: s.settingsInfo()})
}

func (s *Server) handleCompress(w http.ResponseWriter, r *http.Request) {
	// A client going away must not turn the rest of the batch into fallbacks.
	outcome, err := s.session.CompressAndDownload(context.WithoutCancel(r.Context()))
	switch {
	case errors.Is(err, session.ErrBusy):
		s.writeError(w, "Compression already in progress", http.StatusConflict)
		return
	case errors.Is(err, session.ErrNothingToCompress):
		s.writeError(w, "All images have already been compressed", http.StatusBadRequest)
		return
	case errors.Is(err, archive.ErrArchive):
		s.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	case err != nil:
		s.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	arc := outcome.Archive
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", arc.Filename))
	w.Header().Set("X-Images-Compressed", fmt.Sprint(outcome.Compressed))
	w.Header().Set("X-Images-Fallback", fmt.Sprint(outcome.Fallbacks))
	w.Write(arc.Data)
}

func (s *Server) handleGetStatistics(w http.ResponseWriter, r *http.Request) {
	stats := s.session.Stats()
	s.writeJSON(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"summary":  stats.GetSummary(),
			"counters": stats.Snapshot(),
		},
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	s.wsMutex.Lock()
	s.wsClients[conn] = &sync.Mutex{}
	s.wsMutex.Unlock()

	s.log.Debug("WebSocket client connected")

	defer func() {
		s.wsMutex.Lock()
		delete(s.wsClients, conn)
		s.wsMutex.Unlock()
		s.log.Debug("WebSocket client disconnected")
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (s *Server) broadcastWSMessage(messageType string, data interface{}) {
	msgBytes, err := json.Marshal(WSMessage{Type: messageType, Data: data})
	if err != nil {
		s.log.Errorf("Failed to marshal WebSocket message: %v", err)
		return
	}

	s.wsMutex.RLock()
	defer s.wsMutex.RUnlock()

	for conn, writeMu := range s.wsClients {
		writeMu.Lock()
		err := conn.WriteMessage(websocket.TextMessage, msgBytes)
		writeMu.Unlock()
		if err != nil {
			s.log.Errorf("Failed to write WebSocket message: %v", err)
			go func(c *websocket.Conn) {
				s.wsMutex.Lock()
				delete(s.wsClients, c)
				s.wsMutex.Unlock()
				c.Close()
			}(conn)
		}
	}
}

func (s *Server) settingsInfo() SettingsInfo {
	p := s.session.Settings()
	return SettingsInfo{
		Quality:      p.Quality(),
		MaxDimension: p.MaxDimension(),
		SizeBudgetMB: settings.SizeBudgetMB(p.Quality()),
	}
}

func toEntryInfo(e store.Entry) EntryInfo {
	return EntryInfo{
		ID:           e.ID,
		Name:         e.Original.Name,
		MimeType:     e.Current.MimeType,
		OriginalSize: e.Original.Size(),
		CurrentSize:  e.Current.Size(),
		Ratio:        e.Ratio,
		Status:       e.Status.String(),
		Fallback:     e.Fallback,
		PreviewURL:   "/api/previews/" + string(e.Preview),
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error:   message,
	})
}
