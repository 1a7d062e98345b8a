// Package fakeapi provides an in-process stand-in for the detection API, used in tests.
package fakeapi

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// Default reply bodies.
const (
	RealBody   = `{"success":true,"prediction":{"class":"Real","confidence":97,"raw_score":0.97}}`
	FakeBody   = `{"success":true,"prediction":{"class":"Fake","confidence":61,"raw_score":0.39}}`
	OnlineBody = `{"loaded":true,"exists":true,"model_path":"model.keras"}`
)

// Upload is a received multipart image.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Reply is the response to a predict request.
type Reply struct {
	Status int
	Body   string
}

// Server records uploads and replies with configurable bodies.
type Server struct {
	URL string

	srv     *httptest.Server
	mu      sync.Mutex
	reply   func(Upload) Reply
	status  string
	uploads []Upload
}

// New starts a server that classifies everything as Real and reports the model online.
// It is closed when the test finishes.
func New(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		reply:  func(Upload) Reply { return Reply{Status: http.StatusOK, Body: RealBody} },
		status: OnlineBody,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/predict", s.handlePredict)
	mux.HandleFunc("/api/model-status", s.handleStatus)

	s.srv = httptest.NewServer(mux)
	s.URL = s.srv.URL
	t.Cleanup(s.srv.Close)

	return s
}

// Respond makes every predict request return body with status 200.
func (s *Server) Respond(body string) {
	s.RespondWith(func(Upload) Reply { return Reply{Status: http.StatusOK, Body: body} })
}

// RespondWith sets a reply function.
func (s *Server) RespondWith(fn func(Upload) Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reply = fn
}

// SetStatus sets the model-status body.
func (s *Server) SetStatus(body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = body
}

// Uploads returns the uploads received so far.
func (s *Server) Uploads() []Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Upload(nil), s.uploads...)
}

// Close shuts the server down so that later requests fail to connect.
func (s *Server) Close() {
	s.srv.Close()
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"success":false,"error":"No image file provided"}`)
		return
	}
	defer file.Close() //nolint:errcheck

	data, _ := io.ReadAll(file)
	up := Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}

	s.mu.Lock()
	s.uploads = append(s.uploads, up)
	reply := s.reply
	s.mu.Unlock()

	rep := reply(up)
	if rep.Status == 0 {
		rep.Status = http.StatusOK
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rep.Status)
	_, _ = io.WriteString(w, rep.Body)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	body := s.status
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, body)
}
