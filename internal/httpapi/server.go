package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/papercastlabs/papercast-core/internal/blob"
	"github.com/papercastlabs/papercast-core/internal/chat"
	"github.com/papercastlabs/papercast-core/internal/config"
	"github.com/papercastlabs/papercast-core/internal/extract"
	"github.com/papercastlabs/papercast-core/internal/job"
	"github.com/papercastlabs/papercast-core/internal/leaderboard"
	"github.com/papercastlabs/papercast-core/internal/podcast"
	"github.com/papercastlabs/papercast-core/internal/quiz"
)

// Server wires the REST surface over the pipeline components.
type Server struct {
	Cfg       config.Config
	Logger    *slog.Logger
	Jobs      *job.Store
	Runner    *job.Runner
	Blobs     blob.LocalFS
	Extractor extract.Extractor
	Chat      *chat.Service
	Board     *leaderboard.Store
	Metrics   http.Handler
	Ready     func() bool
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(cors)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if s.Ready != nil && !s.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	if s.Metrics != nil {
		r.Handle("/metrics", s.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/ingest", s.handleIngest)
		r.Post("/generate/{jobID}", s.handleGenerate)
		r.Get("/generate/{jobID}/status", s.handleStatus)
		r.Route("/podcast", func(r chi.Router) {
			r.Get("/leaderboard", s.handleLeaderboard)
			r.Get("/{jobID}/audio", s.handleAudio)
			r.Get("/{jobID}/download", s.handleDownload)
			r.Get("/{jobID}/captions", s.handleCaptions)
			r.Post("/{jobID}/chat", s.handleChat)
			r.Post("/{jobID}/quiz", s.handleQuiz)
		})
	})

	return r
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-User-Id")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

var documentExtensions = map[string]bool{
	".pdf": true,
	".txt": true,
	".md":  true,
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	maxBytes := int64(s.Cfg.Storage.MaxUploadMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+1)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		writeErr(w, http.StatusRequestEntityTooLarge, fmt.Errorf("upload too large or malformed: %w", err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("missing 'file' upload: %w", err))
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !documentExtensions[ext] {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("unsupported document type %q", ext))
		return
	}

	pair := podcast.VoicePair(strings.TrimSpace(r.FormValue("voice_pair")))
	if pair == "" {
		pair = podcast.VoicePairFM
	}
	if !pair.Valid() {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid voice pair %q", pair))
		return
	}

	jobID := uuid.NewString()
	sourceKey := filepath.Join("jobs", jobID, "source"+ext)
	if _, err := s.Blobs.Put(sourceKey, file); err != nil {
		writeErr(w, http.StatusInternalServerError, fmt.Errorf("store upload: %w", err))
		return
	}

	// Extract up front so the client gets document metadata immediately
	// and malformed documents are rejected before a job exists.
	extractCtx, cancel := context.WithTimeout(ctx, time.Duration(s.Cfg.Extractor.TimeoutMS)*time.Millisecond)
	defer cancel()
	doc, err := s.Extractor.Extract(extractCtx, s.Blobs.Path(sourceKey))
	if err != nil {
		_ = s.Blobs.Remove(sourceKey)
		writeErr(w, http.StatusUnprocessableEntity, fmt.Errorf("could not extract document: %w", err))
		return
	}

	if _, err := s.Jobs.Create(jobID, sourceKey, pair); err != nil {
		writeErr(w, http.StatusInternalServerError, fmt.Errorf("create job: %w", err))
		return
	}

	s.Logger.Info("document ingested",
		slog.String("job_id", jobID),
		slog.String("filename", header.Filename),
		slog.String("voice_pair", string(pair)))

	writeJSON(w, http.StatusCreated, map[string]any{
		"job_id": jobID,
		"metadata": map[string]any{
			"title":       doc.Title,
			"authors":     doc.Authors,
			"total_pages": doc.TotalPages,
			"word_count":  doc.WordCount,
			"sections":    len(doc.Sections),
		},
	})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	snap, err := s.Runner.Start(jobID)
	switch {
	case errors.Is(err, job.ErrNotFound):
		writeErr(w, http.StatusNotFound, fmt.Errorf("job %s not found", jobID))
		return
	case errors.Is(err, job.ErrJobFailed):
		writeErr(w, http.StatusConflict, fmt.Errorf("job %s failed; ingest again to retry", jobID))
		return
	case err != nil:
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	snap, err := s.Jobs.Status(jobID)
	if err != nil {
		writeErr(w, http.StatusNotFound, fmt.Errorf("job %s not found", jobID))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// doneJob returns the snapshot when the job exists and has finished, or
// writes the appropriate "not ready" response.
func (s *Server) doneJob(w http.ResponseWriter, jobID string) (job.Snapshot, bool) {
	snap, err := s.Jobs.Status(jobID)
	if err != nil {
		writeErr(w, http.StatusNotFound, fmt.Errorf("job %s not found", jobID))
		return job.Snapshot{}, false
	}
	if snap.Stage != job.StageDone {
		writeErr(w, http.StatusNotFound, fmt.Errorf("artifact not ready: job is %s", snap.Stage))
		return job.Snapshot{}, false
	}
	return snap, true
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	s.serveAudio(w, chi.URLParam(r, "jobID"), false)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	s.serveAudio(w, chi.URLParam(r, "jobID"), true)
}

func (s *Server) serveAudio(w http.ResponseWriter, jobID string, attachment bool) {
	if _, ok := s.doneJob(w, jobID); !ok {
		return
	}
	key := job.AudioKey(jobID)
	if !s.Blobs.Exists(key) {
		writeErr(w, http.StatusNotFound, fmt.Errorf("audio artifact missing"))
		return
	}
	f, err := s.Blobs.Open(key)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "audio/wav")
	if attachment {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=podcast_%s.wav", jobID))
	}
	_, _ = io.Copy(w, f)
}

func (s *Server) handleCaptions(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if _, ok := s.doneJob(w, jobID); !ok {
		return
	}
	key := job.CaptionsKey(jobID)
	f, err := s.Blobs.Open(key)
	if err != nil {
		writeErr(w, http.StatusNotFound, fmt.Errorf("captions artifact missing"))
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "text/vtt; charset=utf-8")
	_, _ = io.Copy(w, f)
}

type chatRequest struct {
	Message string      `json:"message"`
	History []chat.Turn `json:"history"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	snap, err := s.Jobs.Status(jobID)
	if err != nil || snap.Script == nil {
		writeErr(w, http.StatusNotFound, fmt.Errorf("podcast data not found for job %s", jobID))
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("decode chat request: %w", err))
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("message must not be empty"))
		return
	}

	doc, _ := s.Jobs.Document(jobID)
	reply := s.Chat.Reply(r.Context(), snap.Script, doc, req.Message, req.History)
	writeJSON(w, http.StatusOK, map[string]string{"reply": reply})
}

type quizSubmission struct {
	Answers []int `json:"answers"`
}

func (s *Server) handleQuiz(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	snap, err := s.Jobs.Status(jobID)
	if err != nil || snap.Script == nil {
		writeErr(w, http.StatusNotFound, fmt.Errorf("podcast data not found for job %s", jobID))
		return
	}

	var sub quizSubmission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("decode quiz submission: %w", err))
		return
	}

	result := quiz.Score(snap.Script.Quiz, sub.Answers, s.Cfg.Quiz.PointsPerCorrect)

	// Session-only play when no identity is present: the score is
	// returned but never persisted.
	if userID := strings.TrimSpace(r.Header.Get("X-User-Id")); userID != "" && result.PointsEarned > 0 {
		if err := s.Board.Award(r.Context(), userID, result.PointsEarned); err != nil {
			s.Logger.Warn("leaderboard award failed, returning score anyway",
				slog.String("job_id", jobID),
				slog.String("user_id", userID),
				slog.String("error", err.Error()))
		}
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid limit: %s", raw))
			return
		}
		if value > 100 {
			value = 100
		}
		limit = value
	}

	entries, err := s.Board.Top(r.Context(), limit)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []leaderboard.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"leaderboard": entries})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]any{"error": err.Error()})
}
