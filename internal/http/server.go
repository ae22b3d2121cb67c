package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"classdeck/roster/internal/ai"
	"classdeck/roster/internal/config"
	"classdeck/roster/internal/model"
	"classdeck/roster/internal/repository"
)

var profileResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "roster_profile_resolutions_total",
	Help: "Profile link resolutions by outcome.",
}, []string{"outcome"})

type Server struct {
	cfg      config.Config
	store    *repository.Store
	ai       *ai.Client
	redis    *redis.Client
	validate *validator.Validate
}

func NewServer(cfg config.Config, store *repository.Store, aiClient *ai.Client, redisClient *redis.Client) *Server {
	return &Server{
		cfg:      cfg,
		store:    store,
		ai:       aiClient,
		redis:    redisClient,
		validate: validator.New(),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/class", s.handleCreateClass)
	r.Get("/classes", s.handleListClasses)
	r.Get("/class/{classId}", s.handleGetClass)
	r.Patch("/class/{classId}", s.handlePatchClass)
	r.Delete("/class/{classId}", s.handleDeleteClass)
	r.Get("/class/{classId}/students", s.handleListStudents)
	r.Post("/class/{classId}/students/import", s.handleImportRoster)
	r.Get("/class/{classId}/export", s.handleExportRoster)
	r.Post("/class/{classId}/session", s.handleCreateSession)
	r.Get("/class/{classId}/sessions", s.handleListSessions)

	r.Post("/student", s.handleCreateStudent)
	r.Get("/student/{studentId}", s.handleGetStudent)
	r.Patch("/student/{studentId}", s.handlePatchStudent)
	r.Delete("/student/{studentId}", s.handleDeleteStudent)
	r.Get("/student/{studentId}/share-link", s.handleShareLink)
	r.Get("/student/{studentId}/share-link/qr", s.handleShareLinkQR)
	r.Get("/student/{studentId}/views", s.handleStudentViews)
	r.Post("/student/{studentId}/comment", s.handleStudentComment)

	r.Get("/student-profile/{token}", s.handleStudentProfile)
	r.Get("/session/{sessionId}", s.handleGetSession)
	r.Post("/session/{sessionId}/describe", s.handleDescribeSession)

	return r
}

// Models

type classResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	CreatedOn   int64  `json:"createdOn"`
}

type studentResponse struct {
	ID             string  `json:"id"`
	ClassID        string  `json:"classId,omitempty"`
	Name           string  `json:"name"`
	SequenceNumber *int64  `json:"sequenceNumber,omitempty"`
	ReadingScore   float64 `json:"readingScore"`
	WritingScore   float64 `json:"writingScore"`
	MathScore      float64 `json:"mathScore"`
	CreatedOn      int64   `json:"createdOn"`
}

type createClassRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

type patchClassRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type createStudentRequest struct {
	Name         string  `json:"name" validate:"required"`
	ClassID      *string `json:"classId" validate:"omitempty,uuid"`
	ReadingScore float64 `json:"readingScore"`
	WritingScore float64 `json:"writingScore"`
	MathScore    float64 `json:"mathScore"`
}

type patchStudentRequest struct {
	Name         *string  `json:"name"`
	ClassID      *string  `json:"classId"`
	ReadingScore *float64 `json:"readingScore"`
	WritingScore *float64 `json:"writingScore"`
	MathScore    *float64 `json:"mathScore"`
}

// Class handlers

func (s *Server) handleCreateClass(w http.ResponseWriter, r *http.Request) {
	var req createClassRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}

	class, err := s.store.CreateClass(r.Context(), model.ClassGroup{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusCreated, mapClass(class))
}

func (s *Server) handleListClasses(w http.ResponseWriter, r *http.Request) {
	classes, err := s.store.ListClasses(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	resp := make([]classResponse, 0, len(classes))
	for _, class := range classes {
		resp = append(resp, mapClass(class))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetClass(w http.ResponseWriter, r *http.Request) {
	class, err := s.store.GetClass(r.Context(), chi.URLParam(r, "classId"))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "class_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, mapClass(class))
}

func (s *Server) handlePatchClass(w http.ResponseWriter, r *http.Request) {
	class, err := s.store.GetClass(r.Context(), chi.URLParam(r, "classId"))
	if err != nil {
		writeError(w, http.StatusNotFound, "class_not_found")
		return
	}

	var req patchClassRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.Name != nil {
		if *req.Name == "" {
			writeError(w, http.StatusBadRequest, "missing_fields")
			return
		}
		class.Name = *req.Name
	}
	if req.Description != nil {
		class.Description = *req.Description
	}

	class, err = s.store.UpdateClass(r.Context(), class)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, mapClass(class))
}

func (s *Server) handleDeleteClass(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteClass(r.Context(), chi.URLParam(r, "classId")); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "class_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Student handlers

func (s *Server) handleCreateStudent(w http.ResponseWriter, r *http.Request) {
	var req createStudentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}
	if req.ClassID != nil {
		if _, err := s.store.GetClass(r.Context(), *req.ClassID); err != nil {
			writeError(w, http.StatusNotFound, "class_not_found")
			return
		}
	}

	student, err := s.store.CreateStudent(r.Context(), model.Student{
		ID:           uuid.NewString(),
		ClassID:      req.ClassID,
		Name:         req.Name,
		ReadingScore: req.ReadingScore,
		WritingScore: req.WritingScore,
		MathScore:    req.MathScore,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusCreated, mapStudent(student))
}

func (s *Server) handleListStudents(w http.ResponseWriter, r *http.Request) {
	classID := chi.URLParam(r, "classId")
	if _, err := s.store.GetClass(r.Context(), classID); err != nil {
		writeError(w, http.StatusNotFound, "class_not_found")
		return
	}
	students, err := s.store.ListStudentsByClass(r.Context(), classID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	resp := make([]studentResponse, 0, len(students))
	for _, student := range students {
		resp = append(resp, mapStudent(student))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetStudent(w http.ResponseWriter, r *http.Request) {
	student, err := s.store.GetStudent(r.Context(), chi.URLParam(r, "studentId"))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "student_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, mapStudent(student))
}

func (s *Server) handlePatchStudent(w http.ResponseWriter, r *http.Request) {
	student, err := s.store.GetStudent(r.Context(), chi.URLParam(r, "studentId"))
	if err != nil {
		writeError(w, http.StatusNotFound, "student_not_found")
		return
	}

	var req patchStudentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.Name != nil {
		if *req.Name == "" {
			writeError(w, http.StatusBadRequest, "missing_fields")
			return
		}
		student.Name = *req.Name
	}
	if req.ClassID != nil {
		// A sequence number belongs to the class that issued it, so any
		// reassignment drops it; saving into the new class issues a fresh one.
		if *req.ClassID == "" {
			student.ClassID = nil
			student.SequenceNo = nil
		} else if student.ClassID == nil || *student.ClassID != *req.ClassID {
			if _, err := s.store.GetClass(r.Context(), *req.ClassID); err != nil {
				writeError(w, http.StatusNotFound, "class_not_found")
				return
			}
			classID := *req.ClassID
			student.ClassID = &classID
			student.SequenceNo = nil
		}
	}
	if req.ReadingScore != nil {
		student.ReadingScore = *req.ReadingScore
	}
	if req.WritingScore != nil {
		student.WritingScore = *req.WritingScore
	}
	if req.MathScore != nil {
		student.MathScore = *req.MathScore
	}

	student, err = s.store.SaveStudent(r.Context(), student)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, mapStudent(student))
}

func (s *Server) handleDeleteStudent(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteStudent(r.Context(), chi.URLParam(r, "studentId")); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "student_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Helpers

func mapClass(class model.ClassGroup) classResponse {
	return classResponse{
		ID:          class.ID,
		Name:        class.Name,
		Description: class.Description,
		CreatedOn:   class.CreatedAt.Unix(),
	}
}

func mapStudent(student model.Student) studentResponse {
	resp := studentResponse{
		ID:             student.ID,
		Name:           student.Name,
		SequenceNumber: student.SequenceNo,
		ReadingScore:   student.ReadingScore,
		WritingScore:   student.WritingScore,
		MathScore:      student.MathScore,
		CreatedOn:      student.CreatedAt.Unix(),
	}
	if student.ClassID != nil {
		resp.ClassID = *student.ClassID
	}
	return resp
}

func decodeJSON(r *http.Request, out interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
