package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/xuri/excelize/v2"

	"classdeck/roster/internal/model"
	"classdeck/roster/internal/resolver"
)

const maxImportBytes = 8 << 20

type sessionResponse struct {
	ID        string `json:"id"`
	ClassID   string `json:"classId"`
	Title     string `json:"title"`
	MediaURL  string `json:"mediaUrl,omitempty"`
	Summary   string `json:"summary,omitempty"`
	HeldAt    int64  `json:"heldAt"`
	CreatedOn int64  `json:"createdOn"`
}

type createSessionRequest struct {
	Title    string  `json:"title" validate:"required"`
	MediaURL *string `json:"mediaUrl" validate:"omitempty,url"`
	HeldAt   int64   `json:"heldAt"`
}

// Session handlers

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	classID := chi.URLParam(r, "classId")
	if _, err := s.store.GetClass(r.Context(), classID); err != nil {
		writeError(w, http.StatusNotFound, "class_not_found")
		return
	}

	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}
	heldAt := time.Now().UTC()
	if req.HeldAt != 0 {
		heldAt = time.Unix(req.HeldAt, 0).UTC()
	}

	session, err := s.store.CreateSession(r.Context(), model.Session{
		ID:       uuid.NewString(),
		ClassID:  classID,
		Title:    req.Title,
		MediaURL: req.MediaURL,
		HeldAt:   heldAt,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusCreated, mapSession(session))
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	classID := chi.URLParam(r, "classId")
	if _, err := s.store.GetClass(r.Context(), classID); err != nil {
		writeError(w, http.StatusNotFound, "class_not_found")
		return
	}
	sessions, err := s.store.ListSessionsByClass(r.Context(), classID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	resp := make([]sessionResponse, 0, len(sessions))
	for _, session := range sessions {
		resp = append(resp, mapSession(session))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.store.GetSession(r.Context(), chi.URLParam(r, "sessionId"))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "session_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, mapSession(session))
}

// AI handlers

func (s *Server) handleDescribeSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.store.GetSession(r.Context(), chi.URLParam(r, "sessionId"))
	if err != nil {
		writeError(w, http.StatusNotFound, "session_not_found")
		return
	}
	if session.MediaURL == nil || *session.MediaURL == "" {
		writeError(w, http.StatusBadRequest, "missing_media")
		return
	}
	if s.ai == nil {
		writeError(w, http.StatusServiceUnavailable, "ai_not_configured")
		return
	}

	summary, err := s.ai.DescribeMedia(r.Context(), *session.MediaURL)
	if err != nil {
		writeError(w, http.StatusBadGateway, "ai_request_failed")
		return
	}
	if err := s.store.SetSessionSummary(r.Context(), session.ID, summary); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": session.ID, "summary": summary})
}

func (s *Server) handleStudentComment(w http.ResponseWriter, r *http.Request) {
	student, class, ok := s.loadStudentWithClass(w, r)
	if !ok {
		return
	}
	if s.ai == nil {
		writeError(w, http.StatusServiceUnavailable, "ai_not_configured")
		return
	}
	className := ""
	if class != nil {
		className = class.Name
	}
	comment, err := s.ai.GenerateComment(r.Context(), student.Name, className, student.ReadingScore, student.WritingScore, student.MathScore)
	if err != nil {
		writeError(w, http.StatusBadGateway, "ai_request_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"comment": comment})
}

// Roster import/export

func (s *Server) handleImportRoster(w http.ResponseWriter, r *http.Request) {
	classID := chi.URLParam(r, "classId")
	if _, err := s.store.GetClass(r.Context(), classID); err != nil {
		writeError(w, http.StatusNotFound, "class_not_found")
		return
	}

	file, err := excelize.OpenReader(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_spreadsheet")
		return
	}
	defer file.Close()

	sheet := file.GetSheetName(0)
	if sheet == "" {
		writeError(w, http.StatusBadRequest, "invalid_spreadsheet")
		return
	}
	rows, err := file.GetRows(sheet)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_spreadsheet")
		return
	}

	imported := 0
	for _, cells := range rows {
		name, scores, ok := parseRosterRow(cells)
		if !ok {
			continue
		}
		_, err := s.store.CreateStudent(r.Context(), model.Student{
			ID:           uuid.NewString(),
			ClassID:      &classID,
			Name:         name,
			ReadingScore: scores[0],
			WritingScore: scores[1],
			MathScore:    scores[2],
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server_error")
			return
		}
		imported++
	}
	writeJSON(w, http.StatusOK, map[string]int{"imported": imported})
}

// parseRosterRow reads one spreadsheet row: name in column A, then up to
// three score columns. Header rows and blank rows are skipped.
func parseRosterRow(cells []string) (string, [3]float64, bool) {
	var scores [3]float64
	if len(cells) == 0 {
		return "", scores, false
	}
	name := strings.TrimSpace(cells[0])
	if name == "" || strings.EqualFold(name, "name") {
		return "", scores, false
	}
	for i := 0; i < 3 && i+1 < len(cells); i++ {
		if value, err := strconv.ParseFloat(strings.TrimSpace(cells[i+1]), 64); err == nil {
			scores[i] = value
		}
	}
	return name, scores, true
}

func (s *Server) handleExportRoster(w http.ResponseWriter, r *http.Request) {
	classID := chi.URLParam(r, "classId")
	class, err := s.store.GetClass(r.Context(), classID)
	if err != nil {
		writeError(w, http.StatusNotFound, "class_not_found")
		return
	}
	students, err := s.store.ListStudentsByClass(r.Context(), classID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	file := excelize.NewFile()
	defer file.Close()
	const sheet = "Sheet1"
	headers := []string{"Sequence", "Name", "Reading", "Writing", "Math", "Share ID"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = file.SetCellValue(sheet, cell, header)
	}
	for rowIdx, student := range students {
		row := rowIdx + 2
		if student.SequenceNo != nil {
			cell, _ := excelize.CoordinatesToCellName(1, row)
			_ = file.SetCellValue(sheet, cell, *student.SequenceNo)
		}
		values := []interface{}{student.Name, student.ReadingScore, student.WritingScore, student.MathScore, resolver.DisplayID(student, class)}
		for i, value := range values {
			cell, _ := excelize.CoordinatesToCellName(i+2, row)
			_ = file.SetCellValue(sheet, cell, value)
		}
	}

	filename := resolver.CleanName(class.Name)
	if filename == "" {
		filename = "roster"
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename+".xlsx"))
	if err := file.Write(w); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
}

func mapSession(session model.Session) sessionResponse {
	resp := sessionResponse{
		ID:        session.ID,
		ClassID:   session.ClassID,
		Title:     session.Title,
		HeldAt:    session.HeldAt.Unix(),
		CreatedOn: session.CreatedAt.Unix(),
	}
	if session.MediaURL != nil {
		resp.MediaURL = *session.MediaURL
	}
	if session.Summary != nil {
		resp.Summary = *session.Summary
	}
	return resp
}
