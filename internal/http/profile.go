package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	qrcode "github.com/skip2/go-qrcode"

	"classdeck/roster/internal/model"
	"classdeck/roster/internal/resolver"
)

type profileResponse struct {
	Student   studentResponse `json:"student"`
	Class     *classResponse  `json:"class,omitempty"`
	DisplayID string          `json:"displayId"`
	ShareURL  string          `json:"shareUrl"`
}

type shareLinkResponse struct {
	DisplayID string `json:"displayId"`
	ShareURL  string `json:"shareUrl"`
}

// handleStudentProfile resolves a shareable profile token. Not-found is a
// normal outcome here, not a fault: the client renders an empty state.
func (s *Server) handleStudentProfile(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	match, err := resolver.Resolve(r.Context(), s.store, token)
	if err != nil {
		profileResolutions.WithLabelValues("not_found").Inc()
		writeError(w, http.StatusNotFound, "student_not_found")
		return
	}
	profileResolutions.WithLabelValues(string(match.Route)).Inc()
	s.bumpProfileViews(r.Context(), match.Student.ID)

	resp := profileResponse{Student: mapStudent(match.Student)}
	resp.DisplayID, resp.ShareURL = s.shareIdentity(match.Student, match.Class)
	if match.Class != nil {
		class := mapClass(*match.Class)
		resp.Class = &class
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleShareLink(w http.ResponseWriter, r *http.Request) {
	student, class, ok := s.loadStudentWithClass(w, r)
	if !ok {
		return
	}
	displayID, shareURL := s.shareIdentity(student, class)
	writeJSON(w, http.StatusOK, shareLinkResponse{DisplayID: displayID, ShareURL: shareURL})
}

func (s *Server) handleShareLinkQR(w http.ResponseWriter, r *http.Request) {
	student, class, ok := s.loadStudentWithClass(w, r)
	if !ok {
		return
	}
	_, shareURL := s.shareIdentity(student, class)
	png, err := qrcode.Encode(shareURL, qrcode.Medium, 256)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (s *Server) handleStudentViews(w http.ResponseWriter, r *http.Request) {
	if s.redis == nil {
		writeError(w, http.StatusServiceUnavailable, "views_not_configured")
		return
	}
	studentID := chi.URLParam(r, "studentId")
	if _, err := s.store.GetStudent(r.Context(), studentID); err != nil {
		writeError(w, http.StatusNotFound, "student_not_found")
		return
	}
	views, err := s.loadProfileViews(r.Context(), studentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"views": views})
}

// loadStudentWithClass fetches the student from the path plus its class when
// assigned. It writes the error response itself on failure.
func (s *Server) loadStudentWithClass(w http.ResponseWriter, r *http.Request) (model.Student, *model.ClassGroup, bool) {
	student, err := s.store.GetStudent(r.Context(), chi.URLParam(r, "studentId"))
	if err != nil {
		writeError(w, http.StatusNotFound, "student_not_found")
		return model.Student{}, nil, false
	}
	var class *model.ClassGroup
	if student.ClassID != nil {
		if found, err := s.store.GetClass(r.Context(), *student.ClassID); err == nil {
			class = &found
		}
	}
	return student, class, true
}

// shareIdentity builds the display identifier and share URL. Unassigned
// students fall back to the raw id, which the resolver's whole-token path
// still resolves.
func (s *Server) shareIdentity(student model.Student, class *model.ClassGroup) (string, string) {
	if class != nil {
		return resolver.DisplayID(student, *class), resolver.ProfileURL(s.cfg.PublicOrigin, student, *class)
	}
	return student.ID, strings.TrimRight(s.cfg.PublicOrigin, "/") + "/student-profile/" + student.ID
}

// Profile view counters (optional redis)

func (s *Server) bumpProfileViews(ctx context.Context, studentID string) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Incr(ctx, profileViewKey(studentID)).Err(); err != nil {
		slog.Warn("profile view counter failed", "student", studentID, "error", err)
	}
}

func (s *Server) loadProfileViews(ctx context.Context, studentID string) (int64, error) {
	if s.redis == nil {
		return 0, errors.New("redis_not_configured")
	}
	views, err := s.redis.Get(ctx, profileViewKey(studentID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return views, nil
}

func profileViewKey(studentID string) string {
	return "roster:profile-views:" + studentID
}
