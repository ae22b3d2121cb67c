// Package resolver turns an opaque profile-link path segment back into a
// student and class. Two link generations are supported: the legacy
// cleanClassName+UUID form and the newer cleanClassName+sequenceNumber form,
// with no separator between the two parts in the common case.
package resolver

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"classdeck/roster/internal/model"
)

// ErrNotFound is the single terminal failure: bad input, missing student and
// unreachable directory all collapse into it.
var ErrNotFound = errors.New("student not found")

// Directory is the read-only lookup surface the resolver probes. Lookups
// given malformed identifiers must answer not-found instead of failing.
// *repository.Store satisfies it.
type Directory interface {
	ListClasses(ctx context.Context) ([]model.ClassGroup, error)
	GetClass(ctx context.Context, classID string) (model.ClassGroup, error)
	ListStudentsByClass(ctx context.Context, classID string) ([]model.Student, error)
	GetStudent(ctx context.Context, studentID string) (model.Student, error)
}

// Route records which branch produced a match.
type Route string

const (
	RouteSequence Route = "sequence"
	RouteUUID     Route = "uuid"
	RouteFallback Route = "fallback"
)

type Match struct {
	Student model.Student
	Class   *model.ClassGroup
	Route   Route
}

// Resolve maps token to a student, or ErrNotFound.
//
// Candidate classes are tried by descending clean-name length so that when one
// clean name prefixes another ("grade1" vs "grade12") the longer one wins. A
// prefix match alone never short-circuits: a class whose remainder resolves to
// nothing yields to shorter candidates and finally to a whole-token lookup.
// The per-class student directory is only fetched when the remainder looks
// like a sequence number.
func Resolve(ctx context.Context, dir Directory, token string) (Match, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Match{}, ErrNotFound
	}

	// A directory fault here is absorbed: the whole-token fallback still runs.
	classes, err := dir.ListClasses(ctx)
	if err != nil {
		classes = nil
	}

	for _, cand := range orderCandidates(classes) {
		if cand.clean == "" || !hasCleanPrefix(token, cand.clean) {
			continue
		}
		// The clean name is ASCII and was matched byte for byte against the
		// token, so the remainder offset is exact regardless of the raw class
		// name's punctuation.
		remainder := token[len(cand.clean):]
		remainder = strings.TrimSpace(strings.TrimPrefix(remainder, "_"))

		if isSequenceNumber(remainder) {
			n, err := strconv.ParseInt(remainder, 10, 64)
			if err == nil {
				if student, ok := findBySequence(ctx, dir, cand.class.ID, n); ok {
					class := cand.class
					return Match{Student: student, Class: &class, Route: RouteSequence}, nil
				}
			}
		}

		if isCanonicalUUID(remainder) {
			if student, err := dir.GetStudent(ctx, remainder); err == nil {
				class := cand.class
				return Match{Student: student, Class: &class, Route: RouteUUID}, nil
			}
		}
	}

	// Legacy links carry no class-name prefix at all.
	student, err := dir.GetStudent(ctx, token)
	if err != nil {
		return Match{}, ErrNotFound
	}
	match := Match{Student: student, Route: RouteFallback}
	if student.ClassID != nil {
		if class, err := dir.GetClass(ctx, *student.ClassID); err == nil {
			match.Class = &class
		}
	}
	return match, nil
}

type candidate struct {
	class model.ClassGroup
	clean string
}

func orderCandidates(classes []model.ClassGroup) []candidate {
	candidates := make([]candidate, 0, len(classes))
	for _, class := range classes {
		candidates = append(candidates, candidate{class: class, clean: CleanName(class.Name)})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return len(candidates[i].clean) > len(candidates[j].clean)
	})
	return candidates
}

func findBySequence(ctx context.Context, dir Directory, classID string, n int64) (model.Student, bool) {
	students, err := dir.ListStudentsByClass(ctx, classID)
	if err != nil {
		return model.Student{}, false
	}
	for _, student := range students {
		if student.SequenceNo != nil && *student.SequenceNo == n {
			return student, true
		}
	}
	return model.Student{}, false
}

// CleanName strips everything but ASCII letters and digits and lowercases the
// rest. It is the canonical prefix key for class names in share links.
func CleanName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		}
	}
	return b.String()
}

// DisplayID builds the canonical share identifier: clean class name plus the
// student's sequence number, falling back to the raw id for students that
// never got one. The fallback form looks inconsistent but stays resolvable
// through the UUID branch.
func DisplayID(student model.Student, class model.ClassGroup) string {
	clean := CleanName(class.Name)
	if student.SequenceNo != nil {
		return clean + strconv.FormatInt(*student.SequenceNo, 10)
	}
	return clean + student.ID
}

// ProfileURL builds the shareable profile link for origin, e.g.
// https://example.com/student-profile/5thgrade12.
func ProfileURL(origin string, student model.Student, class model.ClassGroup) string {
	return strings.TrimRight(origin, "/") + "/student-profile/" + DisplayID(student, class)
}

// hasCleanPrefix reports whether token starts with clean, comparing ASCII
// case-insensitively. clean must already be lowercase ASCII.
func hasCleanPrefix(token, clean string) bool {
	if len(token) < len(clean) {
		return false
	}
	for i := 0; i < len(clean); i++ {
		c := token[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		if c != clean[i] {
			return false
		}
	}
	return true
}

// isSequenceNumber bounds the length below 10 digits so that obviously
// non-sequence remainders never trigger a student-directory fetch.
func isSequenceNumber(value string) bool {
	if len(value) == 0 || len(value) >= 10 {
		return false
	}
	for i := 0; i < len(value); i++ {
		if value[i] < '0' || value[i] > '9' {
			return false
		}
	}
	return true
}

// isCanonicalUUID accepts only the 8-4-4-4-12 textual form, any case.
func isCanonicalUUID(value string) bool {
	return len(value) == 36 && uuid.Validate(value) == nil
}
