package http

import (
	"testing"

	"classdeck/roster/internal/config"
	"classdeck/roster/internal/model"
)

func TestParseRosterRow(t *testing.T) {
	name, scores, ok := parseRosterRow([]string{"Ana", "88", "91.5", "77"})
	if !ok {
		t.Fatalf("expected row to parse")
	}
	if name != "Ana" {
		t.Fatalf("expected name Ana, got %s", name)
	}
	if scores != [3]float64{88, 91.5, 77} {
		t.Fatalf("unexpected scores %v", scores)
	}

	if _, _, ok := parseRosterRow([]string{"Name", "Reading", "Writing", "Math"}); ok {
		t.Fatalf("expected header row to be skipped")
	}
	if _, _, ok := parseRosterRow([]string{"  "}); ok {
		t.Fatalf("expected blank row to be skipped")
	}
	if _, _, ok := parseRosterRow(nil); ok {
		t.Fatalf("expected empty row to be skipped")
	}

	// Missing or junk score cells default to zero, the row still imports.
	name, scores, ok = parseRosterRow([]string{"Ben", "not-a-number"})
	if !ok || name != "Ben" {
		t.Fatalf("expected row with bad score cell to import")
	}
	if scores != [3]float64{} {
		t.Fatalf("expected zero scores, got %v", scores)
	}
}

func TestShareIdentity(t *testing.T) {
	server := &Server{cfg: config.Config{PublicOrigin: "https://roster.example.com/"}}
	classID := "aaaaaaaa-0000-0000-0000-000000000001"
	class := model.ClassGroup{ID: classID, Name: "5th Grade"}
	sequence := int64(12)
	student := model.Student{
		ID:         "bbbbbbbb-0000-0000-0000-000000000001",
		ClassID:    &classID,
		Name:       "Ana",
		SequenceNo: &sequence,
	}

	displayID, shareURL := server.shareIdentity(student, &class)
	if displayID != "5thgrade12" {
		t.Fatalf("expected display id 5thgrade12, got %s", displayID)
	}
	if shareURL != "https://roster.example.com/student-profile/5thgrade12" {
		t.Fatalf("unexpected share url %s", shareURL)
	}

	// Unassigned students share by raw id.
	student.ClassID = nil
	student.SequenceNo = nil
	displayID, shareURL = server.shareIdentity(student, nil)
	if displayID != student.ID {
		t.Fatalf("expected raw id display identifier, got %s", displayID)
	}
	if shareURL != "https://roster.example.com/student-profile/"+student.ID {
		t.Fatalf("unexpected share url %s", shareURL)
	}
}

func TestProfileViewKey(t *testing.T) {
	if got := profileViewKey("abc"); got != "roster:profile-views:abc" {
		t.Fatalf("unexpected key %s", got)
	}
}
