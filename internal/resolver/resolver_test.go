package resolver

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"

	"classdeck/roster/internal/model"
)

type fakeDirectory struct {
	classes           []model.ClassGroup
	students          map[string][]model.Student // by class id
	byID              map[string]model.Student
	listStudentCalls  int
	getStudentCalls   int
	listClassesFailed bool
}

func (f *fakeDirectory) ListClasses(_ context.Context) ([]model.ClassGroup, error) {
	if f.listClassesFailed {
		return nil, pgx.ErrNoRows
	}
	return f.classes, nil
}

func (f *fakeDirectory) GetClass(_ context.Context, classID string) (model.ClassGroup, error) {
	for _, class := range f.classes {
		if class.ID == classID {
			return class, nil
		}
	}
	return model.ClassGroup{}, pgx.ErrNoRows
}

func (f *fakeDirectory) ListStudentsByClass(_ context.Context, classID string) ([]model.Student, error) {
	f.listStudentCalls++
	return f.students[classID], nil
}

func (f *fakeDirectory) GetStudent(_ context.Context, studentID string) (model.Student, error) {
	f.getStudentCalls++
	if student, ok := f.byID[studentID]; ok {
		return student, nil
	}
	return model.Student{}, pgx.ErrNoRows
}

func seq(n int64) *int64 { return &n }
func str(s string) *string { return &s }

const (
	fifthGradeID   = "aaaaaaaa-0000-0000-0000-000000000001"
	firstGradeID   = "aaaaaaaa-0000-0000-0000-000000000002"
	twelfthGradeID = "aaaaaaaa-0000-0000-0000-000000000003"

	anaID  = "bbbbbbbb-0000-0000-0000-000000000001"
	benID  = "bbbbbbbb-0000-0000-0000-000000000002"
	carlID = "bbbbbbbb-0000-0000-0000-000000000003"
	drewID = "bbbbbbbb-0000-0000-0000-000000000004"
)

func newFake() *fakeDirectory {
	fifthGrade := model.ClassGroup{ID: fifthGradeID, Name: "5th Grade"}
	gradeOne := model.ClassGroup{ID: firstGradeID, Name: "Grade 1"}
	gradeTwelve := model.ClassGroup{ID: twelfthGradeID, Name: "Grade 12"}

	ana := model.Student{ID: anaID, ClassID: str(fifthGradeID), Name: "Ana", SequenceNo: seq(12)}
	ben := model.Student{ID: benID, ClassID: str(firstGradeID), Name: "Ben", SequenceNo: seq(2)}
	carl := model.Student{ID: carlID, ClassID: str(twelfthGradeID), Name: "Carl", SequenceNo: seq(2)}
	drew := model.Student{ID: drewID, ClassID: str(fifthGradeID), Name: "Drew"} // no sequence number

	return &fakeDirectory{
		classes: []model.ClassGroup{fifthGrade, gradeOne, gradeTwelve},
		students: map[string][]model.Student{
			fifthGradeID:   {ana, drew},
			firstGradeID:   {ben},
			twelfthGradeID: {carl},
		},
		byID: map[string]model.Student{
			anaID:  ana,
			benID:  ben,
			carlID: carl,
			drewID: drew,
		},
	}
}

func TestResolveSequenceToken(t *testing.T) {
	dir := newFake()
	match, err := Resolve(context.Background(), dir, "5thGrade12")
	if err != nil {
		t.Fatalf("resolve error: %v", err)
	}
	if match.Student.ID != anaID {
		t.Fatalf("expected Ana, got %s", match.Student.ID)
	}
	if match.Class == nil || match.Class.ID != fifthGradeID {
		t.Fatalf("expected 5th Grade class")
	}
	if match.Route != RouteSequence {
		t.Fatalf("expected sequence route, got %s", match.Route)
	}
}

func TestResolveUnderscoreSeparator(t *testing.T) {
	dir := newFake()
	plain, err := Resolve(context.Background(), dir, "5thGrade12")
	if err != nil {
		t.Fatalf("resolve error: %v", err)
	}
	legacy, err := Resolve(context.Background(), dir, "5thGrade_12")
	if err != nil {
		t.Fatalf("resolve error: %v", err)
	}
	if plain.Student.ID != legacy.Student.ID {
		t.Fatalf("underscore form resolved differently: %s vs %s", plain.Student.ID, legacy.Student.ID)
	}
}

func TestResolveCaseInsensitive(t *testing.T) {
	dir := newFake()
	for _, token := range []string{"5thgrade12", "5THGRADE12", "5Thgrade12"} {
		match, err := Resolve(context.Background(), dir, token)
		if err != nil {
			t.Fatalf("resolve %q error: %v", token, err)
		}
		if match.Student.ID != anaID {
			t.Fatalf("resolve %q: expected Ana, got %s", token, match.Student.ID)
		}
	}
}

func TestResolveLongestPrefixWins(t *testing.T) {
	dir := newFake()
	// "grade1" prefixes "grade12": a token for Grade 12 must not be read as
	// Grade 1 with remainder "22".
	match, err := Resolve(context.Background(), dir, "Grade122")
	if err != nil {
		t.Fatalf("resolve error: %v", err)
	}
	if match.Student.ID != carlID {
		t.Fatalf("expected Grade 12 student, got %s", match.Student.ID)
	}
	if match.Class == nil || match.Class.ID != twelfthGradeID {
		t.Fatalf("expected Grade 12 class")
	}
}

func TestResolveLongerPrefixYieldsToShorter(t *testing.T) {
	dir := newFake()
	// "Grade12" prefix-matches Grade 12 with an empty remainder, which
	// resolves nothing; Grade 1 with remainder "2" must still get its chance.
	match, err := Resolve(context.Background(), dir, "Grade12")
	if err != nil {
		t.Fatalf("resolve error: %v", err)
	}
	if match.Student.ID != benID {
		t.Fatalf("expected Grade 1 student Ben, got %s", match.Student.ID)
	}
	if match.Class == nil || match.Class.ID != firstGradeID {
		t.Fatalf("expected Grade 1 class")
	}
}

func TestResolveClassPrefixedUUID(t *testing.T) {
	dir := newFake()
	match, err := Resolve(context.Background(), dir, "5thGrade"+drewID)
	if err != nil {
		t.Fatalf("resolve error: %v", err)
	}
	if match.Student.ID != drewID {
		t.Fatalf("expected Drew, got %s", match.Student.ID)
	}
	if match.Route != RouteUUID {
		t.Fatalf("expected uuid route, got %s", match.Route)
	}
	if match.Class == nil || match.Class.ID != fifthGradeID {
		t.Fatalf("expected prefix-matched class")
	}
}

func TestResolveBareUUIDFallback(t *testing.T) {
	dir := newFake()
	match, err := Resolve(context.Background(), dir, benID)
	if err != nil {
		t.Fatalf("resolve error: %v", err)
	}
	if match.Student.ID != benID {
		t.Fatalf("expected Ben, got %s", match.Student.ID)
	}
	if match.Route != RouteFallback {
		t.Fatalf("expected fallback route, got %s", match.Route)
	}
	// Step 6: the fallback enriches the match with the student's own class.
	if match.Class == nil || match.Class.ID != firstGradeID {
		t.Fatalf("expected class enrichment on fallback")
	}
}

func TestResolveBadRemainderDoesNotShortCircuit(t *testing.T) {
	dir := newFake()
	_, err := Resolve(context.Background(), dir, "5thGradeXYZ")
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	// The non-numeric remainder must not have cost a student-directory fetch,
	// but the whole-token fallback lookup still ran.
	if dir.listStudentCalls != 0 {
		t.Fatalf("expected no student list fetches, got %d", dir.listStudentCalls)
	}
	if dir.getStudentCalls != 1 {
		t.Fatalf("expected one fallback lookup, got %d", dir.getStudentCalls)
	}
}

func TestResolveUnknownSequenceFallsThrough(t *testing.T) {
	dir := newFake()
	_, err := Resolve(context.Background(), dir, "5thGrade999")
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResolveEmptyToken(t *testing.T) {
	dir := newFake()
	if _, err := Resolve(context.Background(), dir, "   "); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResolveLongNumericRemainderSkipsFetch(t *testing.T) {
	dir := newFake()
	_, err := Resolve(context.Background(), dir, "5thGrade1234567890")
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if dir.listStudentCalls != 0 {
		t.Fatalf("ten-digit remainder must not fetch the student directory, got %d fetches", dir.listStudentCalls)
	}
}

func TestResolveDirectoryFaultStillTriesFallback(t *testing.T) {
	dir := newFake()
	dir.listClassesFailed = true
	match, err := Resolve(context.Background(), dir, anaID)
	if err != nil {
		t.Fatalf("resolve error: %v", err)
	}
	if match.Student.ID != anaID {
		t.Fatalf("expected Ana via fallback, got %s", match.Student.ID)
	}
}

func TestDisplayIDRoundTrip(t *testing.T) {
	dir := newFake()
	for _, studentID := range []string{anaID, benID, carlID, drewID} {
		student := dir.byID[studentID]
		class, err := dir.GetClass(context.Background(), *student.ClassID)
		if err != nil {
			t.Fatalf("class lookup: %v", err)
		}
		token := DisplayID(student, class)
		match, err := Resolve(context.Background(), dir, token)
		if err != nil {
			t.Fatalf("round trip %q: %v", token, err)
		}
		if match.Student.ID != studentID {
			t.Fatalf("round trip %q: expected %s, got %s", token, studentID, match.Student.ID)
		}
		if match.Class == nil || match.Class.ID != class.ID {
			t.Fatalf("round trip %q: wrong class", token)
		}
	}
}

func TestCleanName(t *testing.T) {
	cases := map[string]string{
		"5th Grade":       "5thgrade",
		"Grade 12":        "grade12",
		"Mrs. O'Brien":    "mrsobrien",
		"  Art & Design ": "artdesign",
		"Année 2":         "anne2", // non-ASCII letters are stripped
		"":                "",
	}
	for input, expect := range cases {
		if got := CleanName(input); got != expect {
			t.Fatalf("CleanName(%q) = %q, expected %q", input, got, expect)
		}
	}
}

func TestDisplayIDFallsBackToRawID(t *testing.T) {
	dir := newFake()
	drew := dir.byID[drewID]
	class, _ := dir.GetClass(context.Background(), fifthGradeID)
	if got := DisplayID(drew, class); got != "5thgrade"+drewID {
		t.Fatalf("expected raw-id display identifier, got %q", got)
	}
}

func TestProfileURL(t *testing.T) {
	dir := newFake()
	ana := dir.byID[anaID]
	class, _ := dir.GetClass(context.Background(), fifthGradeID)
	got := ProfileURL("https://roster.example.com/", ana, class)
	if got != "https://roster.example.com/student-profile/5thgrade12" {
		t.Fatalf("unexpected profile url %q", got)
	}
}

func TestIsCanonicalUUID(t *testing.T) {
	if !isCanonicalUUID("bbbbbbbb-0000-0000-0000-000000000001") {
		t.Fatalf("expected canonical uuid to validate")
	}
	for _, value := range []string{
		"bbbbbbbb000000000000000000000001",                // no hyphens
		"urn:uuid:bbbbbbbb-0000-0000-0000-000000000001",   // urn form
		"{bbbbbbbb-0000-0000-0000-000000000001}",          // braced form
		"bbbbbbbb-0000-0000-0000-00000000000g",            // bad hex
		"bbbbbbbb-0000-0000-0000-000000000001 ",           // trailing space
	} {
		if isCanonicalUUID(value) {
			t.Fatalf("expected %q to be rejected", value)
		}
	}
}
