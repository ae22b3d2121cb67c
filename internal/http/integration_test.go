package http_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"testing"
)

type classResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type studentResponse struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	SequenceNumber *int64 `json:"sequenceNumber"`
}

type profileResponse struct {
	Student   studentResponse `json:"student"`
	DisplayID string          `json:"displayId"`
	ShareURL  string          `json:"shareUrl"`
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func postJSON(t *testing.T, url string, payload interface{}, out interface{}) {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		t.Fatalf("post %s: status %d", url, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
}

func getJSON(t *testing.T, url string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestProfileResolutionEndToEnd(t *testing.T) {
	if os.Getenv("INTEGRATION_TESTS") != "1" {
		t.Skip("set INTEGRATION_TESTS=1 to run")
	}
	baseURL := getenv("ROSTER_HTTP_ADDR", "http://127.0.0.1:8084")

	var class classResponse
	postJSON(t, baseURL+"/class", map[string]string{"name": "5th Grade"}, &class)

	var student studentResponse
	postJSON(t, baseURL+"/student", map[string]interface{}{
		"name":    "Ana",
		"classId": class.ID,
	}, &student)
	if student.SequenceNumber == nil {
		t.Fatalf("expected sequence number to be assigned on save")
	}

	token := fmt.Sprintf("5thgrade%d", *student.SequenceNumber)
	variants := []string{
		token,
		fmt.Sprintf("5THGRADE%d", *student.SequenceNumber),
		fmt.Sprintf("5thGrade_%d", *student.SequenceNumber),
		student.ID, // legacy bare-uuid link
	}
	for _, variant := range variants {
		var profile profileResponse
		if status := getJSON(t, baseURL+"/student-profile/"+variant, &profile); status != http.StatusOK {
			t.Fatalf("resolve %q: status %d", variant, status)
		}
		if profile.Student.ID != student.ID {
			t.Fatalf("resolve %q: expected %s, got %s", variant, student.ID, profile.Student.ID)
		}
	}

	if status := getJSON(t, baseURL+"/student-profile/5thgradenope", nil); status != http.StatusNotFound {
		t.Fatalf("expected 404 for unresolvable token, got %d", status)
	}
}
