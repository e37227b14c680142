package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/snapfind/internal/models"
)

func TestWriteSearchResults_JSON(t *testing.T) {
	response := &models.SearchResponse{
		Query:     "stage dance",
		EventName: "Annual Day",
		QueryTime: 42,
		Threshold: 0.2,
		Message:   "1 images matched",
		Results: []*models.SearchHit{
			{Filename: "TestImages/dance.jpg", ImageURL: "local://TestImages/dance.jpg", Similarity: 0.31},
		},
	}
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, response, OutputJSON); err != nil {
		t.Fatalf("WriteSearchResults(json): %v", err)
	}
	var decoded models.SearchResponse
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.Query != response.Query || decoded.QueryTime != response.QueryTime {
		t.Errorf("decoded query=%q query_time=%d", decoded.Query, decoded.QueryTime)
	}
	if len(decoded.Results) != 1 || decoded.Results[0].Filename != "TestImages/dance.jpg" {
		t.Errorf("decoded results: %+v", decoded.Results)
	}
}

func TestWriteSearchResults_text(t *testing.T) {
	response := &models.SearchResponse{
		Query:     "stage dance",
		EventName: "Annual Day",
		QueryTime: 10,
		Threshold: 0.2,
		Results: []*models.SearchHit{
			{Filename: "TestImages/dance.jpg", ImageURL: "https://cdn/dance.jpg", Similarity: 0.3125},
			{Filename: "TestImages/crowd.jpg", ImageURL: "https://cdn/crowd.jpg", Similarity: 0.25},
		},
	}
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, response, OutputText); err != nil {
		t.Fatalf("WriteSearchResults(text): %v", err)
	}
	out := buf.String()
	for _, sub := range []string{"Found 2 images", `"Annual Day"`, "threshold 0.20", "10ms", "1. 0.3125", "TestImages/dance.jpg", "https://cdn/crowd.jpg"} {
		if !strings.Contains(out, sub) {
			t.Errorf("text output missing %q:\n%s", sub, out)
		}
	}
}

func TestWriteSearchResults_textEmptyShowsMessage(t *testing.T) {
	response := &models.SearchResponse{
		Query:   "x",
		Results: []*models.SearchHit{},
		Message: "No images match the similarity threshold of 0.20. Try different keywords.",
	}
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, response, OutputFormat("unknown")); err != nil {
		t.Fatalf("WriteSearchResults(unknown): %v", err)
	}
	if !strings.Contains(buf.String(), "Try different keywords") {
		t.Errorf("unknown format should fall back to text with message; got %q", buf.String())
	}
}

func TestWriteUploadResult(t *testing.T) {
	result := &models.UploadResult{
		Message:     "1 images uploaded successfully!",
		EventName:   "Fest",
		FolderName:  "Fest/day1",
		ImagesCount: 1,
		TotalSizeKB: 12.5,
		Photos:      []*models.Photo{{Filename: "TestImages/a.jpg", ImageURL: "local://TestImages/a.jpg"}},
		Failed:      []*models.FileFailure{{Filename: "b.txt", Reason: "not an image"}},
	}
	var buf bytes.Buffer
	if err := WriteUploadResult(&buf, result, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, sub := range []string{"1 images uploaded successfully!", "Fest/day1", "12.50 KB", "+ TestImages/a.jpg", "- b.txt: not an image"} {
		if !strings.Contains(out, sub) {
			t.Errorf("upload output missing %q:\n%s", sub, out)
		}
	}

	buf.Reset()
	if err := WriteUploadResult(&buf, result, OutputJSON); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"images_count": 1`) {
		t.Errorf("json output: %s", buf.String())
	}
}

func TestWriteEvents(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteEvents(&buf, nil, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No events") {
		t.Errorf("got %q", buf.String())
	}

	buf.Reset()
	if err := WriteEvents(&buf, nil, OutputJSON); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("empty json = %q", buf.String())
	}

	buf.Reset()
	events := []*models.EventSummary{{
		EventName: "Annual Day", EventDate: "2024-03-01", PhotoCount: 12,
		LastUpload: time.Date(2024, 3, 2, 9, 30, 0, 0, time.UTC),
	}}
	if err := WriteEvents(&buf, events, OutputText); err != nil {
		t.Fatal(err)
	}
	for _, sub := range []string{"EVENT", "Annual Day", "2024-03-01", "12", "2024-03-02 09:30"} {
		if !strings.Contains(buf.String(), sub) {
			t.Errorf("events output missing %q:\n%s", sub, buf.String())
		}
	}
}

func TestPrintSearchResults(t *testing.T) {
	response := &models.SearchResponse{Query: "print test", QueryTime: 1}
	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w
	defer func() {
		os.Stdout = oldStdout
		_ = w.Close()
	}()
	PrintSearchResults(response)
	_ = w.Close()
	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	if !strings.Contains(buf.String(), "Found 0 images") {
		t.Errorf("PrintSearchResults should write to stdout; got %q", buf.String())
	}
}
