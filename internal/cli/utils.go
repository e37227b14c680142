// Package cli provides output helpers for the snapfind command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/hyperjump/snapfind/internal/models"
	"github.com/hyperjump/snapfind/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const maxNameWidth = 60

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteSearchResults writes search results to w in the given format.
// Use OutputJSON for parseable output consumable by other apps.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, response)
	}
	fmt.Fprintf(w, "\nFound %d images for %q in %q (threshold %.2f, %dms)\n\n",
		len(response.Results), response.Query, response.EventName, response.Threshold, response.QueryTime)
	if len(response.Results) == 0 {
		if response.Message != "" {
			fmt.Fprintln(w, response.Message)
		}
		return nil
	}
	for i, hit := range response.Results {
		fmt.Fprintf(w, "%3d. %.4f  %s\n", i+1, hit.Similarity, utils.Truncate(hit.Filename, maxNameWidth))
		fmt.Fprintf(w, "     %s\n", hit.ImageURL)
	}
	return nil
}

// PrintSearchResults prints search results to stdout in text format.
func PrintSearchResults(response *models.SearchResponse) {
	_ = WriteSearchResults(os.Stdout, response, OutputText)
}

// WriteUploadResult writes the outcome of an upload, including skipped files.
func WriteUploadResult(w io.Writer, result *models.UploadResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, result)
	}
	fmt.Fprintf(w, "%s\n", result.Message)
	fmt.Fprintf(w, "Event: %s  Folder: %s  Size: %.2f KB\n", result.EventName, result.FolderName, result.TotalSizeKB)
	for _, p := range result.Photos {
		fmt.Fprintf(w, "  + %s  %s\n", utils.Truncate(p.Filename, maxNameWidth), p.ImageURL)
	}
	for _, f := range result.Failed {
		fmt.Fprintf(w, "  - %s: %s\n", utils.Truncate(f.Filename, maxNameWidth), f.Reason)
	}
	return nil
}

// WriteEvents writes a table of events.
func WriteEvents(w io.Writer, events []*models.EventSummary, format OutputFormat) error {
	if format == OutputJSON {
		if events == nil {
			events = []*models.EventSummary{}
		}
		return writeJSON(w, events)
	}
	if len(events) == 0 {
		fmt.Fprintln(w, "No events")
		return nil
	}
	fmt.Fprintf(w, "%-40s %-12s %8s  %s\n", "EVENT", "DATE", "PHOTOS", "LAST UPLOAD")
	for _, ev := range events {
		fmt.Fprintf(w, "%-40s %-12s %8d  %s\n",
			utils.Truncate(ev.EventName, 37), ev.EventDate, ev.PhotoCount, ev.LastUpload.Format("2006-01-02 15:04"))
	}
	return nil
}
