package models

import (
	"fmt"
	"math"
	"strings"
)

// SearchRequest is a text search within one event.
type SearchRequest struct {
	EventName string `json:"event_name"`
	QueryText string `json:"query_text"`
	// Threshold overrides the configured minimum similarity when set.
	Threshold *float64 `json:"threshold,omitempty"`
	// Limit caps the number of results; 0 returns every match.
	Limit int `json:"limit,omitempty"`
}

// Validate trims the request fields and rejects blank or out-of-range values.
func (q *SearchRequest) Validate() error {
	q.EventName = strings.TrimSpace(q.EventName)
	q.QueryText = strings.TrimSpace(q.QueryText)
	if q.EventName == "" {
		return fmt.Errorf("event_name cannot be empty")
	}
	if q.QueryText == "" {
		return fmt.Errorf("query_text cannot be empty")
	}
	if q.Limit < 0 {
		return fmt.Errorf("limit cannot be negative")
	}
	if q.Threshold != nil {
		t := *q.Threshold
		if math.IsNaN(t) || t < -1 || t > 1 {
			return fmt.Errorf("threshold must be within [-1, 1]")
		}
	}
	return nil
}
