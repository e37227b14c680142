package models

// SearchHit is one matching photo.
type SearchHit struct {
	Filename   string  `json:"filename"`
	ImageURL   string  `json:"image_url"`
	Similarity float64 `json:"similarity"`
}

// SearchResponse is the response for a search request. Results are sorted by
// similarity, highest first. Message is set when nothing cleared the threshold.
type SearchResponse struct {
	Query     string       `json:"query"`
	EventName string       `json:"event_name"`
	Results   []*SearchHit `json:"results"`
	Message   string       `json:"message,omitempty"`
	Threshold float64      `json:"threshold"`
	QueryTime int64        `json:"query_time_ms"`
}
