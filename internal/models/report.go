package models

import "time"

// Label is a sentiment class.
type Label string

const (
	LabelPositive Label = "positive"
	LabelNegative Label = "negative"
	LabelNeutral  Label = "neutral"
)

// Labels lists every class in model output order.
var Labels = []Label{LabelPositive, LabelNegative, LabelNeutral}

// DisplayName returns the Korean label shown to forum readers.
func (l Label) DisplayName() string {
	switch l {
	case LabelPositive:
		return "긍정"
	case LabelNegative:
		return "부정"
	case LabelNeutral:
		return "중립"
	default:
		return string(l)
	}
}

// ClassificationResult is the prediction for one normalized item.
// Confidence is a percentage in [0, 100].
type ClassificationResult struct {
	Label      Label   `json:"label"`
	Confidence float64 `json:"confidence"`
}

// ReportItem joins the extracted text with its prediction.
type ReportItem struct {
	PostID     string  `json:"post_id"`
	Source     Source  `json:"source"`
	Text       string  `json:"text"`
	Label      Label   `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Report is the outcome of one query run, stored in Elasticsearch.
// Percentages, like Confidence, is on a 0-100 scale: 100·count/total.
type Report struct {
	ID          string            `json:"id"`
	RequestID   string            `json:"request_id,omitempty"`
	Query       string            `json:"query"`
	Timestamp   time.Time         `json:"timestamp"`
	PostCount   int               `json:"post_count"`
	Items       []ReportItem      `json:"items"`
	Counts      map[Label]int     `json:"counts"`
	Percentages map[Label]float64 `json:"percentages"`
	Total       int               `json:"total"`
	Dominant    Label             `json:"dominant,omitempty"`
	Keywords    []string          `json:"keywords,omitempty"`
	Warnings    []string          `json:"warnings,omitempty"`
}
