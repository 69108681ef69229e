package pipeline

import (
	"fmt"

	"github.com/DeafMist/gpu-opinion-radar/internal/models"
)

// Summarize joins items with their results positionally and fills the
// report's per-item detail, counts and percentages. Percentages are on a
// 0-100 scale and sum to 100 for a non-empty report. Every label is present
// in the tallies, zero or not.
func Summarize(report *models.Report, items []models.NormalizedItem, results []models.ClassificationResult) error {
	if len(items) != len(results) {
		return fmt.Errorf("pipeline: %d results for %d items", len(results), len(items))
	}

	counts, percentages := zeroTallies()
	detail := make([]models.ReportItem, 0, len(items))
	for i, it := range items {
		res := results[i]
		counts[res.Label]++
		detail = append(detail, models.ReportItem{
			PostID:     it.Origin.PostID,
			Source:     it.Origin.Source,
			Text:       it.Origin.RawText,
			Label:      res.Label,
			Confidence: res.Confidence,
		})
	}

	total := len(detail)
	if total > 0 {
		for _, l := range models.Labels {
			percentages[l] = 100 * float64(counts[l]) / float64(total)
		}
	}

	report.Items = detail
	report.Counts = counts
	report.Percentages = percentages
	report.Total = total
	report.Dominant = dominant(counts, total)
	return nil
}

func zeroTallies() (map[models.Label]int, map[models.Label]float64) {
	counts := make(map[models.Label]int, len(models.Labels))
	percentages := make(map[models.Label]float64, len(models.Labels))
	for _, l := range models.Labels {
		counts[l] = 0
		percentages[l] = 0
	}
	return counts, percentages
}

func dominant(counts map[models.Label]int, total int) models.Label {
	if total == 0 {
		return ""
	}
	best := models.Labels[0]
	for _, l := range models.Labels[1:] {
		if counts[l] > counts[best] {
			best = l
		}
	}
	return best
}
