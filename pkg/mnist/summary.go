package mnist

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// Summary of a pass over a dataset.
type Summary struct {
	ImagesPath string `json:"images"`
	LabelsPath string `json:"labels"`

	// Count of samples read.
	Count int `json:"count"`

	// LabelCounts maps each label found to the number of samples with it.
	LabelCounts map[int32]int `json:"label_counts"`

	// MeanIntensity is the mean of all normalized pixels.
	MeanIntensity float64 `json:"mean_intensity"`

	// MeanInkPixels is the mean number of non-zero pixels per image.
	MeanInkPixels float64 `json:"mean_ink_pixels"`
}

// Summarize consumes all the remaining samples of the dataset (closing it at the end) and
// returns statistics about them.
func Summarize(ds *Dataset) (*Summary, error) {
	s := &Summary{
		ImagesPath:  ds.ImagesPath(),
		LabelsPath:  ds.LabelsPath(),
		LabelCounts: make(map[int32]int),
	}
	var sum float64
	var inkPixels int
	for sample, err := range ds.All() {
		if err != nil {
			return nil, errors.WithMessagef(err, "failed summarizing after %d samples", s.Count)
		}
		s.Count++
		s.LabelCounts[sample.Label]++
		for _, v := range sample.Image {
			sum += float64(v)
			if v > 0 {
				inkPixels++
			}
		}
	}
	if s.Count > 0 {
		s.MeanIntensity = sum / float64(s.Count*len(Raw{}))
		s.MeanInkPixels = float64(inkPixels) / float64(s.Count)
	}
	return s, nil
}

// WriteJSON writes the summary as indented JSON.
func (s *Summary) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return errors.Wrap(err, "failed to encode MNIST summary")
	}
	return nil
}

// Table returns a human-readable table with the label distribution, followed by the totals.
func (s *Summary) Table() string {
	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	headerStyle := lipgloss.NewStyle().Padding(0, 1).Bold(true).Reverse(true)
	rightAlignedStyle := cellStyle.Align(lipgloss.Right)
	table := lgtable.New().
		Border(lipgloss.RoundedBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == lgtable.HeaderRow:
				return headerStyle
			case col > 0:
				return rightAlignedStyle
			}
			return cellStyle
		}).
		Headers("Label", "Samples", "Share")
	for label := int32(0); label <= 255; label++ {
		count, found := s.LabelCounts[label]
		if !found {
			continue
		}
		table.Row(strconv.Itoa(int(label)), humanize.Comma(int64(count)),
			fmt.Sprintf("%.2f%%", 100*float64(count)/float64(max(s.Count, 1))))
	}
	table.Row("Total", humanize.Comma(int64(s.Count)), "100.00%")
	return fmt.Sprintf("images: %s\nlabels: %s\n%s\nmean intensity: %.4f, mean ink pixels: %.1f\n",
		s.ImagesPath, s.LabelsPath, table.Render(), s.MeanIntensity, s.MeanInkPixels)
}
