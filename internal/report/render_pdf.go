package report

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// PDFOptions configures PDF export.
type PDFOptions struct {
	// FontPath is a UTF-8 TrueType font. Without it the core Arial font is used and text
	// outside Windows-1252 cannot be shown.
	FontPath string
}

// RenderPDF renders view as a PDF document.
func RenderPDF(view *View, opts PDFOptions) ([]byte, error) {
	p := gofpdf.New("P", "mm", "A4", "")

	family := "Arial"
	tr := p.UnicodeTranslatorFromDescriptor("")
	if opts.FontPath != "" {
		family = "ReportFont"
		p.AddUTF8Font(family, "", opts.FontPath)
		tr = func(s string) string { return s }
	}

	p.AddPage()
	p.SetFont(family, "", 18)
	p.Cell(0, 10, tr("Check report"))
	p.Ln(12)

	p.SetFont(family, "", 10)
	p.Cell(0, 6, tr("ID: "+view.TaskID))
	p.Ln(8)

	p.SetFont(family, "", 28)
	switch view.Band {
	case BandHigh:
		p.SetTextColor(22, 163, 74)
	case BandMedium:
		p.SetTextColor(202, 138, 4)
	default:
		p.SetTextColor(220, 38, 38)
	}
	p.Cell(0, 14, fmt.Sprintf("%.1f%%", view.Originality))
	p.SetTextColor(0, 0, 0)
	p.Ln(16)

	p.SetFont(family, "", 11)
	p.Cell(0, 7, tr(fmt.Sprintf("Words: %d   Characters: %d   Matches: %d   Coverage: %.1f%%",
		view.TotalWords, view.TotalChars, len(view.Matches), view.Stats.Coverage*100)))
	p.Ln(10)

	if len(view.Expanded) > 0 {
		p.SetFont(family, "", 14)
		p.Cell(0, 8, tr("Matches"))
		p.Ln(10)
		p.SetFont(family, "", 10)
		for _, m := range view.Expanded {
			p.MultiCell(0, 5, tr(m.Text), "L", "", false)
			p.Cell(0, 5, tr(fmt.Sprintf("Similarity: %.0f%%  Type: %s  Source: %d", m.Similarity*100, m.Type, m.SourceID)))
			p.Ln(8)
		}
		if view.HiddenMatches > 0 {
			p.Cell(0, 6, tr(fmt.Sprintf("%d more matches not shown", view.HiddenMatches)))
			p.Ln(8)
		}
	}

	if len(view.Sources) > 0 {
		p.SetFont(family, "", 14)
		p.Cell(0, 8, tr("Sources"))
		p.Ln(10)
		p.SetFont(family, "", 10)
		for i, s := range view.Sources {
			p.MultiCell(0, 5, tr(fmt.Sprintf("%d. %s", i+1, s.Title)), "", "", false)
			p.Cell(0, 5, tr(fmt.Sprintf("%s  matches: %d  avg similarity: %.0f%%", s.URL, s.MatchCount, s.AvgSimilarity*100)))
			p.Ln(7)
		}
	}

	var buf bytes.Buffer
	if err := p.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
