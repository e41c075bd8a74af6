package report

// Segment is a run of the submitted text, either plain or covered by one highlight.
type Segment struct {
	Text string
	// Span is the highlight covering the run, nil for plain text.
	Span *Span
}

// Segments splits text into alternating plain and highlighted runs. Spans must be sorted
// and non-overlapping, as Highlights returns them; anything past the end of text is ignored.
func Segments(text string, spans []Span) []Segment {
	runes := []rune(text)
	var out []Segment
	cursor := 0

	for i := range spans {
		s := spans[i]
		start, end := s.Start, s.End
		if start < cursor {
			start = cursor
		}
		if end > len(runes) {
			end = len(runes)
		}
		if start >= end {
			continue
		}
		if start > cursor {
			out = append(out, Segment{Text: string(runes[cursor:start])})
		}
		out = append(out, Segment{Text: string(runes[start:end]), Span: &spans[i]})
		cursor = end
	}
	if cursor < len(runes) {
		out = append(out, Segment{Text: string(runes[cursor:])})
	}
	return out
}
