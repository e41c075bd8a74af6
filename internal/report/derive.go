// Package report turns a check result into a presentation-ready view.
package report

import (
	"sort"

	"github.com/antiplagiat/textcheck/internal/models"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// MaxExpandedMatches is how many match details are shown before the rest are collapsed.
const MaxExpandedMatches = 20

// Band is the qualitative originality bucket.
type Band string

const (
	BandHigh   Band = "high"
	BandMedium Band = "medium"
	BandLow    Band = "low"
)

// BandFor buckets an originality percentage.
func BandFor(originality float64) Band {
	switch {
	case originality >= 80:
		return BandHigh
	case originality >= 60:
		return BandMedium
	default:
		return BandLow
	}
}

// Span is a highlighted region of the submitted text, in rune offsets [Start, End).
type Span struct {
	Start      int              `json:"start"`
	End        int              `json:"end"`
	MatchIndex int              `json:"match_index"`
	SourceID   int              `json:"source_id"`
	Similarity float64          `json:"similarity"`
	Type       models.MatchType `json:"type"`
}

// Len returns the span length in runes.
func (s Span) Len() int {
	return s.End - s.Start
}

// Stats summarizes the matches of a result.
type Stats struct {
	MatchCount        int                      `json:"match_count"`
	MeanSimilarity    float64                  `json:"mean_similarity"`
	MaxSimilarity     float64                  `json:"max_similarity"`
	StdDevSimilarity  float64                  `json:"stddev_similarity"`
	HighlightedChars  int                      `json:"highlighted_chars"`
	Coverage          float64                  `json:"coverage"`
	ByType            map[models.MatchType]int `json:"by_type"`
	UnresolvedSources []int                    `json:"unresolved_sources"`
}

// View is everything a report page needs.
type View struct {
	TaskID      string           `json:"task_id"`
	Originality float64          `json:"originality"`
	Band        Band             `json:"band"`
	TotalWords  int              `json:"total_words"`
	TotalChars  int              `json:"total_chars"`
	AIPowered   bool             `json:"ai_powered"`
	CreatedAt   models.Timestamp `json:"created_at"`

	Highlights []Span          `json:"highlights"`
	Sources    []models.Source `json:"sources"`
	// Matches is the full match list sorted by start; Expanded is its visible prefix.
	Matches       []models.Match `json:"matches"`
	Expanded      []models.Match `json:"expanded"`
	HiddenMatches int            `json:"hidden_matches"`

	Stats Stats `json:"stats"`
}

// Derive computes the view of result. It does not modify result and returns equal views
// for equal inputs.
func Derive(result *models.CheckResult) *View {
	if result == nil {
		result = &models.CheckResult{}
	}

	highlights := Highlights(result.Matches, result.TotalChars)
	matches := sortedMatches(result.Matches)

	expanded := matches
	if len(expanded) > MaxExpandedMatches {
		expanded = expanded[:MaxExpandedMatches]
	}

	return &View{
		TaskID:        result.TaskID,
		Originality:   result.Originality,
		Band:          BandFor(result.Originality),
		TotalWords:    result.TotalWords,
		TotalChars:    result.TotalChars,
		AIPowered:     result.AIPowered,
		CreatedAt:     result.CreatedAt,
		Highlights:    highlights,
		Sources:       RankSources(result.Sources),
		Matches:       matches,
		Expanded:      expanded,
		HiddenMatches: len(matches) - len(expanded),
		Stats:         computeStats(result, highlights),
	}
}

// Highlights resolves matches into non-overlapping spans sorted by start.
// Where matches overlap the higher similarity wins, ties going to the earlier match; the
// loser keeps only the parts nobody else covers. Spans are clipped to [0, textLength);
// a textLength of zero disables the upper bound.
func Highlights(matches []models.Match, textLength int) []Span {
	order := make([]int, len(matches))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return matches[order[a]].Similarity > matches[order[b]].Similarity
	})

	var covered []Span // kept sorted by start
	out := []Span{}
	for _, i := range order {
		m := matches[i]
		start, end := m.Start, m.End
		if start < 0 {
			start = 0
		}
		if textLength > 0 && end > textLength {
			end = textLength
		}
		if end <= start {
			continue
		}

		for _, piece := range uncovered(covered, start, end) {
			span := Span{
				Start:      piece[0],
				End:        piece[1],
				MatchIndex: i,
				SourceID:   m.SourceID,
				Similarity: m.Similarity,
				Type:       m.Type,
			}
			out = append(out, span)
			covered = insertSorted(covered, span)
		}
	}

	sort.Slice(out, func(a, b int) bool { return out[a].Start < out[b].Start })
	return out
}

// uncovered returns the parts of [start, end) not covered by the sorted spans.
func uncovered(covered []Span, start, end int) [][2]int {
	var pieces [][2]int
	cursor := start
	for _, c := range covered {
		if c.End <= cursor {
			continue
		}
		if c.Start >= end {
			break
		}
		if c.Start > cursor {
			pieces = append(pieces, [2]int{cursor, c.Start})
		}
		cursor = c.End
		if cursor >= end {
			return pieces
		}
	}
	if cursor < end {
		pieces = append(pieces, [2]int{cursor, end})
	}
	return pieces
}

func insertSorted(spans []Span, s Span) []Span {
	i := sort.Search(len(spans), func(i int) bool { return spans[i].Start >= s.Start })
	spans = append(spans, Span{})
	copy(spans[i+1:], spans[i:])
	spans[i] = s
	return spans
}

// RankSources drops sources without matches and orders the rest by match count, then
// average similarity, then id.
func RankSources(sources []models.Source) []models.Source {
	out := make([]models.Source, 0, len(sources))
	for _, s := range sources {
		if s.MatchCount > 0 {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].MatchCount != out[b].MatchCount {
			return out[a].MatchCount > out[b].MatchCount
		}
		if out[a].AvgSimilarity != out[b].AvgSimilarity {
			return out[a].AvgSimilarity > out[b].AvgSimilarity
		}
		return out[a].ID < out[b].ID
	})
	return out
}

func sortedMatches(matches []models.Match) []models.Match {
	out := make([]models.Match, len(matches))
	copy(out, matches)
	sort.SliceStable(out, func(a, b int) bool { return out[a].Start < out[b].Start })
	return out
}

func computeStats(result *models.CheckResult, highlights []Span) Stats {
	s := Stats{
		MatchCount:        len(result.Matches),
		ByType:            map[models.MatchType]int{},
		UnresolvedSources: []int{},
	}

	if len(result.Matches) > 0 {
		sims := make([]float64, len(result.Matches))
		for i, m := range result.Matches {
			sims[i] = m.Similarity
			s.ByType[m.Type]++
		}
		s.MeanSimilarity = stat.Mean(sims, nil)
		s.MaxSimilarity = floats.Max(sims)
		s.StdDevSimilarity = stat.PopStdDev(sims, nil)
	}

	for _, h := range highlights {
		s.HighlightedChars += h.Len()
	}
	if result.TotalChars > 0 {
		s.Coverage = float64(s.HighlightedChars) / float64(result.TotalChars)
	}

	known := make(map[int]bool, len(result.Sources))
	for _, src := range result.Sources {
		known[src.ID] = true
	}
	seen := map[int]bool{}
	for _, m := range result.Matches {
		if !known[m.SourceID] && !seen[m.SourceID] {
			seen[m.SourceID] = true
			s.UnresolvedSources = append(s.UnresolvedSources, m.SourceID)
		}
	}
	sort.Ints(s.UnresolvedSources)

	return s
}
