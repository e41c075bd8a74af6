package report

import (
	"fmt"
	"io"
	"strconv"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const reportStyle = `body{font-family:sans-serif;max-width:52em;margin:2em auto;color:#222}
.score{font-size:3em;font-weight:bold}
.band-high{color:#16a34a}.band-medium{color:#ca8a04}.band-low{color:#dc2626}
mark{background:#fecaca}mark.semantic_ai{background:#fde68a}
.text{white-space:pre-wrap;line-height:1.6;border:1px solid #ddd;padding:1em}
.match{border-left:4px solid #f87171;padding-left:.75em;margin:.75em 0}
.meta{color:#666;font-size:.9em}`

// RenderHTML writes view as a standalone HTML page. When text is the submitted text its
// highlighted spans are marked inline.
func RenderHTML(w io.Writer, view *View, text string) error {
	body := el(atom.Body, nil,
		el(atom.H1, nil, txt("Check report")),
		el(atom.P, attrs("class", "meta"), txt("ID: "+view.TaskID)),
		el(atom.Div, attrs("class", "score band-"+string(view.Band)),
			txt(fmt.Sprintf("%.1f%%", view.Originality))),
		el(atom.P, nil, txt("Originality")),
		el(atom.Ul, attrs("class", "stats"),
			el(atom.Li, nil, txt("Words: "+strconv.Itoa(view.TotalWords))),
			el(atom.Li, nil, txt("Characters: "+strconv.Itoa(view.TotalChars))),
			el(atom.Li, nil, txt("Matches: "+strconv.Itoa(len(view.Matches)))),
			el(atom.Li, nil, txt(fmt.Sprintf("Coverage: %.1f%%", view.Stats.Coverage*100))),
		),
	)
	if view.AIPowered {
		body.AppendChild(el(atom.P, attrs("class", "meta"), txt("Checked with semantic AI analysis")))
	}

	if text != "" {
		body.AppendChild(el(atom.H2, nil, txt("Text")))
		body.AppendChild(textBlock(text, view.Highlights))
	}

	if len(view.Matches) > 0 {
		body.AppendChild(el(atom.H2, nil, txt("Matches")))
		for _, m := range view.Expanded {
			body.AppendChild(el(atom.Div, attrs("class", "match"),
				el(atom.P, nil, txt(m.Text)),
				el(atom.P, attrs("class", "meta"),
					txt(fmt.Sprintf("Similarity: %.0f%% · Type: %s", m.Similarity*100, m.Type))),
			))
		}
		if view.HiddenMatches > 0 {
			body.AppendChild(el(atom.P, attrs("class", "meta"),
				txt(fmt.Sprintf("%d more matches not shown", view.HiddenMatches))))
		}
	}

	if len(view.Sources) > 0 {
		body.AppendChild(el(atom.H2, nil, txt("Sources")))
		list := el(atom.Ol, nil)
		for _, s := range view.Sources {
			title := s.Title
			if title == "" {
				title = s.URL
			}
			item := el(atom.Li, nil)
			if s.URL != "" {
				item.AppendChild(el(atom.A, attrs("href", s.URL, "rel", "noopener noreferrer", "target", "_blank"), txt(title)))
			} else {
				item.AppendChild(txt(title))
			}
			item.AppendChild(el(atom.Span, attrs("class", "meta"),
				txt(fmt.Sprintf(" %s · matches: %d · avg similarity: %.0f%%", s.Domain, s.MatchCount, s.AvgSimilarity*100))))
			list.AppendChild(item)
		}
		body.AppendChild(list)
	}

	doc := &html.Node{Type: html.DocumentNode}
	doc.AppendChild(&html.Node{Type: html.DoctypeNode, Data: "html"})
	doc.AppendChild(el(atom.Html, attrs("lang", "en"),
		el(atom.Head, nil,
			el(atom.Meta, attrs("charset", "utf-8")),
			el(atom.Title, nil, txt("Check report "+view.TaskID)),
			el(atom.Style, nil, txt(reportStyle)),
		),
		body,
	))

	if err := html.Render(w, doc); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	return nil
}

func textBlock(text string, spans []Span) *html.Node {
	block := el(atom.Div, attrs("class", "text"))
	for _, seg := range Segments(text, spans) {
		if seg.Span == nil {
			block.AppendChild(txt(seg.Text))
			continue
		}
		block.AppendChild(el(atom.Mark, attrs(
			"class", string(seg.Span.Type),
			"title", fmt.Sprintf("source %d, similarity %.0f%%", seg.Span.SourceID, seg.Span.Similarity*100),
		), txt(seg.Text)))
	}
	return block
}

func el(a atom.Atom, attr []html.Attribute, children ...*html.Node) *html.Node {
	n := &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String(), Attr: attr}
	for _, c := range children {
		n.AppendChild(c)
	}
	return n
}

func txt(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

func attrs(kv ...string) []html.Attribute {
	out := make([]html.Attribute, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, html.Attribute{Key: kv[i], Val: kv[i+1]})
	}
	return out
}
