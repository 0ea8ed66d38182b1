package chunker

import (
	"regexp"
	"strings"

	"github.com/jdkato/prose/v2"
	"go.uber.org/zap"

	"github.com/medprompt/backend/pkg/logger"
)

var blankLine = regexp.MustCompile(`\n[ \t]*\n`)

// Splitter turns document text into paragraph chunks. Paragraphs longer than
// maxChars are regrouped into sentence windows; zero disables that.
type Splitter struct {
	maxChars int
}

func NewSplitter(maxChars int) *Splitter {
	return &Splitter{maxChars: maxChars}
}

func (s *Splitter) Split(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var chunks []string
	for _, para := range blankLine.Split(text, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if s.maxChars <= 0 || len(para) <= s.maxChars {
			chunks = append(chunks, para)
			continue
		}
		chunks = append(chunks, s.window(para)...)
	}
	return chunks
}

func (s *Splitter) window(para string) []string {
	units := sentences(para)
	if len(units) <= 1 {
		units = strings.Fields(para)
	}

	var out []string
	var cur strings.Builder
	for _, u := range units {
		if cur.Len() > 0 && cur.Len()+1+len(u) > s.maxChars {
			out = append(out, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(u)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

func sentences(text string) []string {
	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithExtraction(false),
		prose.WithSegmentation(true),
	)
	if err != nil {
		logger.Warn("Sentence segmentation failed", zap.Error(err))
		return nil
	}

	var out []string
	for _, sent := range doc.Sentences() {
		if t := strings.TrimSpace(sent.Text); t != "" {
			out = append(out, t)
		}
	}
	return out
}
