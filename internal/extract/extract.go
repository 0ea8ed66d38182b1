// Package extract turns uploaded documents into plain text.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"github.com/medprompt/backend/pkg/logger"
)

var (
	ErrUnsupportedType = errors.New("unsupported document type")
	ErrEmptyDocument   = errors.New("document is empty")
	ErrNoText          = errors.New("no text could be extracted")
)

type Kind string

const (
	KindPDF   Kind = "pdf"
	KindImage Kind = "image"
	KindHTML  Kind = "html"
	KindText  Kind = "text"
)

type Document struct {
	Kind     Kind
	MIMEType string
	Text     string
}

// Recognizer returns the text found in an image.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte, mimeType string) (string, error)
}

type Extractor struct {
	ocr Recognizer
}

// NewExtractor builds an extractor; ocr may be nil, in which case images
// fail with ErrOCRUnavailable.
func NewExtractor(ocr Recognizer) *Extractor {
	return &Extractor{ocr: ocr}
}

var (
	spaceRun   = regexp.MustCompile(`[ \t\f\v\r]+`)
	blankLines = regexp.MustCompile(`\n{3,}`)
)

func Detect(data []byte) (Kind, string, error) {
	mtype := mimetype.Detect(data)

	switch {
	case mtype.Is("application/pdf"):
		return KindPDF, mtype.String(), nil
	case strings.HasPrefix(mtype.String(), "image/"):
		return KindImage, mtype.String(), nil
	case mtype.Is("text/html"):
		return KindHTML, mtype.String(), nil
	}

	for mt := mtype; mt != nil; mt = mt.Parent() {
		if mt.Is("text/plain") {
			return KindText, mtype.String(), nil
		}
	}
	return "", mtype.String(), fmt.Errorf("%w: %s", ErrUnsupportedType, mtype.String())
}

func (e *Extractor) Extract(ctx context.Context, data []byte) (*Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyDocument
	}

	kind, mimeType, err := Detect(data)
	if err != nil {
		return nil, err
	}

	var text string
	switch kind {
	case KindPDF:
		text, err = pdfText(data)
	case KindImage:
		if e.ocr == nil {
			return nil, ErrOCRUnavailable
		}
		text, err = e.ocr.Recognize(ctx, data, mimeType)
	case KindHTML:
		text, err = htmlText(data)
	case KindText:
		text = string(data)
	}
	if err != nil {
		return nil, err
	}

	text = normalize(text)
	if text == "" {
		return nil, fmt.Errorf("%w from %s", ErrNoText, kind)
	}

	logger.Debug("Document text extracted",
		zap.String("kind", string(kind)),
		zap.String("mime_type", mimeType),
		zap.Int("chars", len(text)),
	)

	return &Document{Kind: kind, MIMEType: mimeType, Text: text}, nil
}

func pdfText(data []byte) (text string, err error) {
	// The pdf reader panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to parse pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to parse pdf: %w", err)
	}

	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}

		rows, err := page.GetTextByRow()
		if err != nil {
			return "", fmt.Errorf("failed to read pdf page %d: %w", i, err)
		}

		var b strings.Builder
		for _, row := range rows {
			for _, word := range row.Content {
				b.WriteString(word.S)
			}
			b.WriteByte('\n')
		}
		pages = append(pages, b.String())
	}

	return strings.Join(pages, "\n\n"), nil
}

func htmlText(data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to parse html: %w", err)
	}

	doc.Find("script, style, nav, footer, header, aside, noscript").Remove()

	var blocks []string
	doc.Find("body").Find("h1, h2, h3, h4, h5, h6, p, li, tr, pre, blockquote").Each(func(_ int, s *goquery.Selection) {
		if s.Find("p, li").Length() > 0 {
			return
		}
		if t := strings.Join(strings.Fields(s.Text()), " "); t != "" {
			blocks = append(blocks, t)
		}
	})

	if len(blocks) == 0 {
		return strings.Join(strings.Fields(doc.Find("body").Text()), " "), nil
	}
	return strings.Join(blocks, "\n\n"), nil
}

func normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = spaceRun.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	text = strings.Join(lines, "\n")
	text = blankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
