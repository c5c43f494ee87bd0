package ingestion_engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"code.sajari.com/docconv"
	"github.com/sirupsen/logrus"

	"github.com/markdave123-py/docindex/internal/core"
	"github.com/markdave123-py/docindex/internal/logging"
)

// FileKind selects the extractor for a file.
type FileKind int

const (
	KindUnknown FileKind = iota
	KindPDF
	KindDOCX
	KindText
)

func (k FileKind) String() string {
	switch k {
	case KindPDF:
		return "PDF"
	case KindDOCX:
		return "DOCX"
	case KindText:
		return "Text"
	default:
		return "Unknown"
	}
}

var extensionKinds = map[string]FileKind{
	".pdf":      KindPDF,
	".docx":     KindDOCX,
	".doc":      KindDOCX,
	".txt":      KindText,
	".md":       KindText,
	".markdown": KindText,
}

// KindForExtension maps an extension, with or without the leading dot and
// in any case, to its FileKind.
func KindForExtension(ext string) FileKind {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if k, ok := extensionKinds[ext]; ok {
		return k
	}
	return KindUnknown
}

// converter is the docconv function shape shared by the PDF, DOCX and DOC paths.
type converter func(io.Reader) (string, map[string]string, error)

var (
	_ core.DocumentExtractor = (*PDFExtractor)(nil)
	_ core.DocumentExtractor = (*DocxExtractor)(nil)
	_ core.DocumentExtractor = (*TextExtractor)(nil)
)

// PDFExtractor extracts text and the info dictionary through docconv
// (pdftotext/pdfinfo).
type PDFExtractor struct {
	convert converter
}

func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{convert: docconv.ConvertPDF}
}

func (e *PDFExtractor) ExtractText(ctx context.Context, path string) (*core.ExtractedText, error) {
	body, meta, err := convertFile(ctx, path, e.convert)
	if err != nil {
		return nil, &ExtractionError{Format: KindPDF.String(), Err: err}
	}

	return &core.ExtractedText{
		Text: body,
		Metadata: map[string]any{
			"numPages":         pdfPages(meta),
			"title":            metaOrNil(meta, "Title"),
			"author":           metaOrNil(meta, "Author"),
			"subject":          metaOrNil(meta, "Subject"),
			"creator":          metaOrNil(meta, "Creator"),
			"producer":         metaOrNil(meta, "Producer"),
			"creationDate":     metaOrNil(meta, "CreationDate"),
			"modificationDate": metaOrNil(meta, "ModDate"),
			"textLength":       utf8.RuneCountInString(body),
		},
	}, nil
}

// DocxExtractor handles Word documents: .docx natively, legacy .doc
// through docconv's doc converter.
type DocxExtractor struct {
	convertDocx converter
	convertDoc  converter
}

func NewDocxExtractor() *DocxExtractor {
	return &DocxExtractor{convertDocx: docconv.ConvertDocx, convertDoc: docconv.ConvertDoc}
}

func (e *DocxExtractor) ExtractText(ctx context.Context, path string) (*core.ExtractedText, error) {
	convert := e.convertDocx
	if strings.EqualFold(filepath.Ext(path), ".doc") {
		convert = e.convertDoc
	}

	body, _, err := convertFile(ctx, path, convert)
	if err != nil {
		return nil, &ExtractionError{Format: KindDOCX.String(), Err: err}
	}

	messages := []string{}
	if strings.TrimSpace(body) == "" {
		messages = append(messages, "no text content found in document")
	}

	return &core.ExtractedText{
		Text: body,
		Metadata: map[string]any{
			"textLength": utf8.RuneCountInString(body),
			"messages":   messages,
		},
	}, nil
}

// TextExtractor reads plain text and Markdown as UTF-8. Invalid byte
// sequences become U+FFFD.
type TextExtractor struct{}

func NewTextExtractor() *TextExtractor {
	return &TextExtractor{}
}

func (e *TextExtractor) ExtractText(ctx context.Context, path string) (*core.ExtractedText, error) {
	if err := ctx.Err(); err != nil {
		return nil, &ExtractionError{Format: KindText.String(), Err: err}
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &ExtractionError{Format: KindText.String(), Err: err}
	}

	content := strings.ToValidUTF8(string(raw), "�")
	return &core.ExtractedText{
		Text: content,
		Metadata: map[string]any{
			"textLength": utf8.RuneCountInString(content),
			"encoding":   "utf8",
		},
	}, nil
}

func convertFile(ctx context.Context, path string, convert converter) (string, map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", nil, err
	}
	defer f.Close()

	return convert(f)
}

func metaOrNil(meta map[string]string, key string) any {
	if v, ok := meta[key]; ok && strings.TrimSpace(v) != "" {
		return v
	}
	return nil
}

func pdfPages(meta map[string]string) any {
	n, err := strconv.Atoi(strings.TrimSpace(meta["Pages"]))
	if err != nil {
		return nil
	}
	return n
}

// ProcessResult is the outcome of ProcessDocument. On failure Success is
// false, Error holds the message and Metadata still carries the path.
type ProcessResult struct {
	Text     string
	Metadata map[string]any
	Success  bool
	Error    string
}

// DocumentProcessor dispatches a file to the extractor for its kind.
type DocumentProcessor struct {
	extractors map[FileKind]core.DocumentExtractor
	log        *logrus.Logger
}

// NewDocumentProcessor wires the docconv-backed PDF and Word extractors
// and the plain text reader.
func NewDocumentProcessor(log *logrus.Logger) *DocumentProcessor {
	return NewDocumentProcessorWith(map[FileKind]core.DocumentExtractor{
		KindPDF:  NewPDFExtractor(),
		KindDOCX: NewDocxExtractor(),
		KindText: NewTextExtractor(),
	}, log)
}

// NewDocumentProcessorWith uses the given extractors. A kind missing from
// the map is treated as unsupported.
func NewDocumentProcessorWith(extractors map[FileKind]core.DocumentExtractor, log *logrus.Logger) *DocumentProcessor {
	if log == nil {
		log = logging.Discard()
	}
	return &DocumentProcessor{extractors: extractors, log: log}
}

// ProcessDocument extracts the text of one file. It never returns an error;
// failures come back as a ProcessResult with Success=false.
func (p *DocumentProcessor) ProcessDocument(ctx context.Context, filePath string) ProcessResult {
	ext := strings.ToLower(filepath.Ext(filePath))
	res, err := p.process(ctx, filePath, ext)
	if err != nil {
		p.log.WithFields(logrus.Fields{"path": filePath, "error": err}).Error("failed to process document")
		return ProcessResult{
			Metadata: map[string]any{
				"filePath": filePath,
				"fileName": filepath.Base(filePath),
				"error":    err.Error(),
			},
			Success: false,
			Error:   err.Error(),
		}
	}
	return res
}

func (p *DocumentProcessor) process(ctx context.Context, filePath, ext string) (ProcessResult, error) {
	extractor, ok := p.extractors[KindForExtension(ext)]
	if !ok {
		return ProcessResult{}, &UnsupportedFileTypeError{Ext: ext}
	}

	info, err := os.Stat(filePath)
	if err != nil {
		return ProcessResult{}, fmt.Errorf("stat %s: %w", filePath, err)
	}

	p.log.WithFields(logrus.Fields{"path": filePath, "ext": ext}).Info("processing document")

	extracted, err := extractor.ExtractText(ctx, filePath)
	if err != nil {
		return ProcessResult{}, err
	}

	meta := map[string]any{
		"filePath":      filePath,
		"fileName":      filepath.Base(filePath),
		"fileExtension": ext,
		"fileSize":      info.Size(),
		"modifiedAt":    info.ModTime().UTC(),
	}
	for k, v := range extracted.Metadata {
		meta[k] = v
	}

	return ProcessResult{Text: extracted.Text, Metadata: meta, Success: true}, nil
}

// SupportedExtensions lists the extensions with an extractor.
func (p *DocumentProcessor) SupportedExtensions() []string {
	out := make([]string, 0, len(extensionKinds))
	for ext, kind := range extensionKinds {
		if _, ok := p.extractors[kind]; ok {
			out = append(out, ext)
		}
	}
	return out
}

// IsSupported reports whether ext (with or without dot) has an extractor.
func (p *DocumentProcessor) IsSupported(ext string) bool {
	_, ok := p.extractors[KindForExtension(ext)]
	return ok
}
