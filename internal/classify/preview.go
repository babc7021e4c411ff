package classify

import (
	"bytes"
	"encoding/base64"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PreviewOptions bound the text extracted from a payload.
type PreviewOptions struct {
	MaxChars int `yaml:"max_chars" validate:"min=0"`
	PDFPages int `yaml:"pdf_pages" validate:"min=0"`
	// MaxBytes caps how much of a payload is read at all.
	MaxBytes int64 `yaml:"max_bytes" validate:"min=0"`
}

// DefaultPreviewOptions returns the budget used by the original scripts.
func DefaultPreviewOptions() PreviewOptions {
	return PreviewOptions{MaxChars: 1000, PDFPages: 2, MaxBytes: 10 << 20}
}

func init() {
	// pdfcpu otherwise creates a config directory under the user's home.
	api.DisableConfigDir()
}

// Preview extracts a bounded text preview from the payload at path.
// Unsupported types and every extraction failure yield "".
func Preview(path string, opts PreviewOptions) (text string) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
		}
	}()

	data, err := readBounded(path, opts.MaxBytes)
	if err != nil {
		return ""
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".csv":
		text = string(data)
	case ".eml":
		text = emlText(data)
	case ".pdf":
		text = pdfText(data, opts.PDFPages)
	default:
		return ""
	}
	text = strings.ToValidUTF8(text, "")
	return truncateRunes(strings.TrimSpace(collapseSpace(text)), opts.MaxChars)
}

func readBounded(path string, limit int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if limit <= 0 {
		return io.ReadAll(f)
	}
	return io.ReadAll(io.LimitReader(f, limit))
}

// emlText returns the first text/plain body of an RFC 5322 message,
// prefixed by its subject.
func emlText(data []byte) string {
	msg, err := mail.ReadMessage(bytes.NewReader(data))
	if err != nil {
		return ""
	}
	subject := decodeHeader(msg.Header.Get("Subject"))
	body := textPart(msg.Header.Get("Content-Type"), msg.Header.Get("Content-Transfer-Encoding"), msg.Body, 0)
	return strings.TrimSpace(subject + "\n" + body)
}

func decodeHeader(v string) string {
	dec := new(mime.WordDecoder)
	if s, err := dec.DecodeHeader(v); err == nil {
		return s
	}
	return v
}

func textPart(contentType, encoding string, r io.Reader, depth int) string {
	if depth > 5 {
		return ""
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		mr := multipart.NewReader(r, params["boundary"])
		for {
			p, err := mr.NextPart()
			if err != nil {
				return ""
			}
			if s := textPart(p.Header.Get("Content-Type"), p.Header.Get("Content-Transfer-Encoding"), p, depth+1); s != "" {
				return s
			}
		}
	}
	if mediaType != "text/plain" {
		return ""
	}

	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "quoted-printable":
		r = quotedprintable.NewReader(r)
	case "base64":
		r = base64.NewDecoder(base64.StdEncoding, r)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return ""
	}
	return string(b)
}

var (
	pdfStringRegex = regexp.MustCompile(`\(((?:\\.|[^\\)])*)\)\s*(?:Tj|'|")`)
	pdfArrayRegex  = regexp.MustCompile(`\[((?:\\.|[^\]])*)\]\s*TJ`)
	pdfLiteral     = regexp.MustCompile(`\(((?:\\.|[^\\)])*)\)`)
)

// pdfText pulls literal strings from the content streams of the first
// pages. Documents with CID fonts or compressed object streams that
// pdfcpu cannot decode simply contribute nothing.
func pdfText(data []byte, pages int) string {
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err != nil {
		return ""
	}
	if pages <= 0 || pages > ctx.PageCount {
		pages = ctx.PageCount
	}

	var b strings.Builder
	for i := 1; i <= pages; i++ {
		r, err := pdfcpu.ExtractPageContent(ctx, i)
		if err != nil || r == nil {
			continue
		}
		content, err := io.ReadAll(r)
		if err != nil {
			continue
		}
		b.WriteString(contentText(content))
		b.WriteByte('\n')
	}
	return b.String()
}

// contentText extracts the operands of text-showing operators.
func contentText(content []byte) string {
	var parts []string
	for _, m := range pdfStringRegex.FindAllSubmatch(content, -1) {
		parts = append(parts, unescapePDF(string(m[1])))
	}
	for _, m := range pdfArrayRegex.FindAllSubmatch(content, -1) {
		var sb strings.Builder
		for _, lit := range pdfLiteral.FindAllSubmatch(m[1], -1) {
			sb.WriteString(unescapePDF(string(lit[1])))
		}
		parts = append(parts, sb.String())
	}
	return strings.Join(parts, " ")
}

var pdfEscapes = strings.NewReplacer(`\n`, "\n", `\r`, "\r", `\t`, "\t", `\(`, "(", `\)`, ")", `\\`, `\`)

func unescapePDF(s string) string {
	return pdfEscapes.Replace(s)
}

var spaceRegex = regexp.MustCompile(`\s+`)

func collapseSpace(s string) string {
	return spaceRegex.ReplaceAllString(s, " ")
}

func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

