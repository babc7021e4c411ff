package classify

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestPreview(t *testing.T) {
	opts := PreviewOptions{MaxChars: 40, PDFPages: 2}

	eml := "From: Jan <jan@example.pl>\r\n" +
		"Subject: =?UTF-8?Q?Wycena_kuchni?=\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: multipart/alternative; boundary=\"b1\"\r\n" +
		"\r\n" +
		"--b1\r\n" +
		"Content-Type: text/html\r\n" +
		"\r\n" +
		"<p>html</p>\r\n" +
		"--b1\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"Content-Transfer-Encoding: quoted-printable\r\n" +
		"\r\n" +
		"Prosz=C4=99 o wycen=C4=99.\r\n" +
		"--b1--\r\n"

	tests := []struct {
		name     string
		file     string
		content  string
		want     string
		contains []string
	}{
		{name: "text", file: "a.txt", content: "  hello\n\n world  ", want: "hello world"},
		{name: "markdown truncated", file: "a.md", content: strings.Repeat("ab", 50), want: strings.Repeat("ab", 20)},
		{name: "eml plain part", file: "m.eml", content: eml, contains: []string{"Wycena kuchni", "Proszę o wycenę."}},
		{name: "broken pdf", file: "x.pdf", content: "%PDF-1.4 garbage", want: ""},
		{name: "binary type", file: "x.jpg", content: "\xff\xd8\xff", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Preview(writeFile(t, tt.file, tt.content), opts)
			if tt.contains != nil {
				for _, s := range tt.contains {
					assert.Contains(t, got, s)
				}
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

// buildPDF returns an uncompressed PDF with one text line per page.
func buildPDF(pages ...string) []byte {
	var objs []string
	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	objs = append(objs,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	)
	for i, text := range pages {
		content := fmt.Sprintf("BT /F1 12 Tf 72 712 Td (%s) Tj ET", text)
		objs = append(objs,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		)
	}

	var b bytes.Buffer
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return b.Bytes()
}

func TestPreview_PDF(t *testing.T) {
	pdf := string(buildPDF("Faktura VAT 12/2024", "Strona druga"))

	got := Preview(writeFile(t, "fv.pdf", pdf), DefaultPreviewOptions())
	assert.Contains(t, got, "Faktura VAT 12/2024")
	assert.Contains(t, got, "Strona druga")

	firstOnly := Preview(writeFile(t, "fv.pdf", pdf), PreviewOptions{MaxChars: 200, PDFPages: 1})
	assert.Contains(t, firstOnly, "Faktura VAT 12/2024")
	assert.NotContains(t, firstOnly, "Strona druga")
}

func TestPreview_MissingFile(t *testing.T) {
	assert.Empty(t, Preview(filepath.Join(t.TempDir(), "nope.txt"), DefaultPreviewOptions()))
}

func TestContentText(t *testing.T) {
	content := []byte("BT /F1 12 Tf 72 712 Td (Faktura \\(VAT\\)) Tj ET\nBT [(Nr) -250 (12/2024)] TJ ET")
	got := contentText(content)
	assert.Contains(t, got, "Faktura (VAT)")
	assert.Contains(t, got, "Nr12/2024")
}
