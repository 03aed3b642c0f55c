package parser

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestParseMixedBatch(t *testing.T) {
	files := []File{
		{Name: "events.csv", Data: []byte("userid,eventtype\nu1,login\nu2,logout\n")},
		{Name: "notes.xyz", Data: []byte("ignored")},
		{Name: "readme.txt", Data: []byte("plain text")},
		{Name: "widget.tsx", Data: []byte("export const W = () => null")},
	}

	records, err := Parse(context.Background(), files)
	require.NoError(t, err)
	require.Len(t, records, 4)

	assert.Equal(t, "events.csv", records[0].Source())
	assert.Contains(t, records[0].Content, "\n\nThis record contains user ID u1 with event type login.")
	assert.Contains(t, records[1].Content, "user ID u2 with event type logout.")
	assert.Equal(t, "plain text", records[2].Content)
	assert.Equal(t, "readme.txt", records[2].Source())
	assert.Equal(t, "widget.tsx", records[3].Source())
}

func TestParseCSVSentenceNeedsExactKeys(t *testing.T) {
	records, err := ParseFile(File{Name: "EVENTS.CSV", Data: []byte("UserID,EventType\n1,view\n")})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.NotContains(t, records[0].Content, "This record contains")
	assert.Equal(t, "EVENTS.CSV", records[0].Source())
}

func TestParseUnparseableCSVIsNotFatal(t *testing.T) {
	records, err := Parse(context.Background(), []File{{Name: "empty.csv", Data: nil}})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestParseInvalidUTF8Text(t *testing.T) {
	_, err := Parse(context.Background(), []File{{Name: "bad.txt", Data: []byte{0xff, 0xfe, 0x00}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.txt")
}

func TestParseCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Parse(ctx, []File{{Name: "a.txt", Data: []byte("a")}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseFileUnsupported(t *testing.T) {
	_, err := ParseFile(File{Name: "image.png"})
	assert.ErrorIs(t, err, ErrUnsupportedExtension)
	assert.False(t, IsSupported("image.png"))
	assert.True(t, IsSupported("Report.PDF"))
}

func TestParseMarkdownTitle(t *testing.T) {
	src := "Intro line\n\n# Weekly *Retention* Report\n\nBody text.\n\n## Details\n"
	records, err := ParseFile(File{Name: "report.md", Data: []byte(src)})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, src, records[0].Content)
	assert.Equal(t, "Weekly Retention Report", records[0].Metadata["title"])

	records, err = ParseFile(File{Name: "plain.md", Data: []byte("no heading here")})
	require.NoError(t, err)
	_, ok := records[0].Metadata["title"]
	assert.False(t, ok)
}

func TestParseXLSX(t *testing.T) {
	wb := excelize.NewFile()
	defer wb.Close()
	require.NoError(t, wb.SetSheetRow("Sheet1", "A1", &[]any{"userid", "eventtype"}))
	require.NoError(t, wb.SetSheetRow("Sheet1", "A2", &[]any{"u7", "purchase"}))
	require.NoError(t, wb.SetSheetRow("Sheet1", "A3", &[]any{"u8", "refund"}))
	buf, err := wb.WriteToBuffer()
	require.NoError(t, err)

	records, err := ParseFile(File{Name: "events.xlsx", Data: buf.Bytes()})
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "CSV Row 1 Data:\nuserid: u7\neventtype: purchase\nUser ID: u7\nEvent Type: purchase\n\nSummary: userid=u7, eventtype=purchase", records[0].Content)
	assert.Equal(t, "Sheet1", records[0].Metadata["sheet"])
	assert.Equal(t, "events.xlsx", records[1].Source())
	assert.Equal(t, 1, records[1].Metadata["row_index"])
}

func TestParseXLSXCorrupt(t *testing.T) {
	_, err := ParseFile(File{Name: "broken.xlsx", Data: []byte("not a zip")})
	assert.Error(t, err)
}

func buildDocx(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	files := map[string]string{
		"word/document.xml": `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
			`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
			body + `</w:body></w:document>`,
		"word/_rels/document.xml.rels": `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
			`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"></Relationships>`,
	}
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestParseDOCX(t *testing.T) {
	body := `<w:p><w:r><w:t>Quarterly</w:t></w:r><w:r><w:t xml:space="preserve"> churn &amp; retention</w:t></w:r></w:p>` +
		`<w:p><w:pPr/></w:p>` +
		`<w:p><w:r><w:t>Second paragraph</w:t></w:r></w:p>`

	records, err := ParseFile(File{Name: "summary.docx", Data: buildDocx(t, body)})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Quarterly churn & retention\nSecond paragraph", records[0].Content)
	assert.Equal(t, "summary.docx", records[0].Source())
}

func TestParseDOCXCorrupt(t *testing.T) {
	_, err := ParseFile(File{Name: "broken.docx", Data: []byte("not a zip")})
	assert.Error(t, err)
}

func TestParsePDFCorrupt(t *testing.T) {
	_, err := ParseFile(File{Name: "broken.pdf", Data: []byte("%PDF-1.4 garbage")})
	assert.Error(t, err)
}

func TestExtractDocxText(t *testing.T) {
	xml := `<w:body><w:p w:rsidR="1"><w:r><w:t>a</w:t></w:r><w:r><w:tab/><w:t>b</w:t></w:r></w:p><w:p><w:r><w:t>&lt;c&gt;</w:t></w:r></w:p></w:body>`
	assert.Equal(t, "ab\n<c>", extractDocxText(xml))
}
