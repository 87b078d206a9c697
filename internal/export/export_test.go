package export

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type fakeSource struct {
	src Source
	err error
	got string
}

func (f *fakeSource) ExportSource(ctx context.Context, fileID, userID, version string) (Source, error) {
	f.got = version
	if f.err != nil {
		return Source{}, f.err
	}
	src := f.src
	src.FileID = fileID
	src.Version = version
	return src, nil
}

func TestRenderSection(t *testing.T) {
	got := RenderSection(`<b>"Tom" & 'Jerry'</b>`)
	want := "<pre>&lt;b&gt;&quot;Tom&quot; &amp; &#039;Jerry&#039;&lt;/b&gt;</pre>"
	if got != want {
		t.Fatalf("RenderSection() = %q, want %q", got, want)
	}
}

func TestBuildTemplateData(t *testing.T) {
	data := buildTemplateData(Source{
		FileID: "notes.md",
		Text:   "intro line\n# Title\nbody <1>\n## Part\nmore\n",
	})
	if data.Title != "Title" {
		t.Fatalf("Title = %q, want Title", data.Title)
	}
	if len(data.Sections) != 2 {
		t.Fatalf("Sections = %d, want 2", len(data.Sections))
	}
	if data.Sections[1].Level != 2 || data.Sections[1].Header != "Part" {
		t.Fatalf("Sections[1] = %+v", data.Sections[1])
	}
	if string(data.Sections[0].Body) != "<pre>body &lt;1&gt;</pre>" {
		t.Fatalf("Sections[0].Body = %q", data.Sections[0].Body)
	}
	if string(data.Preamble) != "<pre>intro line</pre>" {
		t.Fatalf("Preamble = %q", data.Preamble)
	}
}

func TestBuildTemplateDataWithoutHeaders(t *testing.T) {
	data := buildTemplateData(Source{FileID: "plain", Text: "just text\n"})
	if data.Title != "plain" || len(data.Sections) != 0 || data.Preamble == "" {
		t.Fatalf("buildTemplateData() = %+v", data)
	}
}

func TestRenderDocumentHTML(t *testing.T) {
	html, err := RenderDocumentHTML(buildTemplateData(Source{
		FileID:    "plan",
		Version:   "v-123",
		Branch:    "draft",
		UpdatedAt: time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC),
		Text:      "# Plan & Goals\nship <it>\n",
	}))
	if err != nil {
		t.Fatalf("RenderDocumentHTML() error = %v", err)
	}
	for _, want := range []string{
		"<title>Plan &amp; Goals</title>",
		"<h1>Plan &amp; Goals</h1>",
		"<pre>ship &lt;it&gt;\n</pre>",
		"draft",
		"v-123",
		"Mar 9, 2024",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("HTML missing %q", want)
		}
	}
	if strings.Contains(html, "&lt;pre&gt;") {
		t.Error("section body was escaped twice")
	}
}

func TestExportMarkdownAndHTML(t *testing.T) {
	source := &fakeSource{src: Source{Text: "# A\nb\n"}}
	svc := NewService(source)

	md, err := svc.Export(context.Background(), Request{FileID: "doc one", Version: "v1", Format: FormatMarkdown})
	if err != nil {
		t.Fatalf("Export(markdown) error = %v", err)
	}
	if string(md.Data) != "# A\nb\n" || md.Filename != "doc-one.md" {
		t.Fatalf("Export(markdown) = %q %q", md.Data, md.Filename)
	}
	if source.got != "v1" {
		t.Fatalf("ExportSource() version = %q, want v1", source.got)
	}

	html, err := svc.Export(context.Background(), Request{FileID: "doc", Format: FormatHTML})
	if err != nil {
		t.Fatalf("Export(html) error = %v", err)
	}
	if html.MimeType != "text/html; charset=utf-8" || !strings.Contains(string(html.Data), "<h1>A</h1>") {
		t.Fatalf("Export(html) = %+v", html)
	}
}

func TestExportErrors(t *testing.T) {
	boom := errors.New("boom")
	svc := NewService(&fakeSource{err: boom})
	if _, err := svc.Export(context.Background(), Request{FileID: "x", Format: FormatHTML}); !errors.Is(err, boom) {
		t.Fatalf("Export() error = %v, want wrapped source error", err)
	}

	svc = NewService(&fakeSource{})
	if _, err := svc.Export(context.Background(), Request{FileID: "x", Format: "odt"}); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("Export(odt) error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatMarkdown, "md": FormatMarkdown, "pdf": FormatPDF, "html": FormatHTML} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("rtf"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("ParseFormat(rtf) error = %v", err)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Simple Title", "Simple-Title"},
		{"notes.md", "notes-md"},
		{"Special!@#$%Characters", "SpecialCharacters"},
		{"", "document"},
		{"!!!", "document"},
		{strings.Repeat("a", 80), strings.Repeat("a", 50)},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := sanitizeFilename(tt.input)
			if result != tt.expected {
				t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello world", "hello%20world"},
		{"test+sign", "test%2Bsign"},
		{"special<>", "special%3C%3E"},
		{"normal-text.txt", "normal-text.txt"},
		{"é", "%C3%A9"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := percentEncodeForDataURL(tt.input)
			if result != tt.expected {
				t.Errorf("percentEncodeForDataURL(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}
