package document

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestForFile_Dispatch(t *testing.T) {
	cases := []struct {
		filename string
		wantType string
	}{
		{"report.txt", "*document.TextLoader"},
		{"LICENSE", "*document.TextLoader"},
		{"notes.MD", "*document.MarkdownLoader"},
		{"page.html", "*document.HTMLLoader"},
		{"scan.pdf", "*document.PDFLoader"},
		{"data.csv", "*document.CSVLoader"},
	}
	for _, tc := range cases {
		got, err := ForFile(tc.filename)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.filename, err)
		}
		if gotType := fmt.Sprintf("%T", got); gotType != tc.wantType {
			t.Fatalf("%s: expected %s, got %s", tc.filename, tc.wantType, gotType)
		}
	}

	if _, err := ForFile("archive.zip"); err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}

func TestReadFile_LoadsByExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "story.txt")
	if err := os.WriteFile(path, []byte("Once upon a time.\n\nThe end."), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	doc, err := ReadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Title != "story" {
		t.Errorf("expected title %q, got %q", "story", doc.Title)
	}
	if doc.Text != "Once upon a time.\n\nThe end." {
		t.Errorf("unexpected text: %q", doc.Text)
	}
}

func TestHTMLLoader_FlattensContent(t *testing.T) {
	input := `<html><head><title>Voyage Log</title></head><body>
<header><p>site chrome</p></header>
<h1>Departure</h1>
<p>The ship left port at dawn.</p>
<h2>Weather</h2>
<p>Clear skies, light wind.</p>
<script>tracking()</script>
</body></html>`

	doc, err := (&HTMLLoader{}).Load(strings.NewReader(input), "log.html")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Title != "Voyage Log" {
		t.Errorf("expected title from <title>, got %q", doc.Title)
	}
	want := "Departure\n\nThe ship left port at dawn.\n\nWeather\n\nClear skies, light wind."
	if doc.Text != want {
		t.Errorf("expected text %q, got %q", want, doc.Text)
	}
	if strings.Contains(doc.Text, "site chrome") || strings.Contains(doc.Text, "tracking") {
		t.Errorf("chrome content leaked into text: %q", doc.Text)
	}
}

func TestCSVLoader_BatchesRows(t *testing.T) {
	var rows []string
	rows = append(rows, "name,role")
	for i := 0; i < 25; i++ {
		rows = append(rows, "crew,deckhand")
	}

	doc, err := (&CSVLoader{}).Load(strings.NewReader(strings.Join(rows, "\n")), "crew.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	paragraphs := strings.Split(doc.Text, "\n\n")
	if len(paragraphs) != 2 {
		t.Fatalf("expected 2 batches for 25 rows, got %d", len(paragraphs))
	}
	if !strings.HasPrefix(paragraphs[0], "Rows 2-21\nHeaders: name, role\n") {
		t.Errorf("unexpected first batch header: %q", paragraphs[0])
	}
	if !strings.HasPrefix(paragraphs[1], "Rows 22-26\n") {
		t.Errorf("unexpected second batch header: %q", paragraphs[1])
	}
	if !strings.Contains(paragraphs[0], "name: crew, role: deckhand") {
		t.Errorf("expected labeled cells, got %q", paragraphs[0])
	}
}
