package document

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Document is a parsed document flattened to plain text. Text separates
// paragraphs with blank lines; headings become their own paragraphs.
type Document struct {
	Title string
	Text  string
}

// Loader converts raw document bytes into a flat Document.
type Loader interface {
	Load(r io.Reader, filename string) (*Document, error)
}

// SupportedExtensions lists the file extensions this tool can read.
var SupportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".csv":      true,
	".html":     true,
	".htm":      true,
	".pdf":      true,
	".docx":     true,
}

// ForFile returns the loader for a filename. Files without an extension are
// read as plain text.
func ForFile(filename string) (Loader, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt", "":
		return &TextLoader{}, nil
	case ".md", ".markdown":
		return &MarkdownLoader{}, nil
	case ".csv":
		return &CSVLoader{}, nil
	case ".html", ".htm":
		return &HTMLLoader{}, nil
	case ".pdf":
		return &PDFLoader{FallbackPdftotext: true}, nil
	case ".docx":
		return &DOCXLoader{}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == "" || SupportedExtensions[ext]
}

// ReadFile loads the document at path using the loader for its extension.
func ReadFile(path string) (*Document, error) {
	loader, err := ForFile(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return loader.Load(f, filepath.Base(path))
}
