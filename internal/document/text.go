package document

import (
	"bufio"
	"io"
	"strings"
)

// TextLoader handles plain text files.
type TextLoader struct{}

func (l *TextLoader) Load(r io.Reader, filename string) (*Document, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var paragraphs []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			paragraphs = append(paragraphs, current.String())
			current.Reset()
		}
	}

	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		if current.Len() > 0 {
			current.WriteString("\n")
		}
		current.WriteString(line)
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return &Document{
		Title: strings.TrimSuffix(filename, ".txt"),
		Text:  strings.Join(paragraphs, "\n\n"),
	}, nil
}
