package document

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// CSVLoader handles CSV files.
type CSVLoader struct{}

func (l *CSVLoader) Load(r io.Reader, filename string) (*Document, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	doc := &Document{Title: strings.TrimSuffix(filename, ".csv")}
	if len(records) == 0 {
		return doc, nil
	}

	// First row is headers. Batches of rows keep each paragraph at a
	// manageable size.
	headers := records[0]
	dataRows := records[1:]
	const batchSize = 20

	var paragraphs []string
	for i := 0; i < len(dataRows); i += batchSize {
		end := i + batchSize
		if end > len(dataRows) {
			end = len(dataRows)
		}

		var text strings.Builder
		// Row numbers are 1-indexed and count the header row.
		fmt.Fprintf(&text, "Rows %d-%d\n", i+2, end+1)
		text.WriteString("Headers: " + strings.Join(headers, ", "))
		for _, row := range dataRows[i:end] {
			text.WriteString("\n")
			for j, cell := range row {
				if j > 0 {
					text.WriteString(", ")
				}
				if j < len(headers) {
					text.WriteString(headers[j] + ": " + cell)
				} else {
					text.WriteString(cell)
				}
			}
		}
		paragraphs = append(paragraphs, text.String())
	}

	doc.Text = strings.Join(paragraphs, "\n\n")
	return doc, nil
}
