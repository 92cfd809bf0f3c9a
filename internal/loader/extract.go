package loader

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// page is an extracted unit of plain text. Number is 0 for formats without
// pagination.
type page struct {
	Number int
	Text   string
}

func extractTxt(path string) ([]page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read text file: %w", err)
	}
	return []page{{Text: string(data)}}, nil
}

// extractCSV flattens the file row-wise: each record becomes one
// space-joined line.
func extractCSV(path string) ([]page, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var b strings.Builder
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv record: %w", err)
		}
		b.WriteString(strings.Join(record, " "))
		b.WriteByte('\n')
	}

	return []page{{Text: b.String()}}, nil
}
