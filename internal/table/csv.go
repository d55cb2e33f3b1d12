package table

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
)

// WriteCSV writes t as UTF-8 comma-separated values with a header row and
// no index column.
func WriteCSV(w io.Writer, t Table) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(t.Columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	if err := writer.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("write csv rows: %w", err)
	}
	return nil
}

// EncodeCSV renders t with WriteCSV.
func EncodeCSV(t Table) ([]byte, error) {
	var buffer bytes.Buffer
	if err := WriteCSV(&buffer, t); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

// ReadCSV parses CSV produced by WriteCSV.
func ReadCSV(r io.Reader) (Table, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return Table{}, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return Empty(), nil
	}
	return New(records[0], records[1:])
}
