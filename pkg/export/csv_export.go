package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/vanderheijden86/sgv/pkg/model"
)

// WriteCSV writes the records with the annotation file's own header and
// unformatted values, one row per record in the given order.
func WriteCSV(w io.Writer, records []model.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(model.RawColumns); err != nil {
		return err
	}
	for _, r := range records {
		if err := cw.Write(r.Raw()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// SaveCSVToFile writes the records as CSV to filename.
func SaveCSVToFile(records []model.Record, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("create %s: %w", filename, err)
	}
	if err := WriteCSV(f, records); err != nil {
		f.Close()
		return fmt.Errorf("write csv: %w", err)
	}
	return f.Close()
}
