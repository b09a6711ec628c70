package migration

import (
	"fmt"
	"io"
	"os"

	"github.com/gocarina/gocsv"
)

// WriteReport writes one CSV row per outcome of result.
func WriteReport(w io.Writer, result *Result) error {
	if err := gocsv.Marshal(result.Outcomes, w); err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	return nil
}

// ExportReport writes the report of result to fileName.
func ExportReport(result *Result, fileName string) error {
	f, err := os.Create(fileName)
	if err != nil {
		return fmt.Errorf("failed to create %q: %w", fileName, err)
	}
	defer f.Close()
	if err := WriteReport(f, result); err != nil {
		return err
	}
	return f.Close()
}
