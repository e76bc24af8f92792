package export

import (
	"encoding/csv"
	"encoding/json"
	"os"

	"github.com/parquet-go/parquet-go"
)

type csvRow interface {
	csvRecord() []string
}

func writeCSV[T csvRow](path string, header []string, rows []T) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, r := range rows {
		if err := writer.Write(r.csvRecord()); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeJSON[T any](path string, rows []T) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

func writeParquet[T any](path string, rows []T) error {
	return parquet.WriteFile(path, rows)
}

func writeRows[T csvRow](format Format, path string, header []string, rows []T) error {
	switch format {
	case FormatJSON:
		return writeJSON(path, rows)
	case FormatParquet:
		return writeParquet(path, rows)
	default:
		return writeCSV(path, header, rows)
	}
}
