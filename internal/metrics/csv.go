package metrics

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/luifiio/bp4w-maq/internal/model"
)

var csvHeader = []string{
	"timestamp",
	"coolant_temp",
	"oil_temp",
	"oil_pressure",
	"throttle_position",
}

// WriteCSV writes samples to CSV with a fixed column order. Absent readings
// are written as empty fields.
func WriteCSV(w io.Writer, items []model.SensorSample) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write(csvHeader); err != nil {
		return err
	}
	if err := writeRecords(writer, items); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

// AppendCSV appends samples to path, writing the header only when the file
// is new or empty.
func AppendCSV(path string, items []model.SensorSample) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	writer := csv.NewWriter(file)
	if info.Size() == 0 {
		if err := writer.Write(csvHeader); err != nil {
			return err
		}
	}
	if err := writeRecords(writer, items); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

func writeRecords(writer *csv.Writer, items []model.SensorSample) error {
	for _, s := range items {
		record := []string{
			strconv.FormatFloat(s.Timestamp, 'f', -1, 64),
			formatOptional(s.CoolantTemp),
			formatOptional(s.OilTemp),
			formatOptional(s.OilPressure),
			formatOptional(s.ThrottlePosition),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	return nil
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
