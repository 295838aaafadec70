// Package export serializes filtered channel buffers into a spreadsheet with
// one sheet per channel.
package export

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jwulff/sensorwatch/internal/sensor"
	"github.com/xuri/excelize/v2"
)

// DefaultName is the output file name without extension.
const DefaultName = "SensorData"

// Header is the first row of every sheet.
var Header = []string{"Time", "Value"}

// SeriesFunc returns the readings to export for a channel.
type SeriesFunc func(sensor.Channel) []sensor.Reading

// Row is one exported reading.
type Row struct {
	Time  string
	Value float64
}

// Sheet is the table for one channel.
type Sheet struct {
	Name string
	Rows []Row
}

// Workbook is the transient export artifact.
type Workbook struct {
	Sheets []Sheet
}

// Error reports a failed export step.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("export %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("export %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Build assembles one sheet per channel, in channel order. Channels with no
// readings still get a sheet.
func Build(channels []sensor.Channel, series SeriesFunc) *Workbook {
	wb := &Workbook{Sheets: make([]Sheet, 0, len(channels))}
	for _, ch := range channels {
		readings := series(ch)
		rows := make([]Row, 0, len(readings))
		for _, r := range readings {
			rows = append(rows, Row{Time: r.DisplayTime, Value: r.Value})
		}
		wb.Sheets = append(wb.Sheets, Sheet{Name: ch.SheetName(), Rows: rows})
	}
	return wb
}

// file renders the workbook into a new spreadsheet. The caller closes it.
func (wb *Workbook) file() (*excelize.File, error) {
	f := excelize.NewFile()
	for i, sh := range wb.Sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sh.Name); err != nil {
				f.Close()
				return nil, err
			}
		} else if _, err := f.NewSheet(sh.Name); err != nil {
			f.Close()
			return nil, err
		}
		if err := writeSheet(f, sh); err != nil {
			f.Close()
			return nil, fmt.Errorf("sheet %s: %w", sh.Name, err)
		}
	}
	return f, nil
}

func writeSheet(f *excelize.File, sh Sheet) error {
	if err := f.SetSheetRow(sh.Name, "A1", &[]interface{}{Header[0], Header[1]}); err != nil {
		return err
	}
	for i, r := range sh.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sh.Name, cell, &[]interface{}{r.Time, r.Value}); err != nil {
			return err
		}
	}
	return f.SetColWidth(sh.Name, "A", "A", 20)
}

// WriteTo writes the workbook as xlsx to w.
func (wb *Workbook) WriteTo(w io.Writer) (int64, error) {
	f, err := wb.file()
	if err != nil {
		return 0, &Error{Op: "build", Err: err}
	}
	defer f.Close()
	n, err := f.WriteTo(w)
	if err != nil {
		return n, &Error{Op: "write", Err: err}
	}
	return n, nil
}

// WriteFile writes the workbook to path, which must end in .xlsx.
func (wb *Workbook) WriteFile(path string) error {
	f, err := wb.file()
	if err != nil {
		return &Error{Op: "build", Path: path, Err: err}
	}
	defer f.Close()
	if err := f.SaveAs(path); err != nil {
		return &Error{Op: "write", Path: path, Err: err}
	}
	return nil
}

// Read loads a workbook written by WriteTo or WriteFile.
func Read(r io.Reader) (*Workbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &Error{Op: "read", Err: err}
	}
	defer f.Close()

	wb := &Workbook{}
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, &Error{Op: "read", Err: fmt.Errorf("sheet %s: %w", name, err)}
		}
		sh := Sheet{Name: name, Rows: []Row{}}
		for i, cols := range rows {
			if i == 0 {
				continue
			}
			if len(cols) < 2 {
				return nil, &Error{Op: "read", Err: fmt.Errorf("sheet %s row %d: want 2 cells, got %d", name, i+1, len(cols))}
			}
			v, err := strconv.ParseFloat(cols[1], 64)
			if err != nil {
				return nil, &Error{Op: "read", Err: fmt.Errorf("sheet %s row %d: %w", name, i+1, err)}
			}
			sh.Rows = append(sh.Rows, Row{Time: cols[0], Value: v})
		}
		wb.Sheets = append(wb.Sheets, sh)
	}
	return wb, nil
}

// ReadFile loads the workbook at path.
func ReadFile(path string) (*Workbook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Op: "read", Path: path, Err: err}
	}
	return Read(bytes.NewReader(data))
}

// Dump writes a plain-text listing of every sheet.
func (wb *Workbook) Dump(w io.Writer) error {
	var b strings.Builder
	for _, sh := range wb.Sheets {
		fmt.Fprintf(&b, "[%s]\n%s\n", sh.Name, strings.Join(Header, "\t"))
		for _, r := range sh.Rows {
			fmt.Fprintf(&b, "%s\t%s\n", r.Time, strconv.FormatFloat(r.Value, 'f', -1, 64))
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// Exporter writes the filtered buffers of a fixed channel set to one file.
type Exporter struct {
	Dir      string
	Name     string
	Channels []sensor.Channel
	Series   func(sensor.Channel, sensor.DateRange) []sensor.Reading
}

// Path is the file Export writes.
func (e *Exporter) Path() string {
	name := e.Name
	if name == "" {
		name = DefaultName
	}
	return filepath.Join(e.Dir, name+".xlsx")
}

// Export builds the workbook for rng and writes it, replacing any previous
// file. It returns the written path.
func (e *Exporter) Export(rng sensor.DateRange) (string, error) {
	path := e.Path()
	wb := Build(e.Channels, func(ch sensor.Channel) []sensor.Reading {
		return e.Series(ch, rng)
	})
	if e.Dir != "" {
		if err := os.MkdirAll(e.Dir, 0o755); err != nil {
			return "", &Error{Op: "mkdir", Path: e.Dir, Err: err}
		}
	}
	if err := wb.WriteFile(path); err != nil {
		return "", err
	}
	return path, nil
}
