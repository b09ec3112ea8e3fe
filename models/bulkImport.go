package models

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/warehouse_backend/config"
	"bitbucket.org/mmdatafocus/warehouse_backend/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

const (
	ImportKindProduct  = "product"
	ImportKindInbound  = "inbound"
	ImportKindOutbound = "outbound"

	maxImportFileSize = 10 * 1024 * 1024
)

// ImportFile is an uploaded bulk file as received by the request layer.
type ImportFile struct {
	Name string
	Data []byte
}

type ImportResult struct {
	Kind     string `json:"kind"`
	BatchId  string `json:"batch_id"`
	Rows     int    `json:"rows"`
	Created  int    `json:"created"`
	Updated  int    `json:"updated"`
	Archived string `json:"archived,omitempty"`
}

// ImportRow is one non-blank data row. Line is the spreadsheet row number (header is 1).
type ImportRow struct {
	Line   int
	values []string
}

// ImportTable is a parsed import file with normalized headers.
// FromWorkbook is set for XLSX input, whose date cells arrive as Excel serial numbers.
type ImportTable struct {
	Headers      []string
	Rows         []ImportRow
	FromWorkbook bool
	index        map[string]int
}

// Get returns the trimmed cell of row under the normalized column name, or "".
func (t *ImportTable) Get(row ImportRow, column string) string {
	i, ok := t.index[column]
	if !ok || i >= len(row.values) {
		return ""
	}
	return strings.TrimSpace(row.values[i])
}

func (t *ImportTable) Has(column string) bool {
	_, ok := t.index[column]
	return ok
}

// Date parses the cell of row under column. Bare numbers are Excel serials only when the
// table came from a workbook; in CSV they are rejected like any other unclear date.
func (t *ImportTable) Date(row ImportRow, column string) (time.Time, error) {
	raw := t.Get(row, column)
	if t.FromWorkbook && excelSerialPattern.MatchString(raw) {
		return parseExcelSerial(raw)
	}
	return ParseImportDate(raw)
}

var headerSeparators = regexp.MustCompile(`[\s\-./]+`)

// normalizeHeader turns "Product SKU", " product-sku " and "PRODUCT_SKU" into "product_sku".
func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.ToLower(strings.TrimSpace(h))
	h = headerSeparators.ReplaceAllString(h, "_")
	for strings.Contains(h, "__") {
		h = strings.ReplaceAll(h, "__", "_")
	}
	return strings.Trim(h, "_")
}

func newImportTable(records [][]string) (*ImportTable, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: file has no header row", ErrMissingColumns)
	}
	table := &ImportTable{index: map[string]int{}}
	for i, h := range records[0] {
		name := normalizeHeader(h)
		table.Headers = append(table.Headers, name)
		if name == "" {
			continue
		}
		if _, dup := table.index[name]; !dup {
			table.index[name] = i
		}
	}
	for i, rec := range records[1:] {
		blank := true
		for _, v := range rec {
			if strings.TrimSpace(v) != "" {
				blank = false
				break
			}
		}
		if blank {
			continue
		}
		table.Rows = append(table.Rows, ImportRow{Line: i + 2, values: rec})
	}
	return table, nil
}

// ReadImportTable parses a CSV file or the first sheet of an XLSX workbook.
func ReadImportTable(fileName string, r io.Reader) (*ImportTable, error) {
	switch strings.ToLower(path.Ext(fileName)) {
	case ".xlsx", ".xlsm":
		f, err := excelize.OpenReader(r)
		if err != nil {
			return nil, fmt.Errorf("%w: cannot open workbook: %v", ErrInvalidRow, err)
		}
		defer f.Close()
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("%w: workbook has no sheets", ErrMissingColumns)
		}
		// raw values keep dates as serial numbers instead of the cell's display format
		rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, err
		}
		table, err := newImportTable(rows)
		if err != nil {
			return nil, err
		}
		table.FromWorkbook = true
		return table, nil
	case ".csv", ".txt", "":
		reader := csv.NewReader(r)
		reader.FieldsPerRecord = -1
		reader.TrimLeadingSpace = true
		records, err := reader.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRow, err)
		}
		return newImportTable(records)
	}
	return nil, fmt.Errorf("%w: unsupported file type %q", ErrInvalidRow, path.Ext(fileName))
}

// RequireColumns rejects the file when any required column is absent.
func RequireColumns(table *ImportTable, required ...string) error {
	var missing []string
	for _, c := range required {
		if !table.Has(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return &ImportError{Kind: ErrMissingColumns, Missing: missing}
	}
	return nil
}

var (
	ambiguousDatePattern = regexp.MustCompile(`^\d{1,2}[/.\-]\d{1,2}[/.\-]\d{2,4}$`)
	numericDatePattern   = regexp.MustCompile(`^\d+(\.\d+)?$`)
	excelSerialPattern   = regexp.MustCompile(`^\d+$`)
	importDateLayouts    = []string{
		"2006-01-02",
		"2006/01/02",
		"2006-1-2",
		"2006/1/2",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		time.RFC3339,
		"2 Jan 2006",
		"02 Jan 2006",
		"2 January 2006",
		"02-Jan-2006",
		"2-Jan-2006",
		"Jan 2, 2006",
		"January 2, 2006",
	}
)

// Excel serials outside this range are not calendar dates.
const (
	minExcelSerial = 1
	maxExcelSerial = 2958465
)

// ParseImportDate accepts only written dates whose day and month cannot be confused.
// Numeric day/month forms such as 03/04/2024 and bare numbers such as 2024 are rejected
// instead of guessed.
func ParseImportDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: date is required", ErrAmbiguousDate)
	}
	if ambiguousDatePattern.MatchString(raw) {
		return time.Time{}, fmt.Errorf("%w: %q could be day/month or month/day, use YYYY-MM-DD", ErrAmbiguousDate, raw)
	}
	if numericDatePattern.MatchString(raw) {
		return time.Time{}, fmt.Errorf("%w: %q is a number, use YYYY-MM-DD", ErrAmbiguousDate, raw)
	}
	for _, layout := range importDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return dateOnly(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q is not a recognized date", ErrAmbiguousDate, raw)
}

// parseExcelSerial reads a whole-day workbook serial; fractional serials are rejected.
func parseExcelSerial(raw string) (time.Time, error) {
	serial, err := strconv.Atoi(raw)
	if err != nil || serial < minExcelSerial || serial > maxExcelSerial {
		return time.Time{}, fmt.Errorf("%w: %q is not a date", ErrAmbiguousDate, raw)
	}
	t, err := excelize.ExcelDateToTime(float64(serial), false)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q is not a date", ErrAmbiguousDate, raw)
	}
	return dateOnly(t), nil
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// rowErrors collects per-row failures for one file.
type rowErrors []RowError

func (e *rowErrors) add(line int, field string, kind error, format string, args ...interface{}) {
	*e = append(*e, RowError{Row: line, Field: field, Message: fmt.Sprintf(format, args...), kind: kind})
}

func (e rowErrors) err() error {
	if len(e) == 0 {
		return nil
	}
	return newRowsError(e)
}

func parseImportInt(raw string) (int, error) {
	// spreadsheets store whole numbers as "5" or "5.0"
	if f, err := strconv.ParseFloat(raw, 64); err == nil && f == float64(int(f)) {
		return int(f), nil
	}
	return 0, fmt.Errorf("%q is not a whole number", raw)
}

// runImport is the shared frame of every bulk import: size check, per-kind lock, parsing,
// column contract, one transaction for validation and writes, and the optional archive copy.
func runImport(ctx context.Context, kind string, file ImportFile, required []string,
	process func(tx *gorm.DB, table *ImportTable, result *ImportResult) error) (result *ImportResult, err error) {

	ctx, span := startSpan(ctx, "Import",
		attribute.String("import.kind", kind),
		attribute.String("import.file", file.Name),
	)
	defer func() { endSpan(span, err) }()

	if len(file.Data) == 0 {
		return nil, fmt.Errorf("%w: file is empty", ErrInvalidRow)
	}
	if len(file.Data) > maxImportFileSize {
		return nil, fmt.Errorf("%w: file exceeds %d bytes", ErrInvalidRow, maxImportFileSize)
	}

	release, err := utils.ObtainImportLock(ctx, kind, "bulkImport.go", "runImport")
	if err != nil {
		return nil, err
	}
	defer release()

	table, err := ReadImportTable(file.Name, bytes.NewReader(file.Data))
	if err != nil {
		return nil, err
	}
	if err = RequireColumns(table, required...); err != nil {
		return nil, err
	}

	result = &ImportResult{Kind: kind, BatchId: uuid.NewString(), Rows: len(table.Rows)}
	db := config.GetDB()
	if db == nil {
		return nil, utils.ErrorServiceNotReady
	}
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return process(tx, table, result)
	})
	if err != nil {
		return nil, err
	}

	if config.ImportArchiveEnabled() {
		result.Archived = archiveImportFile(ctx, kind, result.BatchId, file)
	}
	return result, nil
}

// archiveImportFile copies an accepted file to storage. The import is already committed,
// so failures are logged and reported as an empty object name.
func archiveImportFile(ctx context.Context, kind string, batchId string, file ImportFile) string {
	logger := config.GetLogger()
	contentType, err := utils.ImportContentType(file.Name, file.Data)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"module":   "bulkImport.go",
			"funcName": "archiveImportFile",
			"file":     file.Name,
		}).Warn("skipping archive: " + err.Error())
		return ""
	}
	objectName := fmt.Sprintf("imports/%s/%s%s", kind, batchId, strings.ToLower(path.Ext(file.Name)))
	if err := utils.UploadBytesToGCS(ctx, objectName, file.Data, contentType); err != nil {
		config.LogError(logger, "bulkImport.go", "archiveImportFile", "uploading import file", objectName, err)
		return ""
	}
	return objectName
}

// IsImportError reports whether err is a whole-file rejection with a structured report.
func IsImportError(err error) bool {
	var importErr *ImportError
	return errors.As(err, &importErr)
}
