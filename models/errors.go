package models

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bitbucket.org/mmdatafocus/warehouse_backend/utils"
	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrStockConflict     = errors.New("stock changed concurrently")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrMissingColumns    = errors.New("missing required columns")
	ErrInvalidRow        = errors.New("invalid row")
	ErrAmbiguousDate     = errors.New("invalid or ambiguous date")
	ErrReferenceNotFound = errors.New("reference not found")

	ErrLedgerImmutable = errors.New("inventory log entries are immutable")
	ErrInvalidDelta    = errors.New("quantity change must be nonzero")
	ErrDuplicate       = errors.New("duplicate value")
	ErrInUse           = errors.New("record is referenced by shipments")
)

// StockError carries the quantities behind an insufficient-stock or conflict failure.
type StockError struct {
	Kind      error
	ProductId int
	Sku       string
	Available int
	Requested int
}

func (e *StockError) Error() string {
	name := e.Sku
	if name == "" {
		name = fmt.Sprintf("product #%d", e.ProductId)
	}
	if errors.Is(e.Kind, ErrStockConflict) {
		return fmt.Sprintf("Stock for %s changed while completing. Available: %d, Requested: %d", name, e.Available, e.Requested)
	}
	return fmt.Sprintf("Not enough stock for %s. Available: %d, Requested: %d", name, e.Available, e.Requested)
}

func (e *StockError) Unwrap() error { return e.Kind }

// RowError points at one offending cell of an import file.
// Row is the 1-based spreadsheet row number (header is row 1).
type RowError struct {
	Row     int    `json:"row"`
	Field   string `json:"field"`
	Message string `json:"message"`
	kind    error
}

// ImportError rejects a whole import file.
type ImportError struct {
	Kind    error      `json:"-"`
	Missing []string   `json:"missing_columns,omitempty"`
	Rows    []RowError `json:"rows,omitempty"`
}

func (e *ImportError) Error() string {
	if errors.Is(e.Kind, ErrMissingColumns) {
		return fmt.Sprintf("%s: %s", e.Kind.Error(), strings.Join(e.Missing, ", "))
	}
	rows := make([]string, 0, len(e.Rows))
	for _, r := range e.Rows {
		rows = append(rows, fmt.Sprint(r.Row))
	}
	return fmt.Sprintf("%s; check rows: %s", e.Kind.Error(), strings.Join(utils.UniqueSlice(rows), ", "))
}

func (e *ImportError) Unwrap() error { return e.Kind }

// newRowsError picks the most specific kind for a set of row errors.
// Date failures dominate; a report made only of unresolved references is ReferenceNotFound.
func newRowsError(rows []RowError) *ImportError {
	kind := ErrInvalidRow
	allRefs := true
	for _, r := range rows {
		if errors.Is(r.kind, ErrAmbiguousDate) {
			return &ImportError{Kind: ErrAmbiguousDate, Rows: rows}
		}
		if !errors.Is(r.kind, ErrReferenceNotFound) {
			allRefs = false
		}
	}
	if allRefs && len(rows) > 0 {
		kind = ErrReferenceNotFound
	}
	return &ImportError{Kind: kind, Rows: rows}
}

// translateDBError maps MySQL constraint violations onto the model errors.
func translateDBError(err error) error {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return err
	}
	switch myErr.Number {
	case 1062:
		return fmt.Errorf("%w: %s", ErrDuplicate, myErr.Message)
	case 1451:
		return fmt.Errorf("%w: %s", ErrInUse, myErr.Message)
	case 1452:
		return fmt.Errorf("%w: %s", ErrReferenceNotFound, myErr.Message)
	case 3819:
		// CHECK constraint (quantity >= 0)
		return fmt.Errorf("%w: %s", ErrInsufficientStock, myErr.Message)
	}
	return err
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// checkUnique wraps utils.ValidateUnique so callers can test for ErrDuplicate.
func checkUnique[T any](ctx context.Context, column string, value interface{}, exceptId int) error {
	err := utils.ValidateUnique[T](ctx, column, value, exceptId)
	if errors.Is(err, utils.ErrorDuplicate) {
		return fmt.Errorf("%w: %s %v", ErrDuplicate, column, value)
	}
	return err
}
