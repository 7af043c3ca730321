package record

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// DefaultTimeLayout mirrors SQL Server CONVERT style 120 with optional
// fractional seconds.
const DefaultTimeLayout = "2006-01-02 15:04:05.999999999"

// Options configures a Formatter. The zero value is usable.
type Options struct {
	// Delimiter separates fields. Default ",".
	Delimiter string
	// TimeLayout renders time.Time cells. Default DefaultTimeLayout.
	TimeLayout string
	// NormalizeUnicode applies NFC before cleaning.
	NormalizeUnicode bool
	// ColumnTypes holds the database type name of each column, as reported
	// by the driver. Byte cells in binary columns render as hex, byte cells
	// in other known columns render as text. When a type is unknown the
	// bytes decide: valid UTF-8 is text, anything else is hex.
	ColumnTypes []string
}

type columnKind uint8

const (
	columnUnknown columnKind = iota
	columnText
	columnBinary
)

// Formatter converts rows to records. It holds no mutable state and is safe
// for concurrent use by any number of transform workers.
type Formatter struct {
	delim     string
	layout    string
	normalize bool
	kinds     []columnKind
}

// NewFormatter returns a Formatter with defaults applied to opt.
func NewFormatter(opt Options) *Formatter {
	f := &Formatter{
		delim:     opt.Delimiter,
		layout:    opt.TimeLayout,
		normalize: opt.NormalizeUnicode,
	}
	if f.delim == "" {
		f.delim = ","
	}
	if f.layout == "" {
		f.layout = DefaultTimeLayout
	}
	if len(opt.ColumnTypes) > 0 {
		f.kinds = make([]columnKind, len(opt.ColumnTypes))
		for i, t := range opt.ColumnTypes {
			switch {
			case strings.TrimSpace(t) == "":
				f.kinds[i] = columnUnknown
			case IsBinaryType(t):
				f.kinds[i] = columnBinary
			default:
				f.kinds[i] = columnText
			}
		}
	}
	return f
}

// IsBinaryType reports whether a database type name denotes raw bytes:
// BINARY, VARBINARY, IMAGE, ROWVERSION, BYTEA and the BLOB family. Length
// suffixes such as VARBINARY(MAX) are ignored.
func IsBinaryType(name string) bool {
	t := strings.ToUpper(strings.TrimSpace(name))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	switch t {
	case "IMAGE", "BYTEA", "ROWVERSION":
		return true
	}
	return strings.Contains(t, "BINARY") || strings.Contains(t, "BLOB")
}

// Format renders one record from values, preserving column order.
func (f *Formatter) Format(values []any) string {
	var b strings.Builder
	b.Grow(16 * len(values))
	for i, v := range values {
		if i > 0 {
			b.WriteString(f.delim)
		}
		appendQuoted(&b, f.clean(f.cell(i, v)))
	}
	return b.String()
}

// cell is Text with the column's type applied to byte cells.
func (f *Formatter) cell(i int, v any) string {
	x, ok := v.([]byte)
	if !ok || i >= len(f.kinds) {
		return f.Text(v)
	}
	switch f.kinds[i] {
	case columnBinary:
		return hexText(x)
	case columnText:
		return string(x)
	}
	return f.Text(v)
}

func hexText(b []byte) string {
	return "0x" + strings.ToUpper(hex.EncodeToString(b))
}

// Header renders a header record from column names. Empty names become
// column_N (1-based).
func (f *Formatter) Header(columns []string) string {
	names := make([]any, len(columns))
	for i, c := range columns {
		if strings.TrimSpace(c) == "" {
			c = "column_" + strconv.Itoa(i+1)
		}
		names[i] = c
	}
	return f.Format(names)
}

func (f *Formatter) clean(s string) string {
	if f.normalize && s != "" {
		if !utf8.ValidString(s) {
			s = strings.ToValidUTF8(s, "\uFFFD")
		}
		s = norm.NFC.String(s)
	}
	return Clean(s)
}

// Text returns the textual form of a single cell without column type
// information. nil becomes "".
func (f *Formatter) Text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		if utf8.Valid(x) {
			return string(x)
		}
		return hexText(x)
	case *string:
		if x == nil {
			return ""
		}
		return *x
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int16:
		return strconv.FormatInt(int64(x), 10)
	case int8:
		return strconv.FormatInt(int64(x), 10)
	case int:
		return strconv.Itoa(x)
	case uint64:
		return strconv.FormatUint(x, 10)
	case uint32:
		return strconv.FormatUint(uint64(x), 10)
	case uint16:
		return strconv.FormatUint(uint64(x), 10)
	case uint8:
		return strconv.FormatUint(uint64(x), 10)
	case uint:
		return strconv.FormatUint(uint64(x), 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case time.Time:
		return x.Format(f.layout)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
