package normalize

import (
	"fmt"
	"time"
)

// Kind identifies the source type of a database cell.
type Kind int

const (
	KindNull Kind = iota
	KindText
	KindInteger
	KindFloat
	KindDecimal
	KindDate
	KindTimestamp
	// KindTime is a time of day without a date, such as a TIME column.
	KindTime
	KindBool
	// KindOther carries any value the source could not classify. It is passed
	// through to the destination unchanged.
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindText:
		return "text"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindDecimal:
		return "decimal"
	case KindDate:
		return "date"
	case KindTimestamp:
		return "timestamp"
	case KindTime:
		return "time"
	case KindBool:
		return "bool"
	case KindOther:
		return "other"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Cell is a single typed value read from a source row. Only the field that
// matches Kind is meaningful.
type Cell struct {
	Kind  Kind
	Text  string // KindText, and the exact textual form of a KindDecimal
	Int   int64
	Float float64
	Bool  bool
	Time  time.Time
	Raw   any // KindOther
}

func Null() Cell                 { return Cell{Kind: KindNull} }
func Text(s string) Cell         { return Cell{Kind: KindText, Text: s} }
func Integer(i int64) Cell       { return Cell{Kind: KindInteger, Int: i} }
func Float(f float64) Cell       { return Cell{Kind: KindFloat, Float: f} }
func Decimal(s string) Cell      { return Cell{Kind: KindDecimal, Text: s} }
func Date(t time.Time) Cell      { return Cell{Kind: KindDate, Time: t} }
func Timestamp(t time.Time) Cell { return Cell{Kind: KindTimestamp, Time: t} }
func TimeOfDay(t time.Time) Cell { return Cell{Kind: KindTime, Time: t} }
func Bool(b bool) Cell           { return Cell{Kind: KindBool, Bool: b} }
func Other(v any) Cell           { return Cell{Kind: KindOther, Raw: v} }
