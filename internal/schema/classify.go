package schema

import "strings"

// Compatibility is the advisory verdict on mapping a source field type onto a
// target entity field type. It never blocks a mapping by itself; the mapping
// engine and validator decide what to do with the verdict.
type Compatibility string

const (
	// Exact means the canonical types are identical; no coercion needed.
	Exact Compatibility = "exact"
	// Compatible means a lossless or commonly accepted coercion exists and
	// the executor should insert a convert step.
	Compatible Compatibility = "compatible"
	// Incompatible means no sanctioned coercion exists. The pair can still be
	// saved, but validation flags it until the operator acknowledges it.
	Incompatible Compatibility = "incompatible"
)

// CanonicalType folds the many driver- and source-specific type spellings
// into the small vocabulary the classifier and the flat-file inferrer share:
// string, integer, number, boolean, date, datetime.
//
// Unrecognized spellings pass through lowercased so that identical unknown
// types still classify as Exact against themselves.
func CanonicalType(t string) string {
	s := strings.ToLower(strings.TrimSpace(t))
	// Parametrized SQL types: varchar(255), numeric(10,2), ...
	if i := strings.IndexByte(s, '('); i > 0 {
		s = s[:i]
	}
	switch s {
	case "string", "text", "varchar", "nvarchar", "char", "nchar", "character",
		"character varying", "clob", "uuid", "json", "jsonb", "xml", "enum":
		return "string"
	case "integer", "int", "int2", "int4", "int8", "smallint", "bigint",
		"tinyint", "serial", "bigserial", "mediumint":
		return "integer"
	case "number", "numeric", "decimal", "real", "float", "float4", "float8",
		"double", "double precision", "money":
		return "number"
	case "boolean", "bool", "bit":
		return "boolean"
	case "date":
		return "date"
	case "datetime", "timestamp", "timestamptz", "timestamp with time zone",
		"timestamp without time zone", "datetime2", "smalldatetime", "time":
		return "datetime"
	default:
		return s
	}
}

// compatiblePairs is the fixed advisory table consulted after the Exact
// check. Keys are canonical source types; values are the canonical target
// types a convert step is sanctioned for. Any pair absent here is
// Incompatible.
var compatiblePairs = map[string][]string{
	"integer":  {"number", "string", "boolean"},
	"number":   {"integer", "string"},
	"string":   {"datetime", "date"},
	"date":     {"date", "datetime", "string"},
	"datetime": {"date", "string"},
	"boolean":  {"string", "integer"},
}

// Classify maps a (source type, target type) pair to its advisory verdict.
// Identical canonical types are Exact; pairs present in the fixed table are
// Compatible; everything else is Incompatible.
func Classify(sourceType, targetType string) Compatibility {
	src := CanonicalType(sourceType)
	dst := CanonicalType(targetType)
	if src == dst {
		return Exact
	}
	for _, ok := range compatiblePairs[src] {
		if ok == dst {
			return Compatible
		}
	}
	return Incompatible
}
