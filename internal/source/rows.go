package source

import (
	"database/sql"

	"importkit/pkg/records"
)

// ScanRows drains a database/sql result set into Records, up to limit rows
// (no cap when limit <= 0). []byte cells are converted to string so previews
// and join comparisons see text, not base64-rendered bytes.
func ScanRows(rows *sql.Rows, limit int) ([]string, []records.Record, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var out []records.Record
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}

	for rows.Next() {
		if limit > 0 && len(out) >= limit {
			break
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		rec := make(records.Record, len(cols))
		for i, c := range cols {
			v := vals[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			rec[c] = v
		}
		out = append(out, rec)
	}
	return cols, out, rows.Err()
}
