package source

import (
	"fmt"

	"importkit/internal/join"
	"importkit/internal/schema"
)

// ResolveJoinInputs looks up the primary table and every joined table in a
// schema snapshot and pairs each clause with its column list. Database
// connectors use it to build server-side join queries; callers computing the
// local fallback use it to shape join.Input values before attaching sampled
// rows.
func ResolveJoinInputs(snap *schema.SourceSchema, primary string, joins []join.Clause) ([]join.Input, []string, error) {
	pt := snap.Table(primary)
	if pt == nil {
		return nil, nil, fmt.Errorf("join preview: primary table %q not found in source schema", primary)
	}
	inputs := make([]join.Input, 0, len(joins))
	for _, cl := range joins {
		jt := snap.Table(cl.Table)
		if jt == nil {
			return nil, nil, fmt.Errorf("join preview: joined table %q not found in source schema", cl.Table)
		}
		inputs = append(inputs, join.Input{Clause: cl, Columns: jt.FieldNames()})
	}
	return inputs, pt.FieldNames(), nil
}
