package graph

import (
	"fmt"
	"regexp"

	"github.com/killallgit/podgraph/internal/models"
)

// labelPredicatePattern matches fixed-schema label predicates like
// `label = 'Person'` in hand-written queries
var labelPredicatePattern = regexp.MustCompile(`label\s*=\s*'([A-Za-z]+)'`)

// TranslateQuery rewrites fixed-schema label predicates to schemaless form:
// the generic label plus a type-property predicate.
func TranslateQuery(statement string) string {
	return labelPredicatePattern.ReplaceAllStringFunc(statement, func(match string) string {
		m := labelPredicatePattern.FindStringSubmatch(match)
		nodeType := m[1]
		if nodeType == models.SchemalessLabel {
			return match
		}
		return fmt.Sprintf("label = '%s' AND json_extract(properties, '$.%s') = '%s'",
			models.SchemalessLabel, models.TypeProperty, nodeType)
	})
}

// StandardizeRows normalizes schemaless rows so callers observe the same
// shape regardless of the backing schema: when a row carries the type
// property, it is promoted to the label column.
//
// The presence heuristic conflates "from the schemaless store" with "needs
// standardization"; rows from hand-written queries that happen to select the
// type property are normalized too.
func StandardizeRows(rows []map[string]interface{}) []map[string]interface{} {
	for _, row := range rows {
		if t, ok := row[models.TypeProperty]; ok {
			row["label"] = t
			delete(row, models.TypeProperty)
		}
	}
	return rows
}
