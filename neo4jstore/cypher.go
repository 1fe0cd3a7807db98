package neo4jstore

import (
	"fmt"
	"strings"

	"github.com/saulfrancisco-ruizacevedo/go-neosession/graph"
)

// quote escapes an identifier (label, relationship type, property key) for
// use in Cypher text. Identifiers cannot be passed as parameters.
func quote(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// fetchStatement renders the bounded traversal for req. Roots are matched,
// ordered and windowed first, then numbered so the sorted root order
// survives the path expansion:
//
//	MATCH (n:`Label`) WHERE elementId(n) IN $ids
//	WITH n ORDER BY n.`name` ASC SKIP $skip LIMIT $limit
//	WITH collect(n) AS roots
//	UNWIND range(0, size(roots) - 1) AS idx
//	WITH idx, roots[idx] AS n
//	OPTIONAL MATCH p = (n)-[*1..2]-()
//	RETURN idx, n, p
func fetchStatement(req graph.FetchRequest) (string, map[string]any) {
	var b strings.Builder
	params := map[string]any{}

	fmt.Fprintf(&b, "MATCH (n:%s)", quote(req.Label))
	if len(req.IDs) > 0 {
		b.WriteString(" WHERE elementId(n) IN $ids")
		params["ids"] = req.IDs
	}

	b.WriteString(" WITH n")
	if len(req.Sort) > 0 {
		b.WriteString(" ORDER BY ")
		for i, f := range req.Sort {
			if i > 0 {
				b.WriteString(", ")
			}
			dir := "ASC"
			if f.Descending {
				dir = "DESC"
			}
			fmt.Fprintf(&b, "n.%s %s", quote(f.Property), dir)
		}
	}
	if req.Skip > 0 {
		b.WriteString(" SKIP $skip")
		params["skip"] = int64(req.Skip)
	}
	if req.Limit != nil {
		b.WriteString(" LIMIT $limit")
		params["limit"] = int64(*req.Limit)
	}

	b.WriteString(" WITH collect(n) AS roots")
	b.WriteString(" UNWIND range(0, size(roots) - 1) AS idx")
	b.WriteString(" WITH idx, roots[idx] AS n")

	switch {
	case req.Depth == 0:
		b.WriteString(" RETURN idx, n")
		return b.String(), params
	case req.Depth == graph.Unbounded:
		b.WriteString(" OPTIONAL MATCH p = (n)-[*1..]-()")
	default:
		fmt.Fprintf(&b, " OPTIONAL MATCH p = (n)-[*1..%d]-()", req.Depth)
	}
	b.WriteString(" RETURN idx, n, p")

	return b.String(), params
}

func addLabelsStatement(labels []string) string {
	quoted := make([]string, len(labels))
	for i, l := range labels {
		quoted[i] = quote(l)
	}
	return "MATCH (n) WHERE elementId(n) = $id SET n:" + strings.Join(quoted, ":")
}

const updateNodeStatement = "MATCH (n) WHERE elementId(n) = $id SET n = $props RETURN elementId(n) AS id"

func mergeRelationshipStatement(relType string) string {
	return "MATCH (a), (b) WHERE elementId(a) = $from AND elementId(b) = $to " +
		"MERGE (a)-[r:" + quote(relType) + "]->(b) RETURN elementId(r) AS id"
}

const deleteNodeStatement = "MATCH (n) WHERE elementId(n) = $id DETACH DELETE n"

func countStatement(label string) string {
	return "MATCH (n:" + quote(label) + ") RETURN count(n) AS count"
}
