package podserver

import "strings"

// renderContainer writes the Turtle description of a container and its
// direct members.
func renderContainer(self string, members []string) string {
	var b strings.Builder
	b.WriteString("@prefix ldp: <http://www.w3.org/ns/ldp#> .\n")
	b.WriteString("@prefix rdf: <http://www.w3.org/1999/02/22-rdf-syntax-ns#> .\n\n")
	b.WriteString("<" + self + "> rdf:type ldp:Container, ldp:BasicContainer")
	if len(members) > 0 {
		b.WriteString(" ;\n    ldp:contains ")
		for i, m := range members {
			if i > 0 {
				b.WriteString(",\n        ")
			}
			b.WriteString("<" + m + ">")
		}
	}
	b.WriteString(" .\n")
	return b.String()
}
