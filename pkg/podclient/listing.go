package podclient

import (
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"

	"github.com/knakk/rdf"
)

const ldpContains = "http://www.w3.org/ns/ldp#contains"

// parseMembers decodes a Turtle container representation and returns the
// objects of the container's ldp:contains triples.
func parseMembers(containerURL string, body io.Reader) ([]Member, error) {
	base, err := url.Parse(containerURL)
	if err != nil {
		return nil, fmt.Errorf("podclient: invalid container URL: %w", err)
	}

	dec := rdf.NewTripleDecoder(body, rdf.Turtle)
	seen := make(map[string]bool)
	members := make([]Member, 0)
	for {
		triple, err := dec.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("podclient: decode listing of %s: %w", containerURL, err)
		}

		if triple.Pred.String() != ldpContains {
			continue
		}
		subj, ok := triple.Subj.(rdf.IRI)
		if !ok {
			continue
		}
		if s := resolve(base, subj.String()); s == nil || s.String() != base.String() {
			continue
		}
		obj, ok := triple.Obj.(rdf.IRI)
		if !ok {
			continue
		}
		member := resolve(base, obj.String())
		if member == nil || !strings.HasPrefix(member.Path, base.Path) {
			continue
		}

		rel := strings.TrimPrefix(member.Path, base.Path)
		isContainer := strings.HasSuffix(rel, "/")
		name := strings.TrimSuffix(rel, "/")
		if name == "" || strings.Contains(name, "/") || seen[name] {
			continue
		}
		seen[name] = true
		members = append(members, Member{
			Name:        name,
			URL:         member.String(),
			IsContainer: isContainer,
		})
	}

	sort.Slice(members, func(i, j int) bool { return members[i].Name < members[j].Name })
	return members, nil
}

func resolve(base *url.URL, ref string) *url.URL {
	u, err := url.Parse(ref)
	if err != nil {
		return nil
	}
	return base.ResolveReference(u)
}
