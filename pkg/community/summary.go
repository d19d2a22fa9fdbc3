package community

import (
	"cmp"
	"slices"
	"strconv"

	"github.com/codeGROOVE-dev/sociograph/pkg/profile"
	"github.com/codeGROOVE-dev/sociograph/pkg/store"
)

// Summary aggregates one community for reporting.
type Summary struct {
	Members     profile.Set    `json:"members"`
	Connections map[string]int `json:"connections"` // other community id -> crossing edges
	Hashtags    profile.Set    `json:"hashtags"`
	Comments    profile.Set    `json:"comments"` // distinct comment texts posted by members
}

// Summaries maps community ids, as decimal strings, to their summaries.
type Summaries map[string]*Summary

// Summarize aggregates membership, inter-community edge counts, hashtags and comments.
// An edge whose endpoints lie in different communities is counted on both sides.
// Only edges in part.Edges count, so relations disabled by a zero weight are ignored.
func Summarize(p profile.Profiles, part *Partition) Summaries {
	out := Summaries{}
	get := func(id int) *Summary {
		key := strconv.Itoa(id)
		s, ok := out[key]
		if !ok {
			s = &Summary{Members: profile.Set{}, Connections: map[string]int{}, Hashtags: profile.Set{}, Comments: profile.Set{}}
			out[key] = s
		}
		return s
	}

	for name, id := range part.Membership {
		if name == "" {
			continue
		}
		s := get(id)
		s.Members.Add(name)
		if u := p[name]; u != nil {
			s.Hashtags.Union(u.Hashtags, "")
			for _, c := range u.CommentsPosted {
				s.Comments.Add(c.Text)
			}
		}
	}

	for _, e := range part.Edges {
		from, okf := part.Membership[e.From]
		to, okt := part.Membership[e.To]
		if !okf || !okt || from == to {
			continue
		}
		get(from).Connections[strconv.Itoa(to)]++
		get(to).Connections[strconv.Itoa(from)]++
	}
	return out
}

// SaveSummaries writes s as a pretty-printed JSON document at path.
func SaveSummaries(path string, s Summaries, opts ...store.Option) error {
	return summaryDoc(path, opts...).Save(s)
}

// LoadSummaries reads a document written by SaveSummaries. A missing file yields no summaries.
func LoadSummaries(path string, opts ...store.Option) (Summaries, error) {
	return summaryDoc(path, opts...).Load()
}

func summaryDoc(path string, opts ...store.Option) *store.Document[Summaries] {
	return store.Open(path, func() Summaries { return Summaries{} }, opts...)
}

// Partition rebuilds a Partition from saved summaries and the edge list they were computed on.
// Communities keep the order of their numeric ids and are renumbered densely from zero,
// so a gap or an out-of-range id in a hand-edited file cannot inflate the result.
// Ids that are not integers are skipped.
func (s Summaries) Partition(edges []Edge) *Partition {
	type entry struct {
		members []string
		id      int
	}
	var entries []entry
	for key, c := range s {
		id, err := strconv.Atoi(key)
		if err != nil || c == nil {
			continue
		}
		entries = append(entries, entry{id: id, members: c.Members.Sorted()})
	}
	slices.SortFunc(entries, func(a, b entry) int { return cmp.Compare(a.id, b.id) })

	part := &Partition{Membership: map[string]int{}, Edges: edges, Communities: make([][]string, 0, len(entries))}
	for i, e := range entries {
		part.Communities = append(part.Communities, e.members)
		for _, m := range e.members {
			part.Membership[m] = i
		}
	}
	return part
}
