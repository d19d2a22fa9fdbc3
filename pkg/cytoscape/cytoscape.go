// Package cytoscape exports the profile store and community partition as CSV tables
// that Cytoscape imports as edge and node attribute tables.
package cytoscape

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"

	"github.com/gocarina/gocsv"

	"github.com/codeGROOVE-dev/sociograph/pkg/community"
	"github.com/codeGROOVE-dev/sociograph/pkg/profile"
)

// Interaction kinds in the interaction table.
const (
	Follows     = "follows"
	CommentedOn = "commentedOn"
)

// InteractionRow is one edge of the interaction table.
type InteractionRow struct {
	User1       string `csv:"user1"`
	User2       string `csv:"user2"`
	Interaction string `csv:"interaction"`
	Directed    string `csv:"directed"` // TRUE or FALSE, as Cytoscape expects
}

// NodeRow assigns a user to a community.
type NodeRow struct {
	User        string  `csv:"user"`
	CommunityID int     `csv:"communityID"`
	Color       string  `csv:"communityIDColor"`
	PageRank    float64 `csv:"pagerank"`
}

// LabelRow is the classification of one user.
type LabelRow struct {
	Name           string `csv:"name"`
	Label          string `csv:"label"`
	LabelColor     string `csv:"labelColor"`
	CommunityColor string `csv:"communityIDColor"`
}

// Interactions lists follow and comment edges whose source is in members.
// A nil members slice selects every user. Mutual follows collapse into one undirected row.
func Interactions(p profile.Profiles, members []string) []InteractionRow {
	if members == nil {
		members = p.Names()
	} else {
		members = slices.Sorted(slices.Values(members))
	}

	rows := []InteractionRow{}
	mutual := map[[2]string]bool{}
	for _, from := range members {
		u := p[from]
		if u == nil {
			continue
		}
		for _, to := range u.Following.Sorted() {
			if to == from {
				continue
			}
			other := p[to]
			if other == nil || !other.Following.Has(from) {
				rows = append(rows, InteractionRow{User1: from, User2: to, Interaction: Follows, Directed: "TRUE"})
				continue
			}
			key := [2]string{min(from, to), max(from, to)}
			if mutual[key] {
				continue
			}
			mutual[key] = true
			rows = append(rows, InteractionRow{User1: from, User2: to, Interaction: Follows, Directed: "FALSE"})
		}
		for _, commenter := range u.Commenters.Sorted() {
			rows = append(rows, InteractionRow{User1: commenter, User2: from, Interaction: CommentedOn, Directed: "TRUE"})
		}
	}
	return rows
}

// CommunityNodes lists every member of part with its community color and PageRank score.
// ranks may be nil.
func CommunityNodes(part *community.Partition, ranks map[string]float64) []NodeRow {
	rows := make([]NodeRow, 0, len(part.Membership))
	for id, members := range part.Communities {
		color := Color(id)
		for _, m := range members {
			if m == "" {
				continue
			}
			rows = append(rows, NodeRow{User: m, CommunityID: id, Color: color, PageRank: ranks[m]})
		}
	}
	return rows
}

// Color returns a pastel "#rrggbb" color for a community id. Every channel lies in
// [180, 255] and the same id always yields the same color.
func Color(id int) string {
	r := rand.New(rand.NewPCG(uint64(id), 0x5c0c1a1)) //nolint:gosec // not security sensitive
	return fmt.Sprintf("#%02x%02x%02x", 180+r.IntN(76), 180+r.IntN(76), 180+r.IntN(76))
}

// Label names a class and its display color.
type Label struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Anchor is a label together with the accounts that define it.
type Anchor struct {
	Label
	Users []string `json:"users"`
}

// Anchors configures Classify.
type Anchors struct {
	Labels   []Anchor `json:"labels"`
	Fallback Label    `json:"fallback"` // used when no label wins outright
}

// LoadAnchors reads an Anchors JSON document.
func LoadAnchors(path string) (*Anchors, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read anchors: %w", err)
	}
	var a Anchors
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode anchors: %w", err)
	}
	return &a, nil
}

// Classify labels each member by the anchors it is connected to inside the member set.
// Anchors keep their own label. Other members count the anchors among the accounts they
// follow (or their followers when they follow nobody) and the accounts they commented on;
// the label with the strictly highest count wins, otherwise the fallback applies.
func Classify(p profile.Profiles, members []string, anchors *Anchors, communityColor string) []LabelRow {
	inside := profile.NewSet(members...)
	owner := map[string]int{}
	for i, a := range anchors.Labels {
		for _, u := range a.Users {
			if _, ok := owner[u]; !ok {
				owner[u] = i
			}
		}
	}

	rows := []LabelRow{}
	for _, name := range inside.Sorted() {
		u := p[name]
		if u == nil {
			continue
		}
		label := anchors.Fallback
		if i, ok := owner[name]; ok {
			label = anchors.Labels[i].Label
		} else {
			counts := make([]int, len(anchors.Labels))
			tally := func(s profile.Set) {
				for other := range s {
					if other == name || !inside.Has(other) {
						continue
					}
					if i, ok := owner[other]; ok {
						counts[i]++
					}
				}
			}
			if len(u.Following) > 0 {
				tally(u.Following)
			} else {
				tally(u.Followers)
			}
			tally(u.CommentedOn)
			if i := winner(counts); i >= 0 {
				label = anchors.Labels[i].Label
			}
		}
		rows = append(rows, LabelRow{Name: name, Label: label.Name, LabelColor: label.Color, CommunityColor: communityColor})
	}
	return rows
}

// winner returns the index of the strict maximum of counts, or -1 on a tie or all zeros.
func winner(counts []int) int {
	best, top := -1, 0
	for i, c := range counts {
		switch {
		case c > top:
			best, top = i, c
		case c == top:
			best = -1
		}
	}
	return best
}

// Write encodes rows, a slice of one of the row types, as CSV with a header line.
func Write[T InteractionRow | NodeRow | LabelRow](w io.Writer, rows []T) error {
	if err := gocsv.Marshal(&rows, w); err != nil {
		return fmt.Errorf("encode csv: %w", err)
	}
	return nil
}

// WriteFile writes rows to path, creating parent directories as needed.
func WriteFile[T InteractionRow | NodeRow | LabelRow](path string, rows []T) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return Write(f, rows)
}
