package community

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/codeGROOVE-dev/sociograph/pkg/profile"
)

// ErrInvalidWeights is returned for negative or non-finite weights.
var ErrInvalidWeights = errors.New("invalid edge weights")

// Weights are the per-occurrence contributions of each relation. A zero weight disables
// that relation everywhere: it adds no edge, so it neither shapes the partition nor
// counts toward the connections between communities in a Summary.
type Weights struct {
	Follow  float64 `json:"follow"`
	Comment float64 `json:"comment"`
	Hashtag float64 `json:"hashtag"`
}

// DefaultWeights returns the standard weighting: comments count double a follow,
// each shared hashtag counts half.
func DefaultWeights() Weights {
	return Weights{Follow: 1.0, Comment: 2.0, Hashtag: 0.5}
}

// Validate checks that every weight is finite and non-negative.
func (w Weights) Validate() error {
	for name, v := range map[string]float64{"follow": w.Follow, "comment": w.Comment, "hashtag": w.Hashtag} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s=%v", ErrInvalidWeights, name, v)
		}
	}
	return nil
}

// Edge is a directed weighted edge between two usernames.
type Edge struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	Weight float64 `json:"weight"`
}

type pair struct{ from, to string }

// Weigh turns the profile store into a list of directed edges. Weights from following,
// commenting and shared hashtags accumulate onto the same (from, to) pair. Self pairs are
// dropped and the result is sorted by (From, To).
func Weigh(p profile.Profiles, w Weights) []Edge {
	acc := map[pair]float64{}
	add := func(from, to string, v float64) {
		if from == to || v == 0 {
			return
		}
		acc[pair{from, to}] += v
	}

	byTag := map[string][]string{}
	for _, name := range p.Names() {
		u := p[name]
		if u == nil {
			continue
		}
		for followed := range u.Following {
			add(name, followed, w.Follow)
		}
		for creator := range u.CommentedOn {
			add(name, creator, w.Comment)
		}
		if w.Hashtag != 0 {
			for tag := range u.Hashtags {
				byTag[tag] = append(byTag[tag], name)
			}
		}
	}

	// Every ordered pair of users sharing a tag gains one hashtag weight per shared tag.
	for _, users := range byTag {
		for _, a := range users {
			for _, b := range users {
				add(a, b, w.Hashtag)
			}
		}
	}

	edges := make([]Edge, 0, len(acc))
	for k, v := range acc {
		edges = append(edges, Edge{From: k.from, To: k.to, Weight: v})
	}
	slices.SortFunc(edges, func(a, b Edge) int {
		return cmp.Or(cmp.Compare(a.From, b.From), cmp.Compare(a.To, b.To))
	})
	return edges
}
