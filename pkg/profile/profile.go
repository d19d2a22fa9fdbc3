// Package profile defines the accumulated per-user record built from scraped dumps.
package profile

import (
	"cmp"
	"encoding/json"
	"slices"
	"strings"
)

// Set is an unordered, duplicate-free collection of usernames or hashtags.
// It serializes as a sorted JSON list; a nil Set serializes as [].
type Set map[string]struct{}

// NewSet returns a Set holding items.
func NewSet(items ...string) Set {
	s := make(Set, len(items))
	for _, item := range items {
		s[item] = struct{}{}
	}
	return s
}

// Add inserts item and reports whether it was new.
func (s Set) Add(item string) bool {
	if _, ok := s[item]; ok {
		return false
	}
	s[item] = struct{}{}
	return true
}

// Union adds every member of other, skipping except.
func (s Set) Union(other Set, except string) {
	for item := range other {
		if item != except {
			s[item] = struct{}{}
		}
	}
}

// Has reports whether item is in the set.
func (s Set) Has(item string) bool {
	_, ok := s[item]
	return ok
}

// Sorted returns the members in lexical order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for item := range s {
		out = append(out, item)
	}
	slices.Sort(out)
	return out
}

// MarshalJSON encodes the set as a sorted list.
func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON decodes a JSON list, dropping duplicates.
func (s *Set) UnmarshalJSON(data []byte) error {
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	*s = NewSet(items...)
	return nil
}

// Comment is one comment a user posted under someone else's content.
type Comment struct {
	Text     string `json:"text"`
	Likes    int    `json:"likes"`
	Hashtags Set    `json:"hashtags"`
}

// Key is the identity used to deduplicate comments:
// trimmed lower-cased text, likes, and the sorted hashtag list.
type Key struct {
	Text     string
	Hashtags string
	Likes    int
}

// Key returns the normalized identity of c.
func (c Comment) Key() Key {
	return Key{
		Text:     strings.ToLower(strings.TrimSpace(c.Text)),
		Likes:    c.Likes,
		Hashtags: strings.Join(c.Hashtags.Sorted(), "\x00"),
	}
}

func compareKeys(a, b Key) int {
	return cmp.Or(
		strings.Compare(a.Text, b.Text),
		cmp.Compare(a.Likes, b.Likes),
		strings.Compare(a.Hashtags, b.Hashtags),
	)
}

// User is the accumulated record for one username.
//
//nolint:govet // fieldalignment: layout mirrors the JSON document
type User struct {
	Commenters  Set `json:"commenters"`  // users who commented on this user's content
	CommentedOn Set `json:"commentedOn"` // users whose content this user commented on
	Followers   Set `json:"followers"`
	Following   Set `json:"following"`

	// Site-reported totals versus what the scrapes actually captured.
	TotalFollowersCount int `json:"totalFollowersCount"`
	ShownFollowersCount int `json:"shownFollowersCount"`
	TotalFollowingCount int `json:"totalFollowingCount"`
	ShownFollowingCount int `json:"shownFollowingCount"`
	TotalCommentsCount  int `json:"totalCommentsCount"`
	ShownCommentsCount  int `json:"shownCommentsCount"`

	Hashtags       Set       `json:"hashtags"`
	CommentsPosted []Comment `json:"commentsPosted"`

	// Comment dumps of this user's posts whose counters are already included.
	CountedPosts Set `json:"countedPosts"`
}

// NewUser returns a user with every set allocated and all counts zero.
func NewUser() *User {
	return &User{
		Commenters:     Set{},
		CommentedOn:    Set{},
		Followers:      Set{},
		Following:      Set{},
		Hashtags:       Set{},
		CommentsPosted: []Comment{},
		CountedPosts:   Set{},
	}
}

// fill allocates sets left nil by a sparse JSON document.
func (u *User) fill() {
	for _, s := range []*Set{&u.Commenters, &u.CommentedOn, &u.Followers, &u.Following, &u.Hashtags, &u.CountedPosts} {
		if *s == nil {
			*s = Set{}
		}
	}
	if u.CommentsPosted == nil {
		u.CommentsPosted = []Comment{}
	}
}

// AddComment stores c unless a comment with the same Key is already present.
// CommentsPosted stays sorted by Key so the stored order does not depend on merge order.
// On a key collision the lexically smaller raw text is kept.
func (u *User) AddComment(c Comment) bool {
	if c.Hashtags == nil {
		c.Hashtags = Set{}
	}
	key := c.Key()
	i, found := slices.BinarySearchFunc(u.CommentsPosted, key, func(e Comment, k Key) int {
		return compareKeys(e.Key(), k)
	})
	if found {
		if c.Text < u.CommentsPosted[i].Text {
			u.CommentsPosted[i].Text = c.Text
		}
		return false
	}
	u.CommentsPosted = slices.Insert(u.CommentsPosted, i, c)
	return true
}

// Profiles maps usernames to their accumulated records.
type Profiles map[string]*User

// Ensure returns the user for name, creating an empty record on first observation.
func (p Profiles) Ensure(name string) *User {
	u, ok := p[name]
	if !ok || u == nil {
		u = NewUser()
		p[name] = u
	}
	return u
}

// Names returns all usernames in lexical order.
func (p Profiles) Names() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// UnmarshalJSON decodes the store document and normalizes sparse records.
func (p *Profiles) UnmarshalJSON(data []byte) error {
	raw := map[string]*User{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		raw = map[string]*User{}
	}
	for _, u := range raw {
		if u == nil {
			continue
		}
		u.fill()
		slices.SortFunc(u.CommentsPosted, func(a, b Comment) int { return compareKeys(a.Key(), b.Key()) })
	}
	*p = raw
	for name, u := range *p {
		if u == nil {
			(*p)[name] = NewUser()
		}
	}
	return nil
}

// HashtagStat counts dump occurrences of a hashtag and the tags seen alongside it.
type HashtagStat struct {
	Connections Set `json:"connections"`
	Count       int `json:"count"`
}

// HashtagStats maps hashtags to their statistics.
type HashtagStats map[string]*HashtagStat

// Observe records one dump's hashtag set: each tag's count grows by one and
// its connections gain every other tag in the set.
func (h HashtagStats) Observe(tags Set) {
	for tag := range tags {
		st, ok := h[tag]
		if !ok || st == nil {
			st = &HashtagStat{Connections: Set{}}
			h[tag] = st
		}
		if st.Connections == nil {
			st.Connections = Set{}
		}
		st.Count++
		for other := range tags {
			if other != tag {
				st.Connections.Add(other)
			}
		}
	}
}
