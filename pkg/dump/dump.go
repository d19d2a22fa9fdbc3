// Package dump parses raw scrape dumps into deduplicated observation batches.
//
// Two dump shapes exist. A comments dump describes one post:
//
//	12.3K
//	#tag1
//	#tag2
//
//	@user$comment text$55.8K
//
// A follow-list dump describes one account's followers or followings:
//
//	1.1M
//	@user1
//	@user2
package dump

import (
	"errors"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/codeGROOVE-dev/sociograph/pkg/profile"
)

// MentionPrefix marks system-assigned account ids that appear in comment dumps
// when a comment tags another user. They are not real participants.
const MentionPrefix = "@MS4"

// Kind identifies the shape of a dump.
type Kind string

// Dump kinds. The follow kinds match the literal tag in the file name.
const (
	KindComments  Kind = "Comments"
	KindFollowers Kind = "Followers"
	KindFollowing Kind = "Following"
)

// Errors returned by the parser.
var (
	ErrInvalidKind = errors.New("invalid follow-list type")
	ErrNotDump     = errors.New("not a dump file")
)

// Comment is one observed comment line.
type Comment struct {
	User  string `json:"user"`
	Text  string `json:"text"`
	Likes int    `json:"likes"`
	// Hashtags are the post hashtags, or the tags found in Text when the post had none.
	Hashtags profile.Set `json:"hashtags"`
}

// Dump is the structured content of one dump file.
//
//nolint:govet // fieldalignment: grouped by meaning
type Dump struct {
	Source  string `json:"source"`  // canonical file name
	Kind    Kind   `json:"kind"`    // comments or a follow-list type
	Account string `json:"account"` // post creator, or the account whose list this is
	Total   int    `json:"total"`   // site-reported total from the first line

	Hashtags profile.Set `json:"hashtags,omitempty"` // comments dumps only
	Comments []Comment   `json:"comments,omitempty"` // comments dumps only
	Users    profile.Set `json:"users,omitempty"`    // follow-list dumps only
}

// Parse parses content according to the conventions encoded in the canonical file name.
func Parse(name string, content []byte) (*Dump, error) {
	kind, account, err := Classify(name)
	if err != nil {
		return nil, err
	}
	var d *Dump
	if kind == KindComments {
		d = ParseComments(account, string(content))
	} else {
		d = ParseFollows(account, kind, string(content))
	}
	d.Source = baseName(name)
	return d, nil
}

var hashtagPattern = regexp.MustCompile(`#[\p{L}\p{N}_]+`)

// ParseComments parses a comments dump for a post made by creator.
// The creator and mention accounts are dropped, and identical (user, text, likes) lines collapse.
func ParseComments(creator, content string) *Dump {
	d := &Dump{Kind: KindComments, Account: creator, Hashtags: profile.Set{}, Comments: []Comment{}}

	lines := splitLines(content)
	if len(lines) == 0 {
		return d
	}
	d.Total = ParseCount(lines[0])
	rest := lines[1:]

	blank := slices.IndexFunc(rest, func(l string) bool { return strings.TrimSpace(l) == "" })
	var tagLines, commentLines []string
	if blank < 0 {
		tagLines = rest
	} else {
		tagLines, commentLines = rest[:blank], rest[blank+1:]
	}
	for _, l := range tagLines {
		if tag := strings.TrimSpace(l); tag != "" {
			d.Hashtags.Add(tag)
		}
	}

	type triple struct {
		user, text string
		likes      int
	}
	seen := map[triple]bool{}
	for _, raw := range joinContinuations(commentLines) {
		user, text, likes, ok := splitComment(raw)
		if !ok || user == creator || strings.HasPrefix(user, MentionPrefix) {
			continue
		}
		key := triple{user, text, likes}
		if seen[key] {
			continue
		}
		seen[key] = true

		tags := d.Hashtags
		if len(tags) == 0 {
			tags = profile.NewSet(hashtagPattern.FindAllString(text, -1)...)
		}
		d.Comments = append(d.Comments, Comment{User: user, Text: text, Likes: likes, Hashtags: tags})
	}
	return d
}

// ParseFollows parses a follow-list dump of the given kind for account.
func ParseFollows(account string, kind Kind, content string) *Dump {
	d := &Dump{Kind: kind, Account: account, Users: profile.Set{}}

	lines := splitLines(content)
	if len(lines) == 0 {
		return d
	}
	d.Total = ParseCount(lines[0])
	for _, l := range lines[1:] {
		if user := strings.TrimSpace(l); user != "" && user != account {
			d.Users.Add(user)
		}
	}
	return d
}

// ParseCount parses counts such as "42", "12.3K" or "1.1M".
// Malformed or negative input yields 0.
func ParseCount(s string) int {
	s = strings.TrimSpace(s)
	mult := 1.0
	switch {
	case strings.HasSuffix(s, "K"), strings.HasSuffix(s, "k"):
		mult, s = 1e3, s[:len(s)-1]
	case strings.HasSuffix(s, "M"), strings.HasSuffix(s, "m"):
		mult, s = 1e6, s[:len(s)-1]
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	// The epsilon absorbs binary rounding, e.g. 0.29*1000 = 289.99999999999994.
	v := math.Floor(f*mult + 1e-6)
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(v)
}

func splitLines(content string) []string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.TrimPrefix(content, "\ufeff")
	if strings.TrimSpace(content) == "" {
		return nil
	}
	return strings.Split(content, "\n")
}

// joinContinuations glues physical lines that do not start with "@" onto the
// preceding comment line, separated by one space.
func joinContinuations(lines []string) []string {
	var out []string
	for _, l := range lines {
		l = strings.TrimRight(l, " \t")
		if strings.TrimSpace(l) == "" {
			continue
		}
		if strings.HasPrefix(l, "@") || len(out) == 0 {
			out = append(out, l)
			continue
		}
		out[len(out)-1] += " " + strings.TrimSpace(l)
	}
	return out
}

// splitComment splits "user$text$likes". The text may itself contain "$":
// the user ends at the first separator and the likes start after the last.
func splitComment(line string) (user, text string, likes int, ok bool) {
	user, rest, found := strings.Cut(line, "$")
	user = strings.TrimSpace(user)
	if !found || !strings.HasPrefix(user, "@") || len(user) == 1 {
		return "", "", 0, false
	}
	if i := strings.LastIndex(rest, "$"); i >= 0 {
		likes = ParseCount(rest[i+1:])
		rest = rest[:i]
	}
	return user, strings.TrimSpace(rest), likes, true
}
