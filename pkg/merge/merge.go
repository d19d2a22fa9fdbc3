// Package merge folds parsed dumps into the accumulated profile store.
package merge

import (
	"errors"
	"fmt"

	"github.com/codeGROOVE-dev/sociograph/pkg/dump"
	"github.com/codeGROOVE-dev/sociograph/pkg/profile"
)

// CountPolicy decides how a follow-list dump updates the total/shown counters.
type CountPolicy int

const (
	// CountMax keeps the larger of the stored and observed value.
	// The result does not depend on the order dumps are merged in.
	CountMax CountPolicy = iota
	// CountLatest overwrites the stored value with the one from the dump being merged.
	CountLatest
)

// ErrNilDump is returned when Apply is given nothing to merge.
var ErrNilDump = errors.New("nil dump")

// Options tunes Apply.
type Options struct {
	CountPolicy CountPolicy
}

// Apply merges d into p and stats in place.
func Apply(p profile.Profiles, stats profile.HashtagStats, d *dump.Dump, opts Options) error {
	if d == nil {
		return ErrNilDump
	}
	if p == nil || stats == nil {
		return errors.New("merge target not initialized")
	}
	switch d.Kind {
	case dump.KindComments:
		applyComments(p, stats, d)
	case dump.KindFollowers, dump.KindFollowing:
		applyFollows(p, d, opts.CountPolicy)
	default:
		return fmt.Errorf("merge %s: %w: %q", d.Source, dump.ErrInvalidKind, d.Kind)
	}
	return nil
}

// applyComments adds the relation sets unconditionally. The creator's counters and the
// hashtag statistics grow only the first time a post source is seen, so merging the
// same dump again leaves the store unchanged.
func applyComments(p profile.Profiles, stats profile.HashtagStats, d *dump.Dump) {
	creator := p.Ensure(d.Account)
	creator.Hashtags.Union(d.Hashtags, "")

	retained := 0
	for _, c := range d.Comments {
		if c.User == d.Account {
			continue
		}
		retained++
		creator.Commenters.Add(c.User)

		u := p.Ensure(c.User)
		u.CommentedOn.Add(d.Account)
		u.Hashtags.Union(c.Hashtags, "")
		u.AddComment(profile.Comment{
			Text:     c.Text,
			Likes:    c.Likes,
			Hashtags: profile.NewSet(c.Hashtags.Sorted()...),
		})
	}

	if !creator.CountedPosts.Add(d.Source) {
		return
	}
	creator.TotalCommentsCount += d.Total
	creator.ShownCommentsCount += retained
	stats.Observe(d.Hashtags)
}

func applyFollows(p profile.Profiles, d *dump.Dump, policy CountPolicy) {
	owner := p.Ensure(d.Account)

	var list *profile.Set
	var total, shown *int
	if d.Kind == dump.KindFollowers {
		list, total, shown = &owner.Followers, &owner.TotalFollowersCount, &owner.ShownFollowersCount
	} else {
		list, total, shown = &owner.Following, &owner.TotalFollowingCount, &owner.ShownFollowingCount
	}

	observed := 0
	for name := range d.Users {
		if name == d.Account {
			continue
		}
		observed++
		list.Add(name)

		u := p.Ensure(name)
		if d.Kind == dump.KindFollowers {
			u.Following.Add(d.Account)
		} else {
			u.Followers.Add(d.Account)
		}
	}

	setCount(total, d.Total, policy)
	setCount(shown, observed, policy)
}

func setCount(dst *int, v int, policy CountPolicy) {
	if policy == CountLatest || v > *dst {
		*dst = v
	}
}
