package relay

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/skyrelay/skyrelay/internal/mastodon"
	"github.com/skyrelay/skyrelay/internal/models"
)

// Policy is the per-account relay policy consumed by the resolver and the
// orchestrator.
type Policy struct {
	Criteria        models.RelayCriteria
	Marker          string
	Visibility      []string
	UnlistedAnswers bool
	RelayCW         bool
	Numbering       bool
}

// PolicyFromAccount extracts the relay policy from a linked account.
func PolicyFromAccount(account *models.Account) Policy {
	visibility := account.RelayVisibility
	if len(visibility) == 0 {
		visibility = []string{mastodon.VisibilityPublic}
	}
	criteria := account.RelayCriteria
	if criteria == "" {
		criteria = models.CriteriaAll
	}
	return Policy{
		Criteria:        criteria,
		Marker:          account.RelayMarker,
		Visibility:      visibility,
		UnlistedAnswers: account.RelayUnlistedAnswers,
		RelayCW:         account.RelayCW,
		Numbering:       account.RelayNumbering,
	}
}

func (p Policy) visibilitySet() map[string]bool {
	set := make(map[string]bool, len(p.Visibility))
	for _, v := range p.Visibility {
		set[v] = true
	}
	return set
}

// matchesCriteria applies the criteria gate to one status. Markers are
// treated as multiline regular expressions over the normalized plain text;
// an invalid pattern falls back to a literal substring match.
func (p Policy) matchesCriteria(status *mastodon.Status) bool {
	switch p.Criteria {
	case models.CriteriaFavedBySelf:
		return status.Favourited
	case models.CriteriaContainsMarker:
		return matchMarker(p.Marker, HTMLToText(status.Content))
	case models.CriteriaNotContainsMarker:
		return !matchMarker(p.Marker, HTMLToText(status.Content))
	default:
		return true
	}
}

func matchMarker(marker, text string) bool {
	if marker == "" {
		return false
	}
	re, err := regexp.Compile("(?m)" + marker)
	if err != nil {
		return strings.Contains(text, marker)
	}
	return re.MatchString(text)
}

// ResolveStatuses decides which of the freshly fetched statuses are in
// scope for relay and returns them oldest first, so thread parents are
// posted before their replies.
//
// Replies to third parties stay in the result even though they will not be
// posted: the orchestrator skips them explicitly and advances the
// watermark past them, so they are not re-fetched forever.
func ResolveStatuses(statuses []mastodon.Status, accountUID string, policy Policy, watermark time.Time) []mastodon.Status {
	index := make(map[string]*mastodon.Status, len(statuses))
	for i := range statuses {
		index[statuses[i].ID] = &statuses[i]
	}

	visibility := policy.visibilitySet()

	var out []mastodon.Status
	for _, status := range statuses {
		if !status.CreatedAt.After(watermark) {
			continue
		}
		if len(status.Mentions) > 0 {
			continue
		}

		// Third-party replies pass through here and get skip-classified by
		// the orchestrator. The visibility-or-thread check below must only
		// run after this branch; see the self-reply edge case in
		// verifyThread.
		if !status.RepliesToOther(accountUID) {
			if !policy.matchesCriteria(&status) {
				continue
			}
			if !visibility[status.Visibility] &&
				!(policy.UnlistedAnswers && verifyThread(&status, index, accountUID, visibility)) {
				continue
			}
		}

		out = append(out, status)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	return out
}

// verifyThread walks the reply ancestry of a candidate through the fetched
// window. The walk succeeds when it terminates on a public, non-reply root
// authored by the account itself; every intermediate hop must also be
// self-authored and either unlisted or inside the policy visibility set.
// The candidate is never accepted merely for being a root itself.
//
// The walk is bounded by a visited set so malformed reply cycles cannot
// loop forever.
func verifyThread(candidate *mastodon.Status, index map[string]*mastodon.Status, accountUID string, visibility map[string]bool) bool {
	visited := make(map[string]bool)

	current := candidate
	for {
		if current.InReplyToID == nil || *current.InReplyToID == "" {
			return false
		}
		parentID := *current.InReplyToID
		if visited[parentID] {
			return false
		}
		visited[parentID] = true

		parent, ok := index[parentID]
		if !ok {
			// parent fell outside the fetch window
			return false
		}
		if parent.Account.ID != accountUID {
			return false
		}

		if parent.InReplyToID == nil || *parent.InReplyToID == "" {
			// non-reply root terminates the walk; it must be public
			return parent.Visibility == mastodon.VisibilityPublic
		}

		if parent.Visibility != mastodon.VisibilityUnlisted && !visibility[parent.Visibility] {
			return false
		}

		current = parent
	}
}
