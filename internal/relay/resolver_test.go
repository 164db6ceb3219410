package relay

import (
	"testing"
	"time"

	"github.com/skyrelay/skyrelay/internal/mastodon"
	"github.com/skyrelay/skyrelay/internal/models"
)

const selfUID = "self"

var baseTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func srcStatus(id string, minutes int, visibility string) mastodon.Status {
	return mastodon.Status{
		ID:         id,
		CreatedAt:  baseTime.Add(time.Duration(minutes) * time.Minute),
		Visibility: visibility,
		Content:    "<p>post " + id + "</p>",
		Account:    mastodon.StatusAccount{ID: selfUID},
	}
}

func asReply(s mastodon.Status, parentID, parentAccountID string) mastodon.Status {
	s.InReplyToID = &parentID
	s.InReplyToAccountID = &parentAccountID
	return s
}

func publicPolicy() Policy {
	return Policy{
		Criteria:   models.CriteriaAll,
		Visibility: []string{mastodon.VisibilityPublic},
	}
}

func resolvedIDs(statuses []mastodon.Status) []string {
	ids := make([]string, 0, len(statuses))
	for _, s := range statuses {
		ids = append(ids, s.ID)
	}
	return ids
}

func TestResolveStatusesWatermark(t *testing.T) {
	statuses := []mastodon.Status{
		srcStatus("new", 10, mastodon.VisibilityPublic),
		srcStatus("old", -10, mastodon.VisibilityPublic),
		srcStatus("exact", 0, mastodon.VisibilityPublic),
	}

	out := ResolveStatuses(statuses, selfUID, publicPolicy(), baseTime)
	if got := resolvedIDs(out); len(got) != 1 || got[0] != "new" {
		t.Fatalf("expected only the post past the watermark, got %v", got)
	}
}

func TestResolveStatusesIdempotent(t *testing.T) {
	statuses := []mastodon.Status{
		srcStatus("a", 10, mastodon.VisibilityPublic),
		srcStatus("b", 20, mastodon.VisibilityPublic),
	}

	first := ResolveStatuses(statuses, selfUID, publicPolicy(), baseTime)
	if len(first) != 2 {
		t.Fatalf("expected 2 results, got %d", len(first))
	}

	// a second pass over the same window with the watermark advanced to the
	// newest processed post yields nothing
	advanced := first[len(first)-1].CreatedAt
	second := ResolveStatuses(statuses, selfUID, publicPolicy(), advanced)
	if len(second) != 0 {
		t.Fatalf("expected empty result, got %v", resolvedIDs(second))
	}
}

func TestResolveStatusesAscendingOrder(t *testing.T) {
	statuses := []mastodon.Status{
		srcStatus("third", 30, mastodon.VisibilityPublic),
		srcStatus("first", 10, mastodon.VisibilityPublic),
		srcStatus("second", 20, mastodon.VisibilityPublic),
	}

	out := ResolveStatuses(statuses, selfUID, publicPolicy(), baseTime)
	got := resolvedIDs(out)
	want := []string{"first", "second", "third"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestResolveStatusesExcludesMentions(t *testing.T) {
	withMention := srcStatus("mention", 10, mastodon.VisibilityPublic)
	withMention.Mentions = []mastodon.Mention{{ID: "other", Acct: "other@remote"}}

	out := ResolveStatuses([]mastodon.Status{withMention}, selfUID, publicPolicy(), baseTime)
	if len(out) != 0 {
		t.Fatalf("expected mention post to be excluded, got %v", resolvedIDs(out))
	}
}

func TestResolveStatusesThirdPartyReplyPassesThrough(t *testing.T) {
	// A reply to someone else fails every relay condition but must still
	// reach the caller so the watermark can move past it.
	reply := asReply(srcStatus("reply", 10, mastodon.VisibilityPrivate), "parent", "someone-else")

	out := ResolveStatuses([]mastodon.Status{reply}, selfUID, publicPolicy(), baseTime)
	if got := resolvedIDs(out); len(got) != 1 || got[0] != "reply" {
		t.Fatalf("expected third-party reply to pass through, got %v", got)
	}
}

func TestResolveStatusesVisibility(t *testing.T) {
	statuses := []mastodon.Status{
		srcStatus("pub", 10, mastodon.VisibilityPublic),
		srcStatus("unl", 20, mastodon.VisibilityUnlisted),
		srcStatus("prv", 30, mastodon.VisibilityPrivate),
	}

	policy := publicPolicy()
	policy.Visibility = []string{mastodon.VisibilityPublic, mastodon.VisibilityUnlisted}

	out := ResolveStatuses(statuses, selfUID, policy, baseTime)
	got := resolvedIDs(out)
	if len(got) != 2 || got[0] != "pub" || got[1] != "unl" {
		t.Fatalf("expected pub and unl, got %v", got)
	}
}

func TestResolveStatusesCriteria(t *testing.T) {
	tests := []struct {
		name     string
		criteria models.RelayCriteria
		marker   string
		content  string
		faved    bool
		included bool
	}{
		{"all includes everything", models.CriteriaAll, "", "<p>anything</p>", false, true},
		{"faved included", models.CriteriaFavedBySelf, "", "<p>anything</p>", true, true},
		{"not faved excluded", models.CriteriaFavedBySelf, "", "<p>anything</p>", false, false},
		{"marker present", models.CriteriaContainsMarker, "#xp", "<p>hello #xp</p>", false, true},
		{"marker absent", models.CriteriaContainsMarker, "#xp", "<p>hello</p>", false, false},
		{"negated marker present", models.CriteriaNotContainsMarker, "#noxp", "<p>hello #noxp</p>", false, false},
		{"negated marker absent", models.CriteriaNotContainsMarker, "#noxp", "<p>hello</p>", false, true},
		{"invalid pattern matches literally", models.CriteriaContainsMarker, "[xp", "<p>hello [xp</p>", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := srcStatus("s", 10, mastodon.VisibilityPublic)
			status.Content = tt.content
			status.Favourited = tt.faved

			policy := publicPolicy()
			policy.Criteria = tt.criteria
			policy.Marker = tt.marker

			out := ResolveStatuses([]mastodon.Status{status}, selfUID, policy, baseTime)
			if included := len(out) == 1; included != tt.included {
				t.Errorf("included = %v, want %v", included, tt.included)
			}
		})
	}
}

func TestResolveStatusesUnlistedAnswers(t *testing.T) {
	root := srcStatus("root", 10, mastodon.VisibilityPublic)
	mid := asReply(srcStatus("mid", 20, mastodon.VisibilityUnlisted), "root", selfUID)
	leaf := asReply(srcStatus("leaf", 30, mastodon.VisibilityUnlisted), "mid", selfUID)

	t.Run("verified thread is included", func(t *testing.T) {
		policy := publicPolicy()
		policy.UnlistedAnswers = true

		out := ResolveStatuses([]mastodon.Status{leaf, mid, root}, selfUID, policy, baseTime)
		got := resolvedIDs(out)
		want := []string{"root", "mid", "leaf"}
		if len(got) != len(want) {
			t.Fatalf("expected %v, got %v", want, got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("expected %v, got %v", want, got)
			}
		}
	})

	t.Run("disabled toggle keeps only the root", func(t *testing.T) {
		out := ResolveStatuses([]mastodon.Status{leaf, mid, root}, selfUID, publicPolicy(), baseTime)
		if got := resolvedIDs(out); len(got) != 1 || got[0] != "root" {
			t.Fatalf("expected only root, got %v", got)
		}
	})

	t.Run("unlisted root is not rescued", func(t *testing.T) {
		policy := publicPolicy()
		policy.UnlistedAnswers = true

		lone := srcStatus("lone", 10, mastodon.VisibilityUnlisted)
		out := ResolveStatuses([]mastodon.Status{lone}, selfUID, policy, baseTime)
		if len(out) != 0 {
			t.Fatalf("expected unlisted non-reply to be excluded, got %v", resolvedIDs(out))
		}
	})

	t.Run("non-public root breaks the chain", func(t *testing.T) {
		policy := publicPolicy()
		policy.UnlistedAnswers = true

		privRoot := srcStatus("priv-root", 10, mastodon.VisibilityPrivate)
		answer := asReply(srcStatus("answer", 20, mastodon.VisibilityUnlisted), "priv-root", selfUID)

		out := ResolveStatuses([]mastodon.Status{privRoot, answer}, selfUID, policy, baseTime)
		if len(out) != 0 {
			t.Fatalf("expected nothing, got %v", resolvedIDs(out))
		}
	})

	t.Run("parent outside the window fails verification", func(t *testing.T) {
		policy := publicPolicy()
		policy.UnlistedAnswers = true

		orphan := asReply(srcStatus("orphan", 20, mastodon.VisibilityUnlisted), "missing", selfUID)
		out := ResolveStatuses([]mastodon.Status{orphan}, selfUID, policy, baseTime)
		if len(out) != 0 {
			t.Fatalf("expected orphan to be excluded, got %v", resolvedIDs(out))
		}
	})

	t.Run("third-party ancestor breaks the chain", func(t *testing.T) {
		policy := publicPolicy()
		policy.UnlistedAnswers = true

		foreignRoot := srcStatus("foreign-root", 10, mastodon.VisibilityPrivate)
		foreignRoot.Account = mastodon.StatusAccount{ID: "someone-else"}
		bridge := asReply(srcStatus("bridge", 20, mastodon.VisibilityUnlisted), "foreign-root", selfUID)
		tail := asReply(srcStatus("tail", 30, mastodon.VisibilityUnlisted), "bridge", selfUID)

		out := ResolveStatuses([]mastodon.Status{foreignRoot, bridge, tail}, selfUID, policy, baseTime)
		if len(out) != 0 {
			t.Fatalf("expected the whole chain excluded, got %v", resolvedIDs(out))
		}
	})

	t.Run("reply cycles terminate", func(t *testing.T) {
		policy := publicPolicy()
		policy.UnlistedAnswers = true

		a := asReply(srcStatus("a", 10, mastodon.VisibilityUnlisted), "b", selfUID)
		b := asReply(srcStatus("b", 20, mastodon.VisibilityUnlisted), "a", selfUID)

		out := ResolveStatuses([]mastodon.Status{a, b}, selfUID, policy, baseTime)
		if len(out) != 0 {
			t.Fatalf("expected cycle members to be excluded, got %v", resolvedIDs(out))
		}
	})
}
