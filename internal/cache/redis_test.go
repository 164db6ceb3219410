package cache

import (
	"context"
	"testing"
	"time"
)

func TestNamespaceKey(t *testing.T) {
	if got := NamespaceKey("foo"); got != "skyrelay:foo" {
		t.Errorf("NamespaceKey() = %q, want skyrelay:foo", got)
	}
}

func TestRepostKey(t *testing.T) {
	got := RepostKey("acct-1", "status-9")
	want := "skyrelay:repost:acct-1:status-9"
	if got != want {
		t.Errorf("RepostKey() = %q, want %q", got, want)
	}

	// distinct inputs must never collide
	other := RepostKey("acct-1", "status-10")
	if got == other {
		t.Errorf("keys collide: %q", got)
	}
}

func TestNilCacheIsDisabled(t *testing.T) {
	var c *Cache
	ctx := context.Background()

	if _, err := c.Get(ctx, "k"); err != ErrCacheDisabled {
		t.Errorf("Get on nil cache = %v, want ErrCacheDisabled", err)
	}
	if err := c.Set(ctx, "k", "v", time.Minute); err != ErrCacheDisabled {
		t.Errorf("Set on nil cache = %v, want ErrCacheDisabled", err)
	}
	if err := c.Delete(ctx, "k"); err != ErrCacheDisabled {
		t.Errorf("Delete on nil cache = %v, want ErrCacheDisabled", err)
	}
	if err := c.Health(ctx); err != ErrCacheDisabled {
		t.Errorf("Health on nil cache = %v, want ErrCacheDisabled", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close on nil cache = %v, want nil", err)
	}
}

func TestIsMiss(t *testing.T) {
	if IsMiss(ErrCacheDisabled) {
		t.Errorf("disabled cache must not classify as a miss")
	}
	if IsMiss(nil) {
		t.Errorf("nil error must not classify as a miss")
	}
}
