package rewrite

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/eclectech/pkg/store/memstore"
	storemock "github.com/MrWong99/eclectech/pkg/store/mock"
)

var longMarkup = "<body>" + strings.Repeat("accessible ", 20) + "</body>"

func TestCache_PutGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := NewCache(memstore.New())

	if _, ok, err := c.Get(ctx, "large-font"); err != nil || ok {
		t.Fatalf("Get on empty cache = ok %v, err %v", ok, err)
	}
	if err := c.Put(ctx, "large-font", longMarkup); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := c.Get(ctx, "large-font")
	if err != nil || !ok {
		t.Fatalf("Get = ok %v, err %v", ok, err)
	}
	if got != longMarkup {
		t.Errorf("Get = %q, want %q", got, longMarkup)
	}
}

func TestCache_KeyPrefix(t *testing.T) {
	t.Parallel()
	kv := &storemock.KV{}
	c := NewCache(kv)

	if err := c.Put(context.Background(), "high-contrast|large-font", longMarkup); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, ok := kv.Value("accessibilityHtml:high-contrast|large-font"); !ok {
		t.Error("entry not stored under accessibilityHtml:<fingerprint>")
	}
}

func TestCache_RejectsShortMarkup(t *testing.T) {
	t.Parallel()
	kv := &storemock.KV{}
	c := NewCache(kv)

	err := c.Put(context.Background(), "large-font", strings.Repeat("x", DefaultMinLength))
	if !errors.Is(err, ErrInvalidEntry) {
		t.Fatalf("Put err = %v, want ErrInvalidEntry", err)
	}
	if n := kv.CallCount("Put"); n != 0 {
		t.Errorf("store Put calls = %d, want 0", n)
	}
}

func TestCache_EvictsInvalidEntry(t *testing.T) {
	t.Parallel()
	kv := &storemock.KV{}
	kv.Seed(Key("large-font"), "<p>cut</p>")
	c := NewCache(kv)

	_, ok, err := c.Get(context.Background(), "large-font")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Error("invalid entry reported as a hit")
	}
	if _, still := kv.Value(Key("large-font")); still {
		t.Error("invalid entry was not evicted")
	}
}

func TestCache_MinLengthOption(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := NewCache(memstore.New(), WithMinLength(3))

	if err := c.Put(ctx, "screen-reader", "<p/>"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "screen-reader"); !ok {
		t.Error("entry longer than configured minimum not returned")
	}
}

func TestCache_GetError(t *testing.T) {
	t.Parallel()
	boom := errors.New("disk gone")
	c := NewCache(&storemock.KV{GetErr: boom})

	if _, _, err := c.Get(context.Background(), "large-font"); !errors.Is(err, boom) {
		t.Errorf("Get err = %v, want wrapped %v", err, boom)
	}
}

func TestCache_InvalidateListPurge(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	kv := memstore.New()
	if err := kv.Put(ctx, "unrelated", "keep me"); err != nil {
		t.Fatal(err)
	}
	c := NewCache(kv)

	for _, fp := range []string{"large-font", "high-contrast", "high-contrast|large-font"} {
		if err := c.Put(ctx, fp, longMarkup); err != nil {
			t.Fatalf("Put(%q): %v", fp, err)
		}
	}

	if err := c.Invalidate(ctx, "large-font"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	entries, err := c.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("List = %d entries, want 2", len(entries))
	}
	if entries[0].Fingerprint != "high-contrast" || entries[0].Size != len(longMarkup) {
		t.Errorf("entries[0] = %+v", entries[0])
	}

	n, err := c.Purge(ctx)
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if n != 2 {
		t.Errorf("Purge removed %d, want 2", n)
	}
	if _, ok, _ := kv.Get(ctx, "unrelated"); !ok {
		t.Error("Purge removed a key outside the cache prefix")
	}
}
