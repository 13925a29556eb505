package ids

import (
	"strings"
	"testing"
	"time"
)

func TestNewIsSortable(t *testing.T) {
	g := NewGenerator()
	prev := g.New()
	for i := 0; i < 100; i++ {
		next := g.New()
		if next <= prev {
			t.Fatalf("ids not monotonic: %s then %s", prev, next)
		}
		prev = next
	}
}

func TestNewPrefixed(t *testing.T) {
	g := NewGenerator()
	id := g.NewPrefixed("sess")
	if !strings.HasPrefix(id, "sess_") {
		t.Fatalf("id = %q", id)
	}
	if len(id) != len("sess_")+26 {
		t.Fatalf("unexpected length: %q", id)
	}
	if g.NewPrefixed("  ") == "" {
		t.Fatal("blank prefix should still mint an id")
	}
	if strings.Contains(g.NewPrefixed(""), "_") {
		t.Fatal("empty prefix must not add a separator")
	}
}

func TestWithClock(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	g := NewGenerator(WithClock(func() time.Time { return fixed }))
	a := g.New()
	b := g.New()
	// Same timestamp; monotonic entropy still orders them.
	if a[:10] != b[:10] {
		t.Fatalf("timestamp prefix differs: %s vs %s", a, b)
	}
	if b <= a {
		t.Fatalf("entropy not monotonic: %s then %s", a, b)
	}
}
