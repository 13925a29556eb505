package ids

import (
	"io"
	mathrand "math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Generator mints lexicographically sortable identifiers. Entropy and clock
// are injectable so id generation stays deterministic under test and is not
// coupled to wall-clock time.
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
	now     func() time.Time
}

// Option configures a Generator.
type Option func(*Generator)

// WithEntropy overrides the entropy source.
func WithEntropy(r io.Reader) Option {
	return func(g *Generator) {
		if r != nil {
			g.entropy = r
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(fn func() time.Time) Option {
	return func(g *Generator) {
		if fn != nil {
			g.now = fn
		}
	}
}

// NewGenerator constructs a Generator with monotonic ULID entropy.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		entropy: ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// New returns a fresh ULID string.
func (g *Generator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(g.now()), g.entropy).String()
}

// NewPrefixed returns an id of the form "<prefix>_<ulid>". RBAC entities and
// sessions use prefixed ids so they stay self-describing in logs.
func (g *Generator) NewPrefixed(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return g.New()
	}
	return prefix + "_" + g.New()
}

var defaultGenerator = NewGenerator()

// New returns an id from the process-wide default generator.
func New() string {
	return defaultGenerator.New()
}

// NewPrefixed returns a prefixed id from the process-wide default generator.
func NewPrefixed(prefix string) string {
	return defaultGenerator.NewPrefixed(prefix)
}
