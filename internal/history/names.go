package history

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// Word lists for anonymous editor names, e.g. "steady-quill-07".
var (
	qualities = []string{
		"steady", "careful", "patient", "tidy", "quiet", "nimble", "keen", "plain",
		"brisk", "exact", "gentle", "honest", "lucid", "modest", "neat", "prompt",
		"sober", "sharp", "spry", "sunny", "terse", "thrifty", "true", "witty",
	}
	tools = []string{
		"quill", "ledger", "stylus", "eraser", "margin", "index", "folio", "stamp",
		"column", "cursor", "record", "tally", "abacus", "binder", "clerk", "docket",
		"easel", "gavel", "lantern", "marker", "notary", "pencil", "scribe", "tablet",
	}
)

// NameGenerator generates anonymous names. It is safe for concurrent use.
type NameGenerator struct {
	rng *rand.Rand
	mu  sync.Mutex
}

// NewNameGenerator creates a name generator seeded from the clock.
func NewNameGenerator() *NameGenerator {
	return &NameGenerator{
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Generate returns a name of the form "quality-tool-NN".
func (g *NameGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return pick(g.rng)
}

// GenerateWithSeed returns the name a generator seeded with seed yields first.
func GenerateWithSeed(seed int64) string {
	return pick(rand.New(rand.NewSource(seed)))
}

func pick(rng *rand.Rand) string {
	quality := qualities[rng.Intn(len(qualities))]
	tool := tools[rng.Intn(len(tools))]
	return fmt.Sprintf("%s-%s-%02d", quality, tool, rng.Intn(100))
}
