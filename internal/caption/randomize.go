package caption

import (
	"context"
	"math/rand"
	"time"

	"github.com/samber/do"

	"ghiblify/internal/log"
)

var captions = []string{
	"In a world of endless possibilities, find your inner peace.",
	"Capture the magic in everyday moments, just like Ghibli does.",
	"Life moves pretty fast. If you don't stop and look around once in a while, you could miss it.",
	"Some things in life are worth waiting for, like a Ghibli sunset.",
	"The most beautiful things in life aren't things. They're moments, memories, and feelings.",
	"Find beauty in the ordinary, magic in the mundane.",
	"Let your spirit soar like the wind across Ghibli landscapes.",
	"Not all who wander are lost; some are just finding their Ghibli moment.",
	"Dream big, live simply, love deeply - the Ghibli way.",
}

// Randomizer picks a caption line to accompany a shared image.
type Randomizer struct {
	captions []string
	rnd      *rand.Rand
}

func NewRandomizer(*do.Injector) (*Randomizer, error) {
	return &Randomizer{
		captions: captions,
		rnd:      rand.New(rand.NewSource(time.Now().UTC().UnixNano())),
	}, nil
}

func (r *Randomizer) Randomize(ctx context.Context) string {
	log.FromContextOrDiscard(ctx).WithGroup("captions").Debug("picking random caption")
	return r.captions[r.rnd.Intn(len(r.captions))]
}

func (r *Randomizer) All() []string {
	out := make([]string, len(r.captions))
	copy(out, r.captions)
	return out
}
