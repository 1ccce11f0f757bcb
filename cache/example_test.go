package cache_test

import (
	"context"
	"fmt"

	"github.com/jonwraymond/calccache/cache"
	"github.com/jonwraymond/calccache/calc"
	"github.com/jonwraymond/calccache/fingerprint"
)

func ExampleStore() {
	ctx := context.Background()
	store, _ := cache.NewStore(cache.DefaultPolicy(), cache.WithBackend(cache.NewMemoryBackend(0)))

	req := calc.Request{
		Method: "HF",
		Basis:  "cc-pVDZ",
		Molecule: calc.Molecule{
			Multiplicity: 1,
			Atoms:        []calc.Atom{{Element: "He"}},
		},
	}
	fp := fingerprint.NewDefault().Fingerprint(req)

	_, hit := store.Lookup(ctx, fp)
	fmt.Println("hit:", hit)

	_, _ = store.Commit(ctx, fp, calc.Outcome{Kind: calc.OutcomeSuccess, Payload: []byte(`{"energy":-2.855}`)})
	e, hit := store.Lookup(ctx, fp)
	fmt.Println("hit:", hit, string(e.Outcome.Payload))
	// Output:
	// hit: false
	// hit: true {"energy":-2.855}
}
