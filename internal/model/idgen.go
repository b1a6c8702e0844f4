package model

import "github.com/teris-io/shortid"

// idgen is a package-level shortid generator; shortid.Generate is safe for
// concurrent use, matching the generator's own documented guarantee.
var idgen = shortid.MustNew(1, shortid.DefaultABC, 0xBEEF)

// NewJobID mints a fresh, short, URL-safe job identifier.
func NewJobID() JobID {
	id, err := idgen.Generate()
	if err != nil {
		// shortid only errors on generator exhaustion of its internal
		// worker-id space, which cannot happen with a single fixed seed.
		panic(err)
	}
	return JobID(id)
}

// NewHistoryID mints a fresh AllocationHistory row id.
func NewHistoryID() string {
	id, err := idgen.Generate()
	if err != nil {
		panic(err)
	}
	return id
}
