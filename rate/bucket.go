// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package rate

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-core-stack/iolimit/errors"
)

// Id is an opaque handle identifying one registered consumer of a shared
// capacity pool. Ids are only ever compared for equality.
type Id uint64

func (id Id) String() string {
	return fmt.Sprintf("%d", uint64(id))
}

// Token is a claim on a bounded slice of capacity, valid only for the
// generation in which it was granted. A token is owned exclusively by its
// holder until released or consumed, and must be released at most once.
type Token struct {
	generation int
	quantity   uint
}

// Quantity returns the number of units this token is good for.
func (t Token) Quantity() uint {
	return t.quantity
}

// Shrink reduces the token's quantity to q, typically to the portion left
// unused after a partial transfer. Shrinking to a value greater than or
// equal to the current quantity is a no-op; a token never grows.
func (t *Token) Shrink(q uint) {
	if q < t.quantity {
		t.quantity = q
	}
}

// capacity is the lock guarded shared state of a bucket.
type capacity struct {
	generation int  // advanced by the limiter on every clock tick
	remaining  uint // units still grantable in the current generation
	parts      uint // consumers over which to spread the remaining units
}

// bucket spreads a fixed per generation capacity over its registered
// parts. Every acquire call re-divides the remaining capacity by the live
// parts count, so shares shrink as contention grows. Inactive parts can
// not hold capacity hostage, but active parts need more acquire calls to
// drain the pool, which slows them down.
//
// TODO: track usage per part and expire long-idle registrations so they
// stop degrading the shares of active ones.
type bucket struct {
	maximum uint          // immutable per generation capacity
	idgen   atomic.Uint64 // registration id generator
	mu      sync.Mutex
	cap     capacity
}

func newBucket(maximum uint) *bucket {
	b := &bucket{maximum: maximum}
	b.cap.remaining = maximum
	return b
}

// addPart registers one more consumer. It fails with NoCapacity once the
// parts count reaches the bucket maximum, which keeps every part entitled
// to at least one unit per generation.
func (b *bucket) addPart() (Id, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cap.parts >= b.maximum {
		return 0, errors.Wrapf(errors.NoCapacity, "part bound %d reached", b.maximum)
	}
	b.cap.parts++
	return Id(b.idgen.Add(1)), nil
}

// removePart drops one consumer from the share computation. The count is
// deliberately not reconciled against which Id held the slot; removal is
// a saturating decrement.
func (b *bucket) removePart(_ Id) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cap.parts > 0 {
		b.cap.parts--
	}
}

// acquire grants a token worth the remaining capacity divided by the live
// parts count, capped by the caller's hint. While any capacity remains
// the grant never drops below one unit, so a caller always makes forward
// progress even when remaining < parts.
func (b *bucket) acquire(_ Id, hint uint) (Token, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// no parts registered, the sole caller owns the full capacity
	if b.cap.parts == 0 {
		return Token{generation: b.cap.generation, quantity: b.maximum}, nil
	}

	quant := b.cap.remaining / b.cap.parts
	if quant == 0 && b.cap.remaining > 0 {
		quant = 1
	} else if quant > hint {
		quant = hint
	}

	if quant == 0 {
		return Token{}, errors.Wrap(errors.NoCapacity, "capacity exhausted")
	}

	b.cap.remaining -= quant
	return Token{generation: b.cap.generation, quantity: quant}, nil
}

// release credits an unconsumed token back to the pool. Tokens from an
// earlier generation are discarded; a stale credit must never inflate the
// current generation's pool. The credit saturates at the bucket maximum.
func (b *bucket) release(t Token) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t.generation != b.cap.generation {
		return
	}
	b.cap.remaining += t.quantity
	if b.cap.remaining > b.maximum {
		b.cap.remaining = b.maximum
	}
}

// reset starts the given generation with the full capacity available.
func (b *bucket) reset(generation int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cap.generation = generation
	b.cap.remaining = b.maximum
}
