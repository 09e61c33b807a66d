package rate

import (
	"testing"

	coreerrors "github.com/go-core-stack/iolimit/errors"
)

func remaining(b *bucket) uint {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cap.remaining
}

func parts(b *bucket) uint {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cap.parts
}

// TestBucketSoleOwnerFullGrant verifies that without any registered part
// the single caller is granted the full capacity regardless of hint.
func TestBucketSoleOwnerFullGrant(t *testing.T) {
	b := newBucket(100)
	tok, err := b.acquire(Id(1), 40)
	if err != nil {
		t.Fatalf("unexpected acquire error: %v", err)
	}
	if got := tok.Quantity(); got != 100 {
		t.Fatalf("expected full capacity grant of 100, got %d", got)
	}
}

// TestBucketFairShare verifies the grant is remaining capacity divided by
// the live parts count, capped by the caller's hint.
func TestBucketFairShare(t *testing.T) {
	b := newBucket(100)
	var id Id
	for i := 0; i < 4; i++ {
		var err error
		id, err = b.addPart()
		if err != nil {
			t.Fatalf("unexpected error adding part %d: %v", i+1, err)
		}
	}
	tok, err := b.acquire(id, 30)
	if err != nil {
		t.Fatalf("unexpected acquire error: %v", err)
	}
	if got := tok.Quantity(); got != 25 {
		t.Fatalf("expected grant of 25 (100/4 capped by hint 30), got %d", got)
	}

	tok2, err := b.acquire(id, 10)
	if err != nil {
		t.Fatalf("unexpected acquire error: %v", err)
	}
	if got := tok2.Quantity(); got != 10 {
		t.Fatalf("expected hint-capped grant of 10, got %d", got)
	}
}

// TestBucketPartBound verifies registrations are bounded by the capacity
// magnitude so every part can still get at least one unit per generation.
func TestBucketPartBound(t *testing.T) {
	b := newBucket(10)
	for i := 0; i < 10; i++ {
		if _, err := b.addPart(); err != nil {
			t.Fatalf("unexpected error adding part %d: %v", i+1, err)
		}
	}
	_, err := b.addPart()
	if err == nil {
		t.Fatal("expected part registration beyond capacity to fail")
	}
	if !coreerrors.IsNoCapacity(err) {
		t.Fatalf("expected NoCapacity error, got %v", err)
	}
}

// TestBucketMinimumGrantFloor verifies that grants never drop below one
// unit while any capacity remains, even when remaining < parts, and that
// exhaustion is reported once the pool is empty.
func TestBucketMinimumGrantFloor(t *testing.T) {
	b := newBucket(8)
	ids := make([]Id, 5)
	for i := range ids {
		id, err := b.addPart()
		if err != nil {
			t.Fatalf("unexpected error adding part %d: %v", i+1, err)
		}
		ids[i] = id
	}

	// drain the pool down to remaining=3 with single-unit grants
	for i := 0; i < 5; i++ {
		tok, err := b.acquire(ids[i], 1)
		if err != nil {
			t.Fatalf("unexpected acquire error on drain %d: %v", i+1, err)
		}
		if got := tok.Quantity(); got != 1 {
			t.Fatalf("expected single-unit grant on drain %d, got %d", i+1, got)
		}
	}
	if got := remaining(b); got != 3 {
		t.Fatalf("expected remaining of 3 after drain, got %d", got)
	}

	// remaining < parts: the floor keeps handing out single units
	for i := 0; i < 3; i++ {
		tok, err := b.acquire(ids[i], 10)
		if err != nil {
			t.Fatalf("unexpected acquire error with floor active: %v", err)
		}
		if got := tok.Quantity(); got != 1 {
			t.Fatalf("expected minimum grant of 1, got %d", got)
		}
	}

	_, err := b.acquire(ids[0], 10)
	if err == nil {
		t.Fatal("expected acquire on an empty pool to fail")
	}
	if !coreerrors.IsNoCapacity(err) {
		t.Fatalf("expected NoCapacity error, got %v", err)
	}
}

// TestBucketConservation verifies remaining + outstanding token
// quantities always equals the maximum within one generation, and that
// grants never exceed the hint.
func TestBucketConservation(t *testing.T) {
	b := newBucket(100)
	ids := make([]Id, 4)
	for i := range ids {
		id, err := b.addPart()
		if err != nil {
			t.Fatalf("unexpected error adding part %d: %v", i+1, err)
		}
		ids[i] = id
	}

	var tokens []Token
	outstanding := uint(0)
	for i, hint := range []uint{30, 10, 50, 7, 25, 3} {
		tok, err := b.acquire(ids[i%len(ids)], hint)
		if err != nil {
			if !coreerrors.IsNoCapacity(err) {
				t.Fatalf("unexpected acquire error: %v", err)
			}
			continue
		}
		if tok.Quantity() > hint {
			t.Fatalf("grant %d exceeds hint %d", tok.Quantity(), hint)
		}
		tokens = append(tokens, tok)
		outstanding += tok.Quantity()
		if got := remaining(b) + outstanding; got != 100 {
			t.Fatalf("conservation broken after acquire: remaining %d + outstanding %d != 100", remaining(b), outstanding)
		}
	}

	for _, tok := range tokens {
		outstanding -= tok.Quantity()
		b.release(tok)
		if got := remaining(b) + outstanding; got != 100 {
			t.Fatalf("conservation broken after release: remaining %d + outstanding %d != 100", remaining(b), outstanding)
		}
	}
	if got := remaining(b); got != 100 {
		t.Fatalf("expected fully restored pool, got remaining %d", got)
	}
}

// TestBucketGenerationIsolation verifies a token granted before a reset
// cannot credit the pool of a later generation.
func TestBucketGenerationIsolation(t *testing.T) {
	b := newBucket(50)
	id1, err := b.addPart()
	if err != nil {
		t.Fatalf("unexpected error adding part: %v", err)
	}
	if _, err := b.addPart(); err != nil {
		t.Fatalf("unexpected error adding part: %v", err)
	}

	stale, err := b.acquire(id1, 20)
	if err != nil {
		t.Fatalf("unexpected acquire error: %v", err)
	}

	b.reset(1)
	tok, err := b.acquire(id1, 10)
	if err != nil {
		t.Fatalf("unexpected acquire error after reset: %v", err)
	}
	if tok.Quantity() != 10 {
		t.Fatalf("expected grant of 10 after reset, got %d", tok.Quantity())
	}

	b.release(stale)
	if got := remaining(b); got != 40 {
		t.Fatalf("stale release changed the pool: expected remaining 40, got %d", got)
	}
}

// TestBucketReleaseSaturates verifies a credit can never push the pool
// above its maximum.
func TestBucketReleaseSaturates(t *testing.T) {
	b := newBucket(100)
	tok, err := b.acquire(Id(1), 10)
	if err != nil {
		t.Fatalf("unexpected acquire error: %v", err)
	}
	// sole-owner grants are not deducted, so the credit saturates
	b.release(tok)
	if got := remaining(b); got != 100 {
		t.Fatalf("expected remaining capped at 100, got %d", got)
	}
}

// TestBucketRemovePartSaturates verifies over-removal is a harmless no-op
// and the pool reverts to sole-owner behavior once all parts are gone.
func TestBucketRemovePartSaturates(t *testing.T) {
	b := newBucket(10)
	id, err := b.addPart()
	if err != nil {
		t.Fatalf("unexpected error adding part: %v", err)
	}
	b.removePart(id)
	b.removePart(id)
	if got := parts(b); got != 0 {
		t.Fatalf("expected parts count of 0, got %d", got)
	}
	tok, err := b.acquire(id, 3)
	if err != nil {
		t.Fatalf("unexpected acquire error: %v", err)
	}
	if got := tok.Quantity(); got != 10 {
		t.Fatalf("expected sole-owner full grant of 10, got %d", got)
	}
}

// TestTokenShrink verifies quantity can only ever be reduced.
func TestTokenShrink(t *testing.T) {
	tok := Token{generation: 0, quantity: 10}
	tok.Shrink(15)
	if got := tok.Quantity(); got != 10 {
		t.Fatalf("growing shrink must be a no-op, got %d", got)
	}
	tok.Shrink(4)
	if got := tok.Quantity(); got != 4 {
		t.Fatalf("expected shrunk quantity of 4, got %d", got)
	}
}
