package account

import (
	"fmt"
	"math/rand"
	"sync"
)

// NumberGenerator produces candidate account numbers. Uniqueness is enforced
// by the storage unique constraint plus a bounded regenerate-on-collision
// retry in the service, never by trusting the generator alone.
type NumberGenerator func() string

// IBANNumbers returns a generator of French-style IBANs: FR76 followed by
// bank code, branch code, account digits and a check key. The source is
// injected so tests can force collisions.
func IBANNumbers(src rand.Source) NumberGenerator {
	rnd := rand.New(src)
	var mu sync.Mutex
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		return fmt.Sprintf("FR76%05d%05d%011d%02d",
			rnd.Intn(100_000),
			rnd.Intn(100_000),
			rnd.Int63n(100_000_000_000),
			rnd.Intn(100))
	}
}

// MaskNumber hides the middle of an account number for use in entry
// descriptions, e.g. FR7612345678901234567890123 -> FR76****0123.
func MaskNumber(number string) string {
	if len(number) < 8 {
		return number
	}
	return number[:4] + "****" + number[len(number)-4:]
}
