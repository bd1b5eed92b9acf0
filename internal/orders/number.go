package orders

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// maxNumberAttempts bounds the retry-until-unique loop. Four random
// digits per day make a collision rare; hitting the bound means the
// existence check itself is broken.
const maxNumberAttempts = 5

// NumberExistsFunc reports whether an order number is already taken.
type NumberExistsFunc func(ctx context.Context, number string) (bool, error)

// GenerateOrderNumber produces a BF-YYYYMMDD-NNNN number, retrying until
// the existence check clears it.
func GenerateOrderNumber(ctx context.Context, exists NumberExistsFunc, now time.Time) (string, error) {
	day := now.Format("20060102")
	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		number := fmt.Sprintf("BF-%s-%04d", day, rand.Intn(10000))
		taken, err := exists(ctx, number)
		if err != nil {
			return "", fmt.Errorf("check order number: %w", err)
		}
		if !taken {
			return number, nil
		}
	}
	return "", fmt.Errorf("order number generation exhausted %d attempts", maxNumberAttempts)
}
