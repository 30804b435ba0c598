// Property-based tests for cursor pagination.
package pagination

import (
	"context"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

// TestProperty_PagingVisitsEveryIDOnce
//
// Property: following lookup tags from LookUp through LookUpNext until the sentinel
// returns every stored id exactly once, in store order.
func TestProperty_PagingVisitsEveryIDOnce(t *testing.T) {
	kv := newTestKV(t)
	ctx := context.Background()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30

	properties := gopter.NewProperties(parameters)

	run := 0
	properties.Property("paging is exhaustive and non-overlapping", prop.ForAll(
		func(count, pageSize int) bool {
			run++
			table := fmt.Sprintf("workers-%d", run)
			expected := make([]string, 0, count)
			for i := 0; i < count; i++ {
				id := fmt.Sprintf("w%03d", i)
				expected = append(expected, id)
				require.NoError(t, kv.Set(ctx, table, id, `{"workerType":1}`))
			}

			p := New(kv, table, pageSize)
			page, err := p.LookUp(ctx, nil)
			if err != nil {
				return false
			}
			seen := append([]string{}, page.IDs...)
			for page.LookupTag != "" {
				if page.TotalCount != pageSize {
					return false
				}
				page, err = p.LookUpNext(ctx, nil, string(page.LookupTag))
				if err != nil {
					return false
				}
				seen = append(seen, page.IDs...)
			}
			return fmt.Sprint(seen) == fmt.Sprint(expected)
		},
		gen.IntRange(0, 25),
		gen.IntRange(1, 7),
	))

	properties.TestingRun(t)
}
