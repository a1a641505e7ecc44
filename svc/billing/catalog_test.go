package billing_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/viewportly/svc/billing"
)

func TestLoadCatalog(t *testing.T) {
	t.Parallel()

	t.Run("valid", func(t *testing.T) {
		t.Parallel()
		c, err := billing.LoadCatalog(strings.NewReader(`
plans:
  - tier: free
    name: Free
    monthly_limit: 5
  - tier: pro
    name: Pro
    monthly_limit: 50
    price_id: price_pro
  - tier: unlimited
    name: Unlimited
    monthly_limit: -1
    price_id: price_unl
`))
		require.NoError(t, err)
		assert.EqualValues(t, 5, c.Limit(billing.TierFree))
		assert.EqualValues(t, 50, c.Limit(billing.TierPro))
		assert.Equal(t, billing.Unlimited, c.Limit(billing.TierUnlimited))

		tier, ok := c.TierForPrice("price_unl")
		require.True(t, ok)
		assert.Equal(t, billing.TierUnlimited, tier)

		price, err := c.PriceFor(billing.TierPro)
		require.NoError(t, err)
		assert.Equal(t, "price_pro", price)

		_, err = c.PriceFor(billing.TierFree)
		assert.ErrorIs(t, err, billing.ErrPlanNotFound)
	})

	cases := map[string]string{
		"unknown field":   "plans:\n  - tier: free\n    limit: 5\n",
		"unknown tier":    "plans:\n  - tier: free\n  - tier: gold\n",
		"missing free":    "plans:\n  - tier: pro\n    monthly_limit: 5\n",
		"duplicate tier":  "plans:\n  - tier: free\n  - tier: free\n",
		"duplicate price": "plans:\n  - tier: free\n  - tier: pro\n    price_id: p\n  - tier: unlimited\n    price_id: p\n",
		"negative limit":  "plans:\n  - tier: free\n    monthly_limit: -5\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := billing.LoadCatalog(strings.NewReader(doc))
			assert.ErrorIs(t, err, billing.ErrInvalidConfig)
		})
	}
}

func TestDefaultCatalog(t *testing.T) {
	t.Parallel()
	c := billing.DefaultCatalog("price_pro", "price_unl")
	assert.EqualValues(t, 10, c.Limit(billing.TierFree))
	assert.EqualValues(t, 100, c.Limit(billing.TierPro))
	assert.Equal(t, billing.Unlimited, c.Limit(billing.TierUnlimited))
	assert.EqualValues(t, 10, c.Limit("legacy"), "unknown tiers fall back to free")
}
