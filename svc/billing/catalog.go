package billing

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Unlimited is the MonthlyLimit of a plan without a quota.
const Unlimited int64 = -1

// Plan describes a tier's monthly limit and the price that sells it.
type Plan struct {
	Tier         Tier   `yaml:"tier" json:"tier"`
	Name         string `yaml:"name" json:"name"`
	MonthlyLimit int64  `yaml:"monthly_limit" json:"monthly_limit"`
	PriceID      string `yaml:"price_id" json:"-"`
}

// Catalog maps tiers to quotas and processor price ids.
type Catalog struct {
	plans   map[Tier]Plan
	byPrice map[string]Tier
}

// NewCatalog builds a catalog from plans. The free tier is required.
func NewCatalog(plans ...Plan) (*Catalog, error) {
	c := &Catalog{plans: make(map[Tier]Plan, len(plans)), byPrice: make(map[string]Tier, len(plans))}
	for _, p := range plans {
		if !p.Tier.Valid() {
			return nil, fmt.Errorf("%w: unknown tier %q", ErrInvalidConfig, p.Tier)
		}
		if p.MonthlyLimit < Unlimited {
			return nil, fmt.Errorf("%w: tier %q has negative limit", ErrInvalidConfig, p.Tier)
		}
		if _, dup := c.plans[p.Tier]; dup {
			return nil, fmt.Errorf("%w: tier %q declared twice", ErrInvalidConfig, p.Tier)
		}
		c.plans[p.Tier] = p
		if p.PriceID != "" {
			if other, dup := c.byPrice[p.PriceID]; dup {
				return nil, fmt.Errorf("%w: price %q used by %q and %q", ErrInvalidConfig, p.PriceID, other, p.Tier)
			}
			c.byPrice[p.PriceID] = p.Tier
		}
	}
	if _, ok := c.plans[TierFree]; !ok {
		return nil, fmt.Errorf("%w: free plan is required", ErrInvalidConfig)
	}
	return c, nil
}

// DefaultCatalog is free=10, pro=100, unlimited with the given price ids.
func DefaultCatalog(proPriceID, unlimitedPriceID string) *Catalog {
	c, err := NewCatalog(
		Plan{Tier: TierFree, Name: "Free", MonthlyLimit: 10},
		Plan{Tier: TierPro, Name: "Pro", MonthlyLimit: 100, PriceID: proPriceID},
		Plan{Tier: TierUnlimited, Name: "Unlimited", MonthlyLimit: Unlimited, PriceID: unlimitedPriceID},
	)
	if err != nil {
		panic(err)
	}
	return c
}

type catalogFile struct {
	Plans []Plan `yaml:"plans"`
}

// LoadCatalog reads a YAML document of the form:
//
//	plans:
//	  - tier: free
//	    monthly_limit: 10
//	  - tier: pro
//	    monthly_limit: 100
//	    price_id: price_123
func LoadCatalog(r io.Reader) (*Catalog, error) {
	var f catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}
	return NewCatalog(f.Plans...)
}

// LoadCatalogFile reads a YAML plan list from path.
func LoadCatalogFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}
	defer f.Close()
	return LoadCatalog(f)
}

// Limit returns the monthly quota for t. Unknown tiers get the free quota.
func (c *Catalog) Limit(t Tier) int64 {
	if p, ok := c.plans[t]; ok {
		return p.MonthlyLimit
	}
	return c.plans[TierFree].MonthlyLimit
}

// Plan looks up the plan for t.
func (c *Catalog) Plan(t Tier) (Plan, bool) {
	p, ok := c.plans[t]
	return p, ok
}

// TierForPrice maps a provider price ID to its tier.
func (c *Catalog) TierForPrice(priceID string) (Tier, bool) {
	t, ok := c.byPrice[priceID]
	return t, ok
}

// PriceFor returns the processor price id of a purchasable tier.
func (c *Catalog) PriceFor(t Tier) (string, error) {
	p, ok := c.plans[t]
	if !ok || p.PriceID == "" {
		return "", fmt.Errorf("%w: %q", ErrPlanNotFound, t)
	}
	return p.PriceID, nil
}

// resolveTier picks the tier of a payload: price id first, then metadata.
func (c *Catalog) resolveTier(priceID, metaTier string) Tier {
	if t, ok := c.TierForPrice(priceID); ok {
		return t
	}
	if t := Tier(metaTier); t.Valid() {
		return t
	}
	return ""
}
