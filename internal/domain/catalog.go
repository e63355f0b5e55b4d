// Package domain defines the core types shared across the catalog, pricing,
// trade-in and conversation layers. Catalog types mirror the versioned JSON
// snapshot (family → model → condition); persistence types are mapped with GORM.
package domain

// CatalogSnapshot is one immutable, versioned view of the product catalog.
type CatalogSnapshot struct {
	Version  string          `json:"version"`
	Families []CatalogFamily `json:"families"`
}

// CatalogFamily is a product line (e.g. a console family).
type CatalogFamily struct {
	ID                 string            `json:"id"`
	Title              string            `json:"title"`
	InstallmentFactor  float64           `json:"installment_factor,omitempty"`
	FinancingProviders []string          `json:"financing_providers,omitempty"`
	Warranty           map[string]string `json:"warranty,omitempty"`
	Models             []CatalogModel    `json:"models"`
}

// CatalogModel is a sellable configuration (bundle, region or storage variant).
// FamilyID is a back-reference filled in when the snapshot is loaded.
type CatalogModel struct {
	ID                string             `json:"id"`
	FamilyID          string             `json:"family_id,omitempty"`
	Title             string             `json:"title"`
	Kind              string             `json:"kind,omitempty"`
	Storage           string             `json:"storage,omitempty"`
	Options           map[string]string  `json:"options,omitempty"`
	Categories        []string           `json:"categories,omitempty"`
	Tags              []string           `json:"tags,omitempty"`
	Aliases           []string           `json:"aliases,omitempty"`
	Description       string             `json:"description,omitempty"`
	ShortDescription  string             `json:"short_description,omitempty"`
	Permalink         string             `json:"permalink,omitempty"`
	FlagshipCondition string             `json:"flagship_condition,omitempty"`
	Conditions        []CatalogCondition `json:"conditions"`
	Source            SourceLink         `json:"source,omitempty"`
}

// CatalogCondition is one priced state of a model ("brand new", "preowned - good").
type CatalogCondition struct {
	Code             string            `json:"code"`
	Label            string            `json:"label"`
	BasePrice        *float64          `json:"base_price,omitempty"`
	InstallmentTotal *float64          `json:"installment_total,omitempty"`
	Financing        []FinancingOption `json:"financing,omitempty"`
	TradeIn          *PriceRange       `json:"trade_in,omitempty"`
	SoldOut          bool              `json:"sold_out,omitempty"`
}

// FinancingOption is a single instalment plan offered for a condition.
type FinancingOption struct {
	Provider string  `json:"provider"`
	Months   int     `json:"months"`
	Monthly  float64 `json:"monthly"`
}

// PriceRange is a trade-in value band; either bound may be absent.
type PriceRange struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// SourceLink records where a model's data was scraped or exported from.
type SourceLink struct {
	URL       string `json:"url,omitempty"`
	ProductID string `json:"product_id,omitempty"`
	FetchedAt string `json:"fetched_at,omitempty"`
}

// Link sets every model's FamilyID from its owning family.
func (s *CatalogSnapshot) Link() {
	for fi := range s.Families {
		fam := &s.Families[fi]
		for mi := range fam.Models {
			fam.Models[mi].FamilyID = fam.ID
		}
	}
}

// ModelCount returns the number of models across all families.
func (s *CatalogSnapshot) ModelCount() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, f := range s.Families {
		n += len(f.Models)
	}
	return n
}
