package models

import "time"

// Chipset restricts products to the RTX 4070 family. The engine never
// normalizes or persists a product outside this closed set.
type Chipset string

const (
	ChipsetRTX4070         Chipset = "RTX 4070"
	ChipsetRTX4070Super    Chipset = "RTX 4070 Super"
	ChipsetRTX4070Ti       Chipset = "RTX 4070 Ti"
	ChipsetRTX4070TiSuper  Chipset = "RTX 4070 Ti Super"
)

// ValidChipsets enumerates the closed chipset set in match priority order:
// longer, more specific names must be tried before their prefixes (e.g. "Ti
// Super" before "Ti") or the shorter variant would shadow the longer one.
var ValidChipsets = []Chipset{
	ChipsetRTX4070TiSuper,
	ChipsetRTX4070Super,
	ChipsetRTX4070Ti,
	ChipsetRTX4070,
}

// IsValid reports whether c is one of the four supported chipsets.
func (c Chipset) IsValid() bool {
	for _, v := range ValidChipsets {
		if v == c {
			return true
		}
	}
	return false
}

// GPUCategory is the fixed category asserted for every product in this
// engine's scope. It is not a stored column (every row here is by
// construction a GPU) — see DESIGN.md for the rationale.
const GPUCategory = "그래픽카드"

// ProductIdentity is the structured result of normalizing a raw listing
// title. It carries no storage concerns; StorePort.UpsertProduct turns it
// into a persisted Product.
type ProductIdentity struct {
	Brand     string
	Chipset   Chipset
	ModelName string
	VRAM      string // e.g. "12GB", always matches ^\d+GB$
	IsOC      bool
}

// Product is a stable SKU identity keyed by (Brand, ModelName).
type Product struct {
	ID        int64
	Brand     string
	ModelName string
	Chipset   Chipset
	VRAM      string
	IsOC      bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
