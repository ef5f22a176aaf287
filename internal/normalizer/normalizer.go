// Package normalizer turns a raw scraped product name into a structured
// models.ProductIdentity. It is a pure, stateless function package: the
// same input always yields the same output or the same error.
package normalizer

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/esomin/gpu-market-intel/pkg/models"
)

// Error names the field the normalizer could not extract.
type Error struct {
	Field string // "chipset", "brand", or "vram"
	Input string
}

func (e *Error) Error() string {
	return fmt.Sprintf("normalize: %s-missing: %q", e.Field, e.Input)
}

// ErrChipsetNotSupported is returned when the raw name names a chipset
// outside the closed RTX 4070 family; it's distinct from Error because the
// chipset is present, just not in scope.
type ErrChipsetNotSupported struct {
	Input string
}

func (e *ErrChipsetNotSupported) Error() string {
	return fmt.Sprintf("normalize: chipset-not-4070-series: %q", e.Input)
}

// ReasonOf classifies a Normalize error into a short label suitable for a
// metrics dimension, rather than the full message (which embeds the raw
// input and would blow up cardinality).
func ReasonOf(err error) string {
	switch e := err.(type) {
	case *Error:
		return e.Field + "-missing"
	case *ErrChipsetNotSupported:
		return "chipset-unsupported"
	default:
		return "unknown"
	}
}

// knownBrands is the brand list the normalizer matches against, longest
// first isn't required here since brand names don't prefix one another.
var knownBrands = []string{
	"ASUS", "MSI", "GIGABYTE", "ZOTAC", "PALIT", "GAINWARD", "EMTEK",
	"COLORFUL", "GALAX", "INNO3D", "PNY", "SAPPHIRE",
}

var ocMarkers = []string{"OC", "오버클럭", "OVERCLOCK"}

var vramPattern = regexp.MustCompile(`(?i)(\d+)\s*GB`)

// Normalize converts a raw scraped product title into a ProductIdentity.
// Rules are evaluated left to right and case-insensitively: chipset, then
// brand, then vram, then is_oc, then model_name. The first missing
// required field short-circuits with a typed error.
func Normalize(rawName string) (models.ProductIdentity, error) {
	upper := strings.ToUpper(rawName)

	chipset, chipsetToken, err := matchChipset(upper)
	if err != nil {
		return models.ProductIdentity{}, err
	}

	brand, brandToken, err := matchBrand(upper)
	if err != nil {
		return models.ProductIdentity{}, err
	}

	vram, err := matchVRAM(upper)
	if err != nil {
		return models.ProductIdentity{}, err
	}

	isOC := matchIsOC(upper)

	modelName := residualModelName(rawName, brandToken, chipsetToken, vram, isOC)
	if modelName == "" {
		modelName = fallbackModelName(chipset, brand)
	}

	return models.ProductIdentity{
		Brand:     brand,
		Chipset:   chipset,
		ModelName: modelName,
		VRAM:      vram,
		IsOC:      isOC,
	}, nil
}

// matchChipset tries the closed chipset set in ValidChipsets order, which
// is longest-token-first so "RTX 4070 Ti Super" is matched before the
// shorter "RTX 4070 Ti" would shadow it.
func matchChipset(upper string) (models.Chipset, string, error) {
	for _, c := range models.ValidChipsets {
		token := strings.ToUpper(string(c))
		if strings.Contains(upper, token) {
			return c, token, nil
		}
	}
	if strings.Contains(upper, "RTX") {
		return "", "", &ErrChipsetNotSupported{Input: upper}
	}
	return "", "", &Error{Field: "chipset", Input: upper}
}

func matchBrand(upper string) (string, string, error) {
	for _, b := range knownBrands {
		if strings.Contains(upper, b) {
			return b, b, nil
		}
	}
	return "", "", &Error{Field: "brand", Input: upper}
}

func matchVRAM(upper string) (string, error) {
	m := vramPattern.FindStringSubmatch(upper)
	if m == nil {
		return "", &Error{Field: "vram", Input: upper}
	}
	return m[1] + "GB", nil
}

func matchIsOC(upper string) bool {
	for _, marker := range ocMarkers {
		if strings.Contains(upper, strings.ToUpper(marker)) {
			return true
		}
	}
	return false
}

// residualModelName strips the tokens already consumed by chipset/brand/
// vram/oc matching and returns what's left, trimmed. It's best-effort: the
// result is whatever non-empty words remain, joined in their original
// order.
func residualModelName(rawName, brandToken, chipsetToken, vram string, isOC bool) string {
	residual := rawName
	stripTokens := []string{chipsetToken, brandToken, vram}
	for _, marker := range ocMarkers {
		stripTokens = append(stripTokens, marker)
	}

	for _, tok := range stripTokens {
		if tok == "" {
			continue
		}
		residual = replaceCaseInsensitive(residual, tok, " ")
	}

	fields := strings.Fields(residual)
	return strings.Join(fields, " ")
}

func replaceCaseInsensitive(s, old, repl string) string {
	if old == "" {
		return s
	}
	re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(old))
	return re.ReplaceAllString(s, repl)
}

// fallbackModelName covers the never-empty guarantee when nothing survives
// residual stripping (e.g. the raw name was exactly "ASUS RTX 4070 12GB").
func fallbackModelName(chipset models.Chipset, brand string) string {
	return fmt.Sprintf("%s-%s", brand, strings.ReplaceAll(string(chipset), " ", ""))
}
