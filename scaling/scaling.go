package scaling

import (
	"math"
	"strings"

	"nutrichat/models"
)

// Nutrient keys used for the four preview macros.
const (
	KeyCalories     = "calories"
	KeyProtein      = "protein"
	KeyFat          = "fat"
	KeyCarbohydrate = "carbohydrate"
)

// PreviewMacros are the only keys scaled on the fallback path.
var PreviewMacros = []string{KeyCalories, KeyProtein, KeyFat, KeyCarbohydrate}

// Keys starting with this prefix carry provider metadata, not nutrient
// values, and are ignored everywhere.
const metadataPrefix = "meta:"

// Provider serving ids containing this marker identify the default serving
// of a match, used as the reference for weight-ratio fallback scaling.
const defaultServingMarker = "::default"

// minBaseNutrientKeys is the minimum nutrient-key count for a serving to
// qualify as a fallback base. Lightweight alternatives carry at most the
// preview macros, full servings carry many more.
const minBaseNutrientKeys = 3

// HasNutrients reports whether the serving carries at least one usable
// nutrient value, ignoring metadata keys.
func HasNutrients(s *models.Serving) bool {
	for k, v := range s.Nutrients {
		if strings.HasPrefix(k, metadataPrefix) {
			continue
		}
		if v >= 0 {
			return true
		}
	}
	return false
}

// Scale computes nutrient values for targetQuantity units of the serving.
// Nutrient values are stored for the whole BaseQuantity, so they are first
// divided down to a per-unit value. Returns nil when the serving has no
// usable nutrient data; callers must render "unavailable", not zero.
func Scale(s *models.Serving, targetQuantity float64) map[string]float64 {
	if s == nil || !HasNutrients(s) || s.BaseQuantity <= 0 {
		return nil
	}
	unitScale := 1 / s.BaseQuantity
	out := make(map[string]float64, len(s.Nutrients))
	for k, v := range s.Nutrients {
		if strings.HasPrefix(k, metadataPrefix) {
			continue
		}
		out[k] = v * unitScale * targetQuantity
	}
	return out
}

// ScaleForMatch scales the serving, deriving values from the match's base
// serving when the serving itself carries no nutrient data. Alternative
// servings only get the four preview macros; extended micronutrients are not
// attempted on the fallback path.
func ScaleForMatch(m *models.Match, s *models.Serving, targetQuantity float64) map[string]float64 {
	if s == nil {
		return nil
	}
	if HasNutrients(s) {
		return Scale(s, targetQuantity)
	}

	base := BaseServing(m)
	if base == nil {
		return nil
	}
	baseWeight := base.MetricServingAmount
	altWeight := s.MetricServingAmount
	if baseWeight <= 0 || altWeight <= 0 {
		return nil
	}

	weightScale := altWeight / baseWeight
	total := weightScale * targetQuantity
	out := make(map[string]float64, len(PreviewMacros))
	for _, k := range PreviewMacros {
		if v, ok := base.Nutrients[k]; ok {
			out[k] = v * total
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// BaseServing locates the match's default serving: its provider serving id
// carries the default marker and it has more than minBaseNutrientKeys
// nutrient keys. Returns nil when the match has no such serving.
//
// TODO: replace the key-count heuristic once the backend sends an explicit
// is_default flag on servings.
func BaseServing(m *models.Match) *models.Serving {
	if m == nil {
		return nil
	}
	for i := range m.Servings {
		s := &m.Servings[i]
		if !strings.Contains(s.ID, defaultServingMarker) {
			continue
		}
		if countNutrientKeys(s) > minBaseNutrientKeys {
			return s
		}
	}
	return nil
}

func countNutrientKeys(s *models.Serving) int {
	n := 0
	for k := range s.Nutrients {
		if strings.HasPrefix(k, metadataPrefix) {
			continue
		}
		n++
	}
	return n
}

// SumMacros adds src's preview macros into dst, creating keys as needed.
// Missing keys in src contribute nothing rather than zeroing dst.
func SumMacros(dst, src map[string]float64) map[string]float64 {
	if dst == nil {
		dst = make(map[string]float64, len(PreviewMacros))
	}
	for _, k := range PreviewMacros {
		if v, ok := src[k]; ok {
			dst[k] += v
		}
	}
	return dst
}

// MultiplyMacros scales every entry by factor, in place.
func MultiplyMacros(m map[string]float64, factor float64) map[string]float64 {
	for k, v := range m {
		m[k] = v * factor
	}
	return m
}

// RoundCalories rounds a calorie value to the nearest whole calorie.
func RoundCalories(v float64) int {
	return int(math.Round(v))
}

// RoundMacro rounds a macro value for display summaries. Full precision is
// kept internally; only the rendered value is rounded.
func RoundMacro(v float64) int {
	return int(math.Round(v))
}

// RoundQuantity rounds a display quantity to two decimal places.
func RoundQuantity(v float64) float64 {
	return math.Round(v*100) / 100
}
