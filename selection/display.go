package selection

import (
	"nutrichat/models"
	"nutrichat/quantities"
	"nutrichat/scaling"
)

// ServingView is a serving augmented with display state. Nutrients holds
// the values scaled to EffectiveQuantity, or nil when nutrient data is
// unavailable (rendered as "unavailable", never as zero).
type ServingView struct {
	Serving           models.Serving     `json:"serving"`
	Selected          bool               `json:"selected"`
	EffectiveQuantity float64            `json:"effective_quantity"`
	Multiplier        float64            `json:"multiplier"`
	Nutrients         map[string]float64 `json:"nutrients,omitempty"`
	Calories          *int               `json:"calories,omitempty"`
}

type MatchView struct {
	Match    models.Match  `json:"match"`
	IsBest   bool          `json:"is_best"`
	Servings []ServingView `json:"servings"`
}

type ComponentView struct {
	Component models.Component   `json:"component"`
	Matches   []MatchView        `json:"matches"`
	Macros    map[string]float64 `json:"macros,omitempty"`
	Expanded  bool               `json:"expanded"`
}

type FoodView struct {
	Food       models.Food        `json:"food"`
	Components []ComponentView    `json:"components"`
	Macros     map[string]float64 `json:"macros,omitempty"`
	Calories   int                `json:"calories"`
	Expanded   bool               `json:"expanded"`
}

// MessageView is the UI-facing representation of one meal-selection
// message, rebuilt after every model or quantity change.
type MessageView struct {
	Message  models.MealSelectionMessage `json:"message"`
	Foods    []FoodView                  `json:"foods"`
	Macros   map[string]float64          `json:"macros,omitempty"`
	Calories int                         `json:"calories"`
}

// BuildView computes the display model for a message from the raw tree plus
// quantity-store state. Building materializes default serving selections
// (idempotent) but performs no other mutation.
func BuildView(msg *models.MealSelectionMessage, store *quantities.Store) MessageView {
	view := MessageView{Message: *msg}
	for fi := range msg.Foods {
		fv := buildFoodView(msg.ID, &msg.Foods[fi], store)
		view.Macros = scaling.SumMacros(view.Macros, fv.Macros)
		view.Foods = append(view.Foods, fv)
	}
	view.Calories = scaling.RoundCalories(view.Macros[scaling.KeyCalories])
	return view
}

func buildFoodView(messageID string, food *models.Food, store *quantities.Store) FoodView {
	fv := FoodView{
		Food:     *food,
		Expanded: store.Expanded(messageID, food.ID),
	}
	for ci := range food.Components {
		cv := buildComponentView(messageID, &food.Components[ci], store)
		// Component contributions are summed before the food-level quantity
		// multiplier so a multi-component food with its own serving count is
		// not double-scaled.
		fv.Macros = scaling.SumMacros(fv.Macros, cv.Macros)
		fv.Components = append(fv.Components, cv)
	}
	if food.Quantity > 0 && food.Quantity != 1 {
		fv.Macros = scaling.MultiplyMacros(fv.Macros, food.Quantity)
	}
	fv.Calories = scaling.RoundCalories(fv.Macros[scaling.KeyCalories])
	return fv
}

func buildComponentView(messageID string, comp *models.Component, store *quantities.Store) ComponentView {
	cv := ComponentView{
		Component: *comp,
		Expanded:  store.Expanded(messageID, comp.ID),
	}
	for mi := range comp.Matches {
		match := &comp.Matches[mi]
		quantities.EnsureSelection(match)
		mv := MatchView{Match: *match, IsBest: match.IsBestMatch}
		for si := range match.Servings {
			sv := buildServingView(messageID, comp.ID, match, &match.Servings[si], store)
			if sv.Selected && match.IsBestMatch {
				cv.Macros = scaling.SumMacros(cv.Macros, sv.Nutrients)
			}
			mv.Servings = append(mv.Servings, sv)
		}
		cv.Matches = append(cv.Matches, mv)
	}
	return cv
}

func buildServingView(messageID, componentID string, match *models.Match, serving *models.Serving, store *quantities.Store) ServingView {
	qty := store.EffectiveQuantity(messageID, componentID, serving)
	sv := ServingView{
		Serving:           *serving,
		Selected:          serving.ID == match.SelectedServingID,
		EffectiveQuantity: scaling.RoundQuantity(qty),
		Multiplier:        store.EffectiveMultiplier(messageID, componentID, serving),
		Nutrients:         scaling.ScaleForMatch(match, serving, qty),
	}
	if sv.Nutrients != nil {
		if kcal, ok := sv.Nutrients[scaling.KeyCalories]; ok {
			rounded := scaling.RoundCalories(kcal)
			sv.Calories = &rounded
		}
	}
	return sv
}

// EffectiveSelection resolves the component's current match and serving for
// building an outbound selection record.
func EffectiveSelection(comp *models.Component) (*models.Match, *models.Serving) {
	match := comp.BestMatch()
	if match == nil {
		return nil, nil
	}
	return match, match.SelectedServing()
}
