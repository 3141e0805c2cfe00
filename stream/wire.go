package stream

import (
	"nutrichat/models"
)

// Wire shapes of the backend's meal-selection stream. Nothing outside this
// package sees them; every chunk is mapped into the typed model tree before
// it leaves the transport boundary.

type wireChunk struct {
	MessageID       string     `json:"message_id"`
	MealName        string     `json:"meal_name"`
	Foods           []wireFood `json:"foods"`
	IsPartial       bool       `json:"is_partial"`
	ProcessingStage string     `json:"processing_stage"`
	IsSuccess       *bool      `json:"is_success"`
	IsRestricted    bool       `json:"is_restricted"`
	Errors          []string   `json:"errors"`
}

type wireFood struct {
	FoodID     string          `json:"food_id"`
	Name       string          `json:"name"`
	Quantity   *float64        `json:"quantity"`
	Unit       string          `json:"unit"`
	Components []wireComponent `json:"components"`
}

type wireComponent struct {
	ComponentID    string      `json:"component_id"`
	OriginalPhrase string      `json:"original_phrase"`
	Matches        []wireMatch `json:"matches"`
}

type wireMatch struct {
	ProviderFoodID    string        `json:"provider_food_id"`
	DisplayName       string        `json:"display_name"`
	BrandName         string        `json:"brand_name"`
	Description       string        `json:"description"`
	CookingMethod     string        `json:"cooking_method"`
	Size              string        `json:"size"`
	Servings          []wireServing `json:"servings"`
	SelectedServingID string        `json:"selected_serving_id"`
	IsBestMatch       bool          `json:"is_best_match"`
}

type wireServing struct {
	ServingID           string             `json:"serving_id"`
	Identity            wireIdentity       `json:"identity"`
	BaseQuantity        float64            `json:"base_quantity"`
	BaseUnit            string             `json:"base_unit"`
	SingularUnit        string             `json:"singular_unit"`
	PluralUnit          string             `json:"plural_unit"`
	AIRecommendedScale  *float64           `json:"ai_recommended_scale"`
	Nutrients           map[string]float64 `json:"nutrients"`
	MetricServingAmount float64            `json:"metric_serving_amount"`
}

type wireIdentity struct {
	Provider     string `json:"provider"`
	FoodType     string `json:"food_type"`
	FoodName     string `json:"food_name"`
	VariantIndex int    `json:"variant_index"`
	ServingType  string `json:"serving_type"`
}

func mapChunk(w wireChunk) models.Chunk {
	c := models.Chunk{
		MessageID:       w.MessageID,
		MealName:        w.MealName,
		IsPartial:       w.IsPartial,
		ProcessingStage: w.ProcessingStage,
		IsRestricted:    w.IsRestricted,
		IsSuccess:       w.IsSuccess == nil || *w.IsSuccess,
		Errors:          w.Errors,
	}
	for _, f := range w.Foods {
		c.Foods = append(c.Foods, mapFood(f))
	}
	return c
}

func mapFood(w wireFood) models.Food {
	f := models.Food{
		ID:       w.FoodID,
		Name:     w.Name,
		Quantity: 1,
		Unit:     w.Unit,
	}
	if w.Quantity != nil && *w.Quantity > 0 {
		f.Quantity = *w.Quantity
	}
	for _, c := range w.Components {
		f.Components = append(f.Components, mapComponent(c))
	}
	return f
}

func mapComponent(w wireComponent) models.Component {
	c := models.Component{
		ID:             w.ComponentID,
		OriginalPhrase: w.OriginalPhrase,
	}
	for _, m := range w.Matches {
		c.Matches = append(c.Matches, mapMatch(m))
	}
	return c
}

func mapMatch(w wireMatch) models.Match {
	m := models.Match{
		ProviderFoodID:    w.ProviderFoodID,
		DisplayName:       w.DisplayName,
		BrandName:         w.BrandName,
		Description:       w.Description,
		CookingMethod:     w.CookingMethod,
		Size:              w.Size,
		SelectedServingID: w.SelectedServingID,
		IsBestMatch:       w.IsBestMatch,
	}
	for _, s := range w.Servings {
		m.Servings = append(m.Servings, mapServing(s))
	}
	return m
}

func mapServing(w wireServing) models.Serving {
	s := models.Serving{
		ID: w.ServingID,
		Identity: models.ServingIdentity{
			Provider:     w.Identity.Provider,
			FoodType:     w.Identity.FoodType,
			FoodName:     w.Identity.FoodName,
			VariantIndex: w.Identity.VariantIndex,
			ServingType:  w.Identity.ServingType,
		},
		BaseQuantity:        w.BaseQuantity,
		BaseUnit:            w.BaseUnit,
		SingularUnit:        w.SingularUnit,
		PluralUnit:          w.PluralUnit,
		AIRecommendedScale:  1,
		Nutrients:           w.Nutrients,
		MetricServingAmount: w.MetricServingAmount,
	}
	if w.AIRecommendedScale != nil && *w.AIRecommendedScale > 0 {
		s.AIRecommendedScale = *w.AIRecommendedScale
	}
	return s
}
