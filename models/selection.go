package models

// ServingIdentity identifies a provider serving across re-fetches. Numeric
// serving ids are not stable between backend responses, so this five-field
// identity is the durable key.
type ServingIdentity struct {
	Provider     string `bson:"provider"     json:"provider"`
	FoodType     string `bson:"foodType"     json:"food_type"`
	FoodName     string `bson:"foodName"     json:"food_name"`
	VariantIndex int    `bson:"variantIndex" json:"variant_index"`
	ServingType  string `bson:"servingType"  json:"serving_type"`
}

func (s ServingIdentity) IsEmpty() bool {
	return s.Provider == "" || s.FoodType == "" || s.FoodName == "" || s.ServingType == ""
}

func (s ServingIdentity) Equals(o ServingIdentity) bool {
	return s == o
}

// Serving is one quantity/unit option for a Match. Nutrients, when present,
// are for the whole BaseQuantity of BaseUnit, not per single unit.
type Serving struct {
	ID                  string             `bson:"id"                  json:"serving_id"`
	Identity            ServingIdentity    `bson:"identity"            json:"identity"`
	BaseQuantity        float64            `bson:"baseQuantity"        json:"base_quantity"`
	BaseUnit            string             `bson:"baseUnit"            json:"base_unit"`
	SingularUnit        string             `bson:"singularUnit"        json:"singular_unit"`
	PluralUnit          string             `bson:"pluralUnit"          json:"plural_unit"`
	AIRecommendedScale  float64            `bson:"aiRecommendedScale"  json:"ai_recommended_scale"`
	Nutrients           map[string]float64 `bson:"nutrients,omitempty" json:"nutrients,omitempty"`
	MetricServingAmount float64            `bson:"metricServingAmount,omitempty" json:"metric_serving_amount,omitempty"`
}

// Match is one candidate food resolved for a component's phrase.
type Match struct {
	ProviderFoodID    string    `bson:"providerFoodId"          json:"provider_food_id"`
	DisplayName       string    `bson:"displayName"             json:"display_name"`
	BrandName         string    `bson:"brandName,omitempty"     json:"brand_name,omitempty"`
	Description       string    `bson:"description,omitempty"   json:"description,omitempty"`
	CookingMethod     string    `bson:"cookingMethod,omitempty" json:"cooking_method,omitempty"`
	Size              string    `bson:"size,omitempty"          json:"size,omitempty"`
	Servings          []Serving `bson:"servings"                json:"servings"`
	SelectedServingID string    `bson:"selectedServingId"       json:"selected_serving_id"`
	IsBestMatch       bool      `bson:"isBestMatch"             json:"is_best_match"`
}

// ComponentUIState carries transient flags the backend knows nothing about.
// It is never persisted and never sent back to the backend.
type ComponentUIState struct {
	IsSearching           bool    `bson:"-" json:"is_searching"`
	IsEditing             bool    `bson:"-" json:"is_editing"`
	IsExpanded            bool    `bson:"-" json:"is_expanded"`
	ShowingMoreOptions    bool    `bson:"-" json:"showing_more_options"`
	LoadingMoreOptions    bool    `bson:"-" json:"loading_more_options"`
	LoadingInstantOptions bool    `bson:"-" json:"loading_instant_options"`
	MoreOptions           []Match `bson:"-" json:"more_options,omitempty"`
}

// Component is one parsed food phrase, e.g. "two slices wheat bread".
type Component struct {
	ID             string           `bson:"id"             json:"component_id"`
	OriginalPhrase string           `bson:"originalPhrase" json:"original_phrase"`
	Matches        []Match          `bson:"matches"        json:"matches"`
	UI             ComponentUIState `bson:"-"              json:"ui"`
}

// Food is one logical dish, possibly multi-component (e.g. a sandwich). A
// food with zero components is invalid and must be removed, cascading up to
// the message when it was the last one.
type Food struct {
	ID                string      `bson:"id"        json:"food_id"`
	Name              string      `bson:"name"      json:"name"`
	Quantity          float64     `bson:"quantity"  json:"quantity"`
	Unit              string      `bson:"unit"      json:"unit"`
	Components        []Component `bson:"components" json:"components"`
	IsEditingExpanded bool        `bson:"-"         json:"is_editing_expanded"`
}

// BestMatch returns the component's effective match: the one flagged as best
// match, falling back to the first match.
func (c *Component) BestMatch() *Match {
	for i := range c.Matches {
		if c.Matches[i].IsBestMatch {
			return &c.Matches[i]
		}
	}
	if len(c.Matches) > 0 {
		return &c.Matches[0]
	}
	return nil
}

// SelectedServing resolves a match's selected serving, falling back to the
// first serving when the selected id is stale or unset.
func (m *Match) SelectedServing() *Serving {
	for i := range m.Servings {
		if m.Servings[i].ID == m.SelectedServingID {
			return &m.Servings[i]
		}
	}
	if len(m.Servings) > 0 {
		return &m.Servings[0]
	}
	return nil
}

// ServingByID returns the serving with the given id, or nil.
func (m *Match) ServingByID(id string) *Serving {
	for i := range m.Servings {
		if m.Servings[i].ID == id {
			return &m.Servings[i]
		}
	}
	return nil
}
