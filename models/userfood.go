package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// CustomFood is a user-defined food saved for reuse. Unlike provider matches
// it carries exactly one serving definition, entered by the user.
type CustomFood struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	UserID       string             `bson:"userId"        json:"user_id"`
	Name         string             `bson:"name"          json:"name"`
	Brand        string             `bson:"brand,omitempty" json:"brand,omitempty"`
	Tags         []string           `bson:"tags,omitempty"  json:"tags,omitempty"`
	BaseQuantity float64            `bson:"baseQuantity"  json:"base_quantity"`
	BaseUnit     string             `bson:"baseUnit"      json:"base_unit"`
	Nutrients    map[string]float64 `bson:"nutrients"     json:"nutrients"`
	CreatedAt    int64              `bson:"createdAt"     json:"created_at"`
	Uses         int64              `bson:"uses"          json:"uses"`
}

// AsFood converts the stored definition into a selectable food with a single
// pre-selected match and serving, ready to append to a pending message.
func (cf *CustomFood) AsFood() Food {
	serving := Serving{
		ID: "custom:" + cf.ID.Hex(),
		Identity: ServingIdentity{
			Provider:    "custom",
			FoodType:    "custom",
			FoodName:    cf.Name,
			ServingType: cf.BaseUnit,
		},
		BaseQuantity:       cf.BaseQuantity,
		BaseUnit:           cf.BaseUnit,
		SingularUnit:       cf.BaseUnit,
		PluralUnit:         cf.BaseUnit + "s",
		AIRecommendedScale: 1,
		Nutrients:          cf.Nutrients,
	}
	match := Match{
		ProviderFoodID:    "custom:" + cf.ID.Hex(),
		DisplayName:       cf.Name,
		BrandName:         cf.Brand,
		Servings:          []Serving{serving},
		SelectedServingID: serving.ID,
		IsBestMatch:       true,
	}
	return Food{
		Name:     cf.Name,
		Quantity: 1,
		Components: []Component{{
			OriginalPhrase: cf.Name,
			Matches:        []Match{match},
		}},
	}
}
