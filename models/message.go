package models

import "time"

type MessageRole string

const (
	RolePendingFoodSelection       MessageRole = "pending_food_selection"
	RolePendingEditFoodSelection   MessageRole = "pending_edit_food_selection"
	RoleCompletedFoodSelection     MessageRole = "completed_food_selection"
	RoleCompletedEditFoodSelection MessageRole = "completed_edit_food_selection"
)

// MealSelectionMessage is the top-level streamed and persisted unit. It is
// mutated in place as stream chunks arrive; terminal roles are read-only.
type MealSelectionMessage struct {
	ID              string      `bson:"id"                   json:"message_id"`
	SessionID       string      `bson:"sessionId"            json:"session_id"`
	MealName        string      `bson:"mealName"             json:"meal_name"`
	Foods           []Food      `bson:"foods"                json:"foods"`
	FoodEntryID     string      `bson:"foodEntryId,omitempty" json:"food_entry_id,omitempty"`
	GroupID         string      `bson:"groupId,omitempty"    json:"group_id,omitempty"`
	ItemSetID       string      `bson:"itemSetId,omitempty"  json:"item_set_id,omitempty"`
	Role            MessageRole `bson:"role"                 json:"role"`
	IsPending       bool        `bson:"isPending"            json:"is_pending"`
	IsPartial       bool        `bson:"-"                    json:"is_partial"`
	ProcessingStage string      `bson:"-"                    json:"processing_stage,omitempty"`
	CreatedAt       time.Time   `bson:"createdAt"            json:"created_at"`
	UpdatedAt       time.Time   `bson:"updatedAt"            json:"updated_at"`
}

// IsEdit reports whether the message belongs to the edit flow rather than a
// fresh food selection.
func (m *MealSelectionMessage) IsEdit() bool {
	return m.Role == RolePendingEditFoodSelection || m.Role == RoleCompletedEditFoodSelection
}

// Chunk is one partial payload of a meal-selection stream, already mapped
// from the wire format. Foods carries only the foods changed since the last
// chunk, never a full snapshot.
type Chunk struct {
	MessageID       string
	MealName        string
	Foods           []Food
	IsPartial       bool
	ProcessingStage string
	IsSuccess       bool
	IsRestricted    bool
	Errors          []string
}
