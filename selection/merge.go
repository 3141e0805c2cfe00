package selection

import (
	"fmt"
	"strings"

	"nutrichat/models"
)

// UserFoodIDPrefix marks foods added locally by the user (manual search,
// favorites). The backend never issues ids with this prefix, so user-added
// foods always survive stream merges.
const UserFoodIDPrefix = "temp-"

// MergeFoods reconciles one delta payload into the current foods list.
// Incoming foods replace same-id foods in place (index preserved, data
// replaced wholesale); new ids append at the end. Foods absent from the
// payload are retained: the backend streams deltas, never full snapshots,
// and deletions only ever happen through explicit user actions.
//
// The returned slice is a fresh allocation; untouched Food values are
// carried over as-is so siblings stay referentially unchanged.
func MergeFoods(existing, incoming []models.Food) []models.Food {
	merged := make([]models.Food, len(existing))
	copy(merged, existing)

	for _, in := range incoming {
		replaced := false
		for i := range merged {
			if merged[i].ID == in.ID {
				merged[i] = in
				replaced = true
				break
			}
		}
		if !replaced {
			merged = append(merged, in)
		}
	}
	return merged
}

// ApplyChunk merges a stream chunk into the message. Chunks flagged as
// failed are skipped entirely so no partial corruption is applied; the error
// is returned for the caller to surface.
func ApplyChunk(msg *models.MealSelectionMessage, chunk models.Chunk) error {
	if !chunk.IsSuccess {
		return fmt.Errorf("selection: stream chunk failed: %s", strings.Join(chunk.Errors, "; "))
	}
	if chunk.MessageID != msg.ID {
		return fmt.Errorf("selection: chunk for message %s applied to message %s", chunk.MessageID, msg.ID)
	}
	if chunk.MealName != "" {
		msg.MealName = chunk.MealName
	}
	msg.Foods = MergeFoods(msg.Foods, chunk.Foods)
	msg.IsPartial = chunk.IsPartial
	msg.ProcessingStage = chunk.ProcessingStage
	return nil
}

// IsUserFood reports whether the food was added locally by the user.
func IsUserFood(f *models.Food) bool {
	return strings.HasPrefix(f.ID, UserFoodIDPrefix)
}
