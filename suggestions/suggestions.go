package suggestions

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"nutrichat/db"
	"nutrichat/models"
	"nutrichat/rdx"
	"nutrichat/utils"
	"strconv"

	"github.com/julienschmidt/httprouter"
	"go.mongodb.org/mongo-driver/bson"
)

// FoodSuggestion is one frequently-logged food offered for quick re-logging.
type FoodSuggestion struct {
	Name     string `bson:"_id"      json:"name"`
	Count    int64  `bson:"count"    json:"count"`
	LastUnit string `bson:"lastUnit" json:"last_unit,omitempty"`
}

// SuggestFoods returns the foods a user confirms most often, aggregated from
// their completed messages.
func SuggestFoods(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	userID := utils.GetUserIDFromContext(r.Context())
	if userID == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit < 1 {
		limit = 10
	}

	pipeline := []bson.M{
		{"$match": bson.M{"userId": userID, "isPending": false}},
		{"$unwind": "$foods"},
		{"$group": bson.M{
			"_id":      "$foods.name",
			"count":    bson.M{"$sum": 1},
			"lastUnit": bson.M{"$last": "$foods.unit"},
		}},
		{"$sort": bson.M{"count": -1}},
		{"$limit": limit},
	}

	cursor, err := db.MessagesCollection.Aggregate(context.TODO(), pipeline)
	if err != nil {
		http.Error(w, "Failed to fetch suggestions", http.StatusInternalServerError)
		return
	}
	defer cursor.Close(context.TODO())

	var suggested []FoodSuggestion
	if err := cursor.All(context.TODO(), &suggested); err != nil {
		http.Error(w, "Failed to decode suggestions", http.StatusInternalServerError)
		return
	}

	if len(suggested) == 0 {
		suggested = []FoodSuggestion{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(suggested); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

/***************************************************/

// SuggestPhrases serves match suggestions for a phrase prefix out of the
// alternatives cache, so typing in the edit box gets instant candidates.
func SuggestPhrases(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	prefix := r.URL.Query().Get("q")
	if prefix == "" {
		http.Error(w, "Missing q", http.StatusBadRequest)
		return
	}

	matches, err := GetPhraseSuggestions(r.Context(), prefix)
	if err != nil {
		http.Error(w, "Failed to fetch phrase suggestions", http.StatusInternalServerError)
		return
	}
	if len(matches) == 0 {
		matches = []models.Match{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(matches)
}

func GetPhraseSuggestions(ctx context.Context, prefix string) ([]models.Match, error) {
	var matches []models.Match

	// Use Redis KEYS command to find cached phrase lookups by prefix
	// (this is a simple approach, you may want a more efficient search strategy)
	keys, err := rdx.Conn.Keys(ctx, fmt.Sprintf("alternatives:%s*", prefix)).Result()
	if err != nil {
		return nil, err
	}

	for _, key := range keys {
		raw, err := rdx.Conn.Get(ctx, key).Result()
		if err != nil {
			continue
		}
		var cached []models.Match
		if err := json.Unmarshal([]byte(raw), &cached); err != nil {
			continue
		}
		matches = append(matches, cached...)
	}

	return matches, nil
}
