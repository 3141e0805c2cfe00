package userfoods

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"nutrichat/db"
	"nutrichat/models"
	"nutrichat/utils"

	"github.com/julienschmidt/httprouter"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Get all custom foods for a user
func GetCustomFoods(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx := context.TODO()
	userID := utils.GetUserIDFromContext(r.Context())

	query := bson.M{"userId": userID}

	// --- Parse query params ---
	search := r.URL.Query().Get("search")
	tag := r.URL.Query().Get("tag")
	sortParam := r.URL.Query().Get("sort")
	offsetStr := r.URL.Query().Get("offset")
	limitStr := r.URL.Query().Get("limit")

	// --- Search by name or brand (case-insensitive) ---
	if search != "" {
		query["$or"] = []bson.M{
			{"name": bson.M{"$regex": search, "$options": "i"}},
			{"brand": bson.M{"$regex": search, "$options": "i"}},
		}
	}

	// --- Filter by tag ---
	if tag != "" {
		query["tags"] = tag
	}

	// --- Pagination ---
	offset, err := strconv.Atoi(offsetStr)
	if err != nil || offset < 0 {
		offset = 0
	}
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		limit = 10
	}

	// --- Sorting ---
	sort := bson.D{{Key: "createdAt", Value: -1}} // default: newest
	switch sortParam {
	case "oldest":
		sort = bson.D{{Key: "createdAt", Value: 1}}
	case "popular":
		sort = bson.D{{Key: "uses", Value: -1}}
	}

	opts := options.Find().
		SetSort(sort).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := db.CustomFoodsCollection.Find(ctx, query, opts)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer cursor.Close(ctx)

	var foods []models.CustomFood
	if err = cursor.All(ctx, &foods); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if len(foods) == 0 {
		foods = []models.CustomFood{}
	}

	json.NewEncoder(w).Encode(foods)
}

// Get one custom food
func GetCustomFood(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, _ := primitive.ObjectIDFromHex(ps.ByName("id"))
	var food models.CustomFood
	err := db.CustomFoodsCollection.FindOne(context.TODO(), bson.M{"_id": id}).Decode(&food)
	if err != nil {
		http.Error(w, "Custom food not found", http.StatusNotFound)
		return
	}

	json.NewEncoder(w).Encode(food)
}

// Create
func CreateCustomFood(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var food models.CustomFood
	if err := json.NewDecoder(r.Body).Decode(&food); err != nil {
		http.Error(w, "Invalid body", http.StatusBadRequest)
		return
	}
	if food.Name == "" || food.BaseQuantity <= 0 || food.BaseUnit == "" {
		http.Error(w, "name, base_quantity and base_unit are required", http.StatusBadRequest)
		return
	}

	food.ID = primitive.NilObjectID
	food.UserID = utils.GetUserIDFromContext(r.Context())
	food.CreatedAt = time.Now().Unix()
	food.Uses = 0

	result, err := db.CustomFoodsCollection.InsertOne(context.TODO(), food)
	if err != nil {
		http.Error(w, "DB insert failed", http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(result)
}

// Update
func UpdateCustomFood(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, _ := primitive.ObjectIDFromHex(ps.ByName("id"))

	var food models.CustomFood
	if err := json.NewDecoder(r.Body).Decode(&food); err != nil {
		http.Error(w, "Invalid body", http.StatusBadRequest)
		return
	}

	updates := bson.M{
		"name":  food.Name,
		"brand": food.Brand,
		"tags":  food.Tags,
	}
	if food.BaseQuantity > 0 {
		updates["baseQuantity"] = food.BaseQuantity
	}
	if food.BaseUnit != "" {
		updates["baseUnit"] = food.BaseUnit
	}
	if food.Nutrients != nil {
		updates["nutrients"] = food.Nutrients
	}

	_, err := db.CustomFoodsCollection.UpdateOne(
		context.TODO(),
		bson.M{"_id": id},
		bson.M{"$set": updates},
	)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Write([]byte(`{"status":"updated"}`))
}

// Delete
func DeleteCustomFood(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, _ := primitive.ObjectIDFromHex(ps.ByName("id"))
	_, err := db.CustomFoodsCollection.DeleteOne(context.TODO(), bson.M{"_id": id})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Write([]byte(`{"status":"deleted"}`))
}

func GetCustomFoodTags(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx := context.TODO()

	// Use MongoDB aggregation to extract unique tags
	pipeline := mongo.Pipeline{
		{{Key: "$unwind", Value: "$tags"}},
		{{Key: "$group", Value: bson.M{
			"_id":  nil,
			"tags": bson.M{"$addToSet": "$tags"},
		}}},
	}

	cursor, err := db.CustomFoodsCollection.Aggregate(ctx, pipeline)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer cursor.Close(ctx)

	var result []struct {
		Tags []string `bson:"tags"`
	}
	if err := cursor.All(ctx, &result); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if len(result) > 0 {
		json.NewEncoder(w).Encode(result[0].Tags)
	} else {
		json.NewEncoder(w).Encode([]string{})
	}
}

// Lookup loads a custom food and bumps its usage counter. Used when a saved
// food is attached to a pending message.
func Lookup(ctx context.Context, hexID string) (*models.CustomFood, error) {
	id, err := primitive.ObjectIDFromHex(hexID)
	if err != nil {
		return nil, err
	}
	var food models.CustomFood
	if err := db.CustomFoodsCollection.FindOne(ctx, bson.M{"_id": id}).Decode(&food); err != nil {
		return nil, err
	}
	_, _ = db.CustomFoodsCollection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$inc": bson.M{"uses": 1}})
	return &food, nil
}
