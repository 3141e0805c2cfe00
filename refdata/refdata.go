package refdata

import (
	"encoding/json"
	"net/http"
	"strings"

	"nutrichat/scaling"

	"github.com/julienschmidt/httprouter"
)

// GetReferenceContent handles all of the static reference endpoints under
// /refdata/:apiRoute
func GetReferenceContent(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	apiRoute := strings.ToLower(ps.ByName("apiRoute"))

	var (
		data interface{}
		err  error
	)

	switch apiRoute {
	case "nutrients":
		data, err = getNutrientCatalog()
	case "units":
		data, err = getServingUnits()
	case "macros":
		data, err = getPreviewMacros()
	case "daily-values":
		data, err = getDailyValues()
	default:
		http.Error(w, "Invalid API route", http.StatusNotFound)
		return
	}

	if err != nil {
		http.Error(w, "Failed to fetch data: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

// getNutrientCatalog returns the nutrients the tracker understands
func getNutrientCatalog() ([]map[string]string, error) {
	return []map[string]string{
		{"key": scaling.KeyCalories, "label": "Calories", "unit": "kcal"},
		{"key": scaling.KeyProtein, "label": "Protein", "unit": "g"},
		{"key": scaling.KeyFat, "label": "Fat", "unit": "g"},
		{"key": scaling.KeyCarbohydrate, "label": "Carbohydrate", "unit": "g"},
		{"key": "fiber", "label": "Fiber", "unit": "g"},
		{"key": "sugar", "label": "Sugar", "unit": "g"},
		{"key": "sodium", "label": "Sodium", "unit": "mg"},
		{"key": "cholesterol", "label": "Cholesterol", "unit": "mg"},
		{"key": "saturated_fat", "label": "Saturated Fat", "unit": "g"},
		{"key": "potassium", "label": "Potassium", "unit": "mg"},
	}, nil
}

// getServingUnits returns the serving units the quantity picker offers
func getServingUnits() ([]string, error) {
	return []string{
		"gram",
		"ounce",
		"cup",
		"tablespoon",
		"teaspoon",
		"slice",
		"piece",
		"serving",
	}, nil
}

// getPreviewMacros returns the macro keys shown on collapsed rows
func getPreviewMacros() ([]string, error) {
	return scaling.PreviewMacros, nil
}

// getDailyValues returns standard reference daily intakes
func getDailyValues() (map[string]float64, error) {
	return map[string]float64{
		scaling.KeyCalories:     2000,
		scaling.KeyProtein:      50,
		scaling.KeyFat:          78,
		scaling.KeyCarbohydrate: 275,
		"fiber":                 28,
		"sodium":                2300,
	}, nil
}
