package chats

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"

	"nutrichat/foodapi"
	"nutrichat/models"
	"nutrichat/search"
	"nutrichat/selection"
	"nutrichat/userfoods"
	"nutrichat/utils"
)

// API is the backend client shared by all sessions, set at startup.
var API *foodapi.Client

func sessionFromParams(ps httprouter.Params) *Session {
	return GetSession(ps.ByName("sessionid"))
}

func StartSession(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	// Reconnecting clients send their previous session id; hand it back if the
	// session is still alive instead of minting a fresh one.
	if sid := utils.GetSessionIDFromRequest(r); sid != "" {
		if s := GetSession(sid); s != nil {
			utils.RespondWithJSON(w, http.StatusOK, utils.M{"success": true, "session_id": s.ID, "resumed": true})
			return
		}
	}
	userID := utils.GetUserIDFromContext(r.Context())
	s := NewSession(userID, API)
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"success": true, "session_id": s.ID})
}

func EndSession(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	CloseSession(ps.ByName("sessionid"))
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"success": true})
}

func SendMessage(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s := sessionFromParams(ps)
	if s == nil {
		utils.RespondWithError(w, http.StatusNotFound, "session not found")
		return
	}
	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Text) == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "text is required")
		return
	}
	messageID, err := s.SendMessage(body.Text)
	if err != nil {
		if errors.Is(err, ErrStreamInFlight) {
			utils.RespondWithError(w, http.StatusConflict, "a meal is still being analyzed")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"success": true, "message_id": messageID})
}

func StopStream(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s := sessionFromParams(ps)
	if s == nil {
		utils.RespondWithError(w, http.StatusNotFound, "session not found")
		return
	}
	s.CancelStream()
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"success": true})
}

func GetHistory(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s := sessionFromParams(ps)
	if s == nil {
		utils.RespondWithError(w, http.StatusNotFound, "session not found")
		return
	}
	if err := s.LoadHistory(r.Context()); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"success": true, "messages": s.Ctrl.Messages()})
}

func ConfirmSelection(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s := sessionFromParams(ps)
	if s == nil {
		utils.RespondWithError(w, http.StatusNotFound, "session not found")
		return
	}
	if err := s.Confirm(r.Context(), ps.ByName("msgid")); err != nil {
		respondSelectionError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"success": true})
}

func CancelSelection(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s := sessionFromParams(ps)
	if s == nil {
		utils.RespondWithError(w, http.StatusNotFound, "session not found")
		return
	}
	if err := s.Cancel(ps.ByName("msgid")); err != nil {
		respondSelectionError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"success": true})
}

func UndoRemoval(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s := sessionFromParams(ps)
	if s == nil {
		utils.RespondWithError(w, http.StatusNotFound, "session not found")
		return
	}
	var body struct {
		ItemID string `json:"item_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ItemID == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "item_id is required")
		return
	}
	restored := s.Undo(body.ItemID)
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"success": true, "restored": restored})
}

func PickMatch(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s := sessionFromParams(ps)
	if s == nil {
		utils.RespondWithError(w, http.StatusNotFound, "session not found")
		return
	}
	var body struct {
		ComponentID    string `json:"component_id"`
		ProviderFoodID string `json:"provider_food_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := s.Ctrl.PickMatch(ps.ByName("msgid"), body.ComponentID, body.ProviderFoodID); err != nil {
		respondSelectionError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"success": true})
}

func PickServing(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s := sessionFromParams(ps)
	if s == nil {
		utils.RespondWithError(w, http.StatusNotFound, "session not found")
		return
	}
	var body struct {
		ComponentID    string `json:"component_id"`
		ProviderFoodID string `json:"provider_food_id"`
		ServingID      string `json:"serving_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := s.Ctrl.PickServing(ps.ByName("msgid"), body.ComponentID, body.ProviderFoodID, body.ServingID); err != nil {
		respondSelectionError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"success": true})
}

func SetQuantity(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s := sessionFromParams(ps)
	if s == nil {
		utils.RespondWithError(w, http.StatusNotFound, "session not found")
		return
	}
	var body struct {
		ComponentID string  `json:"component_id"`
		ServingID   string  `json:"serving_id"`
		Multiplier  float64 `json:"multiplier"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Multiplier <= 0 {
		utils.RespondWithError(w, http.StatusBadRequest, "a positive multiplier is required")
		return
	}
	s.Ctrl.SetQuantity(ps.ByName("msgid"), body.ComponentID, body.ServingID, body.Multiplier)
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"success": true})
}

func ToggleExpansion(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s := sessionFromParams(ps)
	if s == nil {
		utils.RespondWithError(w, http.StatusNotFound, "session not found")
		return
	}
	var body struct {
		ItemID string `json:"item_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ItemID == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "item_id is required")
		return
	}
	expanded := s.Ctrl.ToggleExpansion(ps.ByName("msgid"), body.ItemID)
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"success": true, "expanded": expanded})
}

func RemoveFood(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s := sessionFromParams(ps)
	if s == nil {
		utils.RespondWithError(w, http.StatusNotFound, "session not found")
		return
	}
	if err := s.RemoveFood(ps.ByName("msgid"), ps.ByName("foodid")); err != nil {
		respondSelectionError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"success": true})
}

func RemoveComponent(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s := sessionFromParams(ps)
	if s == nil {
		utils.RespondWithError(w, http.StatusNotFound, "session not found")
		return
	}
	if err := s.RemoveComponent(ps.ByName("msgid"), ps.ByName("foodid"), ps.ByName("compid")); err != nil {
		respondSelectionError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"success": true})
}

func EditPhrase(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s := sessionFromParams(ps)
	if s == nil {
		utils.RespondWithError(w, http.StatusNotFound, "session not found")
		return
	}
	var body struct {
		FoodID      string `json:"food_id"`
		ComponentID string `json:"component_id"`
		Phrase      string `json:"phrase"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if !search.Searchable(body.Phrase) {
		utils.RespondWithError(w, http.StatusBadRequest, "phrase is too short")
		return
	}
	if err := s.Ctrl.EditPhrase(r.Context(), ps.ByName("msgid"), body.FoodID, body.ComponentID, body.Phrase); err != nil {
		respondSelectionError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"success": true})
}

func PreviewPhrase(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s := sessionFromParams(ps)
	if s == nil {
		utils.RespondWithError(w, http.StatusNotFound, "session not found")
		return
	}
	var body struct {
		ComponentID string `json:"component_id"`
		Phrase      string `json:"phrase"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ComponentID == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if !search.Searchable(body.Phrase) {
		// Not enough typed yet; nothing is scheduled.
		utils.RespondWithJSON(w, http.StatusOK, utils.M{"success": true, "queued": false})
		return
	}
	s.PreviewPhrase(body.Phrase, body.ComponentID)
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"success": true, "queued": true})
}

func GetAlternatives(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s := sessionFromParams(ps)
	if s == nil {
		utils.RespondWithError(w, http.StatusNotFound, "session not found")
		return
	}
	originalPhrase := r.URL.Query().Get("phrase")
	componentID := r.URL.Query().Get("component_id")
	if originalPhrase == "" || componentID == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "phrase and component_id are required")
		return
	}
	alts, fetched, err := s.Alternatives(r.Context(), originalPhrase, componentID)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadGateway, err.Error())
		return
	}
	if !fetched {
		// Throttled duplicate trigger; the dropdown keeps what it has.
		utils.RespondWithJSON(w, http.StatusOK, utils.M{"success": true, "throttled": true})
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"success": true, "alternatives": alts})
}

func AddUserFood(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s := sessionFromParams(ps)
	if s == nil {
		utils.RespondWithError(w, http.StatusNotFound, "session not found")
		return
	}
	var body struct {
		CustomFoodID string       `json:"custom_food_id"`
		Food         *models.Food `json:"food"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid body")
		return
	}
	var food models.Food
	switch {
	case body.CustomFoodID != "":
		cf, err := userfoods.Lookup(r.Context(), body.CustomFoodID)
		if err != nil {
			utils.RespondWithError(w, http.StatusNotFound, "custom food not found")
			return
		}
		food = cf.AsFood()
	case body.Food != nil && len(body.Food.Components) > 0:
		food = *body.Food
	default:
		utils.RespondWithError(w, http.StatusBadRequest, "a food with at least one component is required")
		return
	}
	if err := s.Ctrl.AddUserFood(ps.ByName("msgid"), food); err != nil {
		respondSelectionError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"success": true})
}

func respondSelectionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, selection.ErrMessageNotFound):
		utils.RespondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, selection.ErrMessageNotPending), errors.Is(err, selection.ErrNothingToConfirm):
		utils.RespondWithError(w, http.StatusConflict, err.Error())
	default:
		utils.RespondWithError(w, http.StatusBadGateway, err.Error())
	}
}
