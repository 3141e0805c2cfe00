package routes

import (
	"nutrichat/chats"
	"nutrichat/refdata"
	"nutrichat/suggestions"
	"nutrichat/userfoods"

	"github.com/julienschmidt/httprouter"
)

func AddSessionRoutes(router *httprouter.Router) {
	router.POST("/api/v1/sessions", chats.StartSession)
	router.DELETE("/api/v1/sessions/:sessionid", chats.EndSession)

	router.POST("/api/v1/sessions/:sessionid/messages", chats.SendMessage)
	router.GET("/api/v1/sessions/:sessionid/messages", chats.GetHistory)
	router.POST("/api/v1/sessions/:sessionid/stream/cancel", chats.StopStream)
}

func AddSelectionRoutes(router *httprouter.Router) {
	router.POST("/api/v1/sessions/:sessionid/messages/:msgid/confirm", chats.ConfirmSelection)
	router.POST("/api/v1/sessions/:sessionid/messages/:msgid/cancel", chats.CancelSelection)
	router.POST("/api/v1/sessions/:sessionid/undo", chats.UndoRemoval)

	router.POST("/api/v1/sessions/:sessionid/messages/:msgid/match", chats.PickMatch)
	router.POST("/api/v1/sessions/:sessionid/messages/:msgid/serving", chats.PickServing)
	router.PUT("/api/v1/sessions/:sessionid/messages/:msgid/quantity", chats.SetQuantity)
	router.POST("/api/v1/sessions/:sessionid/messages/:msgid/expand", chats.ToggleExpansion)

	router.POST("/api/v1/sessions/:sessionid/messages/:msgid/foods", chats.AddUserFood)
	router.DELETE("/api/v1/sessions/:sessionid/messages/:msgid/foods/:foodid", chats.RemoveFood)
	router.DELETE("/api/v1/sessions/:sessionid/messages/:msgid/foods/:foodid/components/:compid", chats.RemoveComponent)
	router.PUT("/api/v1/sessions/:sessionid/messages/:msgid/phrase", chats.EditPhrase)
	router.POST("/api/v1/sessions/:sessionid/messages/:msgid/phrase/preview", chats.PreviewPhrase)

	router.GET("/api/v1/sessions/:sessionid/alternatives", chats.GetAlternatives)
}

func AddWebSocketRoutes(router *httprouter.Router) {
	router.GET("/ws/selection/:sessionid", chats.SelectionWebSocket)
}

func AddUserFoodRoutes(router *httprouter.Router) {
	router.GET("/api/v1/userfoods/tags", userfoods.GetCustomFoodTags)
	router.GET("/api/v1/userfoods", userfoods.GetCustomFoods)
	router.GET("/api/v1/userfoods/food/:id", userfoods.GetCustomFood)
	router.POST("/api/v1/userfoods", userfoods.CreateCustomFood)
	router.PUT("/api/v1/userfoods/food/:id", userfoods.UpdateCustomFood)
	router.DELETE("/api/v1/userfoods/food/:id", userfoods.DeleteCustomFood)
}

func AddSuggestionsRoutes(router *httprouter.Router) {
	router.GET("/api/v1/suggestions/foods", suggestions.SuggestFoods)
	router.GET("/api/v1/suggestions/phrases", suggestions.SuggestPhrases)
}

func AddRefDataRoutes(router *httprouter.Router) {
	router.GET("/api/v1/refdata/:apiRoute", refdata.GetReferenceContent)
}
