package approuters

import (
	"github.com/gin-gonic/gin"

	"LegalWise/internal/configuration"
	"LegalWise/internal/handler"
)

func ChatRouters(router *gin.Engine, container *configuration.Container) {
	chatRoute := router.Group("/lw/api/chat")
	chatRoute.Use(handler.AuthMiddleware(container.Verifier))
	{
		chatRoute.GET("/conversations", container.ChatHandler.ListConversations)
		chatRoute.POST("/conversations", container.ChatHandler.EnsureConversation)
		chatRoute.GET("/conversations/:conversationId/messages", container.ChatHandler.ListMessages)
		chatRoute.POST("/conversations/:conversationId/read", container.ChatHandler.MarkAsRead)
		chatRoute.POST("/messages", container.ChatHandler.SendMessage)
		chatRoute.GET("/lawyers", container.ParticipantHandler.ListLawyers)
		chatRoute.PUT("/participants", container.ParticipantHandler.SyncParticipant)
	}
}
