package configuration

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"LegalWise/internal/auth"
	"LegalWise/internal/db"
	"LegalWise/internal/gateway"
	"LegalWise/internal/handler"
	"LegalWise/internal/hub"
	"LegalWise/internal/model"
	"LegalWise/internal/repo"
)

type Container struct {
	ChatHandler        handler.ChatHandler
	ParticipantHandler handler.ParticipantHandler
	MonitorHandler     handler.MonitorHandler
	Hub                *hub.Hub
	Gateway            *gateway.Gateway
	Verifier           auth.Verifier
	Config             Config
	Logger             *zap.Logger

	// private - for cleanup
	mongoClient *mongo.Database
}

func BuildContainer(configPath string) (*Container, error) {
	config, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	con, err := db.OpenConnection(config.ChatDatabase.Uri, config.ChatDatabase.Database)
	if err != nil {
		return nil, err
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}

	messages := db.NewRepository[model.Message](con, config.ChatDatabase.MessagesCollection)
	conversations := db.NewRepository[model.Conversation](con, config.ChatDatabase.ConversationsCollection)
	participants := db.NewRepository[model.Participant](con, config.ChatDatabase.ParticipantsCollection)

	store := repo.NewMongoStore(messages, conversations, logger)
	participantRepo := repo.NewParticipantRepository(participants)

	pushHub := hub.NewHub(logger)
	gw := gateway.New(store, pushHub, logger)
	pushHub.SetInboundHandler(gw.HandleInbound)

	verifier := auth.NewJWTVerifier(config.Auth.Secret)
	chatHandler := handler.NewChatHandler(gw, participantRepo, logger)
	participantHandler := handler.NewParticipantHandler(participantRepo, logger)
	monitorHandler := handler.NewMonitorHandler(hub.NewMonitorService(pushHub))

	return &Container{
		ChatHandler:        chatHandler,
		ParticipantHandler: participantHandler,
		MonitorHandler:     monitorHandler,
		Hub:                pushHub,
		Gateway:            gw,
		Verifier:           verifier,
		Config:             *config,
		Logger:             logger,
		mongoClient:        con,
	}, nil
}

// Close gracefully shuts down all connections.
func (c *Container) Close() error {
	if c.Hub != nil {
		c.Hub.Stop()
	}

	if c.Logger != nil {
		_ = c.Logger.Sync()
	}

	if c.mongoClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.mongoClient.Client().Disconnect(ctx); err != nil {
			return fmt.Errorf("failed to close MongoDB connection: %w", err)
		}
	}

	return nil
}
