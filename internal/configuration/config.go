package configuration

import (
	"encoding/json"
	"os"
)

type MongoConfig struct {
	Uri                     string `json:"uri"`
	Database                string `json:"database"`
	MessagesCollection      string `json:"messagesCollection"`
	ConversationsCollection string `json:"conversationsCollection"`
	ParticipantsCollection  string `json:"participantsCollection"`
}

type ServerConfig struct {
	AppPort     int    `json:"app_port"`
	SocketPort  int    `json:"socket_port"`
	SocketRoute string `json:"socket_route"`
}

type AuthConfig struct {
	Secret string `json:"secret"`
}

type ChatConfig struct {
	// Fixed delay before a dropped connection retries, in seconds. A flat
	// 3s by default; deployments worried about reconnection storms can
	// raise it.
	ReconnectDelaySeconds int `json:"reconnect_delay_seconds"`
}

type Config struct {
	ChatDatabase MongoConfig  `json:"mongo"`
	Server       ServerConfig `json:"server"`
	Auth         AuthConfig   `json:"auth"`
	Chat         ChatConfig   `json:"chat"`
}

func LoadConfig(configPath string) (*Config, error) {
	file, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	if config.Chat.ReconnectDelaySeconds <= 0 {
		config.Chat.ReconnectDelaySeconds = 3
	}
	if config.Server.SocketRoute == "" {
		config.Server.SocketRoute = "ws"
	}

	return &config, nil
}
