package hub

import (
	"time"

	"LegalWise/internal/model"
)

// Stats is the monitoring snapshot of the push layer.
type Stats struct {
	Status          string         `json:"status"`
	TotalConnected  int            `json:"totalConnected"`
	ConnectedByRole map[string]int `json:"connectedByRole"`
	FramesInbound   int64          `json:"framesInbound"`
	FramesOutbound  int64          `json:"framesOutbound"`
	GeneratedAt     time.Time      `json:"generatedAt"`
}

// MonitorService gathers hub statistics for the monitoring endpoint.
type MonitorService struct {
	hub *Hub
}

func NewMonitorService(hub *Hub) *MonitorService {
	return &MonitorService{hub: hub}
}

// GetStats walks the client registry and returns the current snapshot.
func (ms *MonitorService) GetStats() Stats {
	stats := Stats{
		ConnectedByRole: map[string]int{
			model.RoleClient: 0,
			model.RoleLawyer: 0,
		},
		FramesInbound:  ms.hub.framesIn.Load(),
		FramesOutbound: ms.hub.framesOut.Load(),
		GeneratedAt:    time.Now().UTC(),
	}

	for _, shard := range ms.hub.shards {
		shard.RLock()
		for _, client := range shard.users {
			stats.TotalConnected++
			stats.ConnectedByRole[client.role]++
		}
		shard.RUnlock()
	}

	stats.Status = "healthy"
	if stats.TotalConnected == 0 {
		stats.Status = "idle"
	}
	return stats
}
