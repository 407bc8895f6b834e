package models

import (
	"fmt"
	"time"
)

// ServerStatus tracks the lifecycle of a managed server container.
type ServerStatus string

const (
	ServerCreating ServerStatus = "creating"
	ServerRunning  ServerStatus = "running"
	ServerStopped  ServerStatus = "stopped"
	ServerError    ServerStatus = "error"
	ServerRemoving ServerStatus = "removing"
)

// Server is a deployed Minecraft server instance. The container runtime
// itself is an external collaborator; Craftdeck tracks identity, network
// settings and the RCON endpoint used for hot-applying configuration.
type Server struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	ModpackID      int    `json:"modpack_id"`
	ModpackVersion string `json:"modpack_version"`

	// ContainerID is empty until the container has been created.
	ContainerID string `json:"container_id,omitempty"`

	Status ServerStatus `json:"status"`

	Port     int `json:"port"`
	RconPort int `json:"rcon_port"`

	// RconPassword is redacted from logs by the observability layer.
	RconPassword string `json:"-"`

	// TemplateID references the template the server was seeded from, if any.
	TemplateID string `json:"template_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks server fields ahead of persistence.
func (s *Server) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("server: name is required")
	}
	if s.ModpackID <= 0 {
		return fmt.Errorf("server %s: modpack id must be positive", s.Name)
	}
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("server %s: invalid port %d", s.Name, s.Port)
	}
	if s.RconPort <= 0 || s.RconPort > 65535 {
		return fmt.Errorf("server %s: invalid rcon port %d", s.Name, s.RconPort)
	}
	if s.Port == s.RconPort {
		return fmt.Errorf("server %s: game and rcon ports must differ", s.Name)
	}
	return nil
}

// IsRunning reports whether the server's container is live.
func (s *Server) IsRunning() bool {
	return s.Status == ServerRunning
}
