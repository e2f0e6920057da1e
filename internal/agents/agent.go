// internal/agents/agent.go
package agents

import (
	"context"

	"assistant-router/internal/models"
)

// Client is the contract every backend dispatch adapter implements: convert
// a routing decision (and, for data access, a structured query) into a
// backend request and normalize the reply.
type Client interface {
	Name() models.Agent
	Dispatch(ctx context.Context, analysis *models.AnalysisResult, query *models.StructuredQuery) (*models.AgentResponse, error)
}

// Registry maps agents to their dispatch clients.
type Registry struct {
	clients map[models.Agent]Client
}

func NewRegistry(clients ...Client) *Registry {
	m := make(map[models.Agent]Client, len(clients))
	for _, c := range clients {
		m[c.Name()] = c
	}
	return &Registry{clients: m}
}

// Lookup returns the client for an agent, or false when none is registered.
func (r *Registry) Lookup(agent models.Agent) (Client, bool) {
	c, ok := r.clients[agent]
	return c, ok
}
