package server

import (
	"context"

	"github.com/alexkroman/aai-agent/internal/orchestrator"
	"github.com/alexkroman/aai-agent/internal/session"
)

// AgentSession is the registry entry for one session id: the conversation
// agent behind a live connection. It is released on disconnect, so its
// lifetime matches the connection's; the TTL covers connections that idle
// without ever hanging up.
type AgentSession struct {
	id    string
	agent orchestrator.Agent
}

// NewAgentSession binds id to its conversation agent.
func NewAgentSession(id string, ag orchestrator.Agent) *AgentSession {
	return &AgentSession{id: id, agent: ag}
}

// ID returns the session id.
func (s *AgentSession) ID() string { return s.id }

// Agent returns the session's conversation agent.
func (s *AgentSession) Agent() orchestrator.Agent { return s.agent }

// Close aborts any in-flight agent work. The history needs no teardown.
func (s *AgentSession) Close(ctx context.Context) error {
	s.agent.Cancel()
	return nil
}

var _ session.Session = (*AgentSession)(nil)
