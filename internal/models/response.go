// internal/models/response.go
package models

// AskRequest is the inbound payload at the routing boundary.
type AskRequest struct {
	Question   string         `json:"question"`
	UserID     string         `json:"userId,omitempty"`
	UseHistory bool           `json:"useHistory,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// AskResponse is what the caller receives: a natural-language answer, plus
// raw records when a data-access agent produced them.
type AskResponse struct {
	Answer  string           `json:"answer"`
	Results []map[string]any `json:"results,omitempty"`
}

// AgentResponse is the normalized reply every dispatch client returns.
type AgentResponse struct {
	Success     bool             `json:"success"`
	SQL         string           `json:"sql,omitempty"`
	Explanation string           `json:"explanation,omitempty"`
	Data        []map[string]any `json:"data,omitempty"`
	Error       string           `json:"error,omitempty"`
	Metadata    map[string]any   `json:"metadata,omitempty"`
}
