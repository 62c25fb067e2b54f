package httpapi

import (
	"time"

	"github.com/powermem-ai/powermem/internal/reconcile"
	"github.com/powermem-ai/powermem/pkg/memory"
	"github.com/powermem-ai/powermem/pkg/types"
)

// identityDTO is the `identity` object repeated across every request body
// (spec.md §6): at least one of its fields must be set unless scope is PUBLIC.
type identityDTO struct {
	UserID  string `json:"user_id,omitempty"`
	AgentID string `json:"agent_id,omitempty"`
	RunID   string `json:"run_id,omitempty"`
	ActorID string `json:"actor_id,omitempty"`
}

func (i identityDTO) owner() memory.Owner {
	return memory.Owner{UserID: i.UserID, AgentID: i.AgentID, RunID: i.RunID, ActorID: i.ActorID}
}

// messageDTO mirrors [types.Message] for wire transport.
type messageDTO struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

func toMessages(msgs []messageDTO) []types.Message {
	out := make([]types.Message, len(msgs))
	for i, m := range msgs {
		out[i] = types.Message{Role: m.Role, Content: m.Content, Name: m.Name}
	}
	return out
}

// addRequestDTO is the body of POST /memories.
type addRequestDTO struct {
	Messages   []messageDTO   `json:"messages,omitempty"`
	Content    string         `json:"content,omitempty"`
	Identity   identityDTO    `json:"identity"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Scope      string         `json:"scope,omitempty"`
	MemoryType string         `json:"memory_type,omitempty"`
	// Infer defaults to true when omitted (spec.md §4.7 add() signature).
	Infer *bool `json:"infer,omitempty"`
}

func (r addRequestDTO) infer() bool {
	if r.Infer == nil {
		return true
	}
	return *r.Infer
}

// eventDTO mirrors one [reconcile.EventSummary] for wire transport.
type eventDTO struct {
	ID           int64  `json:"id"`
	Event        string `json:"event"`
	MemoryText   string `json:"memory_text,omitempty"`
	PreviousText string `json:"previous_text,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

func toEventDTOs(events []reconcile.EventSummary) []eventDTO {
	out := make([]eventDTO, len(events))
	for i, e := range events {
		out[i] = eventDTO{ID: e.ID, Event: string(e.Event), MemoryText: e.MemoryText, PreviousText: e.PreviousText, Reason: e.Reason}
	}
	return out
}

// addResponseDTO is the response body for POST /memories and each element of
// a POST /memories/batch response.
type addResponseDTO struct {
	Events  []eventDTO `json:"events"`
	Warning string     `json:"warning,omitempty"`
}

// batchAddRequestDTO is the body of POST /memories/batch.
type batchAddRequestDTO struct {
	Items []addRequestDTO `json:"items"`
}

// batchAddResponseDTO is the response body of POST /memories/batch.
type batchAddResponseDTO struct {
	Results []batchItemResultDTO `json:"results"`
}

type batchItemResultDTO struct {
	Index  int            `json:"index"`
	Result *addResponseDTO `json:"result,omitempty"`
	Error  *errorBody      `json:"error,omitempty"`
}

// recordDTO mirrors a [memory.MemoryRecord] on the wire. Embeddings are
// never included (spec.md §4.7: "never return raw embeddings").
type recordDTO struct {
	ID         int64          `json:"id"`
	Content    string         `json:"content"`
	Hash       string         `json:"hash"`
	UserID     string         `json:"user_id,omitempty"`
	AgentID    string         `json:"agent_id,omitempty"`
	RunID      string         `json:"run_id,omitempty"`
	ActorID    string         `json:"actor_id,omitempty"`
	Scope      string         `json:"scope"`
	Category   string         `json:"category,omitempty"`
	MemoryType string         `json:"memory_type,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	Score      float64        `json:"score,omitempty"`
}

func toRecordDTO(r *memory.MemoryRecord) recordDTO {
	return recordDTO{
		ID: r.ID, Content: r.Content, Hash: r.Hash,
		UserID: r.Owner.UserID, AgentID: r.Owner.AgentID, RunID: r.Owner.RunID, ActorID: r.Owner.ActorID,
		Scope: string(r.Scope), Category: r.Category, MemoryType: r.MemoryType,
		Metadata: r.Metadata, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt, Score: r.Score,
	}
}

func toRecordDTOs(records []*memory.MemoryRecord) []recordDTO {
	out := make([]recordDTO, len(records))
	for i, r := range records {
		out[i] = toRecordDTO(r)
	}
	return out
}

// searchRequestDTO is the body of POST /memories/search.
type searchRequestDTO struct {
	Query     string        `json:"query"`
	Identity  identityDTO   `json:"identity"`
	Filters   *memory.Filter `json:"filters,omitempty"`
	Limit     int           `json:"limit,omitempty"`
	Threshold float64       `json:"threshold,omitempty"`
	Rerank    bool          `json:"rerank,omitempty"`
}

// updateRequestDTO is the body of PUT /memories/{id}.
type updateRequestDTO struct {
	Content  string         `json:"content,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Identity identityDTO    `json:"identity"`
}

// statusResponseDTO is the response body for GET /system/status.
type statusResponseDTO struct {
	Status      string           `json:"status"`
	Statistics  memory.Statistics `json:"statistics"`
	Capabilities capabilitiesDTO  `json:"capabilities"`
}

type capabilitiesDTO struct {
	SupportsSparse       bool `json:"supports_sparse"`
	SupportsNativeHybrid bool `json:"supports_native_hybrid"`
}

// errorBody is the JSON envelope every non-2xx response carries
// (spec.md §7: "the HTTP layer maps each error kind to a code+message JSON").
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
