package messenger

import (
	"sort"
	"sync"

	"github.com/compliancefabric/coordinator/internal/errs"
)

// TypeSchema describes a registered message type: which fields a payload
// is expected to carry and whether instances require a recipient.
type TypeSchema struct {
	MessageType     string
	RequiredFields  []string
	RequiresTarget  bool
	DefaultPriority string
}

// Registry is the closed set of message types the messenger accepts,
// mirroring the original communicator's compile-time type validation
// with a runtime-registrable equivalent.
type Registry struct {
	mu     sync.RWMutex
	byType map[string]TypeSchema
}

// NewRegistry seeds the registry with the message types the coordination
// fabric exchanges day to day: review requests, consensus lifecycle
// events, and critical-item broadcasts. Callers may register more.
func NewRegistry() *Registry {
	r := &Registry{byType: make(map[string]TypeSchema)}
	for _, s := range []TypeSchema{
		{MessageType: "REVIEW_REQUEST", RequiredFields: []string{"item_id"}, RequiresTarget: true, DefaultPriority: "HIGH"},
		{MessageType: "REVIEW_RESPONSE", RequiredFields: []string{"item_id", "decision"}, RequiresTarget: true, DefaultPriority: "NORMAL"},
		{MessageType: "CONSENSUS_ROUND_OPENED", RequiredFields: []string{"round_id", "topic"}, RequiresTarget: false, DefaultPriority: "HIGH"},
		{MessageType: "CONSENSUS_ROUND_CLOSED", RequiredFields: []string{"round_id", "outcome"}, RequiresTarget: false, DefaultPriority: "NORMAL"},
		{MessageType: "CRITICAL_ITEM", RequiredFields: []string{"item_id", "title"}, RequiresTarget: false, DefaultPriority: "URGENT"},
		{MessageType: "ANNOUNCE", RequiredFields: nil, RequiresTarget: false, DefaultPriority: "NORMAL"},
	} {
		r.byType[s.MessageType] = s
	}
	return r
}

// Register adds or replaces a message type's schema.
func (r *Registry) Register(s TypeSchema) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byType[s.MessageType] = s
}

// Validate checks that messageType is known and that every required field
// is present in fields.
func (r *Registry) Validate(messageType string, fields map[string]interface{}) error {
	r.mu.RLock()
	schema, ok := r.byType[messageType]
	r.mu.RUnlock()
	if !ok {
		return errs.NewValidationError("unknown message type: " + messageType)
	}
	for _, f := range schema.RequiredFields {
		if _, present := fields[f]; !present {
			return errs.NewValidationError("message type " + messageType + " missing required field " + f)
		}
	}
	return nil
}

// Schema returns the schema for messageType, or false if unregistered.
func (r *Registry) Schema(messageType string) (TypeSchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byType[messageType]
	return s, ok
}

// Types lists every registered message type, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byType))
	for t := range r.byType {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
