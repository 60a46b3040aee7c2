package messenger

import "testing"

func TestRegistry_ValidateRejectsUnknownType(t *testing.T) {
	r := NewRegistry()
	if err := r.Validate("NOT_A_TYPE", nil); err == nil {
		t.Fatal("expected error for unknown message type")
	}
}

func TestRegistry_ValidateRejectsMissingRequiredField(t *testing.T) {
	r := NewRegistry()
	err := r.Validate("REVIEW_REQUEST", map[string]interface{}{})
	if err == nil {
		t.Fatal("expected error for missing required field")
	}
}

func TestRegistry_ValidateAcceptsCompletePayload(t *testing.T) {
	r := NewRegistry()
	err := r.Validate("REVIEW_REQUEST", map[string]interface{}{"item_id": "abc"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRegistry_RegisterAddsCustomType(t *testing.T) {
	r := NewRegistry()
	r.Register(TypeSchema{MessageType: "CUSTOM", RequiredFields: []string{"x"}})
	if err := r.Validate("CUSTOM", map[string]interface{}{"x": 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := r.Schema("CUSTOM"); !ok {
		t.Fatal("expected registered schema to be retrievable")
	}
}

func TestRegistry_TypesIsSorted(t *testing.T) {
	r := NewRegistry()
	types := r.Types()
	for i := 1; i < len(types); i++ {
		if types[i-1] > types[i] {
			t.Fatalf("types not sorted: %v", types)
		}
	}
}
