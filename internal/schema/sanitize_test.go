package schema

import "testing"

func TestSanitizeMetadataKeepsScalars(t *testing.T) {
	in := map[string]interface{}{
		"filename":    "report.pdf",
		"chunk_index": 3,
		"score":       0.75,
		"merged":      true,
	}
	out := SanitizeMetadata(in)
	if len(out) != 4 {
		t.Fatalf("expected 4 keys, got %d", len(out))
	}
	if out["filename"] != "report.pdf" {
		t.Errorf("filename = %v", out["filename"])
	}
	if out["chunk_index"] != 3 {
		t.Errorf("chunk_index = %v", out["chunk_index"])
	}
	if out["score"] != 0.75 {
		t.Errorf("score = %v", out["score"])
	}
	if out["merged"] != true {
		t.Errorf("merged = %v", out["merged"])
	}
}

func TestSanitizeMetadataDropsNil(t *testing.T) {
	out := SanitizeMetadata(map[string]interface{}{
		"keep": "yes",
		"drop": nil,
	})
	if _, ok := out["drop"]; ok {
		t.Error("nil value should be dropped")
	}
	if out["keep"] != "yes" {
		t.Errorf("keep = %v", out["keep"])
	}
}

func TestSanitizeMetadataStringifiesSlices(t *testing.T) {
	out := SanitizeMetadata(map[string]interface{}{
		"tags":  []string{"a", "b", "c"},
		"mixed": []interface{}{1, "two"},
	})
	if out["tags"] != "a,b,c" {
		t.Errorf("tags = %v", out["tags"])
	}
	if out["mixed"] != "1,two" {
		t.Errorf("mixed = %v", out["mixed"])
	}
}

func TestSanitizeMetadataEncodesMaps(t *testing.T) {
	out := SanitizeMetadata(map[string]interface{}{
		"nested": map[string]interface{}{"k": "v"},
	})
	if out["nested"] != `{"k":"v"}` {
		t.Errorf("nested = %v", out["nested"])
	}
}

func TestSanitizeMetadataNilInput(t *testing.T) {
	out := SanitizeMetadata(nil)
	if out == nil {
		t.Fatal("expected non-nil map")
	}
	if len(out) != 0 {
		t.Errorf("expected empty map, got %v", out)
	}
}

func TestSanitizeMetadataDoesNotMutateInput(t *testing.T) {
	in := map[string]interface{}{"tags": []string{"a"}}
	SanitizeMetadata(in)
	if _, ok := in["tags"].([]string); !ok {
		t.Error("input map was mutated")
	}
}
