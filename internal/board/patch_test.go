package board

import (
	"encoding/json"
	"testing"
)

func TestPatchAbsentFields(t *testing.T) {
	var patch Patch
	if err := json.Unmarshal([]byte(`{}`), &patch); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !patch.Empty() {
		t.Errorf("expected empty patch, got %+v", patch)
	}
}

func TestPatchNullVersusValue(t *testing.T) {
	var patch Patch
	body := `{"assigneeId": null, "description": "", "position": 0}`
	if err := json.Unmarshal([]byte(body), &patch); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if !patch.AssigneeID.Set || !patch.AssigneeID.Null {
		t.Errorf("assigneeId should be explicit null, got %+v", patch.AssigneeID)
	}
	if !patch.Description.Set || patch.Description.Null || patch.Description.Value != "" {
		t.Errorf("description should be empty-string value, got %+v", patch.Description)
	}
	if !patch.Position.Set || patch.Position.Null || patch.Position.Value != 0 {
		t.Errorf("position 0 should be a real value, got %+v", patch.Position)
	}
	if patch.Title.Set {
		t.Error("title should be absent")
	}
}

func TestPatchDueDateParsesRFC3339(t *testing.T) {
	var patch Patch
	if err := json.Unmarshal([]byte(`{"dueDate":"2026-05-01T10:00:00Z"}`), &patch); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if patch.DueDate.Value.IsZero() {
		t.Error("expected parsed due date")
	}
}

func TestPatchRejectsMalformedDueDate(t *testing.T) {
	var patch Patch
	if err := json.Unmarshal([]byte(`{"dueDate":"yesterday"}`), &patch); err == nil {
		t.Error("expected error for malformed due date")
	}
}

func TestOptionalPtr(t *testing.T) {
	if p := (Optional[string]{}).Ptr(); p != nil {
		t.Errorf("absent Ptr should be nil, got %v", *p)
	}
	if p := (Optional[string]{Set: true, Null: true}).Ptr(); p != nil {
		t.Errorf("null Ptr should be nil, got %v", *p)
	}
	opt := Optional[string]{Set: true, Value: "x"}
	if p := opt.Ptr(); p == nil || *p != "x" {
		t.Errorf("expected pointer to x, got %v", p)
	}
}
