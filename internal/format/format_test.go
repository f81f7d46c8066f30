package format

import (
	"testing"

	"nexus/internal/model"
)

func TestRender_Minimal(t *testing.T) {
	elements := []model.Element{{Role: model.RoleButton, Name: "OK"}}
	got, err := Render(elements, ModeMinimal)
	if err != nil {
		t.Fatal(err)
	}
	if got != "Button OK" {
		t.Fatalf("got %q", got)
	}
}

func TestRender_JSONRoundTripsThroughEncodingJSON(t *testing.T) {
	elements := []model.Element{{Role: model.RoleEdit, Name: "Search", Bounds: model.Rect{X: 1, Y: 2, W: 3, H: 4}}}
	got, err := Render(elements, ModeJSON)
	if err != nil {
		t.Fatal(err)
	}
	if got == "" {
		t.Fatal("expected non-empty json")
	}
}

func TestCompact_BijectiveRoundTrip(t *testing.T) {
	cases := []model.Element{
		{Role: model.RoleButton, Name: "Submit", Bounds: model.Rect{X: 10, Y: 20, W: 40, H: 15}, Focused: model.TriTrue()},
		{Role: model.RoleEdit, Name: "Username", Bounds: model.Rect{X: 0, Y: 0, W: 100, H: 10}, Enabled: model.TriFalse(), Value: "alice"},
		{Role: model.RoleDialog, Name: "Settings", Bounds: model.Rect{X: -5, Y: -10, W: 300, H: 200}},
	}

	for _, e := range cases {
		t.Run(e.Name, func(t *testing.T) {
			line, err := Render([]model.Element{e}, ModeCompact)
			if err != nil {
				t.Fatal(err)
			}
			parsed, err := Parse(line)
			if err != nil {
				t.Fatalf("Parse(%q): %v", line, err)
			}
			if parsed.Role != e.Role {
				t.Errorf("Role = %v, want %v", parsed.Role, e.Role)
			}
			if parsed.Name != e.Name {
				t.Errorf("Name = %q, want %q", parsed.Name, e.Name)
			}
			if parsed.Bounds != e.Bounds {
				t.Errorf("Bounds = %+v, want %+v", parsed.Bounds, e.Bounds)
			}
			if parsed.Focused != (e.Focused.Known && e.Focused.Value) {
				t.Errorf("Focused = %v", parsed.Focused)
			}
			if parsed.Disabled != (e.Enabled.Known && !e.Enabled.Value) {
				t.Errorf("Disabled = %v", parsed.Disabled)
			}
			if parsed.Value != e.Value {
				t.Errorf("Value = %q, want %q", parsed.Value, e.Value)
			}
		})
	}
}

func TestParse_RejectsMalformedLine(t *testing.T) {
	if _, err := Parse("not a compact line"); err == nil {
		t.Fatal("expected error")
	}
}
