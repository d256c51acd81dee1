package automation

import (
	"testing"
	"time"
)

func TestInterpolateRecordFields(t *testing.T) {
	ctx := taskCtx(map[string]any{
		"title":    "Ship the Widget",
		"priority": 5.0,
		"tags":     []any{"urgent", "backend"},
	})

	cases := []struct {
		template string
		want     string
	}{
		{"Task: {{title}}", "Task: Ship the Widget"},
		{"P{{priority}}", "P5"},
		{"Tags: {{tags}}", "Tags: urgent, backend"},
		{"{{ title }}", "Ship the Widget"}, // whitespace inside braces is ignored
		{"plain text", "plain text"},
		{"", ""},
	}

	for _, tc := range cases {
		if got := Interpolate(tc.template, ctx); got != tc.want {
			t.Errorf("Interpolate(%q) = %q, want %q", tc.template, got, tc.want)
		}
	}
}

func TestInterpolateBuiltins(t *testing.T) {
	firedAt := time.Date(2026, 3, 15, 9, 30, 0, 0, time.UTC)
	ctx := NewTriggerContext("tasks", "rec42", map[string]any{}, firedAt, "alice")

	cases := []struct {
		template string
		want     string
	}{
		{"{{record_id}}", "rec42"},
		{"{{table_id}}", "tasks"},
		{"{{NOW()}}", "2026-03-15T09:30:00Z"},
		{"{{USER()}}", "alice"},
	}

	for _, tc := range cases {
		if got := Interpolate(tc.template, ctx); got != tc.want {
			t.Errorf("Interpolate(%q) = %q, want %q", tc.template, got, tc.want)
		}
	}
}

// A record field shadows the builtin of the same name.
func TestInterpolateRecordFieldWins(t *testing.T) {
	ctx := taskCtx(map[string]any{"record_id": "from-record"})

	if got := Interpolate("{{record_id}}", ctx); got != "from-record" {
		t.Errorf("Interpolate() = %q, want from-record", got)
	}
}

func TestInterpolateActionResults(t *testing.T) {
	ctx := taskCtx(map[string]any{})
	ctx.SetActionResult("act-1", 0, "rec_new_99")

	if got := Interpolate("created {{act-1}}", ctx); got != "created rec_new_99" {
		t.Errorf("by-ID lookup = %q", got)
	}
	if got := Interpolate("created {{action_1}}", ctx); got != "created rec_new_99" {
		t.Errorf("positional lookup = %q", got)
	}
}

func TestInterpolatePayloadFields(t *testing.T) {
	ctx := taskCtx(map[string]any{"title": "Widget"})
	ctx.Payload = map[string]any{
		"order_id": "ord-42",
		"title":    "from-payload",
	}

	if got := Interpolate("order={{order_id}}", ctx); got != "order=ord-42" {
		t.Errorf("payload token = %q, want order=ord-42", got)
	}
	// A record field shadows a payload field of the same name.
	if got := Interpolate("{{title}}", ctx); got != "Widget" {
		t.Errorf("record field should win over payload, got %q", got)
	}
}

// Resolved values never re-enter token resolution: running the output through
// Interpolate again must be a no-op whether tokens bound or not.
func TestInterpolateIdempotent(t *testing.T) {
	ctx := taskCtx(map[string]any{"title": "Widget", "pct": "100%"})
	ctx.SetActionResult("act-1", 0, "rec_new_99")
	ctx.Payload = map[string]any{"order_id": "ord-42"}

	templates := []string{
		"{{title}} {{pct}} {{order_id}} {{act-1}}",
		"{{title}} and {{missing}}",
		"{{NOW()}} by {{USER()}}",
	}
	for _, tmpl := range templates {
		got := Interpolate(tmpl, ctx)
		if again := Interpolate(got, ctx); again != got {
			t.Errorf("Interpolate(%q) not idempotent: %q -> %q", tmpl, got, again)
		}
	}
}

func TestInterpolateUnknownTokenPreserved(t *testing.T) {
	ctx := taskCtx(map[string]any{})

	got := Interpolate("value: {{nonexistent}}", ctx)
	if got != "value: {{nonexistent}}" {
		t.Errorf("unknown token should survive literally, got %q", got)
	}

	// Re-interpolating the output must not change it further.
	if again := Interpolate(got, ctx); again != got {
		t.Errorf("interpolation not idempotent: %q -> %q", got, again)
	}
}

func TestInterpolateNilContext(t *testing.T) {
	if got := Interpolate("{{title}}", nil); got != "{{title}}" {
		t.Errorf("nil context should leave template untouched, got %q", got)
	}
}

func TestInterpolateActionDoesNotMutate(t *testing.T) {
	ctx := taskCtx(map[string]any{"title": "Widget"})
	action := &ActionConfig{
		ID:   "a1",
		Type: ActionSendEmail,
		SendEmail: &SendEmailParams{
			To:      "ops@example.com",
			Subject: "New: {{title}}",
			Body:    "See {{record_id}}",
		},
	}

	out := interpolateAction(action, ctx)
	if out.SendEmail.Subject != "New: Widget" {
		t.Errorf("Subject = %q", out.SendEmail.Subject)
	}
	if out.SendEmail.Body != "See rec1" {
		t.Errorf("Body = %q", out.SendEmail.Body)
	}
	if action.SendEmail.Subject != "New: {{title}}" {
		t.Error("original action config was mutated")
	}
}

// Script source is never textually interpolated; scripts read the context
// through the sandbox.
func TestInterpolateActionLeavesScriptCode(t *testing.T) {
	ctx := taskCtx(map[string]any{"title": "Widget"})
	action := &ActionConfig{
		ID:        "a1",
		Type:      ActionRunScript,
		RunScript: &RunScriptParams{Code: `record.title == "{{title}}"`},
	}

	out := interpolateAction(action, ctx)
	if out.RunScript.Code != `record.title == "{{title}}"` {
		t.Errorf("script code was interpolated: %q", out.RunScript.Code)
	}
}
