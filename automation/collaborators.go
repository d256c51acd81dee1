package automation

import "context"

// DataStore is the external record-mutation collaborator. The engine does not
// retry or compensate; failures surface verbatim on the action's trace entry.
type DataStore interface {
	GetRecord(ctx context.Context, tableID, recordID string) (map[string]any, error)
	UpdateRecord(ctx context.Context, tableID, recordID string, fields map[string]string) (string, error)
	CreateRecord(ctx context.Context, tableID string, fields map[string]string) (string, error)
	DeleteRecord(ctx context.Context, tableID, recordID string) error
}

// EmailMessage is an outbound mail job. Address lists are comma-separated.
type EmailMessage struct {
	To      string `json:"to"`
	CC      string `json:"cc,omitempty"`
	BCC     string `json:"bcc,omitempty"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// EmailSender delivers mail. Retry policy, if any, lives in the transport.
type EmailSender interface {
	SendEmail(ctx context.Context, msg EmailMessage) error
}

// WebhookRequest is an outbound HTTP call issued by a call_webhook action.
type WebhookRequest struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

// WebhookResponse captures the remote side's reply for the trace and for
// interpolation by later actions.
type WebhookResponse struct {
	Status int    `json:"status"`
	Body   string `json:"body"`
}

// WebhookCaller issues outbound webhook calls. Timeouts, non-2xx handling and
// DNS failures are whatever the transport reports; the engine does not retry.
type WebhookCaller interface {
	CallWebhook(ctx context.Context, req WebhookRequest) (*WebhookResponse, error)
}

// ScriptRunner is the sandboxed evaluator behind run_script. The engine
// treats scripts as a black box with a success/failure plus output contract.
type ScriptRunner interface {
	Run(ctx context.Context, code string, input map[string]any) (any, error)
}

// SchemaProvider resolves table schemas for type-correct comparison and
// formula rendering.
type SchemaProvider interface {
	TableSchema(ctx context.Context, tableID string) (TableSchema, error)
}

// StaticSchemaProvider serves schemas from a fixed map. Used by tests and the
// dry-run tester.
type StaticSchemaProvider map[string]TableSchema

func (p StaticSchemaProvider) TableSchema(_ context.Context, tableID string) (TableSchema, error) {
	return p[tableID], nil
}
