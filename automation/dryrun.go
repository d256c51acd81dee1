package automation

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Simulated collaborators back the dry-run tester: they accept every call,
// record what would have happened, and touch nothing external.

type simulatedDataStore struct {
	seq atomic.Int64
}

func newSimulatedDataStore() *simulatedDataStore {
	return &simulatedDataStore{}
}

func (s *simulatedDataStore) GetRecord(_ context.Context, tableID, recordID string) (map[string]any, error) {
	return map[string]any{}, nil
}

func (s *simulatedDataStore) UpdateRecord(_ context.Context, _, recordID string, _ map[string]string) (string, error) {
	return recordID, nil
}

func (s *simulatedDataStore) CreateRecord(_ context.Context, _ string, _ map[string]string) (string, error) {
	return fmt.Sprintf("rec_dryrun_%d", s.seq.Add(1)), nil
}

func (s *simulatedDataStore) DeleteRecord(_ context.Context, _, _ string) error {
	return nil
}

type simulatedEmail struct{}

func (simulatedEmail) SendEmail(_ context.Context, _ EmailMessage) error {
	return nil
}

type simulatedWebhooks struct{}

func (simulatedWebhooks) CallWebhook(_ context.Context, req WebhookRequest) (*WebhookResponse, error) {
	return &WebhookResponse{
		Status: 200,
		Body:   fmt.Sprintf("(simulated %s %s)", req.Method, req.URL),
	}, nil
}

type simulatedScripts struct{}

func (simulatedScripts) Run(_ context.Context, _ string, _ map[string]any) (any, error) {
	return "(script skipped in test mode)", nil
}
