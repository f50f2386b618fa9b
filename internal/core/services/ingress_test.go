package services

import (
	"context"
	"errors"
	"testing"

	"github.com/custodia-labs/receiptflow/internal/core/domain"
	"github.com/custodia-labs/receiptflow/internal/core/ports/driven/mocks"
)

func TestIngressService_Submit(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr error
	}{
		{
			name: "valid image",
			body: `{"fileId":"f1","name":"r.jpg","mimeType":"image/jpeg","createdTime":"2025-09-21T10:00:00Z","folderId":"folder-1"}`,
		},
		{
			name: "valid pdf",
			body: `{"fileId":"f2","name":"r.pdf","mimeType":"application/pdf","createdTime":"2025-09-21T10:00:00Z","folderId":"folder-1"}`,
		},
		{
			name:    "not json",
			body:    `fileId=f1`,
			wantErr: domain.ErrInvalidInput,
		},
		{
			name:    "missing fileId",
			body:    `{"name":"r.jpg","mimeType":"image/jpeg","createdTime":"2025-09-21T10:00:00Z","folderId":"folder-1"}`,
			wantErr: domain.ErrInvalidInput,
		},
		{
			name:    "blank fileId",
			body:    `{"fileId":"   ","name":"r.jpg","mimeType":"image/jpeg","createdTime":"2025-09-21T10:00:00Z","folderId":"folder-1"}`,
			wantErr: domain.ErrInvalidInput,
		},
		{
			name:    "text mime type",
			body:    `{"fileId":"f1","name":"r.txt","mimeType":"text/plain","createdTime":"2025-09-21T10:00:00Z","folderId":"folder-1"}`,
			wantErr: domain.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queue := mocks.NewMockTaskQueue()
			svc := NewIngressService(queue, nil)

			res, err := svc.Submit(context.Background(), []byte(tt.body))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				if len(queue.Tasks("")) != 0 {
					t.Error("rejected events must not be queued")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Status != "ok" || res.TaskID == "" || res.IdempotencyKey == "" {
				t.Errorf("unexpected result %+v", res)
			}
			if got := queue.Tasks(domain.TaskTypeReceiptNew); len(got) != 1 {
				t.Errorf("expected one receipts.new task, got %d", len(got))
			}
		})
	}
}

func TestIngressService_SameFileSameTask(t *testing.T) {
	queue := mocks.NewMockTaskQueue()
	svc := NewIngressService(queue, nil)
	body := []byte(`{"fileId":"f1","name":"r.jpg","mimeType":"image/jpeg","createdTime":"2025-09-21T10:00:00Z","folderId":"folder-1"}`)

	first, err := svc.Submit(context.Background(), body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := svc.Submit(context.Background(), body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first.TaskID != second.TaskID {
		t.Errorf("expected identical task IDs, got %s and %s", first.TaskID, second.TaskID)
	}
	if len(queue.Tasks("")) != 1 {
		t.Errorf("expected one queued task, got %d", len(queue.Tasks("")))
	}
}

func TestIngressService_MatchesPollerKey(t *testing.T) {
	queue := mocks.NewMockTaskQueue()
	svc := NewIngressService(queue, nil)

	evt := domain.NewDiscoveryEvent(item("f1", pollNow))
	body := []byte(`{"fileId":"f1","name":"f1.jpg","mimeType":"image/jpeg","createdTime":"` + evt.CreatedTime + `","folderId":"folder-1"}`)

	res, err := svc.Submit(context.Background(), body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.IdempotencyKey != evt.IdempotencyKey {
		t.Errorf("expected poller key %s, got %s", evt.IdempotencyKey, res.IdempotencyKey)
	}
}
