package schema

import "testing"

func TestValidateDiscoveryEvent(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{
			name: "valid",
			body: `{"fileId":"f1","name":"r.jpg","mimeType":"image/jpeg","createdTime":"2025-09-21T02:03:21Z","folderId":"d1"}`,
		},
		{
			name:    "missing folderId",
			body:    `{"fileId":"f1","name":"r.jpg","mimeType":"image/jpeg","createdTime":"2025-09-21T02:03:21Z"}`,
			wantErr: true,
		},
		{
			name:    "empty fileId",
			body:    `{"fileId":"","name":"r.jpg","mimeType":"image/jpeg","createdTime":"2025-09-21T02:03:21Z","folderId":"d1"}`,
			wantErr: true,
		},
		{
			name:    "not an object",
			body:    `["f1"]`,
			wantErr: true,
		},
		{
			name:    "bad timestamp",
			body:    `{"fileId":"f1","name":"r.jpg","mimeType":"image/jpeg","createdTime":"yesterday","folderId":"d1"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDiscoveryEvent([]byte(tt.body))
			if tt.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
