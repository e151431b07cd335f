package core

import (
	"strings"
	"testing"
)

func TestValidateServerURL(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		errMsg string
	}{
		{name: "serving default", url: "http://127.0.0.1:8501"},
		{name: "https with path", url: "https://models.internal/tf"},
		{name: "surrounding whitespace", url: "  http://localhost:8501  "},
		{name: "empty", url: "", errMsg: "cannot be empty"},
		{name: "whitespace only", url: "   ", errMsg: "cannot be empty"},
		{name: "missing scheme", url: "localhost:8501", errMsg: "must use http or https"},
		{name: "grpc scheme", url: "grpc://localhost:8500", errMsg: "must use http or https"},
		{name: "no host", url: "http://", errMsg: "must include a host"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateServerURL(tt.url)
			if tt.errMsg == "" {
				if err != nil {
					t.Errorf("ValidateServerURL(%q) = %v, want nil", tt.url, err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("ValidateServerURL(%q) = %v, want error containing %q", tt.url, err, tt.errMsg)
			}
		})
	}
}
