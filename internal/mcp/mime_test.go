package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMimeTypeForPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"ordinances/2024/ord-2024-17.md", "text/markdown"},
		{"minutes/2024-03-19.markdown", "text/markdown"},
		{"notices/hearing.txt", "text/plain"},
		{"archive/agenda.html", "text/html"},
		{"archive/agenda.htm", "text/html"},
		{"budgets/fy2025.json", "application/json"},
		{"config/records.yaml", "text/x-yaml"},
		{"config/records.yml", "text/x-yaml"},
		{"ORDINANCES/ORD.MD", "text/markdown"},
		{"scans/budget.pdf", "text/plain"},
		{"no-extension", "text/plain"},
		{"", "text/plain"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, MimeTypeForPath(tt.path))
		})
	}
}
