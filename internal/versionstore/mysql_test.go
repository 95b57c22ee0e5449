package versionstore

import "testing"

func TestTableNameFor(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"hyphen replacement", "jvmcpg-demo", "`jvmcpg_demo_file_hashes`"},
		{"spaces and special chars", "my repo!@#name", "`my_repo_name_file_hashes`"},
		{"leading and trailing special chars", "-repo-", "`repo_file_hashes`"},
		{"already valid", "repo_one", "`repo_one_file_hashes`"},
		{"empty falls back to default", "", "`default_file_hashes`"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tableNameFor(tt.input); got != tt.expected {
				t.Errorf("tableNameFor(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}
