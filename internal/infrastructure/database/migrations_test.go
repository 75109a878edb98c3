package database

import "testing"

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename    string
		wantVersion string
		wantName    string
		wantErr     bool
	}{
		{"20260801_120000_initial_schema.up.sql", "20260801_120000", "initial_schema", false},
		{"20260815_093000_add_labs.up.sql", "20260815_093000", "add_labs", false},
		{"badname.up.sql", "", "", true},
		{"20260801_missing.up.sql", "", "", true},
	}

	for _, tt := range tests {
		version, name, err := parseMigrationFilename(tt.filename)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseMigrationFilename(%q): expected error", tt.filename)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseMigrationFilename(%q): %v", tt.filename, err)
			continue
		}
		if version != tt.wantVersion || name != tt.wantName {
			t.Errorf("parseMigrationFilename(%q) = (%q, %q), want (%q, %q)",
				tt.filename, version, name, tt.wantVersion, tt.wantName)
		}
	}
}
