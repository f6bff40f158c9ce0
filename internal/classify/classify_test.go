package classify

import (
	"strings"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name         string
		fileName     string
		declaredType string
		want         Kind
	}{
		{"csv extension", "sales.csv", "text/csv", KindCSV},
		{"csv extension wins over mime", "sales.csv", "application/octet-stream", KindCSV},
		{"uppercase extension", "SALES.CSV", "", KindCSV},
		{"xlsx extension", "book.xlsx", "", KindExcel},
		{"xls extension", "legacy.xls", "", KindExcel},
		{"no extension csv mime", "dataset", "text/csv", KindCSV},
		{"no extension xlsx mime", "dataset", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", KindExcel},
		{"mime with charset", "dataset", "text/csv; charset=utf-8", KindCSV},
		{"unknown extension known mime", "data.bin", "text/csv", KindCSV},
		{"unknown extension unknown mime", "data.bin", "application/octet-stream", KindUnsupported},
		{"text file", "notes.txt", "text/plain", KindUnsupported},
		{"json file", "data.json", "application/json", KindUnsupported},
		{"empty everything", "", "", KindUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.fileName, tt.declaredType)
			if got != tt.want {
				t.Errorf("Classify(%q, %q) = %v, want %v", tt.fileName, tt.declaredType, got, tt.want)
			}
		})
	}
}

func TestLoadRulesFromReader(t *testing.T) {
	t.Run("extends defaults", func(t *testing.T) {
		yml := "extensions:\n  .tsv: csv\nmimeTypes:\n  text/tab-separated-values: csv\n"
		rules, err := LoadRulesFromReader(strings.NewReader(yml))
		if err != nil {
			t.Fatalf("Failed to load rules: %v", err)
		}

		if got := rules.Classify("data.tsv", ""); got != KindCSV {
			t.Errorf("Expected custom .tsv rule to apply, got %v", got)
		}
		// Defaults survive.
		if got := rules.Classify("book.xlsx", ""); got != KindExcel {
			t.Errorf("Expected default .xlsx rule to survive, got %v", got)
		}
	})

	t.Run("overrides defaults", func(t *testing.T) {
		yml := "extensions:\n  .csv: unsupported\n"
		rules, err := LoadRulesFromReader(strings.NewReader(yml))
		if err != nil {
			t.Fatalf("Failed to load rules: %v", err)
		}

		if got := rules.Classify("sales.csv", ""); got != KindUnsupported {
			t.Errorf("Expected override to apply, got %v", got)
		}
	})

	t.Run("rejects invalid yaml", func(t *testing.T) {
		_, err := LoadRulesFromReader(strings.NewReader("extensions: [not a map"))
		if err == nil {
			t.Error("Expected error for invalid YAML")
		}
	})
}
