// Package classify decides how a selected file enters the upload pipeline.
package classify

import (
	"path/filepath"
	"strings"
)

// Kind is the file classification driving the upload pipeline.
type Kind string

const (
	KindCSV         Kind = "csv"
	KindExcel       Kind = "excel"
	KindUnsupported Kind = "unsupported"
)

// Rules maps file extensions and declared MIME types to kinds. The zero
// value is unusable; use DefaultRules or LoadRules.
type Rules struct {
	Extensions map[string]Kind `yaml:"extensions"`
	MimeTypes  map[string]Kind `yaml:"mimeTypes"`
}

// DefaultRules returns the built-in extension/MIME tables.
func DefaultRules() *Rules {
	return &Rules{
		Extensions: map[string]Kind{
			".csv":  KindCSV,
			".xlsx": KindExcel,
			".xls":  KindExcel,
		},
		MimeTypes: map[string]Kind{
			"text/csv":                 KindCSV,
			"application/csv":          KindCSV,
			"application/vnd.ms-excel": KindExcel,
			"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": KindExcel,
		},
	}
}

// Classify determines the kind of a file from its name and declared MIME
// type. Extension wins; the declared type is only consulted when the
// extension is absent or unknown. Pure function, no I/O.
func (r *Rules) Classify(name, declaredType string) Kind {
	ext := strings.ToLower(filepath.Ext(name))
	if ext != "" {
		if kind, ok := r.Extensions[ext]; ok {
			return kind
		}
	}

	mime := strings.ToLower(strings.TrimSpace(declaredType))
	// Strip any charset or boundary parameters.
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	if mime != "" {
		if kind, ok := r.MimeTypes[mime]; ok {
			return kind
		}
	}

	return KindUnsupported
}

// Classify applies the default rules.
func Classify(name, declaredType string) Kind {
	return DefaultRules().Classify(name, declaredType)
}
