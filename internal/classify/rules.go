package classify

import (
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadRules reads a YAML rules file extending or overriding the default
// extension/MIME tables. Missing sections fall back to the defaults.
func LoadRules(filePath string) (*Rules, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return LoadRulesFromReader(file)
}

// LoadRulesFromReader parses rules from an io.Reader.
func LoadRulesFromReader(r io.Reader) (*Rules, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var loaded Rules
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, err
	}

	rules := DefaultRules()
	for ext, kind := range loaded.Extensions {
		rules.Extensions[ext] = kind
	}
	for mime, kind := range loaded.MimeTypes {
		rules.MimeTypes[mime] = kind
	}

	return rules, nil
}
