package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// recognizerSchema validates custom recognizer files before any pattern is
// compiled. Kind must be a dotted tag so downstream grouping and narrative
// selection keep working for user-defined recognizers.
const recognizerSchema = `{
  "type": "object",
  "required": ["recognizers"],
  "properties": {
    "recognizers": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "kind", "pattern", "score"],
        "properties": {
          "name": {"type": "string", "minLength": 1, "pattern": "^[a-z0-9_]+$"},
          "kind": {"type": "string", "pattern": "^[a-z0-9_]+\\.[a-z0-9_]+$"},
          "pattern": {"type": "string", "minLength": 1},
          "score": {"type": "number", "minimum": 0, "maximum": 1},
          "reason": {"type": "string"}
        },
        "additionalProperties": false
      }
    }
  }
}`

type recognizerFile struct {
	Recognizers []recognizerDef `json:"recognizers" yaml:"recognizers"`
}

type recognizerDef struct {
	Name    string  `json:"name" yaml:"name"`
	Kind    string  `json:"kind" yaml:"kind"`
	Pattern string  `json:"pattern" yaml:"pattern"`
	Score   float64 `json:"score" yaml:"score"`
	Reason  string  `json:"reason" yaml:"reason"`
}

// LoadRecognizers loads additional activity recognizers from a YAML or JSON
// file. Patterns are compiled case-insensitively with a match timeout, so a
// backtracking-heavy user pattern cannot stall a detection run.
func LoadRecognizers(filename string, logger *zap.SugaredLogger) ([]Recognizer, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read recognizers file: %w", err)
	}

	doc, err := documentLoader(filename, data)
	if err != nil {
		return nil, err
	}

	result, err := gojsonschema.Validate(gojsonschema.NewStringLoader(recognizerSchema), doc)
	if err != nil {
		return nil, fmt.Errorf("failed to validate recognizers against schema: %w", err)
	}
	if !result.Valid() {
		var errs []string
		for _, desc := range result.Errors() {
			errs = append(errs, desc.String())
		}
		return nil, fmt.Errorf("recognizers validation failed: %s", strings.Join(errs, "; "))
	}

	var file recognizerFile
	if isYAML(filename) {
		err = yaml.Unmarshal(data, &file)
	} else {
		err = json.Unmarshal(data, &file)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal recognizers: %w", err)
	}

	recognizers := make([]Recognizer, 0, len(file.Recognizers))
	for _, def := range file.Recognizers {
		if _, err := compilePattern(def.Pattern, DefaultPatternTimeout); err != nil {
			return nil, fmt.Errorf("recognizer %s: %w", def.Name, err)
		}
		reason := def.Reason
		if reason == "" {
			reason = fmt.Sprintf("Suspicious %s activity observed for %%s.", def.Name)
		}
		if strings.Count(reason, "%s") != 1 || strings.Count(reason, "%") != 1 {
			return nil, fmt.Errorf("recognizer %s: reason must contain exactly one %%s placeholder", def.Name)
		}
		recognizers = append(recognizers, newCustomRecognizer(def.Name, def.Kind, def.Pattern, def.Score, reason, logger))
	}

	logger.Infof("Loaded %d recognizers from %s", len(recognizers), filename)
	return recognizers, nil
}

// newCustomRecognizer wraps a timeout-guarded pattern as a Recognizer. Match
// errors (including timeouts) degrade to no match.
func newCustomRecognizer(name, kind, pattern string, score float64, reason string, logger *zap.SugaredLogger) Recognizer {
	return Recognizer{
		Name:   name,
		Kind:   kind,
		Score:  score,
		Reason: reason,
		Classifier: ClassifierFunc(func(text string) bool {
			match, err := matchPattern(name, pattern, text, DefaultPatternTimeout, logger)
			if err != nil {
				return false
			}
			return match
		}),
	}
}

// documentLoader adapts file content for schema validation. YAML is decoded
// to a generic document first since the schema validator speaks JSON.
func documentLoader(filename string, data []byte) (gojsonschema.JSONLoader, error) {
	if isYAML(filename) {
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse recognizers YAML: %w", err)
		}
		return gojsonschema.NewGoLoader(doc), nil
	}
	return gojsonschema.NewBytesLoader(data), nil
}

func isYAML(filename string) bool {
	return strings.HasSuffix(filename, ".yaml") || strings.HasSuffix(filename, ".yml")
}
