package ai

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/kaptinlin/jsonrepair"
)

// maxErrInput caps how much of a bad model answer ends up in an error.
const maxErrInput = 200

// GenerateSchema reflects a closed JSON schema for the structured answer
// type of value, which may be a pointer.
func GenerateSchema(value any) any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}

	t := reflect.TypeOf(value)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return reflector.Reflect(reflect.New(t).Interface())
}

// UnmarshalFlexible decodes a structured model answer into out. Besides
// plain JSON it accepts answers wrapped in a markdown code fence, answers
// encoded a second time as a JSON string, and JSON that jsonrepair can fix.
func UnmarshalFlexible(input string, out any) error {
	input = stripCodeFence(strings.TrimSpace(input))
	if err := json.Unmarshal([]byte(input), out); err == nil {
		return nil
	}

	var inner string
	if err := json.Unmarshal([]byte(input), &inner); err == nil {
		inner = stripCodeFence(strings.TrimSpace(inner))
		if err := json.Unmarshal([]byte(inner), out); err == nil {
			return nil
		}
		input = inner
	}

	input = stripDuplicateLeadingBrace(input)
	repaired, err := jsonrepair.JSONRepair(input)
	if err != nil {
		return fmt.Errorf("json repair failed for %q: %w", clip(input), err)
	}
	if err := json.Unmarshal([]byte(repaired), out); err != nil {
		return fmt.Errorf("unmarshal failed after repair of %q: %w", clip(input), err)
	}
	return nil
}

func stripCodeFence(s string) string {
	rest, ok := strings.CutPrefix(s, "```")
	if !ok {
		return s
	}
	// drop the info string, e.g. ```json
	if i := strings.IndexByte(rest, '\n'); i >= 0 {
		rest = rest[i+1:]
	}
	rest, _ = strings.CutSuffix(strings.TrimSpace(rest), "```")
	return strings.TrimSpace(rest)
}

func stripDuplicateLeadingBrace(s string) string {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, "{"); ok {
		rest = strings.TrimSpace(rest)
		if strings.HasPrefix(rest, "{") {
			return rest
		}
	}
	return s
}

func clip(s string) string {
	if len(s) <= maxErrInput {
		return s
	}
	return s[:maxErrInput] + "..."
}
