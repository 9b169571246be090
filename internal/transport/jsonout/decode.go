// Package jsonout decodes JSON produced by generative models, which is often
// fenced in markdown or slightly malformed.
package jsonout

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// Decode unmarshals model output into v. Markdown code fences are stripped;
// on a syntax error the text is repaired once and decoded again.
func Decode(text string, v any) error {
	body := stripFences(text)
	if body == "" {
		return errors.New("empty model output")
	}

	err := json.Unmarshal([]byte(body), v)
	if err == nil {
		return nil
	}
	var syntaxErr *json.SyntaxError
	if !errors.As(err, &syntaxErr) {
		return fmt.Errorf("decode model output: %w", err)
	}

	fixed, rerr := jsonrepair.JSONRepair(body)
	if rerr != nil {
		return fmt.Errorf("repair model output: %w", rerr)
	}
	if err := json.Unmarshal([]byte(fixed), v); err != nil {
		return fmt.Errorf("decode repaired model output: %w", err)
	}
	return nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// drop the language tag line
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = ""
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
