package templateutils

import (
	"bytes"
	"encoding/json"
	"strings"
	"text/template"

	"github.com/flab-reels/authcdk/pkg/sanitization"
)

// Funcs are the functions buildspec templates may use on top of sprig's.
var Funcs = template.FuncMap{
	"joinString": strings.Join,
	"json":       compactJson,
	"shellQuote": shellQuote,
	"envKey":     sanitization.EnvVarKeySanitizer.Apply,
}

// compactJson renders v on one line. HTML characters are kept as is since the output lands in shell commands.
func compactJson(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// shellQuote wraps s in single quotes for a POSIX shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
