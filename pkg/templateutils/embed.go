package templateutils

import (
	"embed"
	"text/template"

	sprig "github.com/Masterminds/sprig/v3"
)

// MustTemplate parses the embedded file name, panicking if it is missing or invalid.
func MustTemplate(fs embed.FS, name string) *template.Template {
	content, err := fs.ReadFile(name)
	if err != nil {
		panic(err)
	}
	t, err := ParseTemplate(name, string(content))
	if err != nil {
		panic(err)
	}
	return t
}

// ParseTemplate parses content with the same function set as [MustTemplate]. Missing keys are errors.
func ParseTemplate(name, content string) (*template.Template, error) {
	return template.New(name).
		Option("missingkey=error").
		Funcs(Funcs).
		Funcs(sprig.HermeticTxtFuncMap()).
		Parse(content)
}
