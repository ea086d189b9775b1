package templateutils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFuncs(t *testing.T) {
	tests := []struct {
		name     string
		template string
		data     any
		want     string
		wantErr  bool
	}{
		{
			name:     "json keeps html characters",
			template: `{{ json . }}`,
			data:     map[string]string{"imageUri": "<uri>&tag"},
			want:     `{"imageUri":"<uri>&tag"}`,
		},
		{
			name:     "shell quote",
			template: `{{ shellQuote . }}`,
			data:     `it's`,
			want:     `'it'"'"'s'`,
		},
		{
			name:     "env key",
			template: `{{ envKey . }}`,
			data:     "1image-tag",
			want:     "image_tag",
		},
		{
			name:     "sprig functions are available",
			template: `{{ . | upper | quote }}`,
			data:     "corretto11",
			want:     `"CORRETTO11"`,
		},
		{
			name:     "missing key",
			template: `{{ .Missing }}`,
			data:     map[string]string{},
			wantErr:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert := assert.New(t)

			tmpl, err := ParseTemplate(tt.name, tt.template)
			if !assert.NoError(err) {
				return
			}
			buf := new(strings.Builder)
			err = tmpl.Execute(buf, tt.data)
			if tt.wantErr {
				assert.Error(err)
				return
			}
			if !assert.NoError(err) {
				return
			}
			assert.Equal(tt.want, buf.String())
		})
	}
}
