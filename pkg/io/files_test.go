package io

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for path, content := range files {
		full := filepath.Join(root, filepath.FromSlash(path))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0777))
		require.NoError(t, os.WriteFile(full, []byte(content), 0644))
	}
}

func TestGlob(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"manifest.json":                      "{}",
		"EcsPipelineStack.template.json":     "{}",
		"AuthDatabaseStack.template.yaml":    "{}",
		"assets/nested/image.tar":            "tar",
		"EcsStackDeployedInPipeline.tmp.txt": "x",
	})

	tests := []struct {
		name    string
		pattern string
		want    []string
		wantErr bool
	}{
		{
			name:    "everything",
			pattern: "**/*",
			want: []string{
				"AuthDatabaseStack.template.yaml",
				"EcsPipelineStack.template.json",
				"EcsStackDeployedInPipeline.tmp.txt",
				"assets/nested/image.tar",
				"manifest.json",
			},
		},
		{
			name:    "templates only",
			pattern: "*.template.{json,yaml}",
			want: []string{
				"AuthDatabaseStack.template.yaml",
				"EcsPipelineStack.template.json",
			},
		},
		{
			name:    "nested directory",
			pattern: "assets/**",
			want:    []string{"assets/nested/image.tar"},
		},
		{
			name:    "no matches",
			pattern: "*.zip",
		},
		{
			name:    "bad pattern",
			pattern: "[",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert := assert.New(t)
			refs, err := Glob(root, tt.pattern)
			if tt.wantErr {
				assert.Error(err)
				return
			}
			if !assert.NoError(err) {
				return
			}
			var paths []string
			for _, r := range refs {
				paths = append(paths, r.Path())
				assert.Equal(root, r.Root)
			}
			assert.Equal(tt.want, paths)
		})
	}
}

func TestFileRef_WriteTo(t *testing.T) {
	assert := assert.New(t)
	root := t.TempDir()
	writeTree(t, root, map[string]string{"dir/file.txt": "hello"})

	ref := &FileRef{FPath: "dir/file.txt", Root: root}
	var sb strings.Builder
	n, err := ref.WriteTo(&sb)
	assert.NoError(err)
	assert.Equal(int64(5), n)
	assert.Equal("hello", sb.String())

	_, err = (&FileRef{FPath: "missing", Root: root}).WriteTo(&sb)
	assert.Error(err)
}
