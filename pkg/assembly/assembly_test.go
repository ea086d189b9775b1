package assembly

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/flab-reels/authcdk/pkg/config"
	"github.com/flab-reels/authcdk/pkg/infra/cloudformation"
	"github.com/flab-reels/authcdk/pkg/stacks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func synthDefault(t *testing.T, format cloudformation.Format) *Assembly {
	t.Helper()
	app, err := stacks.Build(context.Background(), config.DefaultApplication())
	require.NoError(t, err)
	a, err := Synthesize(app.Stacks(), format)
	require.NoError(t, err)
	return a
}

func TestSynthesize_Manifest(t *testing.T) {
	assert := assert.New(t)
	a := synthDefault(t, cloudformation.JSON)

	assert.Equal(ManifestVersion, a.Manifest.Version)
	assert.Equal([]string{"EcsPipelineStack", "EcsStackDeployedInPipeline", "AuthDatabaseStack"}, a.StackNames())

	byName := make(map[string]StackArtifact)
	for _, s := range a.Manifest.Stacks {
		byName[s.StackName] = s
	}
	service := byName["EcsStackDeployedInPipeline"]
	assert.Equal("EcsStackDeployedInPipeline.template.json", service.TemplateFile)
	assert.Equal([]string{"EcsPipelineStack"}, service.Dependencies)
	assert.Contains(service.Parameters, "AuthEcrRepositoryTag")
	assert.Contains(service.Outputs, "ClusterARN")

	pipeline := byName["EcsPipelineStack"]
	assert.Empty(pipeline.Dependencies)
	assert.Contains(pipeline.Outputs, "RepositoryUri")

	assert.Contains(byName["AuthDatabaseStack"].Outputs, "authdbEndpoint")
}

func TestAssembly_WriteAndRead(t *testing.T) {
	for _, format := range []cloudformation.Format{cloudformation.JSON, cloudformation.YAML} {
		t.Run(string(format), func(t *testing.T) {
			assert := assert.New(t)
			dir := t.TempDir()
			a := synthDefault(t, format)

			files, err := a.Write(context.Background(), dir, 2)
			if !assert.NoError(err) {
				return
			}
			assert.Len(files, 4)
			for _, name := range a.StackNames() {
				assert.FileExists(filepath.Join(dir, cloudformation.TemplateFileName(name, format)))
			}

			var manifest Manifest
			content, err := os.ReadFile(filepath.Join(dir, ManifestFileName))
			assert.NoError(err)
			assert.NoError(json.Unmarshal(content, &manifest))
			assert.Equal(a.Manifest, manifest)

			read, err := Read(dir)
			if !assert.NoError(err) {
				return
			}
			assert.Equal(format, read.Format)
			assert.Equal(a.StackNames(), read.StackNames())

			diffs, err := DiffAssemblies(read, a)
			assert.NoError(err)
			assert.Empty(diffs, "a written assembly reads back unchanged")
		})
	}
}

func TestAssembly_Files_Deterministic(t *testing.T) {
	assert := assert.New(t)
	first, err := synthDefault(t, cloudformation.YAML).Files()
	require.NoError(t, err)
	second, err := synthDefault(t, cloudformation.YAML).Files()
	require.NoError(t, err)
	assert.Equal(first, second)
}

func TestRead_Errors(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		want     string
	}{
		{
			name: "no manifest",
			want: "could not read assembly manifest",
		},
		{
			name:     "invalid json",
			manifest: "{",
			want:     "could not parse assembly manifest",
		},
		{
			name:     "bad version",
			manifest: `{"version": "one"}`,
			want:     "invalid assembly manifest version",
		},
		{
			name:     "future major version",
			manifest: `{"version": "2.0.0"}`,
			want:     "unsupported assembly manifest version 2.0.0",
		},
		{
			name:     "missing template",
			manifest: `{"version": "1.2.0", "stacks": [{"stackName": "A", "templateFile": "A.template.json"}]}`,
			want:     "could not read template for A",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if tt.manifest != "" {
				require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFileName), []byte(tt.manifest), 0644))
			}
			_, err := Read(dir)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}
