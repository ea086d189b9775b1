package assembly

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/coreos/go-semver/semver"
	"github.com/flab-reels/authcdk/pkg/infra/cloudformation"
	"github.com/flab-reels/authcdk/pkg/io"
	"github.com/flab-reels/authcdk/pkg/stacks"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	ManifestFileName = "manifest.json"
	ManifestVersion  = "1.0.0"
)

type (
	// Assembly is the synthesized output of an app: one template per stack and the manifest describing them.
	Assembly struct {
		Manifest  Manifest
		Templates map[string]*cloudformation.Template
		Format    cloudformation.Format
	}

	Manifest struct {
		Version string          `json:"version"`
		Stacks  []StackArtifact `json:"stacks"`
	}

	StackArtifact struct {
		StackName    string   `json:"stackName"`
		Description  string   `json:"description,omitempty"`
		TemplateFile string   `json:"templateFile"`
		Dependencies []string `json:"dependencies,omitempty"`
		Parameters   []string `json:"parameters,omitempty"`
		Outputs      []string `json:"outputs,omitempty"`
	}
)

// Synthesize compiles each stack in order. Every stack is compiled even if an earlier one fails, so all errors are
// reported together.
func Synthesize(ss []*stacks.Stack, format cloudformation.Format) (*Assembly, error) {
	a := &Assembly{
		Manifest:  Manifest{Version: ManifestVersion},
		Templates: make(map[string]*cloudformation.Template, len(ss)),
		Format:    format,
	}
	var errs error
	for _, s := range ss {
		t, err := s.Template()
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		a.Templates[s.Name] = t
		a.Manifest.Stacks = append(a.Manifest.Stacks, StackArtifact{
			StackName:    s.Name,
			Description:  s.Description,
			TemplateFile: cloudformation.TemplateFileName(s.Name, format),
			Dependencies: s.Dependencies,
			Parameters:   sortedKeys(t.Parameters),
			Outputs:      sortedKeys(t.Outputs),
		})
		zap.L().Debug("synthesized stack", zap.String("stack", s.Name), zap.Int("resources", len(t.Resources)))
	}
	if errs != nil {
		return nil, errs
	}
	return a, nil
}

// Files returns the manifest and every template, rendered in the assembly's format.
func (a *Assembly) Files() ([]io.File, error) {
	files := make([]io.File, 0, len(a.Manifest.Stacks)+1)
	for _, artifact := range a.Manifest.Stacks {
		content, err := a.Templates[artifact.StackName].Marshal(a.Format)
		if err != nil {
			return nil, fmt.Errorf("could not render %s: %w", artifact.StackName, err)
		}
		files = append(files, &io.RawFile{FPath: artifact.TemplateFile, Content: content})
	}
	manifest, err := json.MarshalIndent(a.Manifest, "", "  ")
	if err != nil {
		return nil, err
	}
	files = append(files, &io.RawFile{FPath: ManifestFileName, Content: append(manifest, '\n')})
	return files, nil
}

// Write renders the assembly into dir with at most workers files written concurrently.
func (a *Assembly) Write(ctx context.Context, dir string, workers int) ([]io.File, error) {
	files, err := a.Files()
	if err != nil {
		return nil, err
	}
	n, err := io.OutputTo(ctx, files, dir, workers)
	if err != nil {
		return nil, err
	}
	zap.S().Infof("wrote %d stacks to %s (%d bytes)", len(a.Manifest.Stacks), dir, n)
	return files, nil
}

// StackNames returns the names of the assembly's stacks in manifest order.
func (a *Assembly) StackNames() []string {
	names := make([]string, len(a.Manifest.Stacks))
	for i, s := range a.Manifest.Stacks {
		names[i] = s.StackName
	}
	return names
}

// Read loads an assembly previously written to dir. Manifests from a different major version are rejected.
func Read(dir string) (*Assembly, error) {
	content, err := os.ReadFile(filepath.Join(dir, ManifestFileName))
	if err != nil {
		return nil, fmt.Errorf("could not read assembly manifest: %w", err)
	}
	a := &Assembly{Templates: make(map[string]*cloudformation.Template)}
	if err := json.Unmarshal(content, &a.Manifest); err != nil {
		return nil, fmt.Errorf("could not parse assembly manifest: %w", err)
	}
	if err := checkVersion(a.Manifest.Version); err != nil {
		return nil, err
	}

	for _, artifact := range a.Manifest.Stacks {
		content, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(artifact.TemplateFile)))
		if err != nil {
			return nil, fmt.Errorf("could not read template for %s: %w", artifact.StackName, err)
		}
		t, err := cloudformation.ParseTemplate(content)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", artifact.TemplateFile, err)
		}
		a.Templates[artifact.StackName] = t
		if ext := filepath.Ext(artifact.TemplateFile); a.Format == "" && len(ext) > 1 {
			if f, err := cloudformation.ParseFormat(ext[1:]); err == nil {
				a.Format = f
			}
		}
	}
	return a, nil
}

func checkVersion(v string) error {
	got, err := semver.NewVersion(v)
	if err != nil {
		return fmt.Errorf("invalid assembly manifest version %q: %w", v, err)
	}
	supported := semver.New(ManifestVersion)
	if got.Major != supported.Major {
		return fmt.Errorf("unsupported assembly manifest version %s (expected %d.x)", got, supported.Major)
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	var keys []string
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
