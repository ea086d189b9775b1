package buildspec

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"regexp"
	"text/template"

	"github.com/flab-reels/authcdk/pkg/templateutils"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

type (
	// BuildSpec is the document a build runner executes, in the CodeBuild buildspec 0.2 format.
	BuildSpec struct {
		Version   string     `yaml:"version"`
		Env       *Env       `yaml:"env,omitempty"`
		Phases    Phases     `yaml:"phases"`
		Cache     *Cache     `yaml:"cache,omitempty"`
		Artifacts *Artifacts `yaml:"artifacts,omitempty"`
	}

	Env struct {
		Variables         map[string]string `yaml:"variables,omitempty"`
		SecretsManager    map[string]string `yaml:"secrets-manager,omitempty"`
		ExportedVariables []string          `yaml:"exported-variables,omitempty"`
	}

	Phases struct {
		Install   *Phase `yaml:"install,omitempty"`
		PreBuild  *Phase `yaml:"pre_build,omitempty"`
		Build     *Phase `yaml:"build,omitempty"`
		PostBuild *Phase `yaml:"post_build,omitempty"`
	}

	Phase struct {
		RuntimeVersions map[string]string `yaml:"runtime-versions,omitempty"`
		Commands        []string          `yaml:"commands,omitempty"`
		Finally         []string          `yaml:"finally,omitempty"`
	}

	Cache struct {
		Paths []string `yaml:"paths"`
	}

	Artifacts struct {
		Files         []string `yaml:"files"`
		BaseDirectory string   `yaml:"base-directory,omitempty"`
	}

	// Context is the data the build spec templates are executed with.
	Context struct {
		// ImageName is the name written to the image definitions file.
		ImageName            string
		ImageTagVariable     string
		ImageDefinitionsFile string
		OutputDir            string
		RuntimeVersions      map[string]string

		// ConfigFile, TemplateFormat and StackName are passed to the synth command so the build writes the
		// template the deploy action reads.
		ConfigFile     string
		TemplateFormat string
		StackName      string
	}
)

const (
	Version = "0.2"

	ImageTemplate = "image"
	SynthTemplate = "synth"

	DefaultImageTagVariable     = "imageTag"
	DefaultImageDefinitionsFile = "imagedefinitions.json"
)

//go:embed templates/*.yaml.tmpl
var files embed.FS

var templates = map[string]*template.Template{
	ImageTemplate: templateutils.MustTemplate(files, "templates/image.yaml.tmpl"),
	SynthTemplate: templateutils.MustTemplate(files, "templates/synth.yaml.tmpl"),
}

// Render executes the built-in template name and parses the result.
func Render(name string, ctx Context) (*BuildSpec, error) {
	tmpl, ok := templates[name]
	if !ok {
		return nil, fmt.Errorf("no build spec template named %q", name)
	}
	return execute(tmpl, ctx)
}

// Load reads a build spec template from path. The file may use the same template functions and Context as the
// built-in templates.
func Load(path string, ctx Context) (*BuildSpec, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	tmpl, err := templateutils.ParseTemplate(path, string(content))
	if err != nil {
		return nil, fmt.Errorf("could not parse build spec %s: %w", path, err)
	}
	return execute(tmpl, ctx)
}

func execute(tmpl *template.Template, ctx Context) (*BuildSpec, error) {
	if ctx.ImageTagVariable == "" {
		ctx.ImageTagVariable = DefaultImageTagVariable
	}
	if ctx.ImageDefinitionsFile == "" {
		ctx.ImageDefinitionsFile = DefaultImageDefinitionsFile
	}
	buf := new(bytes.Buffer)
	if err := tmpl.Execute(buf, ctx); err != nil {
		return nil, fmt.Errorf("could not render build spec %s: %w", tmpl.Name(), err)
	}
	spec := &BuildSpec{}
	if err := yaml.Unmarshal(buf.Bytes(), spec); err != nil {
		return nil, fmt.Errorf("build spec %s is not valid yaml: %w", tmpl.Name(), err)
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid build spec %s: %w", tmpl.Name(), err)
	}
	return spec, nil
}

// Marshal renders the build spec as the YAML string CodeBuild expects in a project's source.
func (b *BuildSpec) Marshal() (string, error) {
	buf := new(bytes.Buffer)
	enc := yaml.NewEncoder(buf)
	enc.SetIndent(2)
	if err := enc.Encode(b); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// AllCommands returns the commands of every phase in execution order.
func (b *BuildSpec) AllCommands() []string {
	var cmds []string
	for _, p := range []*Phase{b.Phases.Install, b.Phases.PreBuild, b.Phases.Build, b.Phases.PostBuild} {
		if p != nil {
			cmds = append(cmds, p.Commands...)
		}
	}
	return cmds
}

func (b *BuildSpec) Validate() error {
	return validation.ValidateStruct(b,
		validation.Field(&b.Version, validation.Required, validation.In(Version)),
		validation.Field(&b.Phases, validation.By(func(value interface{}) error {
			if len(b.AllCommands()) == 0 {
				return fmt.Errorf("at least one phase must have commands")
			}
			return nil
		})),
		validation.Field(&b.Env, validation.By(func(value interface{}) error {
			return b.validateExportedVariables()
		})),
	)
}

// validateExportedVariables checks that every exported variable is assigned by some command.
func (b *BuildSpec) validateExportedVariables() error {
	if b.Env == nil {
		return nil
	}
	for _, v := range b.Env.ExportedVariables {
		if _, ok := b.Env.Variables[v]; ok {
			continue
		}
		assign := regexp.MustCompile(`(^|[\s;])(export\s+)?` + regexp.QuoteMeta(v) + `=`)
		found := false
		for _, cmd := range b.AllCommands() {
			if assign.MatchString(cmd) {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("exported variable %s is never set", v)
		}
	}
	return nil
}
