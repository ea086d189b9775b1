package config

import (
	"fmt"
	"sort"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/multierr"
)

// ApplyOverrides decodes each entry of Overrides onto the section of the same name. Keys use the same names as the
// config file (eg. `container_port`), values are weakly typed so `"8080"` decodes into an int field.
func (a *Application) ApplyOverrides() error {
	sections := make([]string, 0, len(a.Overrides))
	for name := range a.Overrides {
		sections = append(sections, name)
	}
	sort.Strings(sections)

	var errs error
	for _, name := range sections {
		target := a.section(name)
		if target == nil {
			errs = multierr.Append(errs, fmt.Errorf("unknown overrides section %q", name))
			continue
		}
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			TagName:          "yaml",
			WeaklyTypedInput: true,
			ErrorUnused:      true,
			Result:           target,
		})
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if err := dec.Decode(a.Overrides[name]); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("could not apply %s overrides: %w", name, err))
		}
	}
	return errs
}

func (a *Application) section(name string) any {
	switch name {
	case "pipeline":
		return &a.Pipeline
	case "service":
		return &a.Service
	case "database":
		return &a.Database
	case "publish":
		return &a.Publish
	}
	return nil
}
