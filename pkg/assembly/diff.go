package assembly

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/flab-reels/authcdk/pkg/infra/cloudformation"
	"github.com/r3labs/diff"
)

type (
	// Change is one difference between two templates. Path starts with the template section, such as
	// `Resources.Vpc8d8e1f2a.Properties.CidrBlock`.
	Change struct {
		Type string
		Path []string
		From any
		To   any
	}

	// StackDiff is the set of changes to one stack between two assemblies.
	StackDiff struct {
		Stack   string
		Changes []Change
	}
)

const (
	Create = diff.CREATE
	Update = diff.UPDATE
	Delete = diff.DELETE
)

var templateSections = []string{"AWSTemplateFormatVersion", "Description", "Parameters", "Resources", "Outputs"}

func (c Change) PathString() string {
	return strings.Join(c.Path, ".")
}

// Diff compares two templates. Entries of the Parameters, Resources and Outputs sections are compared one by one so
// that an added or removed resource is a single change. Changes are sorted by path.
func Diff(old, new *cloudformation.Template) ([]Change, error) {
	oldDoc, err := toDocument(old)
	if err != nil {
		return nil, err
	}
	newDoc, err := toDocument(new)
	if err != nil {
		return nil, err
	}

	var changes []Change
	for _, section := range templateSections {
		oldEntries, oldIsMap := oldDoc[section].(map[string]any)
		newEntries, newIsMap := newDoc[section].(map[string]any)
		if !oldIsMap && !newIsMap {
			c, err := diffValues([]string{section}, oldDoc[section], newDoc[section])
			if err != nil {
				return nil, err
			}
			changes = append(changes, c...)
			continue
		}
		for _, key := range unionKeys(oldEntries, newEntries) {
			c, err := diffValues([]string{section, key}, oldEntries[key], newEntries[key])
			if err != nil {
				return nil, err
			}
			changes = append(changes, c...)
		}
	}
	sort.SliceStable(changes, func(i, j int) bool {
		return changes[i].PathString() < changes[j].PathString()
	})
	return changes, nil
}

// DiffAssemblies compares the stacks of two assemblies, following the stack order of new and then any stacks only
// present in old. Stacks without changes are omitted.
func DiffAssemblies(old, new *Assembly) ([]StackDiff, error) {
	var names []string
	seen := make(map[string]bool)
	for _, a := range []*Assembly{new, old} {
		if a == nil {
			continue
		}
		for _, name := range a.StackNames() {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}

	var diffs []StackDiff
	for _, name := range names {
		changes, err := Diff(templateOf(old, name), templateOf(new, name))
		if err != nil {
			return nil, err
		}
		if len(changes) > 0 {
			diffs = append(diffs, StackDiff{Stack: name, Changes: changes})
		}
	}
	return diffs, nil
}

func templateOf(a *Assembly, name string) *cloudformation.Template {
	if a == nil {
		return nil
	}
	return a.Templates[name]
}

func diffValues(path []string, from, to any) ([]Change, error) {
	switch {
	case from == nil && to == nil:
		return nil, nil
	case from == nil:
		return []Change{{Type: Create, Path: path, To: to}}, nil
	case to == nil:
		return []Change{{Type: Delete, Path: path, From: from}}, nil
	}

	differ, err := diff.NewDiffer(diff.SliceOrdering(true))
	if err != nil {
		return nil, err
	}
	changelog, err := differ.Diff(from, to)
	if err == diff.ErrTypeMismatch {
		// a value that changed kind, such as a literal replaced by a Ref, is reported as one update
		return []Change{{Type: Update, Path: path, From: from, To: to}}, nil
	} else if err != nil {
		return nil, err
	}

	changes := make([]Change, len(changelog))
	for i, c := range changelog {
		changes[i] = Change{
			Type: c.Type,
			Path: append(append([]string{}, path...), c.Path...),
			From: c.From,
			To:   c.To,
		}
	}
	return changes, nil
}

// toDocument converts a template into plain maps and slices, the form the differ walks.
func toDocument(t *cloudformation.Template) (map[string]any, error) {
	if t == nil {
		return map[string]any{}, nil
	}
	content, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	err = json.Unmarshal(content, &doc)
	return doc, err
}

func unionKeys(a, b map[string]any) []string {
	keys := make([]string, 0, len(a)+len(b))
	for k := range a {
		keys = append(keys, k)
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
