package construct

import (
	"cmp"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"go.uber.org/multierr"
)

// ResourceId identifies a resource within a graph. Its text form is `provider:type[:namespace]:name`.
type ResourceId struct {
	Provider string `yaml:"provider" toml:"provider"`
	Type     string `yaml:"type" toml:"type"`
	// Namespace is optional. It tells apart resources that share a name, such as the subnets of two networks.
	Namespace string `yaml:"namespace" toml:"namespace"`
	Name      string `yaml:"name" toml:"name"`
}

var (
	idKindPattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	idNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_#./\-:\[\]]*$`)
)

func (id ResourceId) IsZero() bool {
	return id == ResourceId{}
}

func (id ResourceId) String() string {
	var sb strings.Builder
	sb.WriteString(id.Provider)
	sb.WriteByte(':')
	sb.WriteString(id.Type)
	// an empty namespace is still written when the name would otherwise be read as one
	if id.Namespace != "" || strings.Contains(id.Name, ":") {
		sb.WriteByte(':')
		sb.WriteString(id.Namespace)
	}
	sb.WriteByte(':')
	sb.WriteString(id.Name)
	return sb.String()
}

func (id ResourceId) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *ResourceId) UnmarshalText(data []byte) error {
	parts := splitId(string(data))
	if len(parts) < 3 {
		return fmt.Errorf("resource id %q must have at least a provider, type and name", data)
	}
	id.assign(parts)
	if err := id.Validate(); err != nil {
		return fmt.Errorf("invalid resource id %q: %w", data, err)
	}
	return nil
}

// splitId keeps any colons past the fourth part in the name.
func splitId(s string) []string {
	return strings.SplitN(s, ":", 4)
}

// assign sets the fields from split parts. Three parts are provider, type and name.
func (id *ResourceId) assign(parts []string) {
	*id = ResourceId{}
	fields := []*string{&id.Provider, &id.Type, &id.Namespace, &id.Name}
	if len(parts) == 3 {
		fields = []*string{&id.Provider, &id.Type, &id.Name}
	}
	for i, p := range parts {
		*fields[i] = p
	}
}

// Validate checks every field against its allowed characters. Provider, type and name are required.
func (id ResourceId) Validate() error {
	var errs error
	check := func(field, value string, pattern *regexp.Regexp) {
		if !pattern.MatchString(value) {
			errs = multierr.Append(errs, fmt.Errorf("invalid %s %q (must match %s)", field, value, pattern))
		}
	}
	check("provider", id.Provider, idKindPattern)
	check("type", id.Type, idKindPattern)
	check("namespace", id.Namespace, idNamePattern)
	if id.Name == "" {
		errs = multierr.Append(errs, fmt.Errorf("name is required"))
	} else {
		check("name", id.Name, idNamePattern)
	}
	return errs
}

// ParseSelector parses a partial id for use with [ResourceId.Matches]. Missing trailing parts match anything, so
// `aws:subnet` selects every subnet and `aws:subnet:Vpc:` every subnet of the Vpc network.
func ParseSelector(s string) (ResourceId, error) {
	var id ResourceId
	id.assign(splitId(s))
	if id.Provider != "" && !idKindPattern.MatchString(id.Provider) {
		return id, fmt.Errorf("invalid provider %q in selector %q", id.Provider, s)
	}
	if id.Type != "" && !idKindPattern.MatchString(id.Type) {
		return id, fmt.Errorf("invalid type %q in selector %q", id.Type, s)
	}
	return id, nil
}

// Matches reports whether other has the same value as id in every field that id sets.
func (id ResourceId) Matches(other ResourceId) bool {
	for _, f := range [][2]string{
		{id.Provider, other.Provider},
		{id.Type, other.Type},
		{id.Namespace, other.Namespace},
		{id.Name, other.Name},
	} {
		if f[0] != "" && f[0] != f[1] {
			return false
		}
	}
	return true
}

// ResourceIdLess orders ids field by field. It is the tie breaker wherever the graph gives no order.
func ResourceIdLess(a, b ResourceId) bool {
	return compareIds(a, b) < 0
}

func compareIds(a, b ResourceId) int {
	return cmp.Or(
		cmp.Compare(a.Provider, b.Provider),
		cmp.Compare(a.Type, b.Type),
		cmp.Compare(a.Namespace, b.Namespace),
		cmp.Compare(a.Name, b.Name),
	)
}

func sortIds(ids []ResourceId) {
	slices.SortFunc(ids, compareIds)
}
