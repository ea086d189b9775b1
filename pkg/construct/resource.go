package construct

type (
	// Resource is a single declaration in a stack. Fields of a Resource that hold other Resources or IaCValues
	// become dependency edges when added via [Graph.AddDependenciesReflect].
	Resource interface {
		Id() ResourceId
	}

	// IaCValue reads a property of another resource. The property is resolved by the template compiler, so
	// the value is never known at synthesis time.
	IaCValue struct {
		ResourceId ResourceId
		Property   string
	}

	// Sub is a string with `${Var}` placeholders, rendered as `Fn::Sub`. Variables may hold IaCValues.
	Sub struct {
		Template  string
		Variables map[string]any
	}

	// Join concatenates its values with Delimiter, rendered as `Fn::Join`.
	Join struct {
		Delimiter string
		Values    []any
	}

	// PseudoParameter is one of the parameters predefined by the provisioning engine.
	PseudoParameter string

	// AvailabilityZone selects the Nth availability zone of the deployment region.
	AvailabilityZone struct {
		Index int
	}
)

const (
	REF_IAC_VALUE = "ref"
	ARN_IAC_VALUE = "Arn"

	AccountId PseudoParameter = "AWS::AccountId"
	Region    PseudoParameter = "AWS::Region"
	Partition PseudoParameter = "AWS::Partition"
	URLSuffix PseudoParameter = "AWS::URLSuffix"
	StackName PseudoParameter = "AWS::StackName"
)

// RefOf returns the IaCValue for the primary identifier of r.
func RefOf(r Resource) IaCValue {
	return IaCValue{ResourceId: r.Id(), Property: REF_IAC_VALUE}
}

// AttrOf returns the IaCValue for the attribute attr of r.
func AttrOf(r Resource, attr string) IaCValue {
	return IaCValue{ResourceId: r.Id(), Property: attr}
}

// ArnOf is shorthand for AttrOf(r, ARN_IAC_VALUE).
func ArnOf(r Resource) IaCValue {
	return AttrOf(r, ARN_IAC_VALUE)
}
