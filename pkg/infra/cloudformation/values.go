package cloudformation

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/flab-reels/authcdk/pkg/construct"
)

// resolver renders the property values of one resource, recording every logical id it references.
type resolver struct {
	compiler   *Compiler
	referenced map[string]struct{}
}

func (rv *resolver) resolve(v any) (any, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil

	case construct.IaCValue:
		return rv.resolveIaCValue(v)

	case construct.Sub:
		if len(v.Variables) == 0 {
			return map[string]any{"Fn::Sub": v.Template}, nil
		}
		vars, err := rv.resolve(v.Variables)
		if err != nil {
			return nil, err
		}
		return map[string]any{"Fn::Sub": []any{v.Template, vars}}, nil

	case construct.Join:
		values, err := rv.resolve(v.Values)
		if err != nil {
			return nil, err
		}
		if values == nil {
			values = []any{}
		}
		return map[string]any{"Fn::Join": []any{v.Delimiter, values}}, nil

	case construct.PseudoParameter:
		return map[string]any{"Ref": string(v)}, nil

	case construct.AvailabilityZone:
		return map[string]any{"Fn::Select": []any{v.Index, map[string]any{"Fn::GetAZs": ""}}}, nil

	case ValueRenderer:
		return rv.resolve(v.CfnValue())

	case string, bool, int, int32, int64, float32, float64:
		return v, nil
	}

	return rv.resolveReflect(reflect.ValueOf(v))
}

func (rv *resolver) resolveReflect(v reflect.Value) (any, error) {
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return nil, nil
		}
		return rv.resolve(v.Elem().Interface())

	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("map keys must be strings, got %s", v.Type())
		}
		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			resolved, err := rv.resolve(iter.Value().Interface())
			if err != nil {
				return nil, fmt.Errorf("%s: %w", iter.Key().String(), err)
			}
			out[iter.Key().String()] = resolved
		}
		return out, nil

	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.IsNil() {
			return nil, nil
		}
		out := make([]any, 0, v.Len())
		for i := 0; i < v.Len(); i++ {
			resolved, err := rv.resolve(v.Index(i).Interface())
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out = append(out, resolved)
		}
		return out, nil

	case reflect.String:
		return v.String(), nil

	case reflect.Bool:
		return v.Bool(), nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return v.Uint(), nil

	case reflect.Float32, reflect.Float64:
		return v.Float(), nil
	}
	return nil, fmt.Errorf("cannot render value of type %s", v.Type())
}

func (rv *resolver) resolveIaCValue(v construct.IaCValue) (any, error) {
	target := rv.compiler.graph.GetResource(v.ResourceId)
	if target == nil {
		return nil, fmt.Errorf("reference to %s which is not in the stack", v.ResourceId)
	}
	if param, ok := target.(Parameter); ok {
		if v.Property != construct.REF_IAC_VALUE {
			return nil, fmt.Errorf("parameter %s has no attribute %s", param.ParameterName(), v.Property)
		}
		return map[string]any{"Ref": param.ParameterName()}, nil
	}

	res, ok := target.(CfnResource)
	if !ok {
		return nil, fmt.Errorf("%s cannot be referenced", v.ResourceId)
	}
	isRef := v.Property == construct.REF_IAC_VALUE
	if !isRef && !slices.Contains(knownAttributes[res.CfnType()], v.Property) {
		return nil, fmt.Errorf("unknown attribute %s of %s (%s)", v.Property, v.ResourceId, res.CfnType())
	}
	logicalId, ok := rv.compiler.ids[v.ResourceId]
	if !ok {
		return nil, fmt.Errorf("%s has no logical id", v.ResourceId)
	}
	rv.referenced[logicalId] = struct{}{}

	if isRef {
		return map[string]any{"Ref": logicalId}, nil
	}
	return map[string]any{"Fn::GetAtt": []any{logicalId, v.Property}}, nil
}
