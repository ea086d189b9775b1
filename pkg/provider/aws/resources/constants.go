package resources

import (
	"fmt"

	"github.com/flab-reels/authcdk/pkg/construct"
)

const AWS_PROVIDER = "aws"

const (
	// Attributes readable through construct.AttrOf. `Arn` is construct.ARN_IAC_VALUE.
	REPOSITORY_URI_IAC_VALUE   = "RepositoryUri"
	GROUP_ID_IAC_VALUE         = "GroupId"
	ALLOCATION_ID_IAC_VALUE    = "AllocationId"
	SERVICE_NAME_IAC_VALUE     = "Name"
	ENDPOINT_ADDRESS_IAC_VALUE = "Endpoint.Address"
	ENDPOINT_PORT_IAC_VALUE    = "Endpoint.Port"
	LB_DNS_NAME_IAC_VALUE      = "DNSName"
	LB_FULL_NAME_IAC_VALUE     = "LoadBalancerFullName"
	CIDR_BLOCK_IAC_VALUE       = "CidrBlock"
)

// ensureUnique adds r to dag, failing if a resource with the same id was already declared.
func ensureUnique(dag *construct.Graph, r construct.Resource) error {
	if dag.GetResource(r.Id()) != nil {
		return fmt.Errorf("%s with name %s already exists", r.Id().Type, r.Id().Name)
	}
	return dag.AddResource(r)
}

func nameTags(name string) []map[string]any {
	return []map[string]any{{"Key": "Name", "Value": name}}
}

// optional sets m[key] = value unless value is the zero value of its type.
func optional[T comparable](m map[string]any, key string, value T) {
	var zero T
	if value != zero {
		m[key] = value
	}
}
