package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/flab-reels/authcdk/pkg/closenicely"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

type (
	Application struct {
		AppName string `json:"app" yaml:"app" toml:"app"`

		// Format is what format the file was originally in so that when we write
		// it back out, it keeps the same format.
		Format string `json:"-" yaml:"-" toml:"-"`
		// SourceFile is the path the config was read from, empty for the defaults.
		SourceFile string `json:"-" yaml:"-" toml:"-"`

		OutDir string `json:"out_dir" yaml:"out_dir" toml:"out_dir"`
		// TemplateFormat is the encoding of synthesized templates, json or yaml.
		TemplateFormat string `json:"template_format" yaml:"template_format" toml:"template_format"`

		Pipeline Pipeline `json:"pipeline" yaml:"pipeline" toml:"pipeline"`
		Service  Service  `json:"service" yaml:"service" toml:"service"`
		Database Database `json:"database" yaml:"database" toml:"database"`
		Publish  Publish  `json:"publish" yaml:"publish" toml:"publish"`

		// Overrides are decoded on top of the typed sections after the file is read, keyed by section name
		// (pipeline, service, database, publish).
		Overrides map[string]map[string]any `json:"overrides,omitempty" yaml:"overrides,omitempty" toml:"overrides,omitempty"`
	}

	Pipeline struct {
		StackName        string       `json:"stack_name" yaml:"stack_name" toml:"stack_name"`
		Name             string       `json:"name" yaml:"name" toml:"name"`
		RepositoryName   string       `json:"repository_name" yaml:"repository_name" toml:"repository_name"`
		MaxImageCount    int          `json:"max_image_count" yaml:"max_image_count" toml:"max_image_count"`
		GitHubOwner      string       `json:"github_owner" yaml:"github_owner" toml:"github_owner"`
		Branch           string       `json:"branch" yaml:"branch" toml:"branch"`
		OAuthTokenSecret string       `json:"oauth_token_secret" yaml:"oauth_token_secret" toml:"oauth_token_secret"`
		AppSource        GitHubSource `json:"app_source" yaml:"app_source" toml:"app_source"`
		InfraSource      GitHubSource `json:"infra_source" yaml:"infra_source" toml:"infra_source"`
		ImageBuild       BuildProject `json:"image_build" yaml:"image_build" toml:"image_build"`
		SynthBuild       BuildProject `json:"synth_build" yaml:"synth_build" toml:"synth_build"`
		DeployActionName string       `json:"deploy_action_name" yaml:"deploy_action_name" toml:"deploy_action_name"`
		AdminPermissions bool         `json:"admin_permissions" yaml:"admin_permissions" toml:"admin_permissions"`
		// RestartExecutionOnUpdate reruns the pipeline when its own declaration changes.
		RestartExecutionOnUpdate bool `json:"restart_execution_on_update" yaml:"restart_execution_on_update" toml:"restart_execution_on_update"`
	}

	GitHubSource struct {
		ActionName string `json:"action_name" yaml:"action_name" toml:"action_name"`
		Repo       string `json:"repo" yaml:"repo" toml:"repo"`
		// Owner and Branch fall back to the pipeline's values when empty.
		Owner  string `json:"owner,omitempty" yaml:"owner,omitempty" toml:"owner,omitempty"`
		Branch string `json:"branch,omitempty" yaml:"branch,omitempty" toml:"branch,omitempty"`
	}

	BuildProject struct {
		ProjectName string `json:"project_name" yaml:"project_name" toml:"project_name"`
		ActionName  string `json:"action_name" yaml:"action_name" toml:"action_name"`
		Image       string `json:"image" yaml:"image" toml:"image"`
		ComputeType string `json:"compute_type" yaml:"compute_type" toml:"compute_type"`
		Privileged  bool   `json:"privileged" yaml:"privileged" toml:"privileged"`
		// BuildSpecFile replaces the built-in build spec with the file at this path.
		BuildSpecFile string `json:"buildspec_file,omitempty" yaml:"buildspec_file,omitempty" toml:"buildspec_file,omitempty"`
		// RuntimeVersions are the install phase runtimes, eg. java: corretto11.
		RuntimeVersions map[string]string `json:"runtime_versions,omitempty" yaml:"runtime_versions,omitempty" toml:"runtime_versions,omitempty"`
		// ConfigFile is the application config the synth build passes to --config, relative to the infrastructure
		// repository.
		ConfigFile string `json:"config_file,omitempty" yaml:"config_file,omitempty" toml:"config_file,omitempty"`
	}

	Network struct {
		VpcName   string `json:"vpc_name" yaml:"vpc_name" toml:"vpc_name"`
		CidrBlock string `json:"cidr_block" yaml:"cidr_block" toml:"cidr_block"`
		MaxAzs    int    `json:"max_azs" yaml:"max_azs" toml:"max_azs"`
		// NatGateways defaults to one per availability zone when unset. Zero gives isolated private subnets.
		NatGateways *int `json:"nat_gateways,omitempty" yaml:"nat_gateways,omitempty" toml:"nat_gateways,omitempty"`
	}

	Service struct {
		StackName string  `json:"stack_name" yaml:"stack_name" toml:"stack_name"`
		Network   Network `json:"network" yaml:"network" toml:"network"`

		ClusterName string `json:"cluster_name" yaml:"cluster_name" toml:"cluster_name"`
		RoleName    string `json:"role_name" yaml:"role_name" toml:"role_name"`

		TaskFamily    string            `json:"task_family" yaml:"task_family" toml:"task_family"`
		Cpu           int               `json:"cpu" yaml:"cpu" toml:"cpu"`
		Memory        int               `json:"memory" yaml:"memory" toml:"memory"`
		ContainerName string            `json:"container_name" yaml:"container_name" toml:"container_name"`
		ContainerPort int               `json:"container_port" yaml:"container_port" toml:"container_port"`
		Environment   map[string]string `json:"environment,omitempty" yaml:"environment,omitempty" toml:"environment,omitempty"`
		// Secrets maps an environment variable to a Secrets Manager secret name, optionally `name:json-key`.
		Secrets          map[string]string `json:"secrets,omitempty" yaml:"secrets,omitempty" toml:"secrets,omitempty"`
		LogRetentionDays int               `json:"log_retention_days" yaml:"log_retention_days" toml:"log_retention_days"`

		LoadBalancerName string `json:"load_balancer_name" yaml:"load_balancer_name" toml:"load_balancer_name"`
		InternetFacing   bool   `json:"internet_facing" yaml:"internet_facing" toml:"internet_facing"`
		ListenerName     string `json:"listener_name" yaml:"listener_name" toml:"listener_name"`
		ListenerPort     int    `json:"listener_port" yaml:"listener_port" toml:"listener_port"`

		SecurityGroupName string `json:"security_group_name" yaml:"security_group_name" toml:"security_group_name"`
		IngressPorts      []int  `json:"ingress_ports" yaml:"ingress_ports" toml:"ingress_ports"`

		ServiceName    string `json:"service_name" yaml:"service_name" toml:"service_name"`
		AssignPublicIp bool   `json:"assign_public_ip" yaml:"assign_public_ip" toml:"assign_public_ip"`
		DesiredCount   int    `json:"desired_count" yaml:"desired_count" toml:"desired_count"`

		TargetGroupName            string      `json:"target_group_name" yaml:"target_group_name" toml:"target_group_name"`
		DeregistrationDelaySeconds int         `json:"deregistration_delay_seconds" yaml:"deregistration_delay_seconds" toml:"deregistration_delay_seconds"`
		HealthCheck                HealthCheck `json:"health_check" yaml:"health_check" toml:"health_check"`
		Scaling                    Scaling     `json:"scaling" yaml:"scaling" toml:"scaling"`
	}

	HealthCheck struct {
		// Path switches the check to HTTP when set; otherwise the check is a TCP connect.
		Path               string `json:"path,omitempty" yaml:"path,omitempty" toml:"path,omitempty"`
		IntervalSeconds    int    `json:"interval_seconds" yaml:"interval_seconds" toml:"interval_seconds"`
		HealthyThreshold   int    `json:"healthy_threshold" yaml:"healthy_threshold" toml:"healthy_threshold"`
		UnhealthyThreshold int    `json:"unhealthy_threshold" yaml:"unhealthy_threshold" toml:"unhealthy_threshold"`
	}

	Scaling struct {
		MinCapacity          int     `json:"min_capacity" yaml:"min_capacity" toml:"min_capacity"`
		MaxCapacity          int     `json:"max_capacity" yaml:"max_capacity" toml:"max_capacity"`
		TargetCpuUtilization float64 `json:"target_cpu_utilization" yaml:"target_cpu_utilization" toml:"target_cpu_utilization"`
	}

	Database struct {
		Enabled   bool    `json:"enabled" yaml:"enabled" toml:"enabled"`
		StackName string  `json:"stack_name" yaml:"stack_name" toml:"stack_name"`
		Network   Network `json:"network" yaml:"network" toml:"network"`

		SecurityGroupName  string `json:"security_group_name" yaml:"security_group_name" toml:"security_group_name"`
		InstanceIdentifier string `json:"instance_identifier" yaml:"instance_identifier" toml:"instance_identifier"`
		DatabaseName       string `json:"database_name" yaml:"database_name" toml:"database_name"`
		EngineVersion      string `json:"engine_version" yaml:"engine_version" toml:"engine_version"`
		InstanceClass      string `json:"instance_class" yaml:"instance_class" toml:"instance_class"`
		AllocatedStorage   int    `json:"allocated_storage" yaml:"allocated_storage" toml:"allocated_storage"`
		Username           string `json:"username" yaml:"username" toml:"username"`
		PasswordSecret     string `json:"password_secret" yaml:"password_secret" toml:"password_secret"`
		PubliclyAccessible bool   `json:"publicly_accessible" yaml:"publicly_accessible" toml:"publicly_accessible"`
		EndpointOutputName string `json:"endpoint_output_name" yaml:"endpoint_output_name" toml:"endpoint_output_name"`
	}

	Publish struct {
		Bucket      string `json:"bucket,omitempty" yaml:"bucket,omitempty" toml:"bucket,omitempty"`
		Prefix      string `json:"prefix,omitempty" yaml:"prefix,omitempty" toml:"prefix,omitempty"`
		Region      string `json:"region,omitempty" yaml:"region,omitempty" toml:"region,omitempty"`
		Pattern     string `json:"pattern" yaml:"pattern" toml:"pattern"`
		Concurrency int    `json:"concurrency" yaml:"concurrency" toml:"concurrency"`
	}
)

// ReadConfig reads the application config at fpath on top of [DefaultApplication]. The file extension selects the
// decoder.
func ReadConfig(fpath string) (Application, error) {
	f, err := os.Open(fpath)
	if err != nil {
		return Application{}, err
	}
	defer closenicely.OrDebug(f)

	return ReadConfigReader(fpath, f)
}

func ReadConfigReader(fpath string, r io.Reader) (Application, error) {
	appCfg := DefaultApplication()
	appCfg.SourceFile = fpath

	// decoders merge into existing maps, so a map set by the file would only add to the defaults
	maps := appCfg.replacedMaps()
	defaults := make([]map[string]string, len(maps))
	for i, m := range maps {
		defaults[i], *m = *m, nil
	}

	var err error
	switch filepath.Ext(fpath) {
	case ".json":
		err = json.NewDecoder(r).Decode(&appCfg)
		appCfg.Format = "json"

	case ".yaml", ".yml":
		err = yaml.NewDecoder(r).Decode(&appCfg)
		if err == io.EOF {
			err = nil
		}
		appCfg.Format = "yaml"

	case ".toml":
		err = toml.NewDecoder(r).Decode(&appCfg)
		appCfg.Format = "toml"

	default:
		return appCfg, fmt.Errorf("unsupported config file extension %q", filepath.Ext(fpath))
	}
	if err != nil {
		return appCfg, fmt.Errorf("could not decode %s: %w", fpath, err)
	}
	for i, m := range maps {
		if *m == nil {
			*m = defaults[i]
		}
	}
	if err := appCfg.ApplyOverrides(); err != nil {
		return appCfg, err
	}
	return appCfg, nil
}

// replacedMaps are the map settings a config file replaces as a whole rather than adding to.
func (a *Application) replacedMaps() []*map[string]string {
	return []*map[string]string{
		&a.Pipeline.ImageBuild.RuntimeVersions,
		&a.Pipeline.SynthBuild.RuntimeVersions,
		&a.Service.Environment,
		&a.Service.Secrets,
	}
}

// WriteTo encodes the config in its original Format (yaml if unset).
func (a Application) WriteTo(w io.Writer) (int64, error) {
	buf := new(bytes.Buffer)
	var err error
	switch a.Format {
	case "json":
		enc := json.NewEncoder(buf)
		enc.SetIndent("", "  ")
		err = enc.Encode(a)

	case "toml":
		err = toml.NewEncoder(buf).Encode(a)

	default:
		enc := yaml.NewEncoder(buf)
		enc.SetIndent(2)
		err = enc.Encode(a)
		if err == nil {
			err = enc.Close()
		}
	}
	if err != nil {
		return 0, err
	}
	return buf.WriteTo(w)
}

// ValueOrDefault returns value unless it is the zero value of its type, in which case it returns def.
func ValueOrDefault[T comparable](value T, def T) T {
	var zero T
	if value == zero {
		return def
	}
	return value
}
