package resources

import (
	"github.com/flab-reels/authcdk/pkg/construct"
	"github.com/flab-reels/authcdk/pkg/sanitization/aws"
)

const LOG_GROUP_TYPE = "log_group"

var logGroupSanitizer = aws.CloudwatchLogGroupSanitizer

type (
	LogGroup struct {
		Name            string
		LogGroupName    string
		RetentionInDays int
	}

	CloudwatchLogGroupCreateParams struct {
		Name            string
		LogGroupName    string
		RetentionInDays int
	}
)

// validRetention lists the retention periods CloudWatch accepts.
var validRetention = []int{1, 3, 5, 7, 14, 30, 60, 90, 120, 150, 180, 365, 400, 545, 731, 1096, 1827, 2192, 2557, 2922, 3288, 3653}

func (lg *LogGroup) Create(dag *construct.Graph, params CloudwatchLogGroupCreateParams) error {
	lg.Name = logGroupSanitizer.Apply(params.Name)
	if params.LogGroupName != "" {
		lg.LogGroupName = logGroupSanitizer.Apply(params.LogGroupName)
	}
	lg.RetentionInDays = RetentionDays(params.RetentionInDays)
	return ensureUnique(dag, lg)
}

func (lg *LogGroup) Id() construct.ResourceId {
	return construct.ResourceId{
		Provider: AWS_PROVIDER,
		Type:     LOG_GROUP_TYPE,
		Name:     lg.Name,
	}
}

// RetentionDays rounds days up to the nearest retention period CloudWatch accepts. Zero or less means never expire.
func RetentionDays(days int) int {
	if days <= 0 {
		return 0
	}
	for _, valid := range validRetention {
		if days <= valid {
			return valid
		}
	}
	return validRetention[len(validRetention)-1]
}

// GrantWrite lets role create streams in and write events to the group.
func (lg *LogGroup) GrantWrite(role *IamRole) {
	role.Grant([]string{"logs:CreateLogStream", "logs:PutLogEvents"}, construct.ArnOf(lg))
}

func (lg *LogGroup) CfnType() string {
	return "AWS::Logs::LogGroup"
}

func (lg *LogGroup) CfnDeletionPolicy() string {
	return "Retain"
}

func (lg *LogGroup) CfnProperties() (map[string]any, error) {
	props := map[string]any{}
	optional(props, "LogGroupName", lg.LogGroupName)
	optional(props, "RetentionInDays", lg.RetentionInDays)
	return props, nil
}
