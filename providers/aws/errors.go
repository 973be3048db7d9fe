package aws

import (
	"errors"
	"strings"

	"github.com/aws/smithy-go"
)

var notFoundCodes = map[string]bool{
	"NotFound":                             true,
	"NoSuchBucket":                         true,
	"NoSuchEntity":                         true,
	"LoadBalancerNotFound":                 true,
	"TargetGroupNotFound":                  true,
	"ListenerNotFound":                     true,
	"ApplicationDoesNotExistException":     true,
	"DeploymentGroupDoesNotExistException": true,
	"PipelineNotFoundException":            true,
}

// isNotFound reports whether err is an AWS API error saying the resource does
// not exist. EC2 codes follow the Invalid<Thing>ID.NotFound pattern.
func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	code := apiErr.ErrorCode()
	return notFoundCodes[code] || strings.HasSuffix(code, ".NotFound")
}
