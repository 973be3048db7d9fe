package aws

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling/types"
)

const defaultLaunchTemplateVersion = "$Latest"

type AutoScalingGroupConfig struct {
	Name                   string             `json:"name"`
	LaunchTemplate         LaunchTemplateSpec `json:"launchTemplate"`
	MinSize                int                `json:"minSize"`
	MaxSize                int                `json:"maxSize"`
	DesiredCapacity        *int               `json:"desiredCapacity"`
	SubnetIDs              []string           `json:"subnetIds"`
	TargetGroupARNs        []string           `json:"targetGroupArns"`
	HealthCheckType        string             `json:"healthCheckType"`
	HealthCheckGracePeriod int                `json:"healthCheckGracePeriod"`
	Tags                   map[string]string  `json:"tags"`
}

type LaunchTemplateSpec struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

type AutoScalingGroupState struct {
	Name            string   `json:"name"`
	ARN             string   `json:"arn,omitempty"`
	MinSize         int      `json:"minSize"`
	MaxSize         int      `json:"maxSize"`
	TargetGroupARNs []string `json:"targetGroupArns,omitempty"`
}

func (p *Provider) createAutoScalingGroup(ctx context.Context, name string, desired *AutoScalingGroupConfig) (*AutoScalingGroupState, error) {
	groupName := nameOr(desired.Name, name)
	input := &autoscaling.CreateAutoScalingGroupInput{
		AutoScalingGroupName: awssdk.String(groupName),
		MinSize:              awssdk.Int32(int32(desired.MinSize)),
		MaxSize:              awssdk.Int32(int32(desired.MaxSize)),
		LaunchTemplate:       asgLaunchTemplate(desired.LaunchTemplate),
		TargetGroupARNs:      desired.TargetGroupARNs,
	}
	if desired.DesiredCapacity != nil {
		input.DesiredCapacity = awssdk.Int32(int32(*desired.DesiredCapacity))
	}
	if len(desired.SubnetIDs) > 0 {
		input.VPCZoneIdentifier = awssdk.String(strings.Join(desired.SubnetIDs, ","))
	}
	if desired.HealthCheckType != "" {
		input.HealthCheckType = awssdk.String(desired.HealthCheckType)
	}
	if desired.HealthCheckGracePeriod > 0 {
		input.HealthCheckGracePeriod = awssdk.Int32(int32(desired.HealthCheckGracePeriod))
	}
	for _, k := range slices.Sorted(maps.Keys(desired.Tags)) {
		input.Tags = append(input.Tags, types.Tag{
			Key:               awssdk.String(k),
			Value:             awssdk.String(desired.Tags[k]),
			PropagateAtLaunch: awssdk.Bool(true),
		})
	}

	if _, err := p.autoscaling.CreateAutoScalingGroup(ctx, input); err != nil {
		return nil, fmt.Errorf("failed to create auto scaling group: %w", err)
	}

	return &AutoScalingGroupState{
		Name:            groupName,
		MinSize:         desired.MinSize,
		MaxSize:         desired.MaxSize,
		TargetGroupARNs: desired.TargetGroupARNs,
	}, nil
}

func (p *Provider) readAutoScalingGroup(ctx context.Context, current *AutoScalingGroupState) (*AutoScalingGroupState, error) {
	resp, err := p.autoscaling.DescribeAutoScalingGroups(ctx, &autoscaling.DescribeAutoScalingGroupsInput{
		AutoScalingGroupNames: []string{current.Name},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe auto scaling group: %w", err)
	}
	if len(resp.AutoScalingGroups) == 0 {
		return nil, nil
	}
	g := resp.AutoScalingGroups[0]
	// Groups being deleted still describe until the last instance terminates.
	if g.Status != nil && strings.HasPrefix(awssdk.ToString(g.Status), "Delete") {
		return nil, nil
	}
	current.ARN = awssdk.ToString(g.AutoScalingGroupARN)
	current.MinSize = int(awssdk.ToInt32(g.MinSize))
	current.MaxSize = int(awssdk.ToInt32(g.MaxSize))
	current.TargetGroupARNs = g.TargetGroupARNs
	return current, nil
}

func (p *Provider) updateAutoScalingGroup(ctx context.Context, name string, desired *AutoScalingGroupConfig, current *AutoScalingGroupState) (*AutoScalingGroupState, error) {
	if err := immutable(TypeAutoScalingGroup, "name", current.Name, nameOr(desired.Name, name)); err != nil {
		return nil, err
	}

	input := &autoscaling.UpdateAutoScalingGroupInput{
		AutoScalingGroupName: awssdk.String(current.Name),
		MinSize:              awssdk.Int32(int32(desired.MinSize)),
		MaxSize:              awssdk.Int32(int32(desired.MaxSize)),
		LaunchTemplate:       asgLaunchTemplate(desired.LaunchTemplate),
	}
	if desired.DesiredCapacity != nil {
		input.DesiredCapacity = awssdk.Int32(int32(*desired.DesiredCapacity))
	}
	if len(desired.SubnetIDs) > 0 {
		input.VPCZoneIdentifier = awssdk.String(strings.Join(desired.SubnetIDs, ","))
	}
	if desired.HealthCheckType != "" {
		input.HealthCheckType = awssdk.String(desired.HealthCheckType)
	}
	if desired.HealthCheckGracePeriod > 0 {
		input.HealthCheckGracePeriod = awssdk.Int32(int32(desired.HealthCheckGracePeriod))
	}
	if _, err := p.autoscaling.UpdateAutoScalingGroup(ctx, input); err != nil {
		return nil, fmt.Errorf("failed to update auto scaling group: %w", err)
	}

	var attach, detach []string
	for _, arn := range desired.TargetGroupARNs {
		if !slices.Contains(current.TargetGroupARNs, arn) {
			attach = append(attach, arn)
		}
	}
	for _, arn := range current.TargetGroupARNs {
		if !slices.Contains(desired.TargetGroupARNs, arn) {
			detach = append(detach, arn)
		}
	}
	if len(attach) > 0 {
		_, err := p.autoscaling.AttachLoadBalancerTargetGroups(ctx, &autoscaling.AttachLoadBalancerTargetGroupsInput{
			AutoScalingGroupName: awssdk.String(current.Name),
			TargetGroupARNs:      attach,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to attach target groups: %w", err)
		}
	}
	if len(detach) > 0 {
		_, err := p.autoscaling.DetachLoadBalancerTargetGroups(ctx, &autoscaling.DetachLoadBalancerTargetGroupsInput{
			AutoScalingGroupName: awssdk.String(current.Name),
			TargetGroupARNs:      detach,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to detach target groups: %w", err)
		}
	}

	current.MinSize = desired.MinSize
	current.MaxSize = desired.MaxSize
	current.TargetGroupARNs = desired.TargetGroupARNs
	return current, nil
}

func (p *Provider) deleteAutoScalingGroup(ctx context.Context, current *AutoScalingGroupState) error {
	if current.Name == "" {
		return nil
	}
	_, err := p.autoscaling.DeleteAutoScalingGroup(ctx, &autoscaling.DeleteAutoScalingGroupInput{
		AutoScalingGroupName: awssdk.String(current.Name),
		ForceDelete:          awssdk.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("failed to delete auto scaling group: %w", err)
	}
	return nil
}

func asgLaunchTemplate(spec LaunchTemplateSpec) *types.LaunchTemplateSpecification {
	if spec.ID == "" && spec.Name == "" {
		return nil
	}
	lt := &types.LaunchTemplateSpecification{
		Version: awssdk.String(nameOr(spec.Version, defaultLaunchTemplateVersion)),
	}
	if spec.ID != "" {
		lt.LaunchTemplateId = awssdk.String(spec.ID)
	} else {
		lt.LaunchTemplateName = awssdk.String(spec.Name)
	}
	return lt
}
