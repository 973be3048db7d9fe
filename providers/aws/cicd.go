package aws

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/codedeploy"
	cdTypes "github.com/aws/aws-sdk-go-v2/service/codedeploy/types"
	"github.com/aws/aws-sdk-go-v2/service/codepipeline"
	cpTypes "github.com/aws/aws-sdk-go-v2/service/codepipeline/types"
)

const defaultDeploymentConfig = "CodeDeployDefault.OneAtATime"

// CodeDeploy Application
type ApplicationConfig struct {
	Name            string `json:"name"`
	ComputePlatform string `json:"computePlatform"`
}

type ApplicationState struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

func (p *Provider) createApplication(ctx context.Context, name string, desired *ApplicationConfig) (*ApplicationState, error) {
	appName := nameOr(desired.Name, name)
	resp, err := p.codedeploy.CreateApplication(ctx, &codedeploy.CreateApplicationInput{
		ApplicationName: awssdk.String(appName),
		ComputePlatform: cdTypes.ComputePlatform(nameOr(desired.ComputePlatform, string(cdTypes.ComputePlatformServer))),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create application: %w", err)
	}
	return &ApplicationState{Name: appName, ID: awssdk.ToString(resp.ApplicationId)}, nil
}

func (p *Provider) readApplication(ctx context.Context, current *ApplicationState) (*ApplicationState, error) {
	resp, err := p.codedeploy.GetApplication(ctx, &codedeploy.GetApplicationInput{
		ApplicationName: awssdk.String(current.Name),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get application: %w", err)
	}
	if resp.Application == nil {
		return nil, nil
	}
	current.ID = awssdk.ToString(resp.Application.ApplicationId)
	return current, nil
}

func (p *Provider) updateApplication(ctx context.Context, name string, desired *ApplicationConfig, current *ApplicationState) (*ApplicationState, error) {
	appName := nameOr(desired.Name, name)
	if appName == current.Name {
		return current, nil
	}
	_, err := p.codedeploy.UpdateApplication(ctx, &codedeploy.UpdateApplicationInput{
		ApplicationName:    awssdk.String(current.Name),
		NewApplicationName: awssdk.String(appName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to rename application: %w", err)
	}
	current.Name = appName
	return current, nil
}

func (p *Provider) deleteApplication(ctx context.Context, current *ApplicationState) error {
	if current.Name == "" {
		return nil
	}
	_, err := p.codedeploy.DeleteApplication(ctx, &codedeploy.DeleteApplicationInput{
		ApplicationName: awssdk.String(current.Name),
	})
	if err != nil {
		return fmt.Errorf("failed to delete application: %w", err)
	}
	return nil
}

// CodeDeploy Deployment Group
//
// Groups are always in-place. Target groups turn on traffic control so the
// load balancer drains each instance while it is redeployed.
type DeploymentGroupConfig struct {
	Name                 string         `json:"name"`
	ApplicationName      string         `json:"applicationName"`
	ServiceRoleArn       string         `json:"serviceRoleArn"`
	DeploymentConfigName string         `json:"deploymentConfigName"`
	AutoScalingGroups    []string       `json:"autoScalingGroups"`
	TargetGroups         []string       `json:"targetGroups"`
	Ec2TagFilters        []EC2TagFilter `json:"ec2TagFilters"`
}

type EC2TagFilter struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	Type  string `json:"type"`
}

type DeploymentGroupState struct {
	Name            string `json:"name"`
	ID              string `json:"id"`
	ApplicationName string `json:"applicationName"`
	ServiceRoleArn  string `json:"serviceRoleArn"`
}

func (p *Provider) createDeploymentGroup(ctx context.Context, name string, desired *DeploymentGroupConfig) (*DeploymentGroupState, error) {
	groupName := nameOr(desired.Name, name)
	style, lbInfo := inPlaceStyle(desired.TargetGroups)

	resp, err := p.codedeploy.CreateDeploymentGroup(ctx, &codedeploy.CreateDeploymentGroupInput{
		ApplicationName:      awssdk.String(desired.ApplicationName),
		DeploymentGroupName:  awssdk.String(groupName),
		ServiceRoleArn:       awssdk.String(desired.ServiceRoleArn),
		DeploymentConfigName: awssdk.String(nameOr(desired.DeploymentConfigName, defaultDeploymentConfig)),
		AutoScalingGroups:    desired.AutoScalingGroups,
		Ec2TagFilters:        tagFilters(desired.Ec2TagFilters),
		DeploymentStyle:      style,
		LoadBalancerInfo:     lbInfo,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create deployment group: %w", err)
	}

	return &DeploymentGroupState{
		Name:            groupName,
		ID:              awssdk.ToString(resp.DeploymentGroupId),
		ApplicationName: desired.ApplicationName,
		ServiceRoleArn:  desired.ServiceRoleArn,
	}, nil
}

func (p *Provider) readDeploymentGroup(ctx context.Context, current *DeploymentGroupState) (*DeploymentGroupState, error) {
	resp, err := p.codedeploy.GetDeploymentGroup(ctx, &codedeploy.GetDeploymentGroupInput{
		ApplicationName:     awssdk.String(current.ApplicationName),
		DeploymentGroupName: awssdk.String(current.Name),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get deployment group: %w", err)
	}
	if resp.DeploymentGroupInfo == nil {
		return nil, nil
	}
	info := resp.DeploymentGroupInfo
	current.ID = awssdk.ToString(info.DeploymentGroupId)
	current.ServiceRoleArn = awssdk.ToString(info.ServiceRoleArn)
	return current, nil
}

func (p *Provider) updateDeploymentGroup(ctx context.Context, name string, desired *DeploymentGroupConfig, current *DeploymentGroupState) (*DeploymentGroupState, error) {
	if err := immutable(TypeDeploymentGroup, "applicationName", current.ApplicationName, desired.ApplicationName); err != nil {
		return nil, err
	}
	groupName := nameOr(desired.Name, name)
	style, lbInfo := inPlaceStyle(desired.TargetGroups)

	input := &codedeploy.UpdateDeploymentGroupInput{
		ApplicationName:            awssdk.String(current.ApplicationName),
		CurrentDeploymentGroupName: awssdk.String(current.Name),
		ServiceRoleArn:             awssdk.String(desired.ServiceRoleArn),
		DeploymentConfigName:       awssdk.String(nameOr(desired.DeploymentConfigName, defaultDeploymentConfig)),
		AutoScalingGroups:          desired.AutoScalingGroups,
		Ec2TagFilters:              tagFilters(desired.Ec2TagFilters),
		DeploymentStyle:            style,
		LoadBalancerInfo:           lbInfo,
	}
	if groupName != current.Name {
		input.NewDeploymentGroupName = awssdk.String(groupName)
	}
	if _, err := p.codedeploy.UpdateDeploymentGroup(ctx, input); err != nil {
		return nil, fmt.Errorf("failed to update deployment group: %w", err)
	}

	current.Name = groupName
	current.ServiceRoleArn = desired.ServiceRoleArn
	return current, nil
}

func (p *Provider) deleteDeploymentGroup(ctx context.Context, current *DeploymentGroupState) error {
	if current.Name == "" {
		return nil
	}
	_, err := p.codedeploy.DeleteDeploymentGroup(ctx, &codedeploy.DeleteDeploymentGroupInput{
		ApplicationName:     awssdk.String(current.ApplicationName),
		DeploymentGroupName: awssdk.String(current.Name),
	})
	if err != nil {
		return fmt.Errorf("failed to delete deployment group: %w", err)
	}
	return nil
}

func inPlaceStyle(targetGroups []string) (*cdTypes.DeploymentStyle, *cdTypes.LoadBalancerInfo) {
	style := &cdTypes.DeploymentStyle{
		DeploymentType:   cdTypes.DeploymentTypeInPlace,
		DeploymentOption: cdTypes.DeploymentOptionWithoutTrafficControl,
	}
	if len(targetGroups) == 0 {
		return style, nil
	}

	style.DeploymentOption = cdTypes.DeploymentOptionWithTrafficControl
	info := &cdTypes.LoadBalancerInfo{}
	for _, tg := range targetGroups {
		info.TargetGroupInfoList = append(info.TargetGroupInfoList, cdTypes.TargetGroupInfo{Name: awssdk.String(tg)})
	}
	return style, info
}

func tagFilters(filters []EC2TagFilter) []cdTypes.EC2TagFilter {
	var out []cdTypes.EC2TagFilter
	for _, f := range filters {
		typ := f.Type
		if typ == "" {
			typ = string(cdTypes.EC2TagFilterTypeKeyAndValue)
		}
		out = append(out, cdTypes.EC2TagFilter{
			Key:   awssdk.String(f.Key),
			Value: awssdk.String(f.Value),
			Type:  cdTypes.EC2TagFilterType(typ),
		})
	}
	return out
}

// CodePipeline
type PipelineConfig struct {
	Name          string          `json:"name"`
	RoleArn       string          `json:"roleArn"`
	ArtifactStore ArtifactStore   `json:"artifactStore"`
	Stages        []PipelineStage `json:"stages"`
}

type ArtifactStore struct {
	Type     string `json:"type"`
	Location string `json:"location"`
}

type PipelineStage struct {
	Name    string           `json:"name"`
	Actions []PipelineAction `json:"actions"`
}

type PipelineAction struct {
	Name            string            `json:"name"`
	ActionTypeID    ActionTypeID      `json:"actionTypeId"`
	RunOrder        int               `json:"runOrder"`
	Configuration   map[string]string `json:"configuration"`
	InputArtifacts  []string          `json:"inputArtifacts"`
	OutputArtifacts []string          `json:"outputArtifacts"`
}

type ActionTypeID struct {
	Category string `json:"category"`
	Owner    string `json:"owner"`
	Provider string `json:"provider"`
	Version  string `json:"version"`
}

type PipelineState struct {
	Name    string `json:"name"`
	ARN     string `json:"arn,omitempty"`
	Version int    `json:"version"`
}

func (p *Provider) createPipeline(ctx context.Context, name string, desired *PipelineConfig) (*PipelineState, error) {
	decl, err := pipelineDeclaration(nameOr(desired.Name, name), desired)
	if err != nil {
		return nil, err
	}
	resp, err := p.codepipeline.CreatePipeline(ctx, &codepipeline.CreatePipelineInput{Pipeline: decl})
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}
	return &PipelineState{
		Name:    awssdk.ToString(resp.Pipeline.Name),
		Version: int(awssdk.ToInt32(resp.Pipeline.Version)),
	}, nil
}

func (p *Provider) readPipeline(ctx context.Context, current *PipelineState) (*PipelineState, error) {
	resp, err := p.codepipeline.GetPipeline(ctx, &codepipeline.GetPipelineInput{Name: awssdk.String(current.Name)})
	if err != nil {
		return nil, fmt.Errorf("failed to get pipeline: %w", err)
	}
	if resp.Pipeline == nil {
		return nil, nil
	}
	current.Version = int(awssdk.ToInt32(resp.Pipeline.Version))
	if resp.Metadata != nil {
		current.ARN = awssdk.ToString(resp.Metadata.PipelineArn)
	}
	return current, nil
}

func (p *Provider) updatePipeline(ctx context.Context, name string, desired *PipelineConfig, current *PipelineState) (*PipelineState, error) {
	if err := immutable(TypePipeline, "name", current.Name, nameOr(desired.Name, name)); err != nil {
		return nil, err
	}
	decl, err := pipelineDeclaration(current.Name, desired)
	if err != nil {
		return nil, err
	}
	resp, err := p.codepipeline.UpdatePipeline(ctx, &codepipeline.UpdatePipelineInput{Pipeline: decl})
	if err != nil {
		return nil, fmt.Errorf("failed to update pipeline: %w", err)
	}
	current.Version = int(awssdk.ToInt32(resp.Pipeline.Version))
	return current, nil
}

func (p *Provider) deletePipeline(ctx context.Context, current *PipelineState) error {
	if current.Name == "" {
		return nil
	}
	if _, err := p.codepipeline.DeletePipeline(ctx, &codepipeline.DeletePipelineInput{Name: awssdk.String(current.Name)}); err != nil {
		return fmt.Errorf("failed to delete pipeline: %w", err)
	}
	return nil
}

func pipelineDeclaration(name string, desired *PipelineConfig) (*cpTypes.PipelineDeclaration, error) {
	if len(desired.Stages) < 2 {
		return nil, fmt.Errorf("%s %s: a pipeline needs at least two stages, got %d", TypePipeline, name, len(desired.Stages))
	}

	var stages []cpTypes.StageDeclaration
	for _, s := range desired.Stages {
		var actions []cpTypes.ActionDeclaration
		for _, a := range s.Actions {
			var inputs []cpTypes.InputArtifact
			for _, artifact := range a.InputArtifacts {
				inputs = append(inputs, cpTypes.InputArtifact{Name: awssdk.String(artifact)})
			}
			var outputs []cpTypes.OutputArtifact
			for _, artifact := range a.OutputArtifacts {
				outputs = append(outputs, cpTypes.OutputArtifact{Name: awssdk.String(artifact)})
			}
			runOrder := a.RunOrder
			if runOrder == 0 {
				runOrder = 1
			}

			actions = append(actions, cpTypes.ActionDeclaration{
				Name: awssdk.String(a.Name),
				ActionTypeId: &cpTypes.ActionTypeId{
					Category: cpTypes.ActionCategory(a.ActionTypeID.Category),
					Owner:    cpTypes.ActionOwner(nameOr(a.ActionTypeID.Owner, string(cpTypes.ActionOwnerAws))),
					Provider: awssdk.String(a.ActionTypeID.Provider),
					Version:  awssdk.String(nameOr(a.ActionTypeID.Version, "1")),
				},
				RunOrder:        awssdk.Int32(int32(runOrder)),
				Configuration:   a.Configuration,
				InputArtifacts:  inputs,
				OutputArtifacts: outputs,
			})
		}
		stages = append(stages, cpTypes.StageDeclaration{
			Name:    awssdk.String(s.Name),
			Actions: actions,
		})
	}

	return &cpTypes.PipelineDeclaration{
		Name:    awssdk.String(name),
		RoleArn: awssdk.String(desired.RoleArn),
		ArtifactStore: &cpTypes.ArtifactStore{
			Type:     cpTypes.ArtifactStoreType(nameOr(desired.ArtifactStore.Type, string(cpTypes.ArtifactStoreTypeS3))),
			Location: awssdk.String(desired.ArtifactStore.Location),
		},
		Stages: stages,
	}, nil
}
