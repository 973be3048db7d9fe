package aws

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

type LaunchTemplateConfig struct {
	Name               string             `json:"name"`
	ImageID            string             `json:"imageId"`
	InstanceType       string             `json:"instanceType"`
	KeyName            string             `json:"keyName"`
	UserData           string             `json:"userData"`
	SecurityGroupIDs   []string           `json:"securityGroupIds"`
	IAMInstanceProfile InstanceProfileRef `json:"iamInstanceProfile"`
	InstanceTags       map[string]string  `json:"instanceTags"`
	Tags               map[string]string  `json:"tags"`
}

// InstanceProfileRef selects an instance profile by ARN or by name.
type InstanceProfileRef struct {
	Arn  string `json:"arn"`
	Name string `json:"name"`
}

type LaunchTemplateState struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	LatestVersion int64             `json:"latestVersion"`
	Tags          map[string]string `json:"tags,omitempty"`
}

func (p *Provider) createLaunchTemplate(ctx context.Context, name string, desired *LaunchTemplateConfig) (*LaunchTemplateState, error) {
	templateName := nameOr(desired.Name, name)
	resp, err := p.ec2.CreateLaunchTemplate(ctx, &ec2.CreateLaunchTemplateInput{
		LaunchTemplateName: awssdk.String(templateName),
		LaunchTemplateData: launchTemplateData(desired),
		TagSpecifications:  tagSpecifications(types.ResourceTypeLaunchTemplate, name, desired.Tags),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create launch template: %w", err)
	}

	lt := resp.LaunchTemplate
	return &LaunchTemplateState{
		ID:            awssdk.ToString(lt.LaunchTemplateId),
		Name:          templateName,
		LatestVersion: awssdk.ToInt64(lt.LatestVersionNumber),
		Tags:          desired.Tags,
	}, nil
}

func (p *Provider) readLaunchTemplate(ctx context.Context, current *LaunchTemplateState) (*LaunchTemplateState, error) {
	resp, err := p.ec2.DescribeLaunchTemplates(ctx, &ec2.DescribeLaunchTemplatesInput{
		LaunchTemplateIds: []string{current.ID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe launch template: %w", err)
	}
	if len(resp.LaunchTemplates) == 0 {
		return nil, nil
	}
	lt := resp.LaunchTemplates[0]
	current.Name = awssdk.ToString(lt.LaunchTemplateName)
	current.LatestVersion = awssdk.ToInt64(lt.LatestVersionNumber)
	current.Tags = userTags(lt.Tags, current.Tags)
	return current, nil
}

// updateLaunchTemplate publishes a new version and makes it the default.
func (p *Provider) updateLaunchTemplate(ctx context.Context, name string, desired *LaunchTemplateConfig, current *LaunchTemplateState) (*LaunchTemplateState, error) {
	if err := immutable(TypeLaunchTemplate, "name", current.Name, nameOr(desired.Name, name)); err != nil {
		return nil, err
	}

	resp, err := p.ec2.CreateLaunchTemplateVersion(ctx, &ec2.CreateLaunchTemplateVersionInput{
		LaunchTemplateId:   awssdk.String(current.ID),
		LaunchTemplateData: launchTemplateData(desired),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create launch template version: %w", err)
	}
	version := awssdk.ToInt64(resp.LaunchTemplateVersion.VersionNumber)

	_, err = p.ec2.ModifyLaunchTemplate(ctx, &ec2.ModifyLaunchTemplateInput{
		LaunchTemplateId: awssdk.String(current.ID),
		DefaultVersion:   awssdk.String(strconv.FormatInt(version, 10)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set default launch template version: %w", err)
	}
	current.LatestVersion = version

	if err := p.retag(ctx, current.ID, current.Tags, desired.Tags); err != nil {
		return nil, err
	}
	current.Tags = desired.Tags
	return current, nil
}

func (p *Provider) deleteLaunchTemplate(ctx context.Context, current *LaunchTemplateState) error {
	if current.ID == "" {
		return nil
	}
	_, err := p.ec2.DeleteLaunchTemplate(ctx, &ec2.DeleteLaunchTemplateInput{LaunchTemplateId: awssdk.String(current.ID)})
	if err != nil {
		return fmt.Errorf("failed to delete launch template: %w", err)
	}
	return nil
}

func launchTemplateData(desired *LaunchTemplateConfig) *types.RequestLaunchTemplateData {
	data := &types.RequestLaunchTemplateData{
		ImageId:      awssdk.String(desired.ImageID),
		InstanceType: types.InstanceType(desired.InstanceType),
	}
	if desired.KeyName != "" {
		data.KeyName = awssdk.String(desired.KeyName)
	}
	if desired.UserData != "" {
		data.UserData = awssdk.String(base64.StdEncoding.EncodeToString([]byte(desired.UserData)))
	}
	if len(desired.SecurityGroupIDs) > 0 {
		data.SecurityGroupIds = desired.SecurityGroupIDs
	}
	switch {
	case desired.IAMInstanceProfile.Arn != "":
		data.IamInstanceProfile = &types.LaunchTemplateIamInstanceProfileSpecificationRequest{
			Arn: awssdk.String(desired.IAMInstanceProfile.Arn),
		}
	case desired.IAMInstanceProfile.Name != "":
		data.IamInstanceProfile = &types.LaunchTemplateIamInstanceProfileSpecificationRequest{
			Name: awssdk.String(desired.IAMInstanceProfile.Name),
		}
	}
	if len(desired.InstanceTags) > 0 {
		data.TagSpecifications = []types.LaunchTemplateTagSpecificationRequest{{
			ResourceType: types.ResourceTypeInstance,
			Tags:         ec2Tags(desired.InstanceTags),
		}}
	}
	return data
}
