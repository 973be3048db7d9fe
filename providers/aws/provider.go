// Package aws implements the resource types of the in-place CodeDeploy quick
// setup: networking, load balancing, auto scaling, IAM, the artifact bucket and
// the CodeDeploy/CodePipeline pair.
package aws

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	"github.com/aws/aws-sdk-go-v2/service/codedeploy"
	"github.com/aws/aws-sdk-go-v2/service/codepipeline"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/Rammina/codepipeline-inplace-quicksetup/pkg/providersdk"
)

const providerName = "aws"

const (
	TypeVpc              = "aws:EC2.Vpc"
	TypeSubnet           = "aws:EC2.Subnet"
	TypeInternetGateway  = "aws:EC2.InternetGateway"
	TypeRouteTable       = "aws:EC2.RouteTable"
	TypeSecurityGroup    = "aws:EC2.SecurityGroup"
	TypeLaunchTemplate   = "aws:EC2.LaunchTemplate"
	TypeLoadBalancer     = "aws:ELBv2.LoadBalancer"
	TypeTargetGroup      = "aws:ELBv2.TargetGroup"
	TypeListener         = "aws:ELBv2.Listener"
	TypeAutoScalingGroup = "aws:AutoScaling.AutoScalingGroup"
	TypeBucket           = "aws:S3.Bucket"
	TypeRole             = "aws:IAM.Role"
	TypeInstanceProfile  = "aws:IAM.InstanceProfile"
	TypeApplication      = "aws:CodeDeploy.Application"
	TypeDeploymentGroup  = "aws:CodeDeploy.DeploymentGroup"
	TypePipeline         = "aws:CodePipeline.Pipeline"
)

// ErrNotConfigured is returned when a resource is touched before Configure.
var ErrNotConfigured = errors.New("aws provider is not configured")

type Provider struct {
	region string

	ec2          ec2API
	elbv2        elbv2API
	autoscaling  autoscalingAPI
	s3           s3API
	iam          iamAPI
	codedeploy   codedeployAPI
	codepipeline codepipelineAPI
}

func New() *Provider {
	return &Provider{}
}

// Configure loads the SDK configuration for the given region and profile.
// Clients already set (for example fakes in tests) are left alone.
func (p *Provider) Configure(ctx context.Context, cfg providersdk.Config) error {
	opts := []func(*config.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("unable to load SDK config: %w", err)
	}
	p.region = awsCfg.Region

	if p.ec2 == nil {
		p.ec2 = ec2.NewFromConfig(awsCfg)
	}
	if p.elbv2 == nil {
		p.elbv2 = elasticloadbalancingv2.NewFromConfig(awsCfg)
	}
	if p.autoscaling == nil {
		p.autoscaling = autoscaling.NewFromConfig(awsCfg)
	}
	if p.s3 == nil {
		p.s3 = s3.NewFromConfig(awsCfg)
	}
	if p.iam == nil {
		p.iam = iam.NewFromConfig(awsCfg)
	}
	if p.codedeploy == nil {
		p.codedeploy = codedeploy.NewFromConfig(awsCfg)
	}
	if p.codepipeline == nil {
		p.codepipeline = codepipeline.NewFromConfig(awsCfg)
	}
	return nil
}

func (p *Provider) Read(ctx context.Context, req *providersdk.ReadRequest) (*providersdk.ReadResponse, error) {
	h, err := p.handlerFor(req.Type)
	if err != nil {
		return nil, err
	}
	outputs, err := h.read(ctx, req.Outputs)
	if isNotFound(err) {
		return &providersdk.ReadResponse{Exists: false}, nil
	}
	if err != nil {
		return nil, err
	}
	if outputs == nil {
		return &providersdk.ReadResponse{Exists: false}, nil
	}
	return &providersdk.ReadResponse{Exists: true, Outputs: outputs}, nil
}

func (p *Provider) Create(ctx context.Context, req *providersdk.CreateRequest) (*providersdk.ApplyResponse, error) {
	h, err := p.handlerFor(req.Type)
	if err != nil {
		return nil, err
	}
	outputs, err := h.create(ctx, req.Name, req.Properties)
	if err != nil {
		return nil, err
	}
	return &providersdk.ApplyResponse{Outputs: outputs}, nil
}

func (p *Provider) Update(ctx context.Context, req *providersdk.UpdateRequest) (*providersdk.ApplyResponse, error) {
	h, err := p.handlerFor(req.Type)
	if err != nil {
		return nil, err
	}
	outputs, err := h.update(ctx, req.Name, req.Properties, req.PriorOutputs)
	if err != nil {
		return nil, err
	}
	return &providersdk.ApplyResponse{Outputs: outputs}, nil
}

// Delete removes the resource. A resource that is already gone counts as
// deleted.
func (p *Provider) Delete(ctx context.Context, req *providersdk.DeleteRequest) error {
	h, err := p.handlerFor(req.Type)
	if err != nil {
		return err
	}
	if err := h.delete(ctx, req.PriorOutputs); err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

func (p *Provider) handlerFor(typ string) (handler, error) {
	var (
		h     handler
		ready bool
	)
	switch typ {
	case TypeVpc:
		h, ready = typed(p.createVpc, p.readVpc, p.updateVpc, p.deleteVpc), p.ec2 != nil
	case TypeSubnet:
		h, ready = typed(p.createSubnet, p.readSubnet, p.updateSubnet, p.deleteSubnet), p.ec2 != nil
	case TypeInternetGateway:
		h, ready = typed(p.createInternetGateway, p.readInternetGateway, p.updateInternetGateway, p.deleteInternetGateway), p.ec2 != nil
	case TypeRouteTable:
		h, ready = typed(p.createRouteTable, p.readRouteTable, p.updateRouteTable, p.deleteRouteTable), p.ec2 != nil
	case TypeSecurityGroup:
		h, ready = typed(p.createSecurityGroup, p.readSecurityGroup, p.updateSecurityGroup, p.deleteSecurityGroup), p.ec2 != nil
	case TypeLaunchTemplate:
		h, ready = typed(p.createLaunchTemplate, p.readLaunchTemplate, p.updateLaunchTemplate, p.deleteLaunchTemplate), p.ec2 != nil
	case TypeLoadBalancer:
		h, ready = typed(p.createLoadBalancer, p.readLoadBalancer, p.updateLoadBalancer, p.deleteLoadBalancer), p.elbv2 != nil
	case TypeTargetGroup:
		h, ready = typed(p.createTargetGroup, p.readTargetGroup, p.updateTargetGroup, p.deleteTargetGroup), p.elbv2 != nil
	case TypeListener:
		h, ready = typed(p.createListener, p.readListener, p.updateListener, p.deleteListener), p.elbv2 != nil
	case TypeAutoScalingGroup:
		h, ready = typed(p.createAutoScalingGroup, p.readAutoScalingGroup, p.updateAutoScalingGroup, p.deleteAutoScalingGroup), p.autoscaling != nil
	case TypeBucket:
		h, ready = typed(p.createBucket, p.readBucket, p.updateBucket, p.deleteBucket), p.s3 != nil
	case TypeRole:
		h, ready = typed(p.createRole, p.readRole, p.updateRole, p.deleteRole), p.iam != nil
	case TypeInstanceProfile:
		h, ready = typed(p.createInstanceProfile, p.readInstanceProfile, p.updateInstanceProfile, p.deleteInstanceProfile), p.iam != nil
	case TypeApplication:
		h, ready = typed(p.createApplication, p.readApplication, p.updateApplication, p.deleteApplication), p.codedeploy != nil
	case TypeDeploymentGroup:
		h, ready = typed(p.createDeploymentGroup, p.readDeploymentGroup, p.updateDeploymentGroup, p.deleteDeploymentGroup), p.codedeploy != nil
	case TypePipeline:
		h, ready = typed(p.createPipeline, p.readPipeline, p.updatePipeline, p.deletePipeline), p.codepipeline != nil
	default:
		return handler{}, &providersdk.UnsupportedTypeError{Provider: providerName, Type: typ}
	}
	if !ready {
		return handler{}, fmt.Errorf("%s: %w", typ, ErrNotConfigured)
	}
	return h, nil
}

// handler is the untyped form of one resource type's operations.
type handler struct {
	create func(ctx context.Context, name string, props map[string]any) (map[string]any, error)
	read   func(ctx context.Context, outputs map[string]any) (map[string]any, error)
	update func(ctx context.Context, name string, props, prior map[string]any) (map[string]any, error)
	delete func(ctx context.Context, prior map[string]any) error
}

// typed adapts operations on a config type C and a state type S to a handler.
// A read returning a nil state reports the resource as gone.
func typed[C, S any](
	create func(context.Context, string, *C) (*S, error),
	read func(context.Context, *S) (*S, error),
	update func(context.Context, string, *C, *S) (*S, error),
	del func(context.Context, *S) error,
) handler {
	return handler{
		create: func(ctx context.Context, name string, props map[string]any) (map[string]any, error) {
			var desired C
			if err := providersdk.Decode(props, &desired); err != nil {
				return nil, err
			}
			st, err := create(ctx, name, &desired)
			if err != nil {
				return nil, err
			}
			return providersdk.Encode(st)
		},
		read: func(ctx context.Context, outputs map[string]any) (map[string]any, error) {
			var current S
			if err := providersdk.Decode(outputs, &current); err != nil {
				return nil, err
			}
			st, err := read(ctx, &current)
			if err != nil || st == nil {
				return nil, err
			}
			return providersdk.Encode(st)
		},
		update: func(ctx context.Context, name string, props, prior map[string]any) (map[string]any, error) {
			var desired C
			if err := providersdk.Decode(props, &desired); err != nil {
				return nil, err
			}
			var current S
			if err := providersdk.Decode(prior, &current); err != nil {
				return nil, err
			}
			st, err := update(ctx, name, &desired, &current)
			if err != nil {
				return nil, err
			}
			return providersdk.Encode(st)
		},
		delete: func(ctx context.Context, prior map[string]any) error {
			var current S
			if err := providersdk.Decode(prior, &current); err != nil {
				return err
			}
			return del(ctx, &current)
		},
	}
}

// nameOr returns name, or the declaration name when the property is unset.
func nameOr(name, fallback string) string {
	if name != "" {
		return name
	}
	return fallback
}

// immutable reports a property that cannot change without replacing the resource.
func immutable(typ, field, from, to string) error {
	if from == "" || from == to {
		return nil
	}
	return fmt.Errorf("%s: %s cannot change in place (%q -> %q); remove and recreate the resource", typ, field, from, to)
}
