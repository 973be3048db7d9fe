package aws

import (
	"context"
	"fmt"
	"maps"
	"reflect"
	"slices"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"
)

type LoadBalancerConfig struct {
	Name           string            `json:"name"`
	Type           string            `json:"type"`
	Scheme         string            `json:"scheme"`
	Subnets        []string          `json:"subnets"`
	SecurityGroups []string          `json:"securityGroups"`
	Tags           map[string]string `json:"tags"`
}

type LoadBalancerState struct {
	Name           string            `json:"name"`
	ARN            string            `json:"arn"`
	DNS            string            `json:"dns"`
	VpcID          string            `json:"vpcId"`
	Subnets        []string          `json:"subnets,omitempty"`
	SecurityGroups []string          `json:"securityGroups,omitempty"`
	Tags           map[string]string `json:"tags,omitempty"`
}

type TargetGroupConfig struct {
	Name        string            `json:"name"`
	Port        int               `json:"port"`
	Protocol    string            `json:"protocol"`
	VpcID       string            `json:"vpcId"`
	TargetType  string            `json:"targetType"`
	HealthCheck HealthCheck       `json:"healthCheck"`
	Tags        map[string]string `json:"tags"`
}

type HealthCheck struct {
	Path               string `json:"path"`
	Matcher            string `json:"matcher"`
	IntervalSeconds    int    `json:"intervalSeconds"`
	HealthyThreshold   int    `json:"healthyThreshold"`
	UnhealthyThreshold int    `json:"unhealthyThreshold"`
}

type TargetGroupState struct {
	Name        string            `json:"name"`
	ARN         string            `json:"arn"`
	Port        int               `json:"port"`
	Protocol    string            `json:"protocol"`
	VpcID       string            `json:"vpcId"`
	HealthCheck HealthCheck       `json:"healthCheck"`
	Tags        map[string]string `json:"tags,omitempty"`
}

type ListenerConfig struct {
	LoadBalancerArn string   `json:"loadBalancerArn"`
	Port            int      `json:"port"`
	Protocol        string   `json:"protocol"`
	CertificateArn  string   `json:"certificateArn"`
	DefaultActions  []Action `json:"defaultActions"`
}

type Action struct {
	Type           string `json:"type"`
	TargetGroupArn string `json:"targetGroupArn"`
}

type ListenerState struct {
	ARN             string   `json:"arn"`
	LoadBalancerArn string   `json:"loadBalancerArn"`
	Port            int      `json:"port"`
	Protocol        string   `json:"protocol"`
	DefaultActions  []Action `json:"defaultActions,omitempty"`
}

// LoadBalancer

func (p *Provider) createLoadBalancer(ctx context.Context, name string, desired *LoadBalancerConfig) (*LoadBalancerState, error) {
	input := &elbv2.CreateLoadBalancerInput{
		Name:           awssdk.String(nameOr(desired.Name, name)),
		Subnets:        desired.Subnets,
		SecurityGroups: desired.SecurityGroups,
		Tags:           elbTags(desired.Tags),
	}
	if desired.Scheme != "" {
		input.Scheme = types.LoadBalancerSchemeEnum(desired.Scheme)
	}
	if desired.Type != "" {
		input.Type = types.LoadBalancerTypeEnum(desired.Type)
	}

	resp, err := p.elbv2.CreateLoadBalancer(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to create load balancer: %w", err)
	}
	if len(resp.LoadBalancers) == 0 {
		return nil, fmt.Errorf("failed to create load balancer: empty response")
	}

	lb := resp.LoadBalancers[0]
	return &LoadBalancerState{
		Name:           awssdk.ToString(lb.LoadBalancerName),
		ARN:            awssdk.ToString(lb.LoadBalancerArn),
		DNS:            awssdk.ToString(lb.DNSName),
		VpcID:          awssdk.ToString(lb.VpcId),
		Subnets:        desired.Subnets,
		SecurityGroups: desired.SecurityGroups,
		Tags:           desired.Tags,
	}, nil
}

func (p *Provider) readLoadBalancer(ctx context.Context, current *LoadBalancerState) (*LoadBalancerState, error) {
	resp, err := p.elbv2.DescribeLoadBalancers(ctx, &elbv2.DescribeLoadBalancersInput{
		LoadBalancerArns: []string{current.ARN},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe load balancer: %w", err)
	}
	if len(resp.LoadBalancers) == 0 {
		return nil, nil
	}
	lb := resp.LoadBalancers[0]
	current.DNS = awssdk.ToString(lb.DNSName)
	current.VpcID = awssdk.ToString(lb.VpcId)
	current.SecurityGroups = lb.SecurityGroups
	return current, nil
}

func (p *Provider) updateLoadBalancer(ctx context.Context, name string, desired *LoadBalancerConfig, current *LoadBalancerState) (*LoadBalancerState, error) {
	if err := immutable(TypeLoadBalancer, "name", current.Name, nameOr(desired.Name, name)); err != nil {
		return nil, err
	}

	if !slices.Equal(current.SecurityGroups, desired.SecurityGroups) {
		_, err := p.elbv2.SetSecurityGroups(ctx, &elbv2.SetSecurityGroupsInput{
			LoadBalancerArn: awssdk.String(current.ARN),
			SecurityGroups:  desired.SecurityGroups,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to set load balancer security groups: %w", err)
		}
		current.SecurityGroups = desired.SecurityGroups
	}
	if !slices.Equal(current.Subnets, desired.Subnets) {
		_, err := p.elbv2.SetSubnets(ctx, &elbv2.SetSubnetsInput{
			LoadBalancerArn: awssdk.String(current.ARN),
			Subnets:         desired.Subnets,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to set load balancer subnets: %w", err)
		}
		current.Subnets = desired.Subnets
	}

	if err := p.retagELB(ctx, current.ARN, current.Tags, desired.Tags); err != nil {
		return nil, err
	}
	current.Tags = desired.Tags
	return current, nil
}

func (p *Provider) deleteLoadBalancer(ctx context.Context, current *LoadBalancerState) error {
	if current.ARN == "" {
		return nil
	}
	_, err := p.elbv2.DeleteLoadBalancer(ctx, &elbv2.DeleteLoadBalancerInput{LoadBalancerArn: awssdk.String(current.ARN)})
	if err != nil {
		return fmt.Errorf("failed to delete load balancer: %w", err)
	}
	return nil
}

// TargetGroup

func (p *Provider) createTargetGroup(ctx context.Context, name string, desired *TargetGroupConfig) (*TargetGroupState, error) {
	input := &elbv2.CreateTargetGroupInput{
		Name:     awssdk.String(nameOr(desired.Name, name)),
		Port:     awssdk.Int32(int32(desired.Port)),
		Protocol: types.ProtocolEnum(desired.Protocol),
		VpcId:    awssdk.String(desired.VpcID),
		Tags:     elbTags(desired.Tags),
	}
	if desired.TargetType != "" {
		input.TargetType = types.TargetTypeEnum(desired.TargetType)
	}
	hc := desired.HealthCheck
	if hc.Path != "" {
		input.HealthCheckPath = awssdk.String(hc.Path)
	}
	if hc.Matcher != "" {
		input.Matcher = &types.Matcher{HttpCode: awssdk.String(hc.Matcher)}
	}
	if hc.IntervalSeconds > 0 {
		input.HealthCheckIntervalSeconds = awssdk.Int32(int32(hc.IntervalSeconds))
	}
	if hc.HealthyThreshold > 0 {
		input.HealthyThresholdCount = awssdk.Int32(int32(hc.HealthyThreshold))
	}
	if hc.UnhealthyThreshold > 0 {
		input.UnhealthyThresholdCount = awssdk.Int32(int32(hc.UnhealthyThreshold))
	}

	resp, err := p.elbv2.CreateTargetGroup(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to create target group: %w", err)
	}
	if len(resp.TargetGroups) == 0 {
		return nil, fmt.Errorf("failed to create target group: empty response")
	}

	tg := resp.TargetGroups[0]
	return &TargetGroupState{
		Name:        awssdk.ToString(tg.TargetGroupName),
		ARN:         awssdk.ToString(tg.TargetGroupArn),
		Port:        desired.Port,
		Protocol:    desired.Protocol,
		VpcID:       desired.VpcID,
		HealthCheck: desired.HealthCheck,
		Tags:        desired.Tags,
	}, nil
}

func (p *Provider) readTargetGroup(ctx context.Context, current *TargetGroupState) (*TargetGroupState, error) {
	resp, err := p.elbv2.DescribeTargetGroups(ctx, &elbv2.DescribeTargetGroupsInput{
		TargetGroupArns: []string{current.ARN},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe target group: %w", err)
	}
	if len(resp.TargetGroups) == 0 {
		return nil, nil
	}
	tg := resp.TargetGroups[0]
	current.Port = int(awssdk.ToInt32(tg.Port))
	current.Protocol = string(tg.Protocol)
	current.VpcID = awssdk.ToString(tg.VpcId)
	return current, nil
}

func (p *Provider) updateTargetGroup(ctx context.Context, name string, desired *TargetGroupConfig, current *TargetGroupState) (*TargetGroupState, error) {
	if err := immutable(TypeTargetGroup, "name", current.Name, nameOr(desired.Name, name)); err != nil {
		return nil, err
	}
	if err := immutable(TypeTargetGroup, "vpcId", current.VpcID, desired.VpcID); err != nil {
		return nil, err
	}
	if current.Port != 0 && current.Port != desired.Port {
		return nil, fmt.Errorf("%s: port cannot change in place (%d -> %d); remove and recreate the resource", TypeTargetGroup, current.Port, desired.Port)
	}

	if !reflect.DeepEqual(current.HealthCheck, desired.HealthCheck) {
		hc := desired.HealthCheck
		input := &elbv2.ModifyTargetGroupInput{TargetGroupArn: awssdk.String(current.ARN)}
		if hc.Path != "" {
			input.HealthCheckPath = awssdk.String(hc.Path)
		}
		if hc.Matcher != "" {
			input.Matcher = &types.Matcher{HttpCode: awssdk.String(hc.Matcher)}
		}
		if hc.IntervalSeconds > 0 {
			input.HealthCheckIntervalSeconds = awssdk.Int32(int32(hc.IntervalSeconds))
		}
		if hc.HealthyThreshold > 0 {
			input.HealthyThresholdCount = awssdk.Int32(int32(hc.HealthyThreshold))
		}
		if hc.UnhealthyThreshold > 0 {
			input.UnhealthyThresholdCount = awssdk.Int32(int32(hc.UnhealthyThreshold))
		}
		if _, err := p.elbv2.ModifyTargetGroup(ctx, input); err != nil {
			return nil, fmt.Errorf("failed to modify target group: %w", err)
		}
		current.HealthCheck = desired.HealthCheck
	}

	if err := p.retagELB(ctx, current.ARN, current.Tags, desired.Tags); err != nil {
		return nil, err
	}
	current.Tags = desired.Tags
	return current, nil
}

func (p *Provider) deleteTargetGroup(ctx context.Context, current *TargetGroupState) error {
	if current.ARN == "" {
		return nil
	}
	_, err := p.elbv2.DeleteTargetGroup(ctx, &elbv2.DeleteTargetGroupInput{TargetGroupArn: awssdk.String(current.ARN)})
	if err != nil {
		return fmt.Errorf("failed to delete target group: %w", err)
	}
	return nil
}

// Listener

func (p *Provider) createListener(ctx context.Context, name string, desired *ListenerConfig) (*ListenerState, error) {
	input := &elbv2.CreateListenerInput{
		LoadBalancerArn: awssdk.String(desired.LoadBalancerArn),
		Port:            awssdk.Int32(int32(desired.Port)),
		Protocol:        types.ProtocolEnum(desired.Protocol),
		DefaultActions:  listenerActions(desired.DefaultActions),
	}
	if desired.CertificateArn != "" {
		input.Certificates = []types.Certificate{{CertificateArn: awssdk.String(desired.CertificateArn)}}
	}

	resp, err := p.elbv2.CreateListener(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to create listener: %w", err)
	}
	if len(resp.Listeners) == 0 {
		return nil, fmt.Errorf("failed to create listener: empty response")
	}

	return &ListenerState{
		ARN:             awssdk.ToString(resp.Listeners[0].ListenerArn),
		LoadBalancerArn: desired.LoadBalancerArn,
		Port:            desired.Port,
		Protocol:        desired.Protocol,
		DefaultActions:  desired.DefaultActions,
	}, nil
}

func (p *Provider) readListener(ctx context.Context, current *ListenerState) (*ListenerState, error) {
	resp, err := p.elbv2.DescribeListeners(ctx, &elbv2.DescribeListenersInput{
		ListenerArns: []string{current.ARN},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe listener: %w", err)
	}
	if len(resp.Listeners) == 0 {
		return nil, nil
	}
	l := resp.Listeners[0]
	current.Port = int(awssdk.ToInt32(l.Port))
	current.Protocol = string(l.Protocol)
	return current, nil
}

func (p *Provider) updateListener(ctx context.Context, name string, desired *ListenerConfig, current *ListenerState) (*ListenerState, error) {
	if err := immutable(TypeListener, "loadBalancerArn", current.LoadBalancerArn, desired.LoadBalancerArn); err != nil {
		return nil, err
	}

	input := &elbv2.ModifyListenerInput{
		ListenerArn:    awssdk.String(current.ARN),
		Port:           awssdk.Int32(int32(desired.Port)),
		Protocol:       types.ProtocolEnum(desired.Protocol),
		DefaultActions: listenerActions(desired.DefaultActions),
	}
	if desired.CertificateArn != "" {
		input.Certificates = []types.Certificate{{CertificateArn: awssdk.String(desired.CertificateArn)}}
	}
	if _, err := p.elbv2.ModifyListener(ctx, input); err != nil {
		return nil, fmt.Errorf("failed to modify listener: %w", err)
	}

	current.Port = desired.Port
	current.Protocol = desired.Protocol
	current.DefaultActions = desired.DefaultActions
	return current, nil
}

func (p *Provider) deleteListener(ctx context.Context, current *ListenerState) error {
	if current.ARN == "" {
		return nil
	}
	_, err := p.elbv2.DeleteListener(ctx, &elbv2.DeleteListenerInput{ListenerArn: awssdk.String(current.ARN)})
	if err != nil {
		return fmt.Errorf("failed to delete listener: %w", err)
	}
	return nil
}

func listenerActions(actions []Action) []types.Action {
	out := make([]types.Action, 0, len(actions))
	for _, a := range actions {
		typ := a.Type
		if typ == "" {
			typ = string(types.ActionTypeEnumForward)
		}
		out = append(out, types.Action{
			Type:           types.ActionTypeEnum(typ),
			TargetGroupArn: awssdk.String(a.TargetGroupArn),
		})
	}
	return out
}

func elbTags(tags map[string]string) []types.Tag {
	if len(tags) == 0 {
		return nil
	}
	out := make([]types.Tag, 0, len(tags))
	for _, k := range slices.Sorted(maps.Keys(tags)) {
		out = append(out, types.Tag{Key: awssdk.String(k), Value: awssdk.String(tags[k])})
	}
	return out
}

func (p *Provider) retagELB(ctx context.Context, arn string, prior, desired map[string]string) error {
	var removed []string
	for _, k := range slices.Sorted(maps.Keys(prior)) {
		if _, ok := desired[k]; !ok {
			removed = append(removed, k)
		}
	}
	if len(removed) > 0 {
		_, err := p.elbv2.RemoveTags(ctx, &elbv2.RemoveTagsInput{ResourceArns: []string{arn}, TagKeys: removed})
		if err != nil {
			return fmt.Errorf("failed to remove tags from %s: %w", arn, err)
		}
	}
	if len(desired) > 0 && !maps.Equal(prior, desired) {
		_, err := p.elbv2.AddTags(ctx, &elbv2.AddTagsInput{ResourceArns: []string{arn}, Tags: elbTags(desired)})
		if err != nil {
			return fmt.Errorf("failed to tag %s: %w", arn, err)
		}
	}
	return nil
}
