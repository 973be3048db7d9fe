package aws

import (
	"context"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

const defaultSecurityGroupDescription = "Managed by quicksetup"

type VpcConfig struct {
	CidrBlock          string            `json:"cidrBlock"`
	EnableDnsHostnames bool              `json:"enableDnsHostnames"`
	Tags               map[string]string `json:"tags"`
}

type VpcState struct {
	ID                 string            `json:"id"`
	CidrBlock          string            `json:"cidrBlock"`
	EnableDnsHostnames bool              `json:"enableDnsHostnames"`
	Tags               map[string]string `json:"tags,omitempty"`
}

type SubnetConfig struct {
	VpcID               string            `json:"vpcId"`
	CidrBlock           string            `json:"cidrBlock"`
	AvailabilityZone    string            `json:"availabilityZone"`
	MapPublicIpOnLaunch bool              `json:"mapPublicIpOnLaunch"`
	Tags                map[string]string `json:"tags"`
}

type SubnetState struct {
	ID                  string            `json:"id"`
	VpcID               string            `json:"vpcId"`
	CidrBlock           string            `json:"cidrBlock"`
	AvailabilityZone    string            `json:"availabilityZone"`
	MapPublicIpOnLaunch bool              `json:"mapPublicIpOnLaunch"`
	Tags                map[string]string `json:"tags,omitempty"`
}

type SecurityGroupConfig struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	VpcID       string              `json:"vpcId"`
	Ingress     []SecurityGroupRule `json:"ingress"`
	Egress      []SecurityGroupRule `json:"egress"`
	Tags        map[string]string   `json:"tags"`
}

type SecurityGroupRule struct {
	FromPort              int      `json:"fromPort"`
	ToPort                int      `json:"toPort"`
	Protocol              string   `json:"protocol"`
	CidrBlocks            []string `json:"cidrBlocks,omitempty"`
	SourceSecurityGroupID string   `json:"sourceSecurityGroupId,omitempty"`
}

type SecurityGroupState struct {
	ID      string              `json:"id"`
	Name    string              `json:"name"`
	VpcID   string              `json:"vpcId"`
	Ingress []SecurityGroupRule `json:"ingress,omitempty"`
	Egress  []SecurityGroupRule `json:"egress,omitempty"`
	Tags    map[string]string   `json:"tags,omitempty"`
}

type InternetGatewayConfig struct {
	VpcID string            `json:"vpcId"`
	Tags  map[string]string `json:"tags"`
}

type InternetGatewayState struct {
	ID    string            `json:"id"`
	VpcID string            `json:"vpcId"`
	Tags  map[string]string `json:"tags,omitempty"`
}

type RouteTableConfig struct {
	VpcID     string            `json:"vpcId"`
	Routes    []Route           `json:"routes"`
	SubnetIDs []string          `json:"subnetIds"`
	Tags      map[string]string `json:"tags"`
}

type Route struct {
	DestinationCidrBlock string `json:"destinationCidrBlock"`
	GatewayID            string `json:"gatewayId"`
}

type RouteTableState struct {
	ID     string  `json:"id"`
	VpcID  string  `json:"vpcId"`
	Routes []Route `json:"routes,omitempty"`
	// Associations maps subnet ids to association ids.
	Associations map[string]string `json:"associations,omitempty"`
	Tags         map[string]string `json:"tags,omitempty"`
}

// Vpc

func (p *Provider) createVpc(ctx context.Context, name string, desired *VpcConfig) (*VpcState, error) {
	resp, err := p.ec2.CreateVpc(ctx, &ec2.CreateVpcInput{
		CidrBlock:         awssdk.String(desired.CidrBlock),
		TagSpecifications: tagSpecifications(types.ResourceTypeVpc, name, desired.Tags),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create VPC: %w", err)
	}
	vpcID := awssdk.ToString(resp.Vpc.VpcId)

	if desired.EnableDnsHostnames {
		if err := p.setDnsHostnames(ctx, vpcID, true); err != nil {
			return nil, err
		}
	}

	return &VpcState{
		ID:                 vpcID,
		CidrBlock:          desired.CidrBlock,
		EnableDnsHostnames: desired.EnableDnsHostnames,
		Tags:               desired.Tags,
	}, nil
}

func (p *Provider) readVpc(ctx context.Context, current *VpcState) (*VpcState, error) {
	resp, err := p.ec2.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{VpcIds: []string{current.ID}})
	if err != nil {
		return nil, fmt.Errorf("failed to describe VPC: %w", err)
	}
	if len(resp.Vpcs) == 0 {
		return nil, nil
	}
	vpc := resp.Vpcs[0]
	current.CidrBlock = awssdk.ToString(vpc.CidrBlock)
	current.Tags = userTags(vpc.Tags, current.Tags)
	return current, nil
}

func (p *Provider) updateVpc(ctx context.Context, name string, desired *VpcConfig, current *VpcState) (*VpcState, error) {
	if err := immutable(TypeVpc, "cidrBlock", current.CidrBlock, desired.CidrBlock); err != nil {
		return nil, err
	}
	if desired.EnableDnsHostnames != current.EnableDnsHostnames {
		if err := p.setDnsHostnames(ctx, current.ID, desired.EnableDnsHostnames); err != nil {
			return nil, err
		}
		current.EnableDnsHostnames = desired.EnableDnsHostnames
	}
	if err := p.retag(ctx, current.ID, current.Tags, desired.Tags); err != nil {
		return nil, err
	}
	current.Tags = desired.Tags
	return current, nil
}

func (p *Provider) deleteVpc(ctx context.Context, current *VpcState) error {
	if current.ID == "" {
		return nil
	}
	if _, err := p.ec2.DeleteVpc(ctx, &ec2.DeleteVpcInput{VpcId: awssdk.String(current.ID)}); err != nil {
		return fmt.Errorf("failed to delete VPC: %w", err)
	}
	return nil
}

func (p *Provider) setDnsHostnames(ctx context.Context, vpcID string, enabled bool) error {
	_, err := p.ec2.ModifyVpcAttribute(ctx, &ec2.ModifyVpcAttributeInput{
		VpcId:              awssdk.String(vpcID),
		EnableDnsHostnames: &types.AttributeBooleanValue{Value: awssdk.Bool(enabled)},
	})
	if err != nil {
		return fmt.Errorf("failed to set DNS hostnames on VPC %s: %w", vpcID, err)
	}
	return nil
}

// Subnet

func (p *Provider) createSubnet(ctx context.Context, name string, desired *SubnetConfig) (*SubnetState, error) {
	input := &ec2.CreateSubnetInput{
		VpcId:             awssdk.String(desired.VpcID),
		CidrBlock:         awssdk.String(desired.CidrBlock),
		TagSpecifications: tagSpecifications(types.ResourceTypeSubnet, name, desired.Tags),
	}
	if desired.AvailabilityZone != "" {
		input.AvailabilityZone = awssdk.String(desired.AvailabilityZone)
	}

	resp, err := p.ec2.CreateSubnet(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to create subnet: %w", err)
	}
	subnet := resp.Subnet
	subnetID := awssdk.ToString(subnet.SubnetId)

	if desired.MapPublicIpOnLaunch {
		if err := p.setMapPublicIp(ctx, subnetID, true); err != nil {
			return nil, err
		}
	}

	return &SubnetState{
		ID:                  subnetID,
		VpcID:               desired.VpcID,
		CidrBlock:           desired.CidrBlock,
		AvailabilityZone:    awssdk.ToString(subnet.AvailabilityZone),
		MapPublicIpOnLaunch: desired.MapPublicIpOnLaunch,
		Tags:                desired.Tags,
	}, nil
}

func (p *Provider) readSubnet(ctx context.Context, current *SubnetState) (*SubnetState, error) {
	resp, err := p.ec2.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{SubnetIds: []string{current.ID}})
	if err != nil {
		return nil, fmt.Errorf("failed to describe subnet: %w", err)
	}
	if len(resp.Subnets) == 0 {
		return nil, nil
	}
	subnet := resp.Subnets[0]
	current.VpcID = awssdk.ToString(subnet.VpcId)
	current.CidrBlock = awssdk.ToString(subnet.CidrBlock)
	current.AvailabilityZone = awssdk.ToString(subnet.AvailabilityZone)
	current.MapPublicIpOnLaunch = awssdk.ToBool(subnet.MapPublicIpOnLaunch)
	current.Tags = userTags(subnet.Tags, current.Tags)
	return current, nil
}

func (p *Provider) updateSubnet(ctx context.Context, name string, desired *SubnetConfig, current *SubnetState) (*SubnetState, error) {
	if err := immutable(TypeSubnet, "vpcId", current.VpcID, desired.VpcID); err != nil {
		return nil, err
	}
	if err := immutable(TypeSubnet, "cidrBlock", current.CidrBlock, desired.CidrBlock); err != nil {
		return nil, err
	}
	if desired.AvailabilityZone != "" {
		if err := immutable(TypeSubnet, "availabilityZone", current.AvailabilityZone, desired.AvailabilityZone); err != nil {
			return nil, err
		}
	}
	if desired.MapPublicIpOnLaunch != current.MapPublicIpOnLaunch {
		if err := p.setMapPublicIp(ctx, current.ID, desired.MapPublicIpOnLaunch); err != nil {
			return nil, err
		}
		current.MapPublicIpOnLaunch = desired.MapPublicIpOnLaunch
	}
	if err := p.retag(ctx, current.ID, current.Tags, desired.Tags); err != nil {
		return nil, err
	}
	current.Tags = desired.Tags
	return current, nil
}

func (p *Provider) deleteSubnet(ctx context.Context, current *SubnetState) error {
	if current.ID == "" {
		return nil
	}
	if _, err := p.ec2.DeleteSubnet(ctx, &ec2.DeleteSubnetInput{SubnetId: awssdk.String(current.ID)}); err != nil {
		return fmt.Errorf("failed to delete subnet: %w", err)
	}
	return nil
}

func (p *Provider) setMapPublicIp(ctx context.Context, subnetID string, enabled bool) error {
	_, err := p.ec2.ModifySubnetAttribute(ctx, &ec2.ModifySubnetAttributeInput{
		SubnetId:            awssdk.String(subnetID),
		MapPublicIpOnLaunch: &types.AttributeBooleanValue{Value: awssdk.Bool(enabled)},
	})
	if err != nil {
		return fmt.Errorf("failed to set public IP mapping on subnet %s: %w", subnetID, err)
	}
	return nil
}

// InternetGateway

func (p *Provider) createInternetGateway(ctx context.Context, name string, desired *InternetGatewayConfig) (*InternetGatewayState, error) {
	resp, err := p.ec2.CreateInternetGateway(ctx, &ec2.CreateInternetGatewayInput{
		TagSpecifications: tagSpecifications(types.ResourceTypeInternetGateway, name, desired.Tags),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create internet gateway: %w", err)
	}
	st := &InternetGatewayState{
		ID:   awssdk.ToString(resp.InternetGateway.InternetGatewayId),
		Tags: desired.Tags,
	}

	if desired.VpcID != "" {
		if err := p.attachGateway(ctx, st.ID, desired.VpcID); err != nil {
			return nil, err
		}
		st.VpcID = desired.VpcID
	}
	return st, nil
}

func (p *Provider) readInternetGateway(ctx context.Context, current *InternetGatewayState) (*InternetGatewayState, error) {
	resp, err := p.ec2.DescribeInternetGateways(ctx, &ec2.DescribeInternetGatewaysInput{
		InternetGatewayIds: []string{current.ID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe internet gateway: %w", err)
	}
	if len(resp.InternetGateways) == 0 {
		return nil, nil
	}
	igw := resp.InternetGateways[0]
	current.VpcID = ""
	if len(igw.Attachments) > 0 {
		current.VpcID = awssdk.ToString(igw.Attachments[0].VpcId)
	}
	current.Tags = userTags(igw.Tags, current.Tags)
	return current, nil
}

func (p *Provider) updateInternetGateway(ctx context.Context, name string, desired *InternetGatewayConfig, current *InternetGatewayState) (*InternetGatewayState, error) {
	if desired.VpcID != current.VpcID {
		if current.VpcID != "" {
			if err := p.detachGateway(ctx, current.ID, current.VpcID); err != nil {
				return nil, err
			}
		}
		if desired.VpcID != "" {
			if err := p.attachGateway(ctx, current.ID, desired.VpcID); err != nil {
				return nil, err
			}
		}
		current.VpcID = desired.VpcID
	}
	if err := p.retag(ctx, current.ID, current.Tags, desired.Tags); err != nil {
		return nil, err
	}
	current.Tags = desired.Tags
	return current, nil
}

func (p *Provider) deleteInternetGateway(ctx context.Context, current *InternetGatewayState) error {
	if current.ID == "" {
		return nil
	}
	if current.VpcID != "" {
		if err := p.detachGateway(ctx, current.ID, current.VpcID); err != nil && !isNotFound(err) {
			return err
		}
	}
	_, err := p.ec2.DeleteInternetGateway(ctx, &ec2.DeleteInternetGatewayInput{
		InternetGatewayId: awssdk.String(current.ID),
	})
	if err != nil {
		return fmt.Errorf("failed to delete internet gateway: %w", err)
	}
	return nil
}

func (p *Provider) attachGateway(ctx context.Context, igwID, vpcID string) error {
	_, err := p.ec2.AttachInternetGateway(ctx, &ec2.AttachInternetGatewayInput{
		InternetGatewayId: awssdk.String(igwID),
		VpcId:             awssdk.String(vpcID),
	})
	if err != nil {
		return fmt.Errorf("failed to attach internet gateway to %s: %w", vpcID, err)
	}
	return nil
}

func (p *Provider) detachGateway(ctx context.Context, igwID, vpcID string) error {
	_, err := p.ec2.DetachInternetGateway(ctx, &ec2.DetachInternetGatewayInput{
		InternetGatewayId: awssdk.String(igwID),
		VpcId:             awssdk.String(vpcID),
	})
	if err != nil {
		return fmt.Errorf("failed to detach internet gateway from %s: %w", vpcID, err)
	}
	return nil
}

// RouteTable

func (p *Provider) createRouteTable(ctx context.Context, name string, desired *RouteTableConfig) (*RouteTableState, error) {
	resp, err := p.ec2.CreateRouteTable(ctx, &ec2.CreateRouteTableInput{
		VpcId:             awssdk.String(desired.VpcID),
		TagSpecifications: tagSpecifications(types.ResourceTypeRouteTable, name, desired.Tags),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create route table: %w", err)
	}
	st := &RouteTableState{
		ID:           awssdk.ToString(resp.RouteTable.RouteTableId),
		VpcID:        desired.VpcID,
		Associations: map[string]string{},
		Tags:         desired.Tags,
	}

	for _, route := range desired.Routes {
		if err := p.createRoute(ctx, st.ID, route); err != nil {
			return nil, err
		}
		st.Routes = append(st.Routes, route)
	}
	for _, subnetID := range desired.SubnetIDs {
		assocID, err := p.associateRouteTable(ctx, st.ID, subnetID)
		if err != nil {
			return nil, err
		}
		st.Associations[subnetID] = assocID
	}
	return st, nil
}

func (p *Provider) readRouteTable(ctx context.Context, current *RouteTableState) (*RouteTableState, error) {
	resp, err := p.ec2.DescribeRouteTables(ctx, &ec2.DescribeRouteTablesInput{
		RouteTableIds: []string{current.ID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe route table: %w", err)
	}
	if len(resp.RouteTables) == 0 {
		return nil, nil
	}
	rt := resp.RouteTables[0]
	assocs := map[string]string{}
	for _, a := range rt.Associations {
		if a.SubnetId != nil {
			assocs[awssdk.ToString(a.SubnetId)] = awssdk.ToString(a.RouteTableAssociationId)
		}
	}
	current.Associations = assocs
	current.Tags = userTags(rt.Tags, current.Tags)
	return current, nil
}

func (p *Provider) updateRouteTable(ctx context.Context, name string, desired *RouteTableConfig, current *RouteTableState) (*RouteTableState, error) {
	if err := immutable(TypeRouteTable, "vpcId", current.VpcID, desired.VpcID); err != nil {
		return nil, err
	}

	prior := map[string]string{}
	for _, r := range current.Routes {
		prior[r.DestinationCidrBlock] = r.GatewayID
	}
	wanted := map[string]bool{}
	for _, route := range desired.Routes {
		wanted[route.DestinationCidrBlock] = true
		gw, exists := prior[route.DestinationCidrBlock]
		switch {
		case !exists:
			if err := p.createRoute(ctx, current.ID, route); err != nil {
				return nil, err
			}
		case gw != route.GatewayID:
			_, err := p.ec2.ReplaceRoute(ctx, &ec2.ReplaceRouteInput{
				RouteTableId:         awssdk.String(current.ID),
				DestinationCidrBlock: awssdk.String(route.DestinationCidrBlock),
				GatewayId:            awssdk.String(route.GatewayID),
			})
			if err != nil {
				return nil, fmt.Errorf("failed to replace route %s: %w", route.DestinationCidrBlock, err)
			}
		}
	}
	for _, r := range current.Routes {
		if wanted[r.DestinationCidrBlock] {
			continue
		}
		_, err := p.ec2.DeleteRoute(ctx, &ec2.DeleteRouteInput{
			RouteTableId:         awssdk.String(current.ID),
			DestinationCidrBlock: awssdk.String(r.DestinationCidrBlock),
		})
		if err != nil && !isNotFound(err) {
			return nil, fmt.Errorf("failed to delete route %s: %w", r.DestinationCidrBlock, err)
		}
	}
	current.Routes = desired.Routes

	if current.Associations == nil {
		current.Associations = map[string]string{}
	}
	subnets := map[string]bool{}
	for _, subnetID := range desired.SubnetIDs {
		subnets[subnetID] = true
		if _, ok := current.Associations[subnetID]; ok {
			continue
		}
		assocID, err := p.associateRouteTable(ctx, current.ID, subnetID)
		if err != nil {
			return nil, err
		}
		current.Associations[subnetID] = assocID
	}
	for _, subnetID := range slices.Sorted(maps.Keys(current.Associations)) {
		if subnets[subnetID] {
			continue
		}
		if err := p.disassociateRouteTable(ctx, current.Associations[subnetID]); err != nil {
			return nil, err
		}
		delete(current.Associations, subnetID)
	}

	if err := p.retag(ctx, current.ID, current.Tags, desired.Tags); err != nil {
		return nil, err
	}
	current.Tags = desired.Tags
	return current, nil
}

func (p *Provider) deleteRouteTable(ctx context.Context, current *RouteTableState) error {
	if current.ID == "" {
		return nil
	}
	for _, subnetID := range slices.Sorted(maps.Keys(current.Associations)) {
		if err := p.disassociateRouteTable(ctx, current.Associations[subnetID]); err != nil && !isNotFound(err) {
			return err
		}
	}
	if _, err := p.ec2.DeleteRouteTable(ctx, &ec2.DeleteRouteTableInput{RouteTableId: awssdk.String(current.ID)}); err != nil {
		return fmt.Errorf("failed to delete route table: %w", err)
	}
	return nil
}

func (p *Provider) createRoute(ctx context.Context, routeTableID string, route Route) error {
	_, err := p.ec2.CreateRoute(ctx, &ec2.CreateRouteInput{
		RouteTableId:         awssdk.String(routeTableID),
		DestinationCidrBlock: awssdk.String(route.DestinationCidrBlock),
		GatewayId:            awssdk.String(route.GatewayID),
	})
	if err != nil {
		return fmt.Errorf("failed to create route %s: %w", route.DestinationCidrBlock, err)
	}
	return nil
}

func (p *Provider) associateRouteTable(ctx context.Context, routeTableID, subnetID string) (string, error) {
	resp, err := p.ec2.AssociateRouteTable(ctx, &ec2.AssociateRouteTableInput{
		RouteTableId: awssdk.String(routeTableID),
		SubnetId:     awssdk.String(subnetID),
	})
	if err != nil {
		return "", fmt.Errorf("failed to associate route table with %s: %w", subnetID, err)
	}
	return awssdk.ToString(resp.AssociationId), nil
}

func (p *Provider) disassociateRouteTable(ctx context.Context, assocID string) error {
	_, err := p.ec2.DisassociateRouteTable(ctx, &ec2.DisassociateRouteTableInput{AssociationId: awssdk.String(assocID)})
	if err != nil {
		return fmt.Errorf("failed to disassociate route table (%s): %w", assocID, err)
	}
	return nil
}

// SecurityGroup

func (p *Provider) createSecurityGroup(ctx context.Context, name string, desired *SecurityGroupConfig) (*SecurityGroupState, error) {
	groupName := nameOr(desired.Name, name)
	input := &ec2.CreateSecurityGroupInput{
		GroupName:         awssdk.String(groupName),
		Description:       awssdk.String(nameOr(desired.Description, defaultSecurityGroupDescription)),
		TagSpecifications: tagSpecifications(types.ResourceTypeSecurityGroup, name, desired.Tags),
	}
	if desired.VpcID != "" {
		input.VpcId = awssdk.String(desired.VpcID)
	}

	resp, err := p.ec2.CreateSecurityGroup(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to create security group: %w", err)
	}
	st := &SecurityGroupState{
		ID:    awssdk.ToString(resp.GroupId),
		Name:  groupName,
		VpcID: desired.VpcID,
		Tags:  desired.Tags,
	}

	if err := p.authorizeRules(ctx, st.ID, desired.Ingress, desired.Egress); err != nil {
		return nil, err
	}
	st.Ingress = desired.Ingress
	st.Egress = desired.Egress
	return st, nil
}

func (p *Provider) readSecurityGroup(ctx context.Context, current *SecurityGroupState) (*SecurityGroupState, error) {
	resp, err := p.ec2.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{GroupIds: []string{current.ID}})
	if err != nil {
		return nil, fmt.Errorf("failed to describe security group: %w", err)
	}
	if len(resp.SecurityGroups) == 0 {
		return nil, nil
	}
	sg := resp.SecurityGroups[0]
	current.Name = awssdk.ToString(sg.GroupName)
	current.VpcID = awssdk.ToString(sg.VpcId)
	current.Tags = userTags(sg.Tags, current.Tags)
	return current, nil
}

func (p *Provider) updateSecurityGroup(ctx context.Context, name string, desired *SecurityGroupConfig, current *SecurityGroupState) (*SecurityGroupState, error) {
	if err := immutable(TypeSecurityGroup, "name", current.Name, nameOr(desired.Name, name)); err != nil {
		return nil, err
	}
	if err := immutable(TypeSecurityGroup, "vpcId", current.VpcID, desired.VpcID); err != nil {
		return nil, err
	}

	if !reflect.DeepEqual(current.Ingress, desired.Ingress) {
		if len(current.Ingress) > 0 {
			_, err := p.ec2.RevokeSecurityGroupIngress(ctx, &ec2.RevokeSecurityGroupIngressInput{
				GroupId:       awssdk.String(current.ID),
				IpPermissions: ipPermissions(current.Ingress),
			})
			if err != nil {
				return nil, fmt.Errorf("failed to revoke ingress: %w", err)
			}
		}
		if err := p.authorizeRules(ctx, current.ID, desired.Ingress, nil); err != nil {
			return nil, err
		}
		current.Ingress = desired.Ingress
	}
	if !reflect.DeepEqual(current.Egress, desired.Egress) {
		if len(current.Egress) > 0 {
			_, err := p.ec2.RevokeSecurityGroupEgress(ctx, &ec2.RevokeSecurityGroupEgressInput{
				GroupId:       awssdk.String(current.ID),
				IpPermissions: ipPermissions(current.Egress),
			})
			if err != nil {
				return nil, fmt.Errorf("failed to revoke egress: %w", err)
			}
		}
		if err := p.authorizeRules(ctx, current.ID, nil, desired.Egress); err != nil {
			return nil, err
		}
		current.Egress = desired.Egress
	}

	if err := p.retag(ctx, current.ID, current.Tags, desired.Tags); err != nil {
		return nil, err
	}
	current.Tags = desired.Tags
	return current, nil
}

func (p *Provider) deleteSecurityGroup(ctx context.Context, current *SecurityGroupState) error {
	if current.ID == "" {
		return nil
	}
	if _, err := p.ec2.DeleteSecurityGroup(ctx, &ec2.DeleteSecurityGroupInput{GroupId: awssdk.String(current.ID)}); err != nil {
		return fmt.Errorf("failed to delete security group: %w", err)
	}
	return nil
}

func (p *Provider) authorizeRules(ctx context.Context, groupID string, ingress, egress []SecurityGroupRule) error {
	if len(ingress) > 0 {
		_, err := p.ec2.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
			GroupId:       awssdk.String(groupID),
			IpPermissions: ipPermissions(ingress),
		})
		if err != nil {
			return fmt.Errorf("failed to authorize ingress: %w", err)
		}
	}
	if len(egress) > 0 {
		_, err := p.ec2.AuthorizeSecurityGroupEgress(ctx, &ec2.AuthorizeSecurityGroupEgressInput{
			GroupId:       awssdk.String(groupID),
			IpPermissions: ipPermissions(egress),
		})
		if err != nil {
			return fmt.Errorf("failed to authorize egress: %w", err)
		}
	}
	return nil
}

func ipPermissions(rules []SecurityGroupRule) []types.IpPermission {
	perms := make([]types.IpPermission, 0, len(rules))
	for _, rule := range rules {
		perm := types.IpPermission{
			IpProtocol: awssdk.String(rule.Protocol),
			FromPort:   awssdk.Int32(int32(rule.FromPort)),
			ToPort:     awssdk.Int32(int32(rule.ToPort)),
		}
		for _, cidr := range rule.CidrBlocks {
			perm.IpRanges = append(perm.IpRanges, types.IpRange{CidrIp: awssdk.String(cidr)})
		}
		if rule.SourceSecurityGroupID != "" {
			perm.UserIdGroupPairs = []types.UserIdGroupPair{{GroupId: awssdk.String(rule.SourceSecurityGroupID)}}
		}
		perms = append(perms, perm)
	}
	return perms
}

// Tags

// tagSpecifications tags a new EC2 resource. A Name tag defaults to the
// declaration name.
func tagSpecifications(rt types.ResourceType, name string, tags map[string]string) []types.TagSpecification {
	all := map[string]string{"Name": name}
	maps.Copy(all, tags)
	return []types.TagSpecification{{ResourceType: rt, Tags: ec2Tags(all)}}
}

func ec2Tags(tags map[string]string) []types.Tag {
	out := make([]types.Tag, 0, len(tags))
	for _, k := range slices.Sorted(maps.Keys(tags)) {
		out = append(out, types.Tag{Key: awssdk.String(k), Value: awssdk.String(tags[k])})
	}
	return out
}

// userTags drops aws: system tags and the Name tag added on create. A Name
// tag present in recorded is kept so a declared Name can drift.
func userTags(tags []types.Tag, recorded map[string]string) map[string]string {
	_, keepName := recorded["Name"]
	out := map[string]string{}
	for _, t := range tags {
		k := awssdk.ToString(t.Key)
		if (k == "Name" && !keepName) || strings.HasPrefix(k, "aws:") {
			continue
		}
		out[k] = awssdk.ToString(t.Value)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// retag moves an EC2 resource's tags from prior to desired.
func (p *Provider) retag(ctx context.Context, id string, prior, desired map[string]string) error {
	var removed []types.Tag
	for _, k := range slices.Sorted(maps.Keys(prior)) {
		if _, ok := desired[k]; !ok {
			removed = append(removed, types.Tag{Key: awssdk.String(k)})
		}
	}
	if len(removed) > 0 {
		if _, err := p.ec2.DeleteTags(ctx, &ec2.DeleteTagsInput{Resources: []string{id}, Tags: removed}); err != nil {
			return fmt.Errorf("failed to remove tags from %s: %w", id, err)
		}
	}

	changed := map[string]string{}
	for k, v := range desired {
		if old, ok := prior[k]; !ok || old != v {
			changed[k] = v
		}
	}
	if len(changed) > 0 {
		if _, err := p.ec2.CreateTags(ctx, &ec2.CreateTagsInput{Resources: []string{id}, Tags: ec2Tags(changed)}); err != nil {
			return fmt.Errorf("failed to tag %s: %w", id, err)
		}
	}
	return nil
}
