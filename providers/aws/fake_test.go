package aws

import (
	"context"
	"sync"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/codedeploy"
	"github.com/aws/aws-sdk-go-v2/service/codepipeline"
	cpTypes "github.com/aws/aws-sdk-go-v2/service/codepipeline/types"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// Fakes embed the client interface; calling an operation a fake does not
// override panics, which flags unexpected API traffic in tests.

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) record(op string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, op)
}

func (l *callLog) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func notFound(code string) error {
	return &smithy.GenericAPIError{Code: code, Message: "not found"}
}

type fakeEC2 struct {
	ec2API
	callLog

	createVpc   *ec2.CreateVpcInput
	vpcs        []ec2types.Vpc
	describeErr error
	ingress     *ec2.AuthorizeSecurityGroupIngressInput
	revoked     *ec2.RevokeSecurityGroupIngressInput
	deleteErr   error
}

func (f *fakeEC2) CreateVpc(ctx context.Context, in *ec2.CreateVpcInput, _ ...func(*ec2.Options)) (*ec2.CreateVpcOutput, error) {
	f.record("CreateVpc")
	f.createVpc = in
	return &ec2.CreateVpcOutput{Vpc: &ec2types.Vpc{VpcId: awssdk.String("vpc-123"), CidrBlock: in.CidrBlock}}, nil
}

func (f *fakeEC2) ModifyVpcAttribute(ctx context.Context, in *ec2.ModifyVpcAttributeInput, _ ...func(*ec2.Options)) (*ec2.ModifyVpcAttributeOutput, error) {
	f.record("ModifyVpcAttribute")
	return &ec2.ModifyVpcAttributeOutput{}, nil
}

func (f *fakeEC2) DescribeVpcs(ctx context.Context, in *ec2.DescribeVpcsInput, _ ...func(*ec2.Options)) (*ec2.DescribeVpcsOutput, error) {
	f.record("DescribeVpcs")
	if f.describeErr != nil {
		return nil, f.describeErr
	}
	return &ec2.DescribeVpcsOutput{Vpcs: f.vpcs}, nil
}

func (f *fakeEC2) DeleteVpc(ctx context.Context, in *ec2.DeleteVpcInput, _ ...func(*ec2.Options)) (*ec2.DeleteVpcOutput, error) {
	f.record("DeleteVpc")
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	return &ec2.DeleteVpcOutput{}, nil
}

func (f *fakeEC2) CreateTags(ctx context.Context, in *ec2.CreateTagsInput, _ ...func(*ec2.Options)) (*ec2.CreateTagsOutput, error) {
	f.record("CreateTags")
	return &ec2.CreateTagsOutput{}, nil
}

func (f *fakeEC2) DeleteTags(ctx context.Context, in *ec2.DeleteTagsInput, _ ...func(*ec2.Options)) (*ec2.DeleteTagsOutput, error) {
	f.record("DeleteTags")
	return &ec2.DeleteTagsOutput{}, nil
}

func (f *fakeEC2) CreateSecurityGroup(ctx context.Context, in *ec2.CreateSecurityGroupInput, _ ...func(*ec2.Options)) (*ec2.CreateSecurityGroupOutput, error) {
	f.record("CreateSecurityGroup")
	return &ec2.CreateSecurityGroupOutput{GroupId: awssdk.String("sg-123")}, nil
}

func (f *fakeEC2) AuthorizeSecurityGroupIngress(ctx context.Context, in *ec2.AuthorizeSecurityGroupIngressInput, _ ...func(*ec2.Options)) (*ec2.AuthorizeSecurityGroupIngressOutput, error) {
	f.record("AuthorizeSecurityGroupIngress")
	f.ingress = in
	return &ec2.AuthorizeSecurityGroupIngressOutput{}, nil
}

func (f *fakeEC2) RevokeSecurityGroupIngress(ctx context.Context, in *ec2.RevokeSecurityGroupIngressInput, _ ...func(*ec2.Options)) (*ec2.RevokeSecurityGroupIngressOutput, error) {
	f.record("RevokeSecurityGroupIngress")
	f.revoked = in
	return &ec2.RevokeSecurityGroupIngressOutput{}, nil
}

func (f *fakeEC2) CreateRouteTable(ctx context.Context, in *ec2.CreateRouteTableInput, _ ...func(*ec2.Options)) (*ec2.CreateRouteTableOutput, error) {
	f.record("CreateRouteTable")
	return &ec2.CreateRouteTableOutput{RouteTable: &ec2types.RouteTable{RouteTableId: awssdk.String("rtb-1")}}, nil
}

func (f *fakeEC2) CreateRoute(ctx context.Context, in *ec2.CreateRouteInput, _ ...func(*ec2.Options)) (*ec2.CreateRouteOutput, error) {
	f.record("CreateRoute " + awssdk.ToString(in.DestinationCidrBlock))
	return &ec2.CreateRouteOutput{}, nil
}

func (f *fakeEC2) ReplaceRoute(ctx context.Context, in *ec2.ReplaceRouteInput, _ ...func(*ec2.Options)) (*ec2.ReplaceRouteOutput, error) {
	f.record("ReplaceRoute " + awssdk.ToString(in.DestinationCidrBlock))
	return &ec2.ReplaceRouteOutput{}, nil
}

func (f *fakeEC2) DeleteRoute(ctx context.Context, in *ec2.DeleteRouteInput, _ ...func(*ec2.Options)) (*ec2.DeleteRouteOutput, error) {
	f.record("DeleteRoute " + awssdk.ToString(in.DestinationCidrBlock))
	return &ec2.DeleteRouteOutput{}, nil
}

func (f *fakeEC2) AssociateRouteTable(ctx context.Context, in *ec2.AssociateRouteTableInput, _ ...func(*ec2.Options)) (*ec2.AssociateRouteTableOutput, error) {
	f.record("AssociateRouteTable " + awssdk.ToString(in.SubnetId))
	return &ec2.AssociateRouteTableOutput{AssociationId: awssdk.String("assoc-" + awssdk.ToString(in.SubnetId))}, nil
}

func (f *fakeEC2) DisassociateRouteTable(ctx context.Context, in *ec2.DisassociateRouteTableInput, _ ...func(*ec2.Options)) (*ec2.DisassociateRouteTableOutput, error) {
	f.record("DisassociateRouteTable " + awssdk.ToString(in.AssociationId))
	return &ec2.DisassociateRouteTableOutput{}, nil
}

type fakeIAM struct {
	iamAPI
	callLog
}

func (f *fakeIAM) CreateRole(ctx context.Context, in *iam.CreateRoleInput, _ ...func(*iam.Options)) (*iam.CreateRoleOutput, error) {
	f.record("CreateRole " + awssdk.ToString(in.AssumeRolePolicyDocument))
	return &iam.CreateRoleOutput{Role: &iamtypes.Role{
		RoleName: in.RoleName,
		RoleId:   awssdk.String("AROA123"),
		Arn:      awssdk.String("arn:aws:iam::123456789012:role/" + awssdk.ToString(in.RoleName)),
	}}, nil
}

func (f *fakeIAM) AttachRolePolicy(ctx context.Context, in *iam.AttachRolePolicyInput, _ ...func(*iam.Options)) (*iam.AttachRolePolicyOutput, error) {
	f.record("AttachRolePolicy " + awssdk.ToString(in.PolicyArn))
	return &iam.AttachRolePolicyOutput{}, nil
}

func (f *fakeIAM) DetachRolePolicy(ctx context.Context, in *iam.DetachRolePolicyInput, _ ...func(*iam.Options)) (*iam.DetachRolePolicyOutput, error) {
	f.record("DetachRolePolicy " + awssdk.ToString(in.PolicyArn))
	return &iam.DetachRolePolicyOutput{}, nil
}

func (f *fakeIAM) PutRolePolicy(ctx context.Context, in *iam.PutRolePolicyInput, _ ...func(*iam.Options)) (*iam.PutRolePolicyOutput, error) {
	f.record("PutRolePolicy " + awssdk.ToString(in.PolicyName))
	return &iam.PutRolePolicyOutput{}, nil
}

func (f *fakeIAM) DeleteRolePolicy(ctx context.Context, in *iam.DeleteRolePolicyInput, _ ...func(*iam.Options)) (*iam.DeleteRolePolicyOutput, error) {
	f.record("DeleteRolePolicy " + awssdk.ToString(in.PolicyName))
	return &iam.DeleteRolePolicyOutput{}, nil
}

func (f *fakeIAM) DeleteRole(ctx context.Context, in *iam.DeleteRoleInput, _ ...func(*iam.Options)) (*iam.DeleteRoleOutput, error) {
	f.record("DeleteRole")
	return &iam.DeleteRoleOutput{}, nil
}

func (f *fakeIAM) GetRole(ctx context.Context, in *iam.GetRoleInput, _ ...func(*iam.Options)) (*iam.GetRoleOutput, error) {
	f.record("GetRole")
	return nil, notFound("NoSuchEntity")
}

type fakeS3 struct {
	s3API
	callLog

	create   *s3.CreateBucketInput
	versions []s3types.ObjectVersion
	deleted  []s3types.ObjectIdentifier
}

func (f *fakeS3) CreateBucket(ctx context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.record("CreateBucket")
	f.create = in
	return &s3.CreateBucketOutput{}, nil
}

func (f *fakeS3) PutBucketVersioning(ctx context.Context, in *s3.PutBucketVersioningInput, _ ...func(*s3.Options)) (*s3.PutBucketVersioningOutput, error) {
	f.record("PutBucketVersioning " + string(in.VersioningConfiguration.Status))
	return &s3.PutBucketVersioningOutput{}, nil
}

func (f *fakeS3) ListObjectVersions(ctx context.Context, in *s3.ListObjectVersionsInput, _ ...func(*s3.Options)) (*s3.ListObjectVersionsOutput, error) {
	f.record("ListObjectVersions")
	return &s3.ListObjectVersionsOutput{Versions: f.versions, IsTruncated: awssdk.Bool(false)}, nil
}

func (f *fakeS3) DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	f.record("DeleteObjects")
	f.deleted = append(f.deleted, in.Delete.Objects...)
	return &s3.DeleteObjectsOutput{}, nil
}

func (f *fakeS3) DeleteBucket(ctx context.Context, in *s3.DeleteBucketInput, _ ...func(*s3.Options)) (*s3.DeleteBucketOutput, error) {
	f.record("DeleteBucket")
	return &s3.DeleteBucketOutput{}, nil
}

type fakeCodeDeploy struct {
	codedeployAPI
	callLog

	createGroup *codedeploy.CreateDeploymentGroupInput
	updateGroup *codedeploy.UpdateDeploymentGroupInput
}

func (f *fakeCodeDeploy) CreateApplication(ctx context.Context, in *codedeploy.CreateApplicationInput, _ ...func(*codedeploy.Options)) (*codedeploy.CreateApplicationOutput, error) {
	f.record("CreateApplication " + string(in.ComputePlatform))
	return &codedeploy.CreateApplicationOutput{ApplicationId: awssdk.String("app-1")}, nil
}

func (f *fakeCodeDeploy) CreateDeploymentGroup(ctx context.Context, in *codedeploy.CreateDeploymentGroupInput, _ ...func(*codedeploy.Options)) (*codedeploy.CreateDeploymentGroupOutput, error) {
	f.record("CreateDeploymentGroup")
	f.createGroup = in
	return &codedeploy.CreateDeploymentGroupOutput{DeploymentGroupId: awssdk.String("dg-1")}, nil
}

func (f *fakeCodeDeploy) UpdateDeploymentGroup(ctx context.Context, in *codedeploy.UpdateDeploymentGroupInput, _ ...func(*codedeploy.Options)) (*codedeploy.UpdateDeploymentGroupOutput, error) {
	f.record("UpdateDeploymentGroup")
	f.updateGroup = in
	return &codedeploy.UpdateDeploymentGroupOutput{}, nil
}

func (f *fakeCodeDeploy) DeleteDeploymentGroup(ctx context.Context, in *codedeploy.DeleteDeploymentGroupInput, _ ...func(*codedeploy.Options)) (*codedeploy.DeleteDeploymentGroupOutput, error) {
	f.record("DeleteDeploymentGroup")
	return nil, notFound("DeploymentGroupDoesNotExistException")
}

type fakeCodePipeline struct {
	codepipelineAPI
	callLog

	created *cpTypes.PipelineDeclaration
}

func (f *fakeCodePipeline) CreatePipeline(ctx context.Context, in *codepipeline.CreatePipelineInput, _ ...func(*codepipeline.Options)) (*codepipeline.CreatePipelineOutput, error) {
	f.record("CreatePipeline")
	f.created = in.Pipeline
	decl := *in.Pipeline
	decl.Version = awssdk.Int32(1)
	return &codepipeline.CreatePipelineOutput{Pipeline: &decl}, nil
}
