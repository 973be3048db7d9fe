package aws

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/iam/types"
)

type RoleConfig struct {
	Name              string                     `json:"name"`
	Path              string                     `json:"path"`
	Description       string                     `json:"description"`
	AssumeRolePolicy  json.RawMessage            `json:"assumeRolePolicy"`
	ManagedPolicyArns []string                   `json:"managedPolicyArns"`
	InlinePolicies    map[string]json.RawMessage `json:"inlinePolicies"`
	Tags              map[string]string          `json:"tags"`
}

type RoleState struct {
	Name              string            `json:"name"`
	ARN               string            `json:"arn"`
	ID                string            `json:"id"`
	AssumeRolePolicy  string            `json:"assumeRolePolicy"`
	ManagedPolicyArns []string          `json:"managedPolicyArns,omitempty"`
	InlinePolicies    map[string]string `json:"inlinePolicies,omitempty"`
}

type InstanceProfileConfig struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Role string `json:"role"`
}

type InstanceProfileState struct {
	Name string `json:"name"`
	ARN  string `json:"arn"`
	Role string `json:"role"`
}

// Role

func (p *Provider) createRole(ctx context.Context, name string, desired *RoleConfig) (*RoleState, error) {
	roleName := nameOr(desired.Name, name)
	trust, err := policyDocument(desired.AssumeRolePolicy)
	if err != nil {
		return nil, fmt.Errorf("%s %s: assumeRolePolicy: %w", TypeRole, roleName, err)
	}
	inline, err := inlinePolicies(desired.InlinePolicies)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", TypeRole, roleName, err)
	}

	input := &iam.CreateRoleInput{
		RoleName:                 awssdk.String(roleName),
		AssumeRolePolicyDocument: awssdk.String(trust),
	}
	if desired.Path != "" {
		input.Path = awssdk.String(desired.Path)
	}
	if desired.Description != "" {
		input.Description = awssdk.String(desired.Description)
	}
	for _, k := range slices.Sorted(maps.Keys(desired.Tags)) {
		input.Tags = append(input.Tags, types.Tag{Key: awssdk.String(k), Value: awssdk.String(desired.Tags[k])})
	}

	resp, err := p.iam.CreateRole(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to create role: %w", err)
	}
	st := &RoleState{
		Name:             roleName,
		ARN:              awssdk.ToString(resp.Role.Arn),
		ID:               awssdk.ToString(resp.Role.RoleId),
		AssumeRolePolicy: trust,
	}

	for _, arn := range desired.ManagedPolicyArns {
		if err := p.attachRolePolicy(ctx, roleName, arn); err != nil {
			return nil, err
		}
		st.ManagedPolicyArns = append(st.ManagedPolicyArns, arn)
	}
	for _, policyName := range slices.Sorted(maps.Keys(inline)) {
		if err := p.putRolePolicy(ctx, roleName, policyName, inline[policyName]); err != nil {
			return nil, err
		}
	}
	st.InlinePolicies = inline
	return st, nil
}

func (p *Provider) readRole(ctx context.Context, current *RoleState) (*RoleState, error) {
	resp, err := p.iam.GetRole(ctx, &iam.GetRoleInput{RoleName: awssdk.String(current.Name)})
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	current.ARN = awssdk.ToString(resp.Role.Arn)
	current.ID = awssdk.ToString(resp.Role.RoleId)
	return current, nil
}

func (p *Provider) updateRole(ctx context.Context, name string, desired *RoleConfig, current *RoleState) (*RoleState, error) {
	if err := immutable(TypeRole, "name", current.Name, nameOr(desired.Name, name)); err != nil {
		return nil, err
	}
	trust, err := policyDocument(desired.AssumeRolePolicy)
	if err != nil {
		return nil, fmt.Errorf("%s %s: assumeRolePolicy: %w", TypeRole, current.Name, err)
	}
	inline, err := inlinePolicies(desired.InlinePolicies)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", TypeRole, current.Name, err)
	}

	if trust != current.AssumeRolePolicy {
		_, err := p.iam.UpdateAssumeRolePolicy(ctx, &iam.UpdateAssumeRolePolicyInput{
			RoleName:       awssdk.String(current.Name),
			PolicyDocument: awssdk.String(trust),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to update assume role policy: %w", err)
		}
		current.AssumeRolePolicy = trust
	}

	for _, arn := range desired.ManagedPolicyArns {
		if slices.Contains(current.ManagedPolicyArns, arn) {
			continue
		}
		if err := p.attachRolePolicy(ctx, current.Name, arn); err != nil {
			return nil, err
		}
	}
	for _, arn := range current.ManagedPolicyArns {
		if slices.Contains(desired.ManagedPolicyArns, arn) {
			continue
		}
		if err := p.detachRolePolicy(ctx, current.Name, arn); err != nil {
			return nil, err
		}
	}
	current.ManagedPolicyArns = desired.ManagedPolicyArns

	for _, policyName := range slices.Sorted(maps.Keys(inline)) {
		if current.InlinePolicies[policyName] == inline[policyName] {
			continue
		}
		if err := p.putRolePolicy(ctx, current.Name, policyName, inline[policyName]); err != nil {
			return nil, err
		}
	}
	for _, policyName := range slices.Sorted(maps.Keys(current.InlinePolicies)) {
		if _, ok := inline[policyName]; ok {
			continue
		}
		if err := p.deleteRolePolicy(ctx, current.Name, policyName); err != nil {
			return nil, err
		}
	}
	current.InlinePolicies = inline
	return current, nil
}

// deleteRole detaches the role's policies first; IAM refuses to delete a
// role with attachments.
func (p *Provider) deleteRole(ctx context.Context, current *RoleState) error {
	if current.Name == "" {
		return nil
	}
	for _, arn := range current.ManagedPolicyArns {
		if err := p.detachRolePolicy(ctx, current.Name, arn); err != nil && !isNotFound(err) {
			return err
		}
	}
	for _, policyName := range slices.Sorted(maps.Keys(current.InlinePolicies)) {
		if err := p.deleteRolePolicy(ctx, current.Name, policyName); err != nil && !isNotFound(err) {
			return err
		}
	}
	if _, err := p.iam.DeleteRole(ctx, &iam.DeleteRoleInput{RoleName: awssdk.String(current.Name)}); err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}
	return nil
}

func (p *Provider) attachRolePolicy(ctx context.Context, role, arn string) error {
	_, err := p.iam.AttachRolePolicy(ctx, &iam.AttachRolePolicyInput{
		RoleName:  awssdk.String(role),
		PolicyArn: awssdk.String(arn),
	})
	if err != nil {
		return fmt.Errorf("failed to attach %s to role %s: %w", arn, role, err)
	}
	return nil
}

func (p *Provider) detachRolePolicy(ctx context.Context, role, arn string) error {
	_, err := p.iam.DetachRolePolicy(ctx, &iam.DetachRolePolicyInput{
		RoleName:  awssdk.String(role),
		PolicyArn: awssdk.String(arn),
	})
	if err != nil {
		return fmt.Errorf("failed to detach %s from role %s: %w", arn, role, err)
	}
	return nil
}

func (p *Provider) putRolePolicy(ctx context.Context, role, policyName, doc string) error {
	_, err := p.iam.PutRolePolicy(ctx, &iam.PutRolePolicyInput{
		RoleName:       awssdk.String(role),
		PolicyName:     awssdk.String(policyName),
		PolicyDocument: awssdk.String(doc),
	})
	if err != nil {
		return fmt.Errorf("failed to put policy %s on role %s: %w", policyName, role, err)
	}
	return nil
}

func (p *Provider) deleteRolePolicy(ctx context.Context, role, policyName string) error {
	_, err := p.iam.DeleteRolePolicy(ctx, &iam.DeleteRolePolicyInput{
		RoleName:   awssdk.String(role),
		PolicyName: awssdk.String(policyName),
	})
	if err != nil {
		return fmt.Errorf("failed to delete policy %s from role %s: %w", policyName, role, err)
	}
	return nil
}

// policyDocument accepts a policy either as a JSON string or as an inline
// object and returns its compact JSON text.
func policyDocument(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return "", fmt.Errorf("policy document is required")
	}
	if raw[0] == '"' {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return "", err
		}
		raw = []byte(text)
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", fmt.Errorf("policy document is not valid JSON: %w", err)
	}
	return buf.String(), nil
}

func inlinePolicies(raw map[string]json.RawMessage) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(raw))
	for policyName, doc := range raw {
		text, err := policyDocument(doc)
		if err != nil {
			return nil, fmt.Errorf("inline policy %s: %w", policyName, err)
		}
		out[policyName] = text
	}
	return out, nil
}

// InstanceProfile

func (p *Provider) createInstanceProfile(ctx context.Context, name string, desired *InstanceProfileConfig) (*InstanceProfileState, error) {
	profileName := nameOr(desired.Name, name)
	input := &iam.CreateInstanceProfileInput{InstanceProfileName: awssdk.String(profileName)}
	if desired.Path != "" {
		input.Path = awssdk.String(desired.Path)
	}

	resp, err := p.iam.CreateInstanceProfile(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to create instance profile: %w", err)
	}
	st := &InstanceProfileState{
		Name: profileName,
		ARN:  awssdk.ToString(resp.InstanceProfile.Arn),
	}

	if desired.Role != "" {
		if err := p.addRoleToProfile(ctx, profileName, desired.Role); err != nil {
			return nil, err
		}
		st.Role = desired.Role
	}
	return st, nil
}

func (p *Provider) readInstanceProfile(ctx context.Context, current *InstanceProfileState) (*InstanceProfileState, error) {
	resp, err := p.iam.GetInstanceProfile(ctx, &iam.GetInstanceProfileInput{
		InstanceProfileName: awssdk.String(current.Name),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get instance profile: %w", err)
	}
	profile := resp.InstanceProfile
	current.ARN = awssdk.ToString(profile.Arn)
	current.Role = ""
	if len(profile.Roles) > 0 {
		current.Role = awssdk.ToString(profile.Roles[0].RoleName)
	}
	return current, nil
}

func (p *Provider) updateInstanceProfile(ctx context.Context, name string, desired *InstanceProfileConfig, current *InstanceProfileState) (*InstanceProfileState, error) {
	if err := immutable(TypeInstanceProfile, "name", current.Name, nameOr(desired.Name, name)); err != nil {
		return nil, err
	}
	if desired.Role == current.Role {
		return current, nil
	}
	if current.Role != "" {
		if err := p.removeRoleFromProfile(ctx, current.Name, current.Role); err != nil {
			return nil, err
		}
	}
	if desired.Role != "" {
		if err := p.addRoleToProfile(ctx, current.Name, desired.Role); err != nil {
			return nil, err
		}
	}
	current.Role = desired.Role
	return current, nil
}

func (p *Provider) deleteInstanceProfile(ctx context.Context, current *InstanceProfileState) error {
	if current.Name == "" {
		return nil
	}
	if current.Role != "" {
		if err := p.removeRoleFromProfile(ctx, current.Name, current.Role); err != nil && !isNotFound(err) {
			return err
		}
	}
	_, err := p.iam.DeleteInstanceProfile(ctx, &iam.DeleteInstanceProfileInput{
		InstanceProfileName: awssdk.String(current.Name),
	})
	if err != nil {
		return fmt.Errorf("failed to delete instance profile: %w", err)
	}
	return nil
}

func (p *Provider) addRoleToProfile(ctx context.Context, profile, role string) error {
	_, err := p.iam.AddRoleToInstanceProfile(ctx, &iam.AddRoleToInstanceProfileInput{
		InstanceProfileName: awssdk.String(profile),
		RoleName:            awssdk.String(role),
	})
	if err != nil {
		return fmt.Errorf("failed to add role %s to instance profile %s: %w", role, profile, err)
	}
	return nil
}

func (p *Provider) removeRoleFromProfile(ctx context.Context, profile, role string) error {
	_, err := p.iam.RemoveRoleFromInstanceProfile(ctx, &iam.RemoveRoleFromInstanceProfileInput{
		InstanceProfileName: awssdk.String(profile),
		RoleName:            awssdk.String(role),
	})
	if err != nil {
		return fmt.Errorf("failed to remove role %s from instance profile %s: %w", role, profile, err)
	}
	return nil
}
