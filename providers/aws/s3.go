package aws

import (
	"context"
	"fmt"
	"maps"
	"slices"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type BucketConfig struct {
	Name         string            `json:"name"`
	Versioning   bool              `json:"versioning"`
	ForceDestroy bool              `json:"forceDestroy"`
	Tags         map[string]string `json:"tags"`
}

type BucketState struct {
	Name         string            `json:"name"`
	ARN          string            `json:"arn"`
	Versioning   bool              `json:"versioning"`
	ForceDestroy bool              `json:"forceDestroy"`
	Tags         map[string]string `json:"tags,omitempty"`
}

func (p *Provider) createBucket(ctx context.Context, name string, desired *BucketConfig) (*BucketState, error) {
	bucket := nameOr(desired.Name, name)
	input := &s3.CreateBucketInput{Bucket: awssdk.String(bucket)}
	// us-east-1 rejects an explicit location constraint.
	if p.region != "" && p.region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(p.region),
		}
	}
	if _, err := p.s3.CreateBucket(ctx, input); err != nil {
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	if desired.Versioning {
		if err := p.setVersioning(ctx, bucket, true); err != nil {
			return nil, err
		}
	}
	if len(desired.Tags) > 0 {
		if err := p.putBucketTags(ctx, bucket, desired.Tags); err != nil {
			return nil, err
		}
	}

	return &BucketState{
		Name:         bucket,
		ARN:          "arn:aws:s3:::" + bucket,
		Versioning:   desired.Versioning,
		ForceDestroy: desired.ForceDestroy,
		Tags:         desired.Tags,
	}, nil
}

func (p *Provider) readBucket(ctx context.Context, current *BucketState) (*BucketState, error) {
	if _, err := p.s3.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: awssdk.String(current.Name)}); err != nil {
		return nil, fmt.Errorf("failed to head bucket: %w", err)
	}
	return current, nil
}

func (p *Provider) updateBucket(ctx context.Context, name string, desired *BucketConfig, current *BucketState) (*BucketState, error) {
	if err := immutable(TypeBucket, "name", current.Name, nameOr(desired.Name, name)); err != nil {
		return nil, err
	}

	if desired.Versioning != current.Versioning {
		if err := p.setVersioning(ctx, current.Name, desired.Versioning); err != nil {
			return nil, err
		}
		current.Versioning = desired.Versioning
	}

	if !maps.Equal(current.Tags, desired.Tags) {
		if len(desired.Tags) == 0 {
			_, err := p.s3.DeleteBucketTagging(ctx, &s3.DeleteBucketTaggingInput{Bucket: awssdk.String(current.Name)})
			if err != nil {
				return nil, fmt.Errorf("failed to remove bucket tags: %w", err)
			}
		} else if err := p.putBucketTags(ctx, current.Name, desired.Tags); err != nil {
			return nil, err
		}
		current.Tags = desired.Tags
	}

	current.ForceDestroy = desired.ForceDestroy
	return current, nil
}

func (p *Provider) deleteBucket(ctx context.Context, current *BucketState) error {
	if current.Name == "" {
		return nil
	}
	if current.ForceDestroy {
		if err := p.emptyBucket(ctx, current.Name); err != nil {
			return err
		}
	}
	if _, err := p.s3.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: awssdk.String(current.Name)}); err != nil {
		return fmt.Errorf("failed to delete bucket: %w", err)
	}
	return nil
}

// emptyBucket deletes every object version and delete marker in the bucket.
func (p *Provider) emptyBucket(ctx context.Context, bucket string) error {
	input := &s3.ListObjectVersionsInput{Bucket: awssdk.String(bucket)}
	for {
		resp, err := p.s3.ListObjectVersions(ctx, input)
		if err != nil {
			return fmt.Errorf("failed to list objects in %s: %w", bucket, err)
		}

		var ids []types.ObjectIdentifier
		for _, v := range resp.Versions {
			ids = append(ids, types.ObjectIdentifier{Key: v.Key, VersionId: v.VersionId})
		}
		for _, m := range resp.DeleteMarkers {
			ids = append(ids, types.ObjectIdentifier{Key: m.Key, VersionId: m.VersionId})
		}
		if len(ids) > 0 {
			_, err := p.s3.DeleteObjects(ctx, &s3.DeleteObjectsInput{
				Bucket: awssdk.String(bucket),
				Delete: &types.Delete{Objects: ids, Quiet: awssdk.Bool(true)},
			})
			if err != nil {
				return fmt.Errorf("failed to delete objects in %s: %w", bucket, err)
			}
		}

		if !awssdk.ToBool(resp.IsTruncated) {
			return nil
		}
		input.KeyMarker = resp.NextKeyMarker
		input.VersionIdMarker = resp.NextVersionIdMarker
	}
}

func (p *Provider) setVersioning(ctx context.Context, bucket string, enabled bool) error {
	status := types.BucketVersioningStatusSuspended
	if enabled {
		status = types.BucketVersioningStatusEnabled
	}
	_, err := p.s3.PutBucketVersioning(ctx, &s3.PutBucketVersioningInput{
		Bucket:                  awssdk.String(bucket),
		VersioningConfiguration: &types.VersioningConfiguration{Status: status},
	})
	if err != nil {
		return fmt.Errorf("failed to set versioning on %s: %w", bucket, err)
	}
	return nil
}

func (p *Provider) putBucketTags(ctx context.Context, bucket string, tags map[string]string) error {
	var set []types.Tag
	for _, k := range slices.Sorted(maps.Keys(tags)) {
		set = append(set, types.Tag{Key: awssdk.String(k), Value: awssdk.String(tags[k])})
	}
	_, err := p.s3.PutBucketTagging(ctx, &s3.PutBucketTaggingInput{
		Bucket:  awssdk.String(bucket),
		Tagging: &types.Tagging{TagSet: set},
	})
	if err != nil {
		return fmt.Errorf("failed to tag bucket %s: %w", bucket, err)
	}
	return nil
}
