package lode

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/justapithecus/lode/lode"
	lodes3 "github.com/justapithecus/lode/lode/s3"
)

// Partition keys of the dataset layout, outermost first. Every record
// written to the dataset carries all of them.
var partitionKeys = []string{"run_id", "phase", "record_kind", "element_type", "label"}

// Record kinds.
const (
	RecordKindElement = "element"
	RecordKindMetrics = "metrics"
)

// NewDataset opens a dataset over factory with the lattice layout and
// JSONL codec. Reads and writes share this layout.
func NewDataset(dataset string, factory lode.StoreFactory) (lode.Dataset, error) {
	ds, err := lode.NewDataset(
		lode.DatasetID(dataset),
		factory,
		lode.WithHiveLayout(partitionKeys...),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
	if err != nil {
		return nil, WrapInitError(err, dataset)
	}
	return ds, nil
}

// S3Config holds the S3 backend settings.
type S3Config struct {
	// Bucket is the S3 bucket name (required).
	Bucket string
	// Prefix is the key prefix within the bucket (optional).
	Prefix string
	// Region is the AWS region (optional, default chain if empty).
	Region string
	// Endpoint overrides the S3 endpoint for S3-compatible providers.
	Endpoint string
	// UsePathStyle forces path-style addressing. MinIO and R2 need it.
	UsePathStyle bool
}

// Validate checks that required S3 settings are present.
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("S3 bucket is required")
	}
	return nil
}

// ParseS3Path splits "bucket/prefix" or "bucket".
func ParseS3Path(path string) (bucket, prefix string) {
	bucket, prefix, _ = strings.Cut(path, "/")
	return bucket, prefix
}

// NewS3Factory builds a store factory over S3 using the AWS default
// credential chain (env vars, shared config, IAM role).
func NewS3Factory(ctx context.Context, cfg S3Config) (lode.StoreFactory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, WrapInitError(fmt.Errorf("failed to load AWS config: %w", err), cfg.Bucket)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = &cfg.Endpoint
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return func() (lode.Store, error) {
		return lodes3.New(client, lodes3.Config{
			Bucket: cfg.Bucket,
			Prefix: cfg.Prefix,
		})
	}, nil
}

// Backend names.
const (
	BackendFS     = "fs"
	BackendS3     = "s3"
	BackendMemory = "memory"
)

// Location selects a storage backend and where in it the dataset lives.
type Location struct {
	// Backend is fs, s3 or memory. Empty means fs.
	Backend string
	// Path is the fs root directory or the "bucket/prefix" for s3.
	Path     string
	Region   string
	Endpoint string
	// UsePathStyle applies to s3 only.
	UsePathStyle bool
}

// Factory resolves a Location to a store factory.
func Factory(ctx context.Context, loc Location) (lode.StoreFactory, error) {
	switch loc.Backend {
	case "", BackendFS:
		if loc.Path == "" {
			return nil, errors.New("fs backend requires a path")
		}
		return lode.NewFSFactory(loc.Path), nil
	case BackendS3:
		bucket, prefix := ParseS3Path(loc.Path)
		return NewS3Factory(ctx, S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       loc.Region,
			Endpoint:     loc.Endpoint,
			UsePathStyle: loc.UsePathStyle,
		})
	case BackendMemory:
		return lode.NewMemoryFactory(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", loc.Backend)
	}
}

// snapshotMatches reports whether any file of snap sits under the
// partition key=value. An empty value matches everything.
func snapshotMatches(snap *lode.DatasetSnapshot, key, value string) bool {
	if value == "" {
		return true
	}
	for _, f := range snap.Manifest.Files {
		if matchesPartitionValue(f.Path, key, value) {
			return true
		}
	}
	return false
}

// matchesPartitionValue reports whether a Hive path has the exact segment
// key=value, so run_id=run-1 never matches run_id=run-10.
func matchesPartitionValue(path, key, value string) bool {
	segment := key + "=" + value
	for part := range strings.SplitSeq(path, "/") {
		if part == segment {
			return true
		}
	}
	return false
}
