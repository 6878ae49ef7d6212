package mirror

import (
	"context"
	"fmt"

	"threadwatch/internal/config"
	"threadwatch/internal/watch"
)

// NewMirrorFromConfig creates a Mirror implementation based on the
// mirror config type. Type "none" (or empty) returns nil, meaning
// mirroring is off.
func NewMirrorFromConfig(ctx context.Context, cfg config.MirrorConfig) (watch.Mirror, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "filesystem":
		if cfg.Path == "" {
			return nil, fmt.Errorf("filesystem mirror requires path to be set")
		}
		return NewFilesystemMirror(cfg.Path)
	case "s3":
		return NewS3Mirror(ctx, S3Options{
			Bucket:         cfg.Bucket,
			Prefix:         cfg.Prefix,
			Region:         cfg.Region,
			Endpoint:       cfg.Endpoint,
			AccessKey:      cfg.AccessKey,
			SecretKey:      cfg.SecretKey,
			ForcePathStyle: cfg.ForcePathStyle,
		})
	case "memory":
		return NewMemoryMirror(), nil
	default:
		return nil, fmt.Errorf("unknown mirror type: %s", cfg.Type)
	}
}
