package journal

import (
	"context"
	"fmt"

	"github.com/dd0wney/cluso-pgha/pkg/config"
	"github.com/dd0wney/cluso-pgha/pkg/secrets"
)

// Open builds the journal selected by cfg.Backend
func Open(ctx context.Context, cfg config.JournalConfig, sec secrets.Resolver) (Journal, error) {
	switch cfg.Backend {
	case "", "none":
		return Nop{}, nil
	case "memory":
		return NewMemory(), nil
	case "badger":
		return OpenBadger(cfg.Path, cfg.LockTimeout)
	case "s3":
		opts := S3Options{
			Bucket:   cfg.Bucket,
			Prefix:   cfg.Prefix,
			Region:   cfg.Region,
			Endpoint: cfg.Endpoint,
		}
		// Keys are optional; without them the default AWS chain applies.
		opts.AccessKey, _ = sec.Find(cfg.AccessKeySecret)
		opts.SecretKey, _ = sec.Find(cfg.SecretKeySecret)
		return OpenS3(ctx, opts)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}
