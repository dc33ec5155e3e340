package server

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/joseph-ayodele/medical-lab/internal/common"
	"github.com/joseph-ayodele/medical-lab/internal/repository"
	"github.com/joseph-ayodele/medical-lab/internal/repository/firestore"
)

// Stores is the primary/fallback pair the pipeline routes between.
type Stores struct {
	Primary  repository.DocumentStore // nil when PRIMARY_STORE_URI is unset
	Fallback *repository.FileStore
}

func (s Stores) Close() {
	if s.Primary != nil {
		_ = s.Primary.Close()
	}
	if s.Fallback != nil {
		_ = s.Fallback.Close()
	}
}

// ConnectStores opens the fallback file store and, when configured, the
// primary store. A primary that cannot be reached is not an error: the
// pipeline checks Connected before each write.
func ConnectStores(ctx context.Context, cfg common.StoreConfig, logger *slog.Logger) (Stores, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fallback, err := repository.OpenFileStore(cfg.FallbackPath, logger)
	if err != nil {
		return Stores{}, fmt.Errorf("open fallback store: %w", err)
	}
	out := Stores{Fallback: fallback}

	uri := strings.TrimSpace(cfg.PrimaryURI)
	switch {
	case uri == "":
		logger.Warn("no primary store configured, using fallback only", "path", fallback.Path())
		return out, nil

	case strings.HasPrefix(strings.ToLower(uri), "firestore://"):
		if !strings.Contains(strings.TrimPrefix(uri, "firestore://"), "/") && cfg.PrimaryDB != "" {
			uri = uri + "/" + cfg.PrimaryDB
		}
		st, err := firestore.Open(ctx, uri, cfg.PrimaryCollection, logger)
		if err != nil {
			logger.Error("failed to open primary store", "store", "firestore", "error", err)
			return out, nil
		}
		out.Primary = st

	case repository.IsSQLURI(uri):
		st, err := repository.OpenSQL(ctx, repository.Config{
			URI:             uri,
			Table:           cfg.PrimaryCollection,
			MaxConns:        cfg.MaxConns,
			MinConns:        cfg.MinConns,
			MaxConnLifetime: cfg.MaxConnLifetime,
			MaxConnIdleTime: cfg.MaxConnIdleTime,
			DialTimeout:     cfg.DialTimeout,
		}, logger)
		if err != nil {
			logger.Error("failed to open primary store", "store", "sql", "error", err)
			return out, nil
		}
		out.Primary = st

	default:
		_ = fallback.Close()
		return Stores{}, common.NewAppError("CONFIG_ERROR", fmt.Sprintf("unsupported PRIMARY_STORE_URI scheme in %q", redact(uri)), common.ErrInvalidInput)
	}

	if out.Primary.Connected(ctx) {
		logger.Info("successfully connected to primary store", "store", out.Primary.Name())
	} else {
		logger.Warn("primary store unreachable at startup, writes go to fallback", "store", out.Primary.Name())
	}
	return out, nil
}

// redact drops credentials from a connection URI for logging.
func redact(uri string) string {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return uri
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		rest = "***" + rest[at:]
	}
	return scheme + "://" + rest
}
