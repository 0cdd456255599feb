package vectorstore

import (
	"fmt"

	"github.com/foliolabs/foliod/internal/config"
	"github.com/foliolabs/foliod/internal/logging"
)

// NewStore creates the vector store selected by cfg.Provider.
//
// An empty provider defaults to chromem so a bare config runs without any
// external service.
func NewStore(cfg config.VectorStoreConfig, logger *logging.Logger) (Store, error) {
	switch cfg.Provider {
	case "", "chromem":
		return NewChromemStore(ChromemConfig{
			Path:       cfg.Chromem.Path,
			Compress:   cfg.Chromem.Compress,
			VectorSize: cfg.Chromem.VectorSize,
		}, logger)
	case "qdrant":
		return NewQdrantStore(QdrantConfig{
			Host:           cfg.Qdrant.Host,
			Port:           cfg.Qdrant.Port,
			UseTLS:         cfg.Qdrant.UseTLS,
			APIKey:         cfg.Qdrant.APIKey.Value(),
			RequestTimeout: cfg.Qdrant.RequestTimeout.Duration(),
		}, logger)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q (supported: chromem, qdrant)", ErrInvalidConfig, cfg.Provider)
	}
}
