package cli

import (
	"context"
	"fmt"

	"duck-semantic/internal/db"
	"duck-semantic/internal/db/repository"
	"duck-semantic/internal/service/semantic"
)

const metastoreReadConns = 4

// session bundles a service with the resources it holds open.
type session struct {
	svc       *semantic.Service
	metastore *db.Metastore
	repo      *repository.SemanticTableRepo
}

func (s *session) Close() error {
	if s.metastore != nil {
		return s.metastore.Close()
	}
	return nil
}

// openMetastore opens the configured metastore and its table repository
// without loading a graph.
func (r *runtime) openMetastore() (*session, error) {
	ms, err := db.OpenMetastore(r.cfg.MetaDBPath, metastoreReadConns)
	if err != nil {
		return nil, fmt.Errorf("open metastore: %w", err)
	}
	repo := repository.NewSemanticTableRepo(ms.Write)
	r.logger.Debug("opened metastore", "path", r.cfg.MetaDBPath)
	return &session{
		svc:       semantic.NewService(repo, r.logger, r.serviceOptions()),
		metastore: ms,
		repo:      repo,
	}, nil
}

// openSession returns a service with an active graph, loaded from the
// metastore when --from-metastore is set and from the schema directory
// otherwise.
func (r *runtime) openSession(ctx context.Context) (*session, error) {
	if r.fromMetastore {
		s, err := r.openMetastore()
		if err != nil {
			return nil, err
		}
		if err := s.svc.LoadFromMetastore(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil
	}

	svc := semantic.NewService(nil, r.logger, r.serviceOptions())
	if err := svc.LoadFromDir(r.cfg.SchemaDir, r.loadOptions()); err != nil {
		return nil, err
	}
	return &session{svc: svc}, nil
}
