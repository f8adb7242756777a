package sqlfx

import (
	"github.com/jmoiron/sqlx"
	"go.uber.org/fx"

	"github.com/yurykabanov/transferd/pkg/domain"
	"github.com/yurykabanov/transferd/pkg/storage"
)

func HostRepositoryProvider(db *sqlx.DB) domain.HostRepository {
	return storage.NewHostRepository(db)
}

func JobRepositoryProvider(db *sqlx.DB) domain.JobRepository {
	return storage.NewJobRepository(db)
}

func SessionRepositoryProvider(db *sqlx.DB) domain.SessionRepository {
	return storage.NewSessionRepository(db)
}

func ArchiveStoreConfigRepositoryProvider(db *sqlx.DB) domain.ArchiveStoreConfigRepository {
	return storage.NewArchiveStoreConfigRepository(db)
}

var Module = fx.Options(
	fx.Provide(SqliteConfigProvider),
	fx.Provide(OpenSqliteDatabase),
	fx.Provide(HostRepositoryProvider),
	fx.Provide(JobRepositoryProvider),
	fx.Provide(SessionRepositoryProvider),
	fx.Provide(ArchiveStoreConfigRepositoryProvider),
	fx.Invoke(CloseSqliteDatabase),
)
