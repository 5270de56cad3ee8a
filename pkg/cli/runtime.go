package cli

import (
	"context"
	"fmt"

	"github.com/synaptica-ai/patientpy/pkg/common/database"
	"github.com/synaptica-ai/patientpy/pkg/common/kafka"
	"github.com/synaptica-ai/patientpy/pkg/common/logger"
	"github.com/synaptica-ai/patientpy/pkg/runs"
	"github.com/synaptica-ai/patientpy/pkg/source"
	"github.com/synaptica-ai/patientpy/pkg/storage"
	"github.com/synaptica-ai/patientpy/pkg/terminology"
	"gorm.io/gorm"
)

const catalogFromDB = "db"

// runtime holds the connections a stage opened; close releases all of them.
type runtime struct {
	db       *gorm.DB
	bq       *source.BigQuerySource
	producer *kafka.Producer
	closers  []func() error
}

func (r *runtime) close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			logger.Log.WithError(err).Warn("Failed to close connection")
		}
	}
}

// database opens the relational source once.
func (r *runtime) database() (*gorm.DB, error) {
	if r.db != nil {
		return r.db, nil
	}
	db, err := database.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open source database: %w", err)
	}
	r.db = db
	r.closers = append(r.closers, func() error { return database.Close(db) })
	return db, nil
}

func (r *runtime) source(ctx context.Context) (source.Source, error) {
	if cfg.SourceDriver == "bigquery" {
		bq, err := source.NewBigQuerySource(ctx, cfg.BigQueryProject, cfg.BigQueryDataset)
		if err != nil {
			return nil, err
		}
		r.bq = bq
		r.closers = append(r.closers, bq.Close)
		return bq, nil
	}
	db, err := r.database()
	if err != nil {
		return nil, err
	}
	return source.NewGormSource(db), nil
}

func (r *runtime) catalog(ctx context.Context) (terminology.Catalog, error) {
	if params.Catalog != catalogFromDB {
		cat, err := terminology.Load(params.Catalog)
		if err != nil {
			return terminology.Catalog{}, fmt.Errorf("load catalog: %w", err)
		}
		return cat, nil
	}
	db, err := r.database()
	if err != nil {
		return terminology.Catalog{}, err
	}
	return terminology.NewRepository(db).LoadCatalog(ctx)
}

// tracker wires the run ledger and the run announcements when configured.
func (r *runtime) tracker() *runs.Tracker {
	var repo *runs.Repository
	if cfg.LedgerEnabled {
		if cfg.SourceDriver == "bigquery" {
			logger.Log.Warn("Run ledger needs a relational database, disabled for the bigquery source")
		} else if db, err := r.database(); err != nil {
			logger.Log.WithError(err).Warn("Run ledger unavailable")
		} else {
			repo = runs.NewRepository(db)
			if err := repo.AutoMigrate(); err != nil {
				logger.Log.WithError(err).Warn("Failed to migrate run ledger")
				repo = nil
			}
		}
	}

	r.producer = kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	if r.producer != nil {
		r.closers = append(r.closers, r.producer.Close)
	}
	if repo == nil && r.producer == nil {
		return nil
	}
	var publisher runs.Publisher
	if r.producer != nil {
		publisher = r.producer
	}
	return runs.NewTracker(repo, publisher)
}

func (r *runtime) featureStore(ctx context.Context) (*storage.FeatureStore, error) {
	if !cfg.RedisEnabled() {
		return nil, fmt.Errorf("online materialization requested but REDIS_HOST is not set")
	}
	client, err := database.OpenRedis(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open redis: %w", err)
	}
	r.closers = append(r.closers, client.Close)
	return storage.NewFeatureStore(client, cfg.FeatureStoreCacheTTL), nil
}
