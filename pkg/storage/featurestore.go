package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/synaptica-ai/patientpy/pkg/common/logger"
	"github.com/synaptica-ai/patientpy/pkg/common/models"
)

var ErrFeaturesNotFound = errors.New("feature vector not found")

// KV is the subset of the redis client the feature store uses.
type KV interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// FeatureStore keeps the latest feature vector of each case in Redis for
// low-latency lookups.
type FeatureStore struct {
	client   KV
	cacheTTL time.Duration
}

func NewFeatureStore(client KV, ttl time.Duration) *FeatureStore {
	return &FeatureStore{client: client, cacheTTL: ttl}
}

func FeatureKey(caseID string) string {
	return fmt.Sprintf("features:%s", caseID)
}

func (f *FeatureStore) Materialize(ctx context.Context, vector models.FeatureVector) error {
	data, err := json.Marshal(vector)
	if err != nil {
		return err
	}
	key := FeatureKey(vector.CaseID)
	logger.Log.WithFields(map[string]interface{}{
		"key":  key,
		"size": len(data),
	}).Debug("Caching features")
	return f.client.Set(ctx, key, data, f.cacheTTL).Err()
}

func (f *FeatureStore) Get(ctx context.Context, caseID string) (models.FeatureVector, error) {
	data, err := f.client.Get(ctx, FeatureKey(caseID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.FeatureVector{}, fmt.Errorf("%s: %w", caseID, ErrFeaturesNotFound)
	}
	if err != nil {
		return models.FeatureVector{}, err
	}
	var vector models.FeatureVector
	if err := json.Unmarshal(data, &vector); err != nil {
		return models.FeatureVector{}, fmt.Errorf("decode features of %s: %w", caseID, err)
	}
	return vector, nil
}
