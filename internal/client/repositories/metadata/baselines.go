package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mkarpov/sshvault/internal/client/models"
)

const (
	baselineKeyPrefix = "baseline/"
	lastSyncAtKey     = "last_sync_at"
)

// Baselines persists, per profile id, the (serverVersion, clientVersion)
// pair observed at the last successful reconciliation. The reconciler
// compares current versions against these to detect which side advanced.
type Baselines struct {
	repo Repository
}

func NewBaselines(repo Repository) *Baselines {
	return &Baselines{repo: repo}
}

type baselineDTO struct {
	Server int64 `json:"server"`
	Client int64 `json:"client"`
}

// Get returns the recorded baseline for id. The second result is false when
// no baseline has been recorded, i.e. the record has never been reconciled.
func (b *Baselines) Get(ctx context.Context, id string) (models.VersionPair, bool, error) {
	raw, err := b.repo.Get(ctx, baselineKeyPrefix+id)
	if err != nil {
		return models.VersionPair{}, false, err
	}
	if raw == nil {
		return models.VersionPair{}, false, nil
	}
	var dto baselineDTO
	if err := json.Unmarshal(raw, &dto); err != nil {
		return models.VersionPair{}, false, fmt.Errorf("corrupt baseline for %s: %w", id, err)
	}
	return models.VersionPair{
		Server: models.ServerVersion(dto.Server),
		Client: models.ClientVersion(dto.Client),
	}, true, nil
}

// GetAll returns every recorded baseline keyed by profile id.
func (b *Baselines) GetAll(ctx context.Context) (map[string]models.VersionPair, error) {
	raw, err := b.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	result := make(map[string]models.VersionPair)
	for key, value := range raw {
		if !strings.HasPrefix(key, baselineKeyPrefix) {
			continue
		}
		var dto baselineDTO
		if err := json.Unmarshal(value, &dto); err != nil {
			return nil, fmt.Errorf("corrupt baseline for %s: %w", key, err)
		}
		result[strings.TrimPrefix(key, baselineKeyPrefix)] = models.VersionPair{
			Server: models.ServerVersion(dto.Server),
			Client: models.ClientVersion(dto.Client),
		}
	}
	return result, nil
}

// Set records the baseline version pair for id.
func (b *Baselines) Set(ctx context.Context, id string, v models.VersionPair) error {
	raw, err := json.Marshal(baselineDTO{Server: int64(v.Server), Client: int64(v.Client)})
	if err != nil {
		return err
	}
	return b.repo.Set(ctx, baselineKeyPrefix+id, raw)
}

// Delete removes the baseline for id, used after a purge.
func (b *Baselines) Delete(ctx context.Context, id string) error {
	return b.repo.Delete(ctx, baselineKeyPrefix+id)
}

// SetLastSyncAt records the finish time of the last successful cycle.
func (b *Baselines) SetLastSyncAt(ctx context.Context, t time.Time) error {
	return b.repo.Set(ctx, lastSyncAtKey, []byte(t.UTC().Format(time.RFC3339Nano)))
}

// LastSyncAt returns the finish time of the last successful cycle, or the
// zero time if no cycle has completed yet.
func (b *Baselines) LastSyncAt(ctx context.Context) (time.Time, error) {
	raw, err := b.repo.Get(ctx, lastSyncAtKey)
	if err != nil || raw == nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, string(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("corrupt last_sync_at: %w", err)
	}
	return t, nil
}
