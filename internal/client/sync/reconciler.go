package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mkarpov/sshvault/internal/client/gateway"
	"github.com/mkarpov/sshvault/internal/client/models"
	"github.com/mkarpov/sshvault/internal/client/repositories/metadata"
	"github.com/mkarpov/sshvault/internal/client/repositories/profiles"
	"github.com/mkarpov/sshvault/internal/common"
	"github.com/mkarpov/sshvault/internal/dbx"
	"github.com/mkarpov/sshvault/internal/logging"
)

const remotePageSize = 100

// Reconciler runs one pull-merge-push cycle at a time against the remote
// authority. All network I/O happens before any local write, so a transport
// failure always leaves the local store in its pre-cycle state.
type Reconciler struct {
	db        *sql.DB
	store     *profiles.Store
	baselines *metadata.Baselines
	gw        gateway.Gateway
	owner     string
	logger    logging.Logger
	now       func() time.Time
}

func NewReconciler(db *sql.DB, store *profiles.Store, baselines *metadata.Baselines,
	gw gateway.Gateway, owner string, logger logging.Logger) *Reconciler {
	return &Reconciler{
		db:        db,
		store:     store,
		baselines: baselines,
		gw:        gw,
		owner:     owner,
		logger:    logger.With("component", "reconciler"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Reconcile runs one full cycle: fetch all remote pages, build the plan,
// push local changes, adopt remote ones, then purge converged tombstones.
// Individual record failures are collected in the report and skipped; only
// transport-level failures abort the cycle, and those abort before any
// local mutation.
func (r *Reconciler) Reconcile(ctx context.Context) (*models.SyncReport, error) {
	report := &models.SyncReport{StartedAt: r.now()}

	local, err := r.store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing local records: %w", err)
	}
	baselines, err := r.baselines.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading baselines: %w", err)
	}
	remote, err := r.fetchRemote(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching remote records: %w", err)
	}

	plan := BuildPlan(local, remote, baselines)
	report.Conflicts = plan.Conflicts

	pushed, retries := r.push(ctx, plan, report)

	// A version conflict means the remote advanced between our fetch and
	// our push; re-fetch once and re-run classification for just those ids.
	if len(retries) > 0 {
		pushed = append(pushed, r.retryConflicted(ctx, retries, baselines, report)...)
	}

	if err := r.apply(ctx, plan, pushed, report); err != nil {
		return nil, err
	}
	r.purge(ctx, plan.Purges, report)

	report.FinishedAt = r.now()
	if err := r.baselines.SetLastSyncAt(ctx, report.FinishedAt); err != nil {
		r.logger.Warn(ctx, "failed to record sync time", "error", err)
	}

	r.logger.Info(ctx, "reconciliation complete",
		"pushed", report.Pushed, "adopted", report.Adopted, "purged", report.Purged,
		"conflicts", len(report.Conflicts), "failed", len(report.Failed))
	return report, nil
}

// fetchRemote pulls every page of the owner's records. Any error aborts the
// fetch; a partially fetched remote set is never merged.
func (r *Reconciler) fetchRemote(ctx context.Context) ([]*models.SessionProfile, error) {
	var result []*models.SessionProfile
	for page := 1; ; page++ {
		resp, err := r.gw.List(ctx, r.owner, page, remotePageSize)
		if err != nil {
			return nil, err
		}
		result = append(result, resp.Profiles...)
		if len(result) >= resp.Total || len(resp.Profiles) == 0 {
			return result, nil
		}
	}
}

// pushResult records a gateway-confirmed write awaiting local bookkeeping.
type pushResult struct {
	local     *models.SessionProfile
	confirmed models.ServerVersion
	deleted   bool
}

// push sends creates, updates, and deletes to the gateway. No local writes
// happen here. Version conflicts are returned for one re-fetch-and-retry;
// other per-record errors land in the report.
func (r *Reconciler) push(ctx context.Context, plan *Plan, report *models.SyncReport) ([]pushResult, []*models.SessionProfile) {
	var results []pushResult
	var retries []*models.SessionProfile

	for _, p := range plan.PushCreates {
		created, err := r.gw.Create(ctx, p)
		if err != nil {
			r.recordFailure(ctx, report, p.ID, err)
			continue
		}
		results = append(results, pushResult{local: p, confirmed: created.Version.Server})
	}

	for _, p := range plan.PushUpdates {
		updated, err := r.gw.Update(ctx, p.ID, p, p.Version.Server)
		switch {
		case errors.Is(err, common.ErrVersionConflict):
			retries = append(retries, p)
		case err != nil:
			r.recordFailure(ctx, report, p.ID, err)
		default:
			results = append(results, pushResult{local: p, confirmed: updated.Version.Server})
		}
	}

	for _, p := range plan.PushDeletes {
		err := r.gw.SoftDelete(ctx, p.ID, *p.DeletedAt, p.Version.Server)
		switch {
		case errors.Is(err, common.ErrVersionConflict):
			retries = append(retries, p)
		case err != nil:
			r.recordFailure(ctx, report, p.ID, err)
		default:
			// The ack carries no version; keeping the pre-push baseline
			// makes the next cycle adopt the remote tombstone, which is a
			// harmless convergence step.
			results = append(results, pushResult{local: p, confirmed: p.Version.Server, deleted: true})
		}
	}

	return results, retries
}

// retryConflicted re-fetches the remote set once and re-runs the both-sides
// classification for records whose push hit a version conflict.
func (r *Reconciler) retryConflicted(ctx context.Context, conflicted []*models.SessionProfile,
	baselines map[string]models.VersionPair, report *models.SyncReport) []pushResult {

	remote, err := r.fetchRemote(ctx)
	if err != nil {
		for _, p := range conflicted {
			r.recordFailure(ctx, report, p.ID, err)
		}
		return nil
	}
	remoteByID := make(map[string]*models.SessionProfile, len(remote))
	for _, p := range remote {
		remoteByID[p.ID] = p
	}

	var results []pushResult
	for _, p := range conflicted {
		rec, ok := remoteByID[p.ID]
		if !ok {
			r.recordFailure(ctx, report, p.ID, common.ErrVersionConflict)
			continue
		}

		sub := &Plan{}
		classifyBoth(sub, p, rec, baselines)
		report.Conflicts = append(report.Conflicts, sub.Conflicts...)

		switch {
		case len(sub.Adoptions) > 0:
			if err := r.adopt(ctx, sub.Adoptions[0], report); err == nil {
				report.Adopted++
			}
		case len(sub.PushUpdates) > 0:
			updated, err := r.gw.Update(ctx, p.ID, p, rec.Version.Server)
			if err != nil {
				r.recordFailure(ctx, report, p.ID, err)
				continue
			}
			results = append(results, pushResult{local: p, confirmed: updated.Version.Server})
		case len(sub.PushDeletes) > 0:
			if err := r.gw.SoftDelete(ctx, p.ID, *p.DeletedAt, rec.Version.Server); err != nil {
				r.recordFailure(ctx, report, p.ID, err)
				continue
			}
			results = append(results, pushResult{local: p, confirmed: rec.Version.Server, deleted: true})
		}
	}
	return results
}

// apply performs the local half of the cycle: server-confirmed versions for
// pushed records, and adoption of remote copies.
func (r *Reconciler) apply(ctx context.Context, plan *Plan, pushed []pushResult, report *models.SyncReport) error {
	now := r.now()

	for _, res := range pushed {
		confirmed := res.local.Clone()
		confirmed.Version = confirmed.Version.WithServer(res.confirmed)
		confirmed.LastSyncedAt = &now

		if err := r.store.Adopt(ctx, confirmed); err != nil {
			r.recordFailure(ctx, report, confirmed.ID, err)
			continue
		}

		baseline := confirmed.Version
		if res.deleted {
			// see push: deletes keep the pre-push server baseline
			baseline = res.local.Version
		}
		if err := r.baselines.Set(ctx, confirmed.ID, baseline); err != nil {
			r.recordFailure(ctx, report, confirmed.ID, err)
			continue
		}
		report.Pushed++
	}

	for _, a := range plan.Adoptions {
		if err := r.adopt(ctx, a, report); err == nil {
			report.Adopted++
		}
	}
	return nil
}

// adopt takes the remote copy verbatim. The client counter carries over
// from the replaced local record (zero for records new to this client), and
// the baseline converges on the adopted pair so neither side appears
// changed next cycle.
func (r *Reconciler) adopt(ctx context.Context, a *adoption, report *models.SyncReport) error {
	now := r.now()

	adopted := a.remote.Clone()
	adopted.Version = models.VersionPair{Server: a.remote.Version.Server}
	if a.local != nil {
		adopted.Version.Client = a.local.Version.Client
	}
	adopted.LastSyncedAt = &now

	if err := r.store.Adopt(ctx, adopted); err != nil {
		r.recordFailure(ctx, report, adopted.ID, err)
		return err
	}
	if err := r.baselines.Set(ctx, adopted.ID, adopted.Version); err != nil {
		r.recordFailure(ctx, report, adopted.ID, err)
		return err
	}
	return nil
}

// purge removes converged tombstones. It runs strictly after conflict
// resolution, each record inside its own transaction so the row and its
// baseline disappear together.
func (r *Reconciler) purge(ctx context.Context, ids []string, report *models.SyncReport) {
	for _, id := range ids {
		err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			repo := profiles.NewSQLiteRepository(tx)
			if err := repo.Delete(ctx, id); err != nil {
				return err
			}
			return metadata.NewBaselines(metadata.NewSQLiteRepository(tx)).Delete(ctx, id)
		})
		if err != nil {
			r.recordFailure(ctx, report, id, err)
			continue
		}
		report.Purged++
	}
}

func (r *Reconciler) recordFailure(ctx context.Context, report *models.SyncReport, id string, err error) {
	r.logger.Warn(ctx, "record skipped", "id", id, "error", err)
	report.Failed = append(report.Failed, models.RecordFailure{ID: id, Cause: err.Error()})
}
