// Package sync implements the reconciler: it compares the local session
// store against the remote authority's records, produces a merged,
// conflict-resolved set, pushes local changes back, and purges tombstones
// once both sides have observed a deletion.
package sync

import (
	"sort"

	"github.com/mkarpov/sshvault/internal/client/models"
)

// Plan is the outcome of classifying every record id present on either
// side. Building the plan is a pure function of the two record sets and the
// recorded baselines, which keeps the merge rules unit-testable without a
// database or network.
type Plan struct {
	// PushCreates are local-only records the remote has never seen.
	PushCreates []*models.SessionProfile
	// PushUpdates are local records whose edits must be pushed.
	PushUpdates []*models.SessionProfile
	// PushDeletes are local tombstones the remote still lists as live.
	PushDeletes []*models.SessionProfile
	// Adoptions are remote records the local store should take verbatim.
	Adoptions []*adoption
	// Purges are ids whose deletion both sides have observed.
	Purges []string
	// Conflicts documents every concurrent-edit resolution in the plan.
	Conflicts []models.ConflictResolution
}

// adoption pairs the remote copy to adopt with the local record it replaces
// (nil when the id is new to this client).
type adoption struct {
	remote *models.SessionProfile
	local  *models.SessionProfile
}

// BuildPlan classifies every record id present locally or remotely.
// baselines maps ids to the version pair recorded at the last successful
// reconciliation; ids absent from the map have never been reconciled.
func BuildPlan(local, remote []*models.SessionProfile, baselines map[string]models.VersionPair) *Plan {
	localByID := make(map[string]*models.SessionProfile, len(local))
	for _, p := range local {
		localByID[p.ID] = p
	}
	remoteByID := make(map[string]*models.SessionProfile, len(remote))
	for _, p := range remote {
		remoteByID[p.ID] = p
	}

	ids := make([]string, 0, len(localByID)+len(remoteByID))
	for id := range localByID {
		ids = append(ids, id)
	}
	for id := range remoteByID {
		if _, ok := localByID[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	plan := &Plan{}
	for _, id := range ids {
		classify(plan, localByID[id], remoteByID[id], baselines)
	}
	return plan
}

func classify(plan *Plan, local, remote *models.SessionProfile, baselines map[string]models.VersionPair) {
	switch {
	case remote == nil:
		classifyLocalOnly(plan, local)
	case local == nil:
		// New to this client; an unseen remote tombstone is adopted
		// silently so convergence bookkeeping still happens, without
		// surfacing a user-visible deletion.
		plan.Adoptions = append(plan.Adoptions, &adoption{remote: remote})
	default:
		classifyBoth(plan, local, remote, baselines)
	}
}

func classifyLocalOnly(plan *Plan, local *models.SessionProfile) {
	switch {
	case !local.Version.Synced() && local.Deleted():
		// Created and deleted before ever reaching the remote; nothing to
		// converge, the tombstone can go straight away.
		plan.Purges = append(plan.Purges, local.ID)
	case !local.Version.Synced():
		plan.PushCreates = append(plan.PushCreates, local)
	case local.Deleted():
		// Was synced, now missing remotely: the remote has already purged
		// its side of the tombstone.
		plan.Purges = append(plan.Purges, local.ID)
	default:
		// Synced but gone from the remote listing. The remote lost it;
		// re-create rather than silently dropping the user's record.
		plan.PushCreates = append(plan.PushCreates, local)
	}
}

func classifyBoth(plan *Plan, local, remote *models.SessionProfile, baselines map[string]models.VersionPair) {
	// Both sides reporting the same deletion means every replica has
	// observed it; the tombstone is purgeable no matter which version
	// counters moved.
	if tombstoneConverged(local, remote) {
		plan.Purges = append(plan.Purges, local.ID)
		return
	}

	baseline, haveBaseline := baselines[local.ID]

	localChanged := !haveBaseline || local.Version.Client > baseline.Client
	remoteChanged := !haveBaseline || remote.Version.Server > baseline.Server

	switch {
	case !localChanged && !remoteChanged:
		// nothing moved since the last reconciliation
	case localChanged && !remoteChanged:
		plan.appendPush(local)
	case !localChanged && remoteChanged:
		plan.Adoptions = append(plan.Adoptions, &adoption{remote: remote, local: local})
	default:
		winner, reason := resolveConflict(local, remote)
		plan.Conflicts = append(plan.Conflicts, models.ConflictResolution{
			ID: local.ID, Winner: winner, Reason: reason,
		})
		if winner == models.SideLocal {
			plan.appendPush(local)
		} else {
			plan.Adoptions = append(plan.Adoptions, &adoption{remote: remote, local: local})
		}
	}
}

func (p *Plan) appendPush(local *models.SessionProfile) {
	if local.Deleted() {
		p.PushDeletes = append(p.PushDeletes, local)
	} else {
		p.PushUpdates = append(p.PushUpdates, local)
	}
}

// resolveConflict decides a true conflict: both sides advanced since the
// baseline. Last writer wins on UpdatedAt, the remote copy wins ties (the
// remote authority is the convergence point for all clients). A tombstone
// beats a live edit regardless of timestamps: deletion is sticky, so a
// profile never resurrects with stale credentials after the user removed it.
func resolveConflict(local, remote *models.SessionProfile) (models.Side, string) {
	switch {
	case local.Deleted() && !remote.Deleted():
		return models.SideLocal, "deletion is sticky"
	case remote.Deleted() && !local.Deleted():
		return models.SideRemote, "deletion is sticky"
	case local.UpdatedAt.After(remote.UpdatedAt):
		return models.SideLocal, "newer local edit"
	case remote.UpdatedAt.After(local.UpdatedAt):
		return models.SideRemote, "newer remote edit"
	default:
		return models.SideRemote, "timestamp tie, remote authority wins"
	}
}

// tombstoneConverged reports whether both sides carry the same deletion,
// which makes the tombstone purgeable.
func tombstoneConverged(local, remote *models.SessionProfile) bool {
	return local.Deleted() && remote.Deleted() && local.DeletedAt.Equal(*remote.DeletedAt)
}
