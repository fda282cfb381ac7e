package sync

import (
	"testing"
	"time"

	"github.com/mkarpov/sshvault/internal/client/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type profileOpt func(*models.SessionProfile)

func withVersions(server, client int64) profileOpt {
	return func(p *models.SessionProfile) {
		p.Version = models.VersionPair{
			Server: models.ServerVersion(server),
			Client: models.ClientVersion(client),
		}
	}
}

func withUpdatedAt(t time.Time) profileOpt {
	return func(p *models.SessionProfile) { p.UpdatedAt = t }
}

func withTombstone(t time.Time) profileOpt {
	return func(p *models.SessionProfile) { p.DeletedAt = &t }
}

func withName(name string) profileOpt {
	return func(p *models.SessionProfile) { p.Name = name }
}

func profile(id string, opts ...profileOpt) *models.SessionProfile {
	p := &models.SessionProfile{
		ID:        id,
		Owner:     "user-1",
		Name:      "profile " + id,
		Host:      id + ".example.com",
		Port:      22,
		Username:  "ops",
		CreatedAt: t0,
		UpdatedAt: t0,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func baselineOf(server, client int64) models.VersionPair {
	return models.VersionPair{
		Server: models.ServerVersion(server),
		Client: models.ClientVersion(client),
	}
}

func TestBuildPlan_LocalOnlyUnsynced_PushCreate(t *testing.T) {
	local := profile("s1", withVersions(0, 1))
	plan := BuildPlan([]*models.SessionProfile{local}, nil, nil)

	require.Len(t, plan.PushCreates, 1)
	assert.Equal(t, "s1", plan.PushCreates[0].ID)
	assert.Empty(t, plan.PushUpdates)
	assert.Empty(t, plan.Adoptions)
	assert.Empty(t, plan.Conflicts)
}

func TestBuildPlan_LocalOnlyUnsyncedTombstone_PurgedDirectly(t *testing.T) {
	local := profile("s1", withVersions(0, 2), withTombstone(t0))
	plan := BuildPlan([]*models.SessionProfile{local}, nil, nil)

	assert.Equal(t, []string{"s1"}, plan.Purges)
	assert.Empty(t, plan.PushCreates)
	assert.Empty(t, plan.PushDeletes)
}

func TestBuildPlan_SyncedTombstoneGoneFromRemote_Purged(t *testing.T) {
	local := profile("s1", withVersions(3, 4), withTombstone(t0))
	plan := BuildPlan([]*models.SessionProfile{local}, nil,
		map[string]models.VersionPair{"s1": baselineOf(3, 4)})

	assert.Equal(t, []string{"s1"}, plan.Purges)
}

func TestBuildPlan_SyncedLiveGoneFromRemote_Recreated(t *testing.T) {
	local := profile("s1", withVersions(3, 4))
	plan := BuildPlan([]*models.SessionProfile{local}, nil,
		map[string]models.VersionPair{"s1": baselineOf(3, 4)})

	require.Len(t, plan.PushCreates, 1)
	assert.Equal(t, "s1", plan.PushCreates[0].ID)
}

func TestBuildPlan_RemoteOnly_Adopted(t *testing.T) {
	remote := profile("s2", withVersions(5, 0))
	plan := BuildPlan(nil, []*models.SessionProfile{remote}, nil)

	require.Len(t, plan.Adoptions, 1)
	assert.Equal(t, "s2", plan.Adoptions[0].remote.ID)
	assert.Nil(t, plan.Adoptions[0].local)
	assert.Empty(t, plan.Conflicts)
}

func TestBuildPlan_UnseenRemoteTombstone_AdoptedSilently(t *testing.T) {
	remote := profile("s2", withVersions(5, 0), withTombstone(t0))
	plan := BuildPlan(nil, []*models.SessionProfile{remote}, nil)

	require.Len(t, plan.Adoptions, 1)
	assert.True(t, plan.Adoptions[0].remote.Deleted())
	assert.Empty(t, plan.Conflicts)
	assert.Empty(t, plan.Purges)
}

func TestBuildPlan_BothUnchanged_NoAction(t *testing.T) {
	local := profile("s1", withVersions(3, 2))
	remote := profile("s1", withVersions(3, 0))
	plan := BuildPlan([]*models.SessionProfile{local}, []*models.SessionProfile{remote},
		map[string]models.VersionPair{"s1": baselineOf(3, 2)})

	assert.Empty(t, plan.PushCreates)
	assert.Empty(t, plan.PushUpdates)
	assert.Empty(t, plan.PushDeletes)
	assert.Empty(t, plan.Adoptions)
	assert.Empty(t, plan.Purges)
	assert.Empty(t, plan.Conflicts)
}

func TestBuildPlan_OnlyLocalAdvanced_PushUpdate(t *testing.T) {
	local := profile("s1", withVersions(3, 5), withUpdatedAt(t0.Add(time.Minute)))
	remote := profile("s1", withVersions(3, 0))
	plan := BuildPlan([]*models.SessionProfile{local}, []*models.SessionProfile{remote},
		map[string]models.VersionPair{"s1": baselineOf(3, 2)})

	require.Len(t, plan.PushUpdates, 1)
	assert.Equal(t, "s1", plan.PushUpdates[0].ID)
	assert.Empty(t, plan.Conflicts)
}

func TestBuildPlan_OnlyLocalAdvancedTombstone_PushDelete(t *testing.T) {
	local := profile("s1", withVersions(3, 5), withTombstone(t0.Add(time.Minute)))
	remote := profile("s1", withVersions(3, 0))
	plan := BuildPlan([]*models.SessionProfile{local}, []*models.SessionProfile{remote},
		map[string]models.VersionPair{"s1": baselineOf(3, 2)})

	require.Len(t, plan.PushDeletes, 1)
	assert.Empty(t, plan.PushUpdates)
}

func TestBuildPlan_OnlyRemoteAdvanced_Adopted(t *testing.T) {
	local := profile("s1", withVersions(3, 2))
	remote := profile("s1", withVersions(4, 0), withName("renamed remotely"))
	plan := BuildPlan([]*models.SessionProfile{local}, []*models.SessionProfile{remote},
		map[string]models.VersionPair{"s1": baselineOf(3, 2)})

	require.Len(t, plan.Adoptions, 1)
	assert.Equal(t, "renamed remotely", plan.Adoptions[0].remote.Name)
	assert.NotNil(t, plan.Adoptions[0].local)
	assert.Empty(t, plan.Conflicts)
}

func TestBuildPlan_Conflict_RemoteNewerWins(t *testing.T) {
	// baseline both sides at version 3; local edits name at T+5, remote
	// edits host at T+10: remote wins, local name edit is discarded
	local := profile("s1", withVersions(3, 4), withName("local name"),
		withUpdatedAt(t0.Add(5*time.Second)))
	remote := profile("s1", withVersions(4, 0), withUpdatedAt(t0.Add(10*time.Second)))
	remote.Host = "remote-edit.example.com"

	plan := BuildPlan([]*models.SessionProfile{local}, []*models.SessionProfile{remote},
		map[string]models.VersionPair{"s1": baselineOf(3, 3)})

	require.Len(t, plan.Conflicts, 1)
	assert.Equal(t, models.SideRemote, plan.Conflicts[0].Winner)
	require.Len(t, plan.Adoptions, 1)
	assert.Equal(t, "remote-edit.example.com", plan.Adoptions[0].remote.Host)
	assert.Empty(t, plan.PushUpdates)
}

func TestBuildPlan_Conflict_LocalNewerWins(t *testing.T) {
	local := profile("s1", withVersions(3, 4), withUpdatedAt(t0.Add(10*time.Second)))
	remote := profile("s1", withVersions(4, 0), withUpdatedAt(t0.Add(5*time.Second)))

	plan := BuildPlan([]*models.SessionProfile{local}, []*models.SessionProfile{remote},
		map[string]models.VersionPair{"s1": baselineOf(3, 3)})

	require.Len(t, plan.Conflicts, 1)
	assert.Equal(t, models.SideLocal, plan.Conflicts[0].Winner)
	require.Len(t, plan.PushUpdates, 1)
	assert.Empty(t, plan.Adoptions)
}

func TestBuildPlan_Conflict_TimestampTie_RemoteWins(t *testing.T) {
	at := t0.Add(7 * time.Second)
	local := profile("s1", withVersions(3, 4), withUpdatedAt(at))
	remote := profile("s1", withVersions(4, 0), withUpdatedAt(at))

	plan := BuildPlan([]*models.SessionProfile{local}, []*models.SessionProfile{remote},
		map[string]models.VersionPair{"s1": baselineOf(3, 3)})

	require.Len(t, plan.Conflicts, 1)
	assert.Equal(t, models.SideRemote, plan.Conflicts[0].Winner)
	require.Len(t, plan.Adoptions, 1)
}

func TestBuildPlan_Conflict_OlderLocalTombstoneStillWins(t *testing.T) {
	// deletion is sticky: a local tombstone beats a newer remote edit
	local := profile("s1", withVersions(3, 4),
		withTombstone(t0.Add(time.Second)), withUpdatedAt(t0.Add(time.Second)))
	remote := profile("s1", withVersions(4, 0), withUpdatedAt(t0.Add(time.Hour)))

	plan := BuildPlan([]*models.SessionProfile{local}, []*models.SessionProfile{remote},
		map[string]models.VersionPair{"s1": baselineOf(3, 3)})

	require.Len(t, plan.Conflicts, 1)
	assert.Equal(t, models.SideLocal, plan.Conflicts[0].Winner)
	assert.Equal(t, "deletion is sticky", plan.Conflicts[0].Reason)
	require.Len(t, plan.PushDeletes, 1)
	assert.Empty(t, plan.Adoptions)
}

func TestBuildPlan_Conflict_RemoteTombstoneBeatsNewerLocalEdit(t *testing.T) {
	local := profile("s1", withVersions(3, 4), withUpdatedAt(t0.Add(time.Hour)))
	remote := profile("s1", withVersions(4, 0),
		withTombstone(t0.Add(time.Second)), withUpdatedAt(t0.Add(time.Second)))

	plan := BuildPlan([]*models.SessionProfile{local}, []*models.SessionProfile{remote},
		map[string]models.VersionPair{"s1": baselineOf(3, 3)})

	require.Len(t, plan.Conflicts, 1)
	assert.Equal(t, models.SideRemote, plan.Conflicts[0].Winner)
	require.Len(t, plan.Adoptions, 1)
	assert.True(t, plan.Adoptions[0].remote.Deleted())
}

func TestBuildPlan_TombstoneConverged_Purged(t *testing.T) {
	at := t0.Add(time.Minute)
	local := profile("s1", withVersions(4, 5), withTombstone(at))
	remote := profile("s1", withVersions(5, 0), withTombstone(at))

	plan := BuildPlan([]*models.SessionProfile{local}, []*models.SessionProfile{remote},
		map[string]models.VersionPair{"s1": baselineOf(4, 5)})

	assert.Equal(t, []string{"s1"}, plan.Purges)
	assert.Empty(t, plan.Adoptions)
	assert.Empty(t, plan.PushDeletes)
	assert.Empty(t, plan.Conflicts)
}

func TestBuildPlan_TombstonesDifferentTimes_NotPurged(t *testing.T) {
	local := profile("s1", withVersions(4, 5), withTombstone(t0.Add(time.Minute)))
	remote := profile("s1", withVersions(5, 0), withTombstone(t0.Add(2*time.Minute)))

	plan := BuildPlan([]*models.SessionProfile{local}, []*models.SessionProfile{remote},
		map[string]models.VersionPair{"s1": baselineOf(4, 5)})

	assert.Empty(t, plan.Purges)
}

func TestBuildPlan_NoBaseline_BothPresent_TreatedAsConflict(t *testing.T) {
	local := profile("s1", withVersions(3, 4), withUpdatedAt(t0.Add(time.Second)))
	remote := profile("s1", withVersions(4, 0), withUpdatedAt(t0.Add(2*time.Second)))

	plan := BuildPlan([]*models.SessionProfile{local}, []*models.SessionProfile{remote}, nil)

	require.Len(t, plan.Conflicts, 1)
	assert.Equal(t, models.SideRemote, plan.Conflicts[0].Winner)
}

func TestBuildPlan_Deterministic(t *testing.T) {
	locals := []*models.SessionProfile{
		profile("b", withVersions(0, 1)),
		profile("a", withVersions(0, 1)),
	}
	p1 := BuildPlan(locals, nil, nil)
	p2 := BuildPlan([]*models.SessionProfile{locals[1], locals[0]}, nil, nil)

	require.Len(t, p1.PushCreates, 2)
	assert.Equal(t, p1.PushCreates[0].ID, p2.PushCreates[0].ID)
	assert.Equal(t, p1.PushCreates[1].ID, p2.PushCreates[1].ID)
}
