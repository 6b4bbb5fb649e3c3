package sim

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"twopcsim/configs"
)

// TestAllCommitEndToEnd runs a full simulation with both probabilities at
// 1.0 and no early shutdown: every transaction should commit.
func TestAllCommitEndToEnd(t *testing.T) {
	cfg := Config{
		LogDir:      t.TempDir(),
		NumRequests: 5,
		ClientIDs:   []string{"client1", "client2"},
	}
	for _, id := range []string{"p1", "p2", "p3"} {
		cfg.Participants = append(cfg.Participants, ParticipantSpec{ID: id, Knobs: configs.DefaultKnobs})
	}

	var running atomic.Bool
	running.Store(true)

	mgr, err := Run(cfg, &running)
	require.NoError(t, err)

	successful, failed := mgr.Counts()
	assert.EqualValues(t, 10, successful)
	assert.EqualValues(t, 0, failed)
}

// TestOperationAlwaysFailsAborts runs a full simulation with
// operation_success_prob 0.0 everywhere: every transaction should abort.
func TestOperationAlwaysFailsAborts(t *testing.T) {
	cfg := Config{
		LogDir:      t.TempDir(),
		NumRequests: 4,
		ClientIDs:   []string{"client1"},
	}
	for _, id := range []string{"p1", "p2", "p3"} {
		cfg.Participants = append(cfg.Participants, ParticipantSpec{
			ID:    id,
			Knobs: configs.ParticipantKnobs{SendSuccessProb: 1.0, OperationSuccessProb: 0.0},
		})
	}

	var running atomic.Bool
	running.Store(true)

	mgr, err := Run(cfg, &running)
	require.NoError(t, err)

	successful, failed := mgr.Counts()
	assert.EqualValues(t, 0, successful)
	assert.EqualValues(t, 4, failed)
}

// TestLossyVotesStillConverge runs a full simulation where half of all
// participant votes never reach the coordinator (send_success_prob 0.5)
// even though every participant always chooses to commit locally
// (operation_success_prob 1.0). A transaction whose votes are dropped
// ends up aborted once the vote-collection deadline elapses, but the
// coordinator still reaches a decision -- and still replies to the
// client -- for every single request: no request should be left
// undecided just because some of its votes were lost in transit.
func TestLossyVotesStillConverge(t *testing.T) {
	cfg := Config{
		LogDir:      t.TempDir(),
		NumRequests: 5,
		ClientIDs:   []string{"client1", "client2"},
	}
	for _, id := range []string{"p1", "p2", "p3"} {
		cfg.Participants = append(cfg.Participants, ParticipantSpec{
			ID:    id,
			Knobs: configs.ParticipantKnobs{SendSuccessProb: 0.5, OperationSuccessProb: 1.0},
		})
	}

	var running atomic.Bool
	running.Store(true)

	mgr, err := Run(cfg, &running)
	require.NoError(t, err)

	successful, failed := mgr.Counts()
	assert.EqualValues(t, 10, successful+failed)
}
