package component

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/FairGame-Network/transactor_layer/internal/api"
	"github.com/FairGame-Network/transactor_layer/internal/core"
	"github.com/FairGame-Network/transactor_layer/internal/frame"
)

type fakeSource struct {
	failures int
	attempts int
	stream   chan *core.BroadcastFrame
}

func (s *fakeSource) SubscribeEvents(_ context.Context, _ string, _ uint64) (<-chan *core.BroadcastFrame, error) {
	s.attempts++
	if s.attempts <= s.failures {
		return nil, errors.New("connection refused")
	}
	return s.stream, nil
}

func recoverFrame() *frame.RecoverCheckpointWithCredentials {
	root := core.NewVersionedData(core.GameSpec{GameAddr: "game-1"}, core.Versions{}, nil)
	return &frame.RecoverCheckpointWithCredentials{Checkpoint: core.NewCheckpoint(root)}
}

func TestSubscriberForwardsEventsAndSyncs(t *testing.T) {
	source := &fakeSource{stream: make(chan *core.BroadcastFrame, 8)}
	s := NewSubscriber("game-1", "t", 0, source, testLogger())
	h := s.Start()

	h.in <- recoverFrame()

	source.stream <- &core.BroadcastFrame{
		Kind:      core.BroadcastKindEvent,
		Event:     api.NewGameStartEvent(),
		Timestamp: 42,
	}
	got := recvFrame[*frame.SendServerEvent](t, h.out)
	require.Equal(t, api.EventGameStart, got.Event.Kind)
	require.Equal(t, uint64(42), got.Timestamp)

	source.stream <- &core.BroadcastFrame{
		Kind: core.BroadcastKindSync,
		Sync: &core.BroadcastSync{
			NewPlayers: []core.PlayerJoin{{Addr: "alice", AccessVersion: 2}},
			NewDeposits: []core.PlayerDeposit{
				{Addr: "alice", Status: core.DepositPending},
				{Addr: "bob", Status: core.DepositAccepted},
			},
			TransactorAddr: "t",
			AccessVersion:  2,
		},
	}
	sync := recvFrame[*frame.Sync](t, h.out)
	require.Len(t, sync.NewPlayers, 1)
	// Only pending deposits survive the relay.
	require.Len(t, sync.NewDeposits, 1)
	require.Equal(t, "alice", sync.NewDeposits[0].Addr)

	h.in <- &frame.Shutdown{}
	require.False(t, waitClose(t, h).IsFault())
}

func TestSubscriberReplaysBacklog(t *testing.T) {
	source := &fakeSource{stream: make(chan *core.BroadcastFrame, 8)}
	s := NewSubscriber("game-1", "t", 0, source, testLogger())
	h := s.Start()
	h.in <- recoverFrame()

	source.stream <- &core.BroadcastFrame{
		Kind: core.BroadcastKindEventHistories,
		Histories: []core.EventHistory{
			{Event: api.NewGameStartEvent(), Timestamp: 1},
			{Event: api.NewWaitingTimeoutEvent(), Timestamp: 2},
		},
	}

	first := recvFrame[*frame.SendServerEvent](t, h.out)
	require.Equal(t, api.EventGameStart, first.Event.Kind)
	second := recvFrame[*frame.SendServerEvent](t, h.out)
	require.Equal(t, api.EventWaitingTimeout, second.Event.Kind)

	h.in <- &frame.Shutdown{}
	waitClose(t, h)
}

// The drop-off path: retries exhausted, a vote is emitted, the component
// completes.
func TestSubscriberVotesAfterRetryBudget(t *testing.T) {
	source := &fakeSource{failures: 10}
	s := NewSubscriber("game-1", "t", 0, source, testLogger())
	h := s.Start()
	h.in <- recoverFrame()

	vote := recvFrame[*frame.Vote](t, h.out)
	require.Equal(t, "t", vote.Votee)
	require.Equal(t, core.ServerVoteTransactorDropOff, vote.VoteType)
	require.Equal(t, subscriberMaxRetries+1, source.attempts)
	require.False(t, waitClose(t, h).IsFault())
}

func TestSubscriberVotesWhenStreamCloses(t *testing.T) {
	source := &fakeSource{stream: make(chan *core.BroadcastFrame)}
	s := NewSubscriber("game-1", "t", 0, source, testLogger())
	h := s.Start()
	h.in <- recoverFrame()

	close(source.stream)
	vote := recvFrame[*frame.Vote](t, h.out)
	require.Equal(t, "t", vote.Votee)
	waitClose(t, h)
}
