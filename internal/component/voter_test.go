package component

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/FairGame-Network/transactor_layer/internal/core"
	"github.com/FairGame-Network/transactor_layer/internal/frame"
	"github.com/FairGame-Network/transactor_layer/internal/transport"
)

func TestVoterSubmitsAndShutsDown(t *testing.T) {
	tp := transport.NewMemory()
	v := NewVoter("game-1", "v1", tp, testLogger())
	h := v.Start()

	h.in <- &frame.Vote{Votee: "t", VoteType: core.ServerVoteTransactorDropOff}

	recvFrame[*frame.Shutdown](t, h.out)
	require.Len(t, tp.VoteCalls, 1)
	require.Equal(t, "t", tp.VoteCalls[0].VoteeAddr)
	require.Equal(t, "v1", tp.VoteCalls[0].VoterAddr)

	h.in <- &frame.Shutdown{}
	require.False(t, waitClose(t, h).IsFault())
}

func TestVoterRetriesTransientErrors(t *testing.T) {
	tp := transport.NewMemory()
	tp.VoteErrs = []error{errors.New("timeout")}
	v := NewVoter("game-1", "v1", tp, testLogger())
	v.retryDelay = 10 * time.Millisecond
	h := v.Start()

	h.in <- &frame.Vote{Votee: "t", VoteType: core.ServerVoteTransactorDropOff}

	recvFrame[*frame.Shutdown](t, h.out)
	require.Len(t, tp.VoteCalls, 1)

	h.in <- &frame.Shutdown{}
	waitClose(t, h)
}

func TestVoterTreatsDuplicateVoteAsSuccess(t *testing.T) {
	tp := transport.NewMemory()
	v := NewVoter("game-1", "v1", tp, testLogger())
	h := v.Start()

	h.in <- &frame.Vote{Votee: "t", VoteType: core.ServerVoteTransactorDropOff}
	recvFrame[*frame.Shutdown](t, h.out)

	// A second identical vote is rejected as duplicate by the ledger, which
	// still counts as delivered.
	h.in <- &frame.Vote{Votee: "t", VoteType: core.ServerVoteTransactorDropOff}
	recvFrame[*frame.Shutdown](t, h.out)
	require.Len(t, tp.VoteCalls, 1)

	h.in <- &frame.Shutdown{}
	waitClose(t, h)
}
