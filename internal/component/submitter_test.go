package component

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/FairGame-Network/transactor_layer/internal/api"
	"github.com/FairGame-Network/transactor_layer/internal/core"
	"github.com/FairGame-Network/transactor_layer/internal/frame"
	"github.com/FairGame-Network/transactor_layer/internal/storage"
	"github.com/FairGame-Network/transactor_layer/internal/transport"
)

func submitterFixture(t *testing.T, window time.Duration) (*Submitter, *transport.Memory, *storage.Memory) {
	t.Helper()
	tp := transport.NewMemory()
	tp.SetGameAccount(&core.GameAccount{
		Addr:           "game-1",
		SettleVersion:  5,
		AccessVersion:  3,
		TransactorAddr: "t",
	})
	st := storage.NewMemory()
	s := NewSubmitter("game-1", tp, st, SystemClock{}, 10, window, testLogger(), nil)
	return s, tp, st
}

func checkpointFrameAt(prev, next uint64, settles []api.Settle) *frame.Checkpoint {
	root := core.NewVersionedData(
		core.GameSpec{GameAddr: "game-1", BundleAddr: "bundle-1"},
		core.Versions{SettleVersion: next},
		[]byte("state"),
	)
	return &frame.Checkpoint{
		Settles:               settles,
		Checkpoint:            core.NewCheckpoint(root),
		SettleVersion:         next,
		PreviousSettleVersion: prev,
	}
}

// Three empty settle tasks inside the window squash into a single call.
func TestSubmitterSquashesWithinWindow(t *testing.T) {
	s, tp, st := submitterFixture(t, 200*time.Millisecond)
	h := s.Start()

	h.in <- checkpointFrameAt(5, 6, nil)
	h.in <- checkpointFrameAt(6, 7, nil)
	h.in <- checkpointFrameAt(7, 8, nil)

	tx := recvFrame[*frame.TxState](t, h.out)
	require.Equal(t, core.TxStateSettleSucceed, tx.TxState.Kind)
	require.Equal(t, uint64(5), tx.TxState.SettleVersion)
	require.NotEmpty(t, tx.TxState.Signature)

	require.Len(t, tp.SettleCalls, 1)
	call := tp.SettleCalls[0]
	require.Equal(t, uint64(5), call.SettleVersion)
	require.Equal(t, uint64(8), call.NextSettleVersion)
	require.Equal(t, uint64(8), call.Checkpoint.SettleVersion)

	// Storage holds every intermediate checkpoint.
	trace := st.Trace()
	require.Len(t, trace, 3)
	require.Equal(t, uint64(6), trace[0].SettleVersion)
	require.Equal(t, uint64(7), trace[1].SettleVersion)
	require.Equal(t, uint64(8), trace[2].SettleVersion)

	h.in <- &frame.Shutdown{}
	require.False(t, waitClose(t, h).IsFault())
}

// A task carrying settles cuts the squash window.
func TestSubmitterStopsSquashingAtSettles(t *testing.T) {
	s, tp, _ := submitterFixture(t, 5*time.Second)
	h := s.Start()

	settles := []api.Settle{{PlayerID: 2, Withdraw: 100}}
	h.in <- checkpointFrameAt(5, 6, settles)

	recvFrame[*frame.TxState](t, h.out)
	require.Len(t, tp.SettleCalls, 1)
	require.Equal(t, settles, tp.SettleCalls[0].Settles)

	h.in <- &frame.Shutdown{}
	waitClose(t, h)
}

// Every checkpoint reaches storage before the settle transaction.
func TestSubmitterPersistsBeforeSettling(t *testing.T) {
	s, tp, st := submitterFixture(t, 50*time.Millisecond)
	h := s.Start()

	h.in <- checkpointFrameAt(5, 6, []api.Settle{{PlayerID: 1, Withdraw: 1}})
	recvFrame[*frame.TxState](t, h.out)

	require.Len(t, st.Trace(), 1)
	require.Len(t, tp.SettleCalls, 1)

	h.in <- &frame.Shutdown{}
	waitClose(t, h)
}

func TestSubmitterStorageFailureIsFatal(t *testing.T) {
	s, _, st := submitterFixture(t, 50*time.Millisecond)
	st.SaveErr = errors.New("disk gone")
	h := s.Start()

	h.in <- checkpointFrameAt(5, 6, nil)

	recvFrame[*frame.Shutdown](t, h.out)
	require.True(t, waitClose(t, h).IsFault())
}

func TestSubmitterSettleFailureIsFatal(t *testing.T) {
	s, tp, _ := submitterFixture(t, 50*time.Millisecond)
	tp.SettleErrs = []error{errors.New("rpc down")}
	h := s.Start()

	h.in <- checkpointFrameAt(5, 6, []api.Settle{{PlayerID: 1, Withdraw: 1}})

	recvFrame[*frame.Shutdown](t, h.out)
	require.True(t, waitClose(t, h).IsFault())
}

// Deposits confirmed by the settlement come back as a raw sync frame.
func TestSubmitterResyncsConfirmedDeposits(t *testing.T) {
	s, tp, _ := submitterFixture(t, 50*time.Millisecond)
	account, err := tp.GetGameAccount(nil, "game-1")
	require.NoError(t, err)
	account.Deposits = []core.PlayerDeposit{
		{Addr: "alice", Amount: 500, AccessVersion: 7, SettleVersion: 6, Status: core.DepositPending},
	}
	tp.SetGameAccount(account)

	h := s.Start()
	h.in <- checkpointFrameAt(5, 6, []api.Settle{{PlayerID: 1, Withdraw: 1}})

	sync := recvFrame[*frame.Sync](t, h.out)
	require.Len(t, sync.NewDeposits, 1)
	require.Equal(t, "alice", sync.NewDeposits[0].Addr)

	h.in <- &frame.Shutdown{}
	waitClose(t, h)
}
