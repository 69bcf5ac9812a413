package store

import (
	"errors"
	"testing"

	"simplecoin.dev/node/consensus"
)

// rewardOutpoint returns the input spending a mined block's reward.
func rewardOutpoint(b *consensus.Block) consensus.TransactionInput {
	return consensus.TransactionInput{
		TransactionHash: b.Transactions[0].TransactionHash,
		OutputIndex:     0,
	}
}

func TestTentativePreChecks(t *testing.T) {
	s := openTestStorage(t, nil)
	w := testWallet(t)

	// No inputs.
	noInputs := mustRawTransaction(t, w, nil, []consensus.TransactionOutput{{
		Amount: 1, RecipientHash: consensus.Sha256([]byte("r")),
	}})
	assertSingleRejection(t, s.ReceiveTentativeTransaction(noInputs), noInputs.TransactionHash)

	// Duplicate recipients.
	dup := mustRawTransaction(t, w,
		[]consensus.TransactionInput{{TransactionHash: consensus.Sha256([]byte("p")), OutputIndex: 0}},
		[]consensus.TransactionOutput{
			{Amount: 1, RecipientHash: consensus.Sha256([]byte("r"))},
			{Amount: 2, RecipientHash: consensus.Sha256([]byte("r"))},
		})
	assertSingleRejection(t, s.ReceiveTentativeTransaction(dup), dup.TransactionHash)

	// Broken signature.
	broken := mustRawTransaction(t, w,
		[]consensus.TransactionInput{{TransactionHash: consensus.Sha256([]byte("p")), OutputIndex: 0}},
		[]consensus.TransactionOutput{{Amount: 1, RecipientHash: consensus.Sha256([]byte("r"))}})
	broken.Outputs[0].Amount = 2
	assertSingleRejection(t, s.ReceiveTentativeTransaction(broken), broken.TransactionHash)
}

func assertSingleRejection(t *testing.T, err error, th consensus.Hash) {
	t.Helper()
	var rejected *InvalidTentativeTxnError
	if !errors.As(err, &rejected) {
		t.Fatalf("want InvalidTentativeTxnError, got %v", err)
	}
	if _, ok := rejected.Rejected[th]; !ok || len(rejected.Rejected) != 1 {
		t.Fatalf("rejection map = %v, want single entry for %s", rejected.Rejected, th.Hex())
	}
}

func TestOverdrawnAdoptionRejected(t *testing.T) {
	w1 := testWallet(t)
	s1 := openTestStorage(t, w1)
	s2 := openTestStorage(t, testWallet(t))

	genesis := mineOne(t, s1)
	if err := s2.ReceiveBlock(genesis); err != nil {
		t.Fatal(err)
	}

	// Spends the reward but debits one unit more than it credits.
	overdrawn := mustRawTransaction(t, w1,
		[]consensus.TransactionInput{rewardOutpoint(genesis)},
		[]consensus.TransactionOutput{{
			Amount:        consensus.BLOCK_REWARD + 1,
			RecipientHash: w1.PublicKeyHash(),
		}})
	err := s2.ReceiveTentativeTransaction(overdrawn)
	assertSingleRejection(t, err, overdrawn.TransactionHash)

	// The rejection rolled the whole call back: nothing stored, no
	// orphan left behind.
	if txns, _ := s2.GetAllTentativeTransactions(); len(txns) != 0 {
		t.Fatalf("tentative count = %d", len(txns))
	}
	if kv, _ := s2.GetUITransactionByHash(overdrawn.TransactionHash); kv != nil {
		t.Fatal("rejected transaction must not be stored")
	}
}

func TestUnauthorizedSpendRejected(t *testing.T) {
	w1 := testWallet(t)
	s1 := openTestStorage(t, w1)
	thief := testWallet(t)
	s2 := openTestStorage(t, testWallet(t))

	genesis := mineOne(t, s1)
	if err := s2.ReceiveBlock(genesis); err != nil {
		t.Fatal(err)
	}

	// Correctly signed by the thief, but the referenced output belongs
	// to w1.
	steal := mustRawTransaction(t, thief,
		[]consensus.TransactionInput{rewardOutpoint(genesis)},
		[]consensus.TransactionOutput{{
			Amount:        consensus.BLOCK_REWARD,
			RecipientHash: thief.PublicKeyHash(),
		}})
	assertSingleRejection(t, s2.ReceiveTentativeTransaction(steal), steal.TransactionHash)
}

func TestUnresolvedOrphanStaysBuffered(t *testing.T) {
	w := testWallet(t)
	s := openTestStorage(t, w)
	mineOne(t, s)

	// References a transaction the store has never seen.
	orphan := mustRawTransaction(t, w,
		[]consensus.TransactionInput{{TransactionHash: consensus.Sha256([]byte("future")), OutputIndex: 0}},
		[]consensus.TransactionOutput{{Amount: 1, RecipientHash: w.PublicKeyHash()}})
	if err := s.ReceiveTentativeTransaction(orphan); err != nil {
		t.Fatalf("buffering an orphan must succeed: %v", err)
	}

	// It is buffered, not stored: invisible to the tentative view and
	// to stats.
	if txns, _ := s.GetAllTentativeTransactions(); len(txns) != 0 {
		t.Fatalf("tentative count = %d", len(txns))
	}
	stats, _ := s.ProduceStats()
	if stats.PendingTxnCount != 0 {
		t.Fatalf("pending count = %d", stats.PendingTxnCount)
	}

	// Resubmission is a silent no-op.
	if err := s.ReceiveTentativeTransaction(orphan); err != nil {
		t.Fatalf("duplicate orphan submission: %v", err)
	}
}

func TestDuplicateTentativeSubmissionIsNoop(t *testing.T) {
	w1 := testWallet(t)
	s1 := openTestStorage(t, w1)
	s2 := openTestStorage(t, testWallet(t))

	genesis := mineOne(t, s1)
	if err := s2.ReceiveBlock(genesis); err != nil {
		t.Fatal(err)
	}
	txn, err := s1.CreateSimpleTransaction(nil, 1000, testWallet(t).PublicKeyHash())
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if err := s2.ReceiveTentativeTransaction(txn); err != nil {
			t.Fatalf("submission %d: %v", i+1, err)
		}
	}
	if txns, _ := s2.GetAllTentativeTransactions(); len(txns) != 1 {
		t.Fatalf("tentative count = %d", len(txns))
	}
}
