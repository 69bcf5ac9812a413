package store

import (
	"testing"
	"time"

	"simplecoin.dev/node/consensus"
)

func TestMineableIsDryRun(t *testing.T) {
	w := testWallet(t)
	s := openTestStorage(t, w)
	genesis := mineOne(t, s)
	if _, err := s.CreateSimpleTransaction(nil, 1000, testWallet(t).PublicKeyHash()); err != nil {
		t.Fatal(err)
	}

	before, _ := s.ProduceStats()
	for i := 0; i < 3; i++ {
		txns, parent, err := s.GetMineableTentativeTransactions(0)
		if err != nil {
			t.Fatal(err)
		}
		if len(txns) != 1 {
			t.Fatalf("pass %d: mineable count = %d", i, len(txns))
		}
		if parent == nil || *parent != genesis.BlockHash {
			t.Fatalf("pass %d: parent = %v", i, parent)
		}
	}
	after, _ := s.ProduceStats()
	if before != after {
		t.Fatalf("dry run mutated the ledger: %+v -> %+v", before, after)
	}

	// The sentinel row must not be visible outside the dry run.
	var sentinel consensus.Hash
	copy(sentinel[:], []byte{0xde, 0xad, 0xfa, 0xce})
	chain, err := s.GetLongestChain()
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range chain {
		if e.BlockHash == sentinel {
			t.Fatal("sentinel block leaked into the committed chain")
		}
	}
}

func TestMineableSkipsConflictingSpend(t *testing.T) {
	w1 := testWallet(t)
	s1a := openTestStorage(t, w1)
	s1b := openTestStorage(t, w1)
	s2 := openTestStorage(t, testWallet(t))

	genesis := mineOne(t, s1a)
	for _, s := range []*Storage{s1b, s2} {
		if err := s.ReceiveBlock(genesis); err != nil {
			t.Fatal(err)
		}
	}

	tx1, err := s1a.CreateSimpleTransaction(nil, 111, testWallet(t).PublicKeyHash())
	if err != nil {
		t.Fatal(err)
	}
	tx2, err := s1b.CreateSimpleTransaction(nil, 222, testWallet(t).PublicKeyHash())
	if err != nil {
		t.Fatal(err)
	}
	if err := s2.ReceiveTentativeTransaction(tx1); err != nil {
		t.Fatal(err)
	}
	// discovered_at has millisecond resolution; keep the arrival order
	// unambiguous.
	time.Sleep(5 * time.Millisecond)
	if err := s2.ReceiveTentativeTransaction(tx2); err != nil {
		t.Fatal(err)
	}

	// Both spend the same reward output; only the earlier one fits in
	// a consistent candidate block.
	txns, _, err := s2.GetMineableTentativeTransactions(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(txns) != 1 {
		t.Fatalf("mineable count = %d, want 1", len(txns))
	}
	if txns[0].TransactionHash != tx1.TransactionHash {
		t.Fatalf("selected %s, want the earlier %s",
			txns[0].TransactionHash.Hex(), tx1.TransactionHash.Hex())
	}

	// The skipped conflict remains tentative and mineable later.
	if all, _ := s2.GetAllTentativeTransactions(); len(all) != 2 {
		t.Fatalf("tentative count = %d", len(all))
	}
}

func TestMineableHonorsLimit(t *testing.T) {
	w1 := testWallet(t)
	s1 := openTestStorage(t, w1)
	mineOne(t, s1)

	// A chain of three dependent spends, all mineable together.
	for _, amount := range []consensus.Amount{100, 200, 300} {
		if _, err := s1.CreateSimpleTransaction(nil, amount, testWallet(t).PublicKeyHash()); err != nil {
			t.Fatal(err)
		}
	}

	txns, _, err := s1.GetMineableTentativeTransactions(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(txns) != 2 {
		t.Fatalf("limited mineable count = %d, want 2", len(txns))
	}

	txns, _, err = s1.GetMineableTentativeTransactions(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(txns) != 3 {
		t.Fatalf("unlimited mineable count = %d, want 3", len(txns))
	}
}

func TestPrepareMineableBlockShape(t *testing.T) {
	w := testWallet(t)
	s := openTestStorage(t, w)
	genesis := mineOne(t, s)
	if _, err := s.CreateSimpleTransaction(nil, 1000, testWallet(t).PublicKeyHash()); err != nil {
		t.Fatal(err)
	}

	block, err := s.PrepareMineableBlock(nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(block.Transactions) != 2 {
		t.Fatalf("candidate carries %d transactions, want reward + 1", len(block.Transactions))
	}
	reward := block.Transactions[0]
	if len(reward.Inputs) != 0 || len(reward.Outputs) != 1 || reward.Outputs[0].Amount != consensus.BLOCK_REWARD {
		t.Fatalf("index 0 is not a reward transaction: %+v", reward)
	}
	if block.ParentHash == nil || *block.ParentHash != genesis.BlockHash {
		t.Fatalf("candidate parent = %v", block.ParentHash)
	}

	// The candidate solves and commits like any received block.
	if !block.SolveHashChallenge(consensus.MINIMUM_DIFFICULTY_LEVEL, 0) {
		t.Fatal("solve failed")
	}
	if err := s.ReceiveBlock(block); err != nil {
		t.Fatalf("ReceiveBlock of prepared candidate: %v", err)
	}
	stats, _ := s.ProduceStats()
	if stats != (Stats{BlockCount: 2, PendingTxnCount: 0}) {
		t.Fatalf("stats = %+v", stats)
	}
}
