package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/decred/base58"

	"simplecoin.dev/node/consensus"
	"simplecoin.dev/node/node"
	"simplecoin.dev/node/node/store"
)

func usage() {
	fmt.Fprintln(os.Stderr, `usage: simplecoin-node <subcommand> [flags]

subcommands:
  stats     print block and pending transaction counts
  chain     print the longest chain, tip first
  balance   print a wallet balance
  send      create and store a simple payment
  mine      prepare, solve and commit one block
  show-tx   print one transaction in display form
  recreate  drop and recreate the ledger database`)
}

// openStore loads (or bootstraps) the wallet file and opens the ledger
// the flags point at.
func openStore(cfg node.Config) (*store.Storage, error) {
	if err := node.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	level, err := node.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	wallet, err := consensus.LoadWalletFrom(cfg.WalletPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("load wallet: %w", err)
		}
		if wallet, err = consensus.NewWallet(); err != nil {
			return nil, err
		}
		if err := wallet.SaveTo(cfg.WalletPath); err != nil {
			return nil, fmt.Errorf("save wallet: %w", err)
		}
		slog.Info("created wallet", "path", cfg.WalletPath, "wallet", wallet.PublicKeyHash().Base58())
	}

	if cfg.DBPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
			return nil, err
		}
	}
	return store.Open(cfg.DBPath, wallet)
}

// storeFlags attaches the shared store flags to a subcommand flag set.
func storeFlags(fs *flag.FlagSet) *node.Config {
	cfg := node.DefaultConfig()
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "ledger database path (empty for in-memory)")
	fs.StringVar(&cfg.WalletPath, "wallet", cfg.WalletPath, "wallet PEM path")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	return &cfg
}

func parseHashArg(b58 string) (consensus.Hash, error) {
	var h consensus.Hash
	raw := base58.Decode(b58)
	if len(raw) != len(h) {
		return h, fmt.Errorf("%q: want a base58 32-byte hash", b58)
	}
	copy(h[:], raw)
	return h, nil
}

func cmdStats(argv []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	cfg := storeFlags(fs)
	_ = fs.Parse(argv)

	s, err := openStore(*cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	stats, err := s.ProduceStats()
	if err != nil {
		return err
	}
	fmt.Printf("blocks: %d\npending transactions: %d\n", stats.BlockCount, stats.PendingTxnCount)
	return nil
}

func cmdChain(argv []string) error {
	fs := flag.NewFlagSet("chain", flag.ExitOnError)
	cfg := storeFlags(fs)
	_ = fs.Parse(argv)

	s, err := openStore(*cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	chain, err := s.GetLongestChain()
	if err != nil {
		return err
	}
	for _, e := range chain {
		fmt.Printf("%6d  %s\n", e.BlockHeight, e.BlockHash.Hex())
	}
	return nil
}

func cmdBalance(argv []string) error {
	fs := flag.NewFlagSet("balance", flag.ExitOnError)
	cfg := storeFlags(fs)
	walletB58 := fs.String("of", "", "wallet hash (base58; default wallet when empty)")
	confirmations := fs.Uint("confirmations", 0, "required confirmations")
	_ = fs.Parse(argv)

	s, err := openStore(*cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	hash := s.DefaultWallet().PublicKeyHash()
	if *walletB58 != "" {
		if hash, err = parseHashArg(*walletB58); err != nil {
			return err
		}
	}
	sum, err := s.FindWalletBalance(hash, uint32(*confirmations))
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", hash.Base58(), consensus.Amount(sum))
	return nil
}

func cmdSend(argv []string) error {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	cfg := storeFlags(fs)
	to := fs.String("to", "", "recipient wallet hash (base58)")
	amountStr := fs.String("amount", "", "amount, e.g. 1.50000000")
	_ = fs.Parse(argv)
	if *to == "" || *amountStr == "" {
		return fmt.Errorf("missing required flags: --to --amount")
	}

	recipient, err := parseHashArg(*to)
	if err != nil {
		return err
	}
	amount, err := consensus.ParseAmount(*amountStr)
	if err != nil {
		return err
	}

	s, err := openStore(*cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	txn, err := s.CreateSimpleTransaction(nil, amount, recipient)
	if err != nil {
		return err
	}
	fmt.Printf("sent %s to %s\ntransaction %s\n", amount, recipient.Base58(), txn.TransactionHash.Hex())
	return nil
}

func cmdMine(argv []string) error {
	fs := flag.NewFlagSet("mine", flag.ExitOnError)
	cfg := storeFlags(fs)
	difficulty := fs.Uint("difficulty", uint(consensus.MINIMUM_DIFFICULTY_LEVEL), "leading zero bits to solve for")
	_ = fs.Parse(argv)
	if *difficulty > 255 || *difficulty < uint(consensus.MINIMUM_DIFFICULTY_LEVEL) {
		return fmt.Errorf("difficulty must be between %d and 255", consensus.MINIMUM_DIFFICULTY_LEVEL)
	}

	s, err := openStore(*cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	block, err := s.PrepareMineableBlock(nil)
	if err != nil {
		return err
	}
	slog.Info("solving hash challenge", "difficulty", *difficulty, "transactions", len(block.Transactions))
	if !block.SolveHashChallenge(uint8(*difficulty), 0) {
		return fmt.Errorf("nonce space exhausted at difficulty %d", *difficulty)
	}
	if err := s.ReceiveBlock(block); err != nil {
		return err
	}
	fmt.Printf("mined block %s (%d transactions, nonce %d)\n",
		block.BlockHash.Hex(), len(block.Transactions), block.Nonce)
	return nil
}

func cmdShowTx(argv []string) error {
	fs := flag.NewFlagSet("show-tx", flag.ExitOnError)
	cfg := storeFlags(fs)
	hashB58 := fs.String("hash", "", "transaction hash (base58)")
	_ = fs.Parse(argv)
	if *hashB58 == "" {
		return fmt.Errorf("missing required flag: --hash")
	}
	hash, err := parseHashArg(*hashB58)
	if err != nil {
		return err
	}

	s, err := openStore(*cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	rows, err := s.GetUITransactionByHash(hash)
	if err != nil {
		return err
	}
	if rows == nil {
		return fmt.Errorf("transaction %s is not known", hash.Base58())
	}
	for _, kv := range rows {
		fmt.Printf("%-22s %s\n", kv[0]+":", kv[1])
	}
	return nil
}

func cmdRecreate(argv []string) error {
	fs := flag.NewFlagSet("recreate", flag.ExitOnError)
	cfg := storeFlags(fs)
	_ = fs.Parse(argv)

	s, err := openStore(*cfg)
	if err != nil {
		return err
	}
	defer s.Close()
	return s.RecreateDB()
}

func run(argv []string) int {
	if len(argv) < 1 {
		usage()
		return 2
	}
	commands := map[string]func([]string) error{
		"stats":    cmdStats,
		"chain":    cmdChain,
		"balance":  cmdBalance,
		"send":     cmdSend,
		"mine":     cmdMine,
		"show-tx":  cmdShowTx,
		"recreate": cmdRecreate,
	}
	cmd, ok := commands[argv[0]]
	if !ok {
		fmt.Fprintln(os.Stderr, "unknown subcommand:", argv[0])
		usage()
		return 2
	}
	if err := cmd(argv[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s error: %v\n", argv[0], err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(run(os.Args[1:]))
}
