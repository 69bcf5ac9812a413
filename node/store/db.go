package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	_ "github.com/mattn/go-sqlite3"

	"simplecoin.dev/node/consensus"
)

// stmtCacheCapacity bounds the prepared-statement cache.
const stmtCacheCapacity = 64

// Storage is the persistence and validation engine: a relational
// ledger of blocks, transactions, the UTXO set, the orphan buffer and
// the trust set, with a derived longest chain. Every public mutator is
// a self-contained atomic unit; callers are serialized behind the
// store mutex and a single engine connection.
type Storage struct {
	mu            sync.Mutex
	path          string // empty means in-memory
	db            *sql.DB
	stmts         *lru.Cache
	defaultWallet *consensus.Wallet
	logger        *slog.Logger
}

// Stats is the summary returned by ProduceStats.
type Stats struct {
	BlockCount      uint64
	PendingTxnCount uint64
}

// Open opens (or creates) the ledger at path; an empty path yields an
// in-memory store. When defaultWallet is nil the wallet file on disk
// is loaded, or a fresh wallet is generated and saved.
func Open(path string, defaultWallet *consensus.Wallet) (*Storage, error) {
	if defaultWallet == nil {
		w, err := consensus.LoadWalletFromDisk()
		if err != nil {
			if w, err = consensus.NewWallet(); err != nil {
				return nil, err
			}
			if err = w.SaveToDisk(); err != nil {
				return nil, fmt.Errorf("save default wallet: %w", err)
			}
		}
		defaultWallet = w
	}

	s := &Storage{
		path:          path,
		defaultWallet: defaultWallet,
		logger:        slog.Default(),
	}
	if err := s.openLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

// openLocked (re)opens the engine connection and applies the schema.
// Callers hold s.mu (or are constructing s).
func (s *Storage) openLocked() error {
	dsn := s.path
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return fmt.Errorf("open ledger db: %w", err)
	}
	// A single long-lived connection: PRAGMAs are per-connection, the
	// in-memory database lives only as long as its connection, and
	// mutators serialize here as well as at the mutex.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return fmt.Errorf("apply ledger schema: %w", err)
	}

	cache, err := lru.NewWithEvict(stmtCacheCapacity, func(_, v interface{}) {
		_ = v.(*sql.Stmt).Close()
	})
	if err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	s.stmts = cache
	s.logger.Debug("ledger opened", "path", s.path, "in_memory", s.path == "")
	return nil
}

// Close releases the prepared statements and the engine connection.
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *Storage) closeLocked() error {
	if s.db == nil {
		return nil
	}
	s.stmts.Purge() // eviction hook closes each statement
	err := s.db.Close()
	s.db = nil
	return err
}

// RecreateDB drops the live connection, deletes the database file and
// its WAL side files when persistent, and re-opens a fresh ledger.
func (s *Storage) RecreateDB() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.closeLocked(); err != nil {
		return err
	}
	if s.path != "" {
		for _, p := range []string{s.path, s.path + "-shm", s.path + "-wal"} {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("remove %s: %w", p, err)
			}
		}
	}
	if err := s.openLocked(); err != nil {
		return err
	}
	s.logger.Info("ledger recreated", "path", s.path)
	return nil
}

// DefaultWallet returns the wallet used when an operation is not given
// one explicitly.
func (s *Storage) DefaultWallet() *consensus.Wallet {
	return s.defaultWallet
}

// stmt returns a prepared statement for query. Connection-level
// statements are cached in the LRU; inside a transaction a cached
// statement is entered via tx.Stmt, and a miss is prepared directly on
// the transaction (the single engine connection is held by it, so
// preparing through the pool would block) and released with it.
func (s *Storage) stmt(tx *sql.Tx, query string) (*sql.Stmt, error) {
	if v, ok := s.stmts.Get(query); ok {
		st := v.(*sql.Stmt)
		if tx != nil {
			return tx.Stmt(st), nil
		}
		return st, nil
	}
	if tx != nil {
		return tx.Prepare(query)
	}
	st, err := s.db.Prepare(query)
	if err != nil {
		return nil, fmt.Errorf("prepare %q: %w", query, err)
	}
	s.stmts.Add(query, st)
	return st, nil
}

// exec runs query inside tx (or directly on the connection when tx is
// nil) and reports the affected row count.
func (s *Storage) exec(tx *sql.Tx, query string, args ...any) (int64, error) {
	st, err := s.stmt(tx, query)
	if err != nil {
		return 0, err
	}
	res, err := st.Exec(args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Storage) queryRow(tx *sql.Tx, query string, args ...any) (*sql.Row, error) {
	st, err := s.stmt(tx, query)
	if err != nil {
		return nil, err
	}
	return st.QueryRow(args...), nil
}

func (s *Storage) query(tx *sql.Tx, query string, args ...any) (*sql.Rows, error) {
	st, err := s.stmt(tx, query)
	if err != nil {
		return nil, err
	}
	return st.Query(args...)
}

// Savepoints let validation probe an outcome without disturbing the
// enclosing atomic unit. Names are compile-time constants, never user
// input.
func savepoint(tx *sql.Tx, name string) error {
	_, err := tx.Exec("SAVEPOINT " + name)
	return err
}

func releaseSavepoint(tx *sql.Tx, name string) error {
	_, err := tx.Exec("RELEASE " + name)
	return err
}

func rollbackSavepoint(tx *sql.Tx, name string) error {
	if _, err := tx.Exec("ROLLBACK TO " + name); err != nil {
		return err
	}
	_, err := tx.Exec("RELEASE " + name)
	return err
}

// MakeWalletTrustworthy marks a payer hash as trusted: its unconfirmed
// outputs count as spendable for local balance queries and transaction
// construction. Idempotent; never affects block validation.
func (s *Storage) MakeWalletTrustworthy(h consensus.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.makeWalletTrustworthyLocked(h)
}

func (s *Storage) makeWalletTrustworthyLocked(h consensus.Hash) error {
	_, err := s.exec(nil, "INSERT INTO trustworthy_wallets VALUES (?)", h[:])
	return err
}

// MakeWallet generates a wallet and immediately trusts it.
func (s *Storage) MakeWallet() (*consensus.Wallet, error) {
	w, err := consensus.NewWallet()
	if err != nil {
		return nil, err
	}
	if err := s.MakeWalletTrustworthy(w.PublicKeyHash()); err != nil {
		return nil, err
	}
	return w, nil
}

// ProduceStats reports the ledger height (as a block count) and the
// number of pending tentative transactions.
func (s *Storage) ProduceStats() (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, err := s.queryRow(nil,
		"SELECT 1 + ifnull((SELECT max(block_height) FROM blocks), -1), (SELECT count(*) FROM all_tentative_txns)")
	if err != nil {
		return Stats{}, err
	}
	var blocks, pending int64
	if err := row.Scan(&blocks, &pending); err != nil {
		return Stats{}, err
	}
	return Stats{BlockCount: uint64(blocks), PendingTxnCount: uint64(pending)}, nil
}
