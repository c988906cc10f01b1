// Package node wires together the components of a running slpd instance
// (storage, verdict cache, transaction source, validator engine, RPC) so
// that any binary can embed a full daemon.
package node

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/simpleledger/slpd/config"
	"github.com/simpleledger/slpd/internal/fetch"
	slog "github.com/simpleledger/slpd/internal/log"
	"github.com/simpleledger/slpd/internal/rpc"
	"github.com/simpleledger/slpd/internal/storage"
	"github.com/simpleledger/slpd/internal/token"
	"github.com/simpleledger/slpd/internal/validator"
)

// Node is a fully-initialized validation daemon.
type Node struct {
	cfg    *config.Config
	logger zerolog.Logger

	db     storage.DB
	cache  *validator.Cache
	tokens *token.Store
	source fetch.Source
	engine *validator.Engine

	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates and initializes a Node. It performs all setup steps (logger,
// storage, cache warm-up, transaction source, engine, RPC) but does NOT
// start background goroutines. Call Start() for that.
func New(cfg *config.Config) (*Node, error) {
	// ── 1. Init logger ──────────────────────────────────────────────
	logFile := cfg.Log.File
	if logFile == "" {
		logsDir := cfg.LogsDir()
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			return nil, fmt.Errorf("creating logs dir: %w", err)
		}
		logFile = logsDir + "/slpd.log"
	}
	if err := slog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	logger := slog.WithComponent("node")

	logger.Info().
		Str("source", cfg.Source.URL).
		Int("max_depth", cfg.Validation.MaxDepth).
		Msg("Starting slpd")

	// ── 2. Open storage ─────────────────────────────────────────────
	db, err := storage.NewBadger(cfg.DBDir())
	if err != nil {
		return nil, fmt.Errorf("open database at %s: %w", cfg.DBDir(), err)
	}
	logger.Info().Str("path", cfg.DBDir()).Msg("Database opened")

	return build(cfg, db, logger)
}

// build assembles the node on top of an already-open database. Split out
// so tests can run against in-memory storage.
func build(cfg *config.Config, db storage.DB, logger zerolog.Logger) (*Node, error) {
	// ── 3. Verdict cache ────────────────────────────────────────────
	cache := validator.NewCache(db, cfg.Cache.MaxEntries)
	if err := cache.Load(); err != nil {
		db.Close()
		return nil, fmt.Errorf("load verdict cache: %w", err)
	}
	tokens := token.NewStore(db)
	logger.Info().
		Int("verdicts", cache.Len()).
		Msg("Verdict cache loaded")

	// ── 4. Transaction source ───────────────────────────────────────
	source, err := newSource(cfg.Source)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create transaction source: %w", err)
	}

	// ── 5. Validator engine ─────────────────────────────────────────
	engine := validator.NewEngine(source, cache, tokens, cfg.Validation.MaxDepth)

	// ── 6. RPC server ───────────────────────────────────────────────
	var rpcServer *rpc.Server
	if cfg.RPC.Enabled {
		rpcAddr := fmt.Sprintf("%s:%d", cfg.RPC.Addr, cfg.RPC.Port)
		rpcServer = rpc.New(rpcAddr, engine, tokens, cfg.RPC)
		if err := rpcServer.Start(); err != nil {
			db.Close()
			return nil, fmt.Errorf("start RPC at %s: %w", rpcAddr, err)
		}
		logger.Info().Str("addr", rpcServer.Addr()).Msg("RPC server started")
	} else {
		logger.Warn().Msg("RPC disabled by config")
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Node{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		cache:     cache,
		tokens:    tokens,
		source:    source,
		engine:    engine,
		rpcServer: rpcServer,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// newSource builds the upstream transaction source: an HTTP JSON-RPC
// client against the configured node, wrapped in an LRU so ancestors
// shared across validations are fetched once.
func newSource(cfg config.SourceConfig) (fetch.Source, error) {
	ns := fetch.NewNodeSource(cfg.URL, time.Duration(cfg.TimeoutMS)*time.Millisecond, cfg.Retries)
	if cfg.Username != "" {
		ns.SetBasicAuth(cfg.Username, cfg.Password)
	}
	if cfg.CacheSize <= 0 {
		return ns, nil
	}
	return fetch.NewCachingSource(ns, cfg.CacheSize)
}

// Start launches background goroutines: the periodic cache flush.
func (n *Node) Start() error {
	if interval := n.cfg.Cache.FlushIntervalS; interval > 0 {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.runFlushLoop(time.Duration(interval) * time.Second)
		}()
	}

	n.logger.Info().
		Int("cached_verdicts", n.cache.Len()).
		Bool("rpc", n.rpcServer != nil).
		Msg("Node started successfully")

	return nil
}

// Stop performs graceful shutdown in reverse order.
func (n *Node) Stop() {
	n.cancel()
	n.wg.Wait()

	if n.rpcServer != nil {
		n.rpcServer.Stop()
	}
	if flushed, err := n.cache.Flush(); err != nil {
		n.logger.Warn().Err(err).Msg("Final cache flush failed")
	} else if flushed > 0 {
		n.logger.Info().Int("records", flushed).Msg("Cache flushed")
	}
	if n.db != nil {
		n.db.Close()
	}

	n.logger.Info().Msg("Goodbye!")
}

// RPCAddr returns the address the RPC server is listening on.
func (n *Node) RPCAddr() string {
	if n.rpcServer == nil {
		return ""
	}
	return n.rpcServer.Addr()
}

// Engine returns the validator engine for embedders that bypass RPC.
func (n *Node) Engine() *validator.Engine {
	return n.engine
}

func (n *Node) runFlushLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			flushed, err := n.cache.Flush()
			if err != nil {
				n.logger.Warn().Err(err).Msg("Periodic cache flush failed")
				continue
			}
			if flushed > 0 {
				n.logger.Debug().Int("records", flushed).Msg("Cache flushed")
			}
		}
	}
}
