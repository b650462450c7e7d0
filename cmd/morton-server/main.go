// main.go is the entry point for the Morton filter server. It wires together
// the filter store, the command router, and the network server.
//
// The server keeps a set of named Morton filters in memory and exposes them
// over RESP (the Redis serialization protocol), so existing tools like
// redis-cli and standard Redis client libraries work out of the box:
//
//	$ redis-cli -p 6480 MF.CREATE visitors 1000000
//	$ redis-cli -p 6480 MF.INSERT visitors alice bob
//	$ redis-cli -p 6480 MF.EXISTS visitors alice mallory
//
// Filters hold state only for the lifetime of the process. There is no
// journal and no snapshot: an approximate-membership filter is a derived
// structure, and callers that need durability rebuild it from their source
// of truth on startup.
//
// Concurrency Model
// =================
//
// A Morton filter instance is single-writer with no internal locking, so
// the store wraps every command in a coarse reader/writer lock: lookups
// share the read side, while inserts, deletes, creates, and resizes take
// the write side. This keeps the filter core free of synchronization while
// making the server safe for concurrent clients.
//
// Graceful Shutdown
// =================
//
// On SIGINT/SIGTERM the listener closes, in-flight connections get a grace
// period to finish, and the process exits. Nothing needs to be persisted.
package main

import (
	"flag"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"morton.lopezb.com/internal/pds/morton"
)

type config struct {
	port            int
	maxConnections  int
	shutdownTimeout time.Duration
	idleTimeout     time.Duration

	// Defaults for filters created without explicit parameters.
	slotsPerBucket  uint
	fingerprintBits uint
	otaBits         uint
	seed            uint64
}

type application struct {
	config      config
	logger      *slog.Logger
	listener    net.Listener
	store       *Store
	router      *Router
	metrics     *Metrics
	readyCh     chan struct{}
	wg          sync.WaitGroup
	connLimiter chan struct{}
}

// defaultFilterConfig builds the morton.Config used when MF.CREATE is called
// without explicit parameters.
func (app *application) defaultFilterConfig() morton.Config {
	cfg := morton.DefaultConfig()
	cfg.SlotsPerBucket = app.config.slotsPerBucket
	cfg.FingerprintBits = app.config.fingerprintBits
	cfg.OTABits = app.config.otaBits
	cfg.Seed = app.config.seed
	cfg.ResizeEnabled = true
	return cfg
}

func main() {
	var cfg config

	flag.IntVar(&cfg.port, "port", 6480, "TCP server port")
	flag.IntVar(&cfg.maxConnections, "max-conn", 100, "Maximum concurrent connections")
	flag.DurationVar(&cfg.shutdownTimeout, "shutdown-timeout", 5*time.Second, "Graceful shutdown timeout")
	flag.DurationVar(&cfg.idleTimeout, "idle-timeout", 0, "Idle client connection timeout (0 for no timeout)")
	flag.UintVar(&cfg.slotsPerBucket, "mf-slots-per-bucket", morton.DefaultSlotsPerBucket, "Default logical slots per bucket for new filters")
	flag.UintVar(&cfg.fingerprintBits, "mf-fingerprint-bits", morton.DefaultFingerprintBits, "Default fingerprint width in bits for new filters")
	flag.UintVar(&cfg.otaBits, "mf-ota-bits", morton.DefaultOTABits, "Default overflow tracking bits per block (0 disables the OTA)")
	flag.Uint64Var(&cfg.seed, "mf-seed", 0, "Default hash seed for new filters")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	app := &application{
		config:      cfg,
		logger:      logger,
		store:       NewStore(),
		metrics:     NewMetrics(),
		connLimiter: make(chan struct{}, cfg.maxConnections),
	}
	app.router = app.commands()

	if err := app.serve(); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
}
