package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/Mindburn-Labs/titlevault/pkg/audit"
	"github.com/Mindburn-Labs/titlevault/pkg/chain"
	"github.com/Mindburn-Labs/titlevault/pkg/chain/evm"
	"github.com/Mindburn-Labs/titlevault/pkg/chainpush"
	"github.com/Mindburn-Labs/titlevault/pkg/chainsync"
	"github.com/Mindburn-Labs/titlevault/pkg/config"
	"github.com/Mindburn-Labs/titlevault/pkg/contentstore"
	"github.com/Mindburn-Labs/titlevault/pkg/database"
	"github.com/Mindburn-Labs/titlevault/pkg/identity"
	"github.com/Mindburn-Labs/titlevault/pkg/ledger"
	"github.com/Mindburn-Labs/titlevault/pkg/observability"
	"github.com/Mindburn-Labs/titlevault/pkg/review"
	"github.com/Mindburn-Labs/titlevault/pkg/store"
	"github.com/Mindburn-Labs/titlevault/pkg/titles"
	"github.com/Mindburn-Labs/titlevault/pkg/transfer"
	"github.com/Mindburn-Labs/titlevault/pkg/transfercode"
)

// ledgerBackend is what the service needs from a ledger: reads and writes.
type ledgerBackend interface {
	chain.Reader
	chain.Registrar
}

// app is a fully wired service and the resources it owns.
type app struct {
	cfg     *config.Config
	profile *config.Profile
	logger  *slog.Logger

	db        *sql.DB
	records   store.RecordStore
	ledger    ledgerBackend
	sync      *chainsync.Agent
	audit     *audit.Log
	svc       *titles.Service
	telemetry *observability.Provider
	health    map[string]func(context.Context) error

	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// newLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.LogFormat, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// loadConfig loads and validates the environment and the deployment profile.
func loadConfig() (*config.Config, *config.Profile, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	profile, err := config.LoadProfileFor(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, profile, nil
}

//nolint:gocognit,gocyclo
func buildApp(ctx context.Context, cfg *config.Config, profile *config.Profile, logger *slog.Logger) (_ *app, err error) {
	a := &app{
		cfg:     cfg,
		profile: profile,
		logger:  logger,
		health:  make(map[string]func(context.Context) error),
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	otelCfg := observability.DefaultConfig()
	otelCfg.Enabled = cfg.OTelEnabled
	otelCfg.OTLPEndpoint = cfg.OTelEndpoint
	a.telemetry, err = observability.New(ctx, otelCfg)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	a.closers = append(a.closers, func() { _ = a.telemetry.Shutdown(context.Background()) })
	metrics := a.telemetry.Metrics()

	// Storage
	var (
		codeStore transfercode.Store = transfercode.NewMemoryStore()
		directory identity.Directory = identity.NewMemoryDirectory()
	)
	a.records = store.NewMemoryRecordStore()

	a.db, err = database.Open(ctx, cfg.DatabaseURL)
	switch {
	case errors.Is(err, database.ErrInMemory):
		logger.Warn("DATABASE_URL=memory: records and codes are not persisted")
	case err != nil:
		return nil, err
	default:
		db := a.db
		a.closers = append(a.closers, func() { _ = db.Close() })
		a.health["database"] = db.PingContext

		sqlRecords := store.NewSQLRecordStore(db)
		if err := sqlRecords.Init(ctx); err != nil {
			return nil, fmt.Errorf("init records schema: %w", err)
		}
		sqlCodes := transfercode.NewSQLStore(db)
		if err := sqlCodes.Init(ctx); err != nil {
			return nil, fmt.Errorf("init transfer code schema: %w", err)
		}
		sqlUsers := identity.NewSQLDirectory(db)
		if err := sqlUsers.Init(ctx); err != nil {
			return nil, fmt.Errorf("init users schema: %w", err)
		}
		a.records, codeStore, directory = sqlRecords, sqlCodes, identity.NewCached(sqlUsers)
	}

	if cfg.RedisAddr != "" {
		rs := transfercode.NewRedisStoreFromAddr(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := rs.Ping(ctx); err != nil {
			return nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
		a.health["redis"] = rs.Ping
		codeStore = rs
	}

	content, err := contentstore.New(ctx, contentstore.Config{
		Kind:            contentstore.Kind(cfg.ContentStore),
		Dir:             cfg.ContentDir,
		S3Bucket:        cfg.S3Bucket,
		S3Region:        cfg.S3Region,
		S3Endpoint:      cfg.S3Endpoint,
		GCSBucket:       cfg.GCSBucket,
		PinataAPIKey:    cfg.PinataAPIKey,
		PinataAPISecret: cfg.PinataAPISecret,
	})
	if err != nil {
		return nil, fmt.Errorf("init content store: %w", err)
	}
	if c, ok := content.(io.Closer); ok {
		a.closers = append(a.closers, func() { _ = c.Close() })
	}

	// Ledger
	switch cfg.LedgerMode {
	case config.LedgerModeEVM:
		client, err := evm.Dial(ctx, evm.Config{
			RPCURL:          cfg.RPCURL,
			ContractAddress: cfg.ContractAddress,
			PrivateKey:      cfg.PrivateKey,
			Timeout:         cfg.LedgerTimeout,
			RPS:             cfg.LedgerRPS,
		})
		if err != nil {
			return nil, fmt.Errorf("connect ledger: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		a.ledger = client
	default:
		signer, err := localSigner(cfg.PrivateKey)
		if err != nil {
			return nil, err
		}
		logger.Warn("LEDGER_MODE=local: using an in-process ledger", "signer", signer)
		a.ledger = ledger.NewLedger(signer)
	}
	a.health["ledger"] = func(ctx context.Context) error {
		_, err := a.ledger.Owner(ctx, "health-probe")
		return err
	}
	if !a.ledger.SignerConfigured() {
		logger.Warn("no ledger signer configured; chain pushes will fail until BLOCKCHAIN_PRIVATE_KEY is set")
	}

	codes := transfercode.NewIssuer(codeStore, directory).WithTTL(cfg.TransferCodeTTL)
	a.sync = chainsync.NewAgent(a.ledger).WithMetrics(metrics)
	a.audit = audit.NewLog()
	if cfg.AuditFile != "" {
		f, err := os.OpenFile(cfg.AuditFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, fmt.Errorf("open audit file: %w", err)
		}
		a.closers = append(a.closers, func() { _ = f.Close() })
		sink := audit.NewWriterRecorder(f)
		a.audit.OnAppend(func(e *audit.Entry) {
			if err := sink.Record(ctx, e.Event); err != nil {
				logger.Warn("audit sink write failed", "event_id", e.Event.ID, "error", err)
			}
		})
	}

	a.svc = titles.New(titles.Deps{
		Records: a.records,
		Content: content,
		Reader:  a.ledger,
		Review:  review.NewCoordinator(),
		Push: chainpush.NewGateway(a.ledger, a.ledger).
			WithPlan(profile.Ledger.Registration, profile.ContractVersion(cfg)).
			WithCallTimeout(cfg.LedgerTimeout).
			WithMetrics(metrics),
		Sync:      a.sync,
		Transfers: transfer.NewReconciler(a.ledger, codes).WithCallTimeout(cfg.LedgerTimeout).WithMetrics(metrics),
		Codes:     codes,
		Directory: directory,
		Audit:     a.audit,
		Metrics:   metrics,
	})
	return a, nil
}

// localSigner derives the in-process ledger's signer address from an
// optional private key.
func localSigner(privateKey string) (string, error) {
	if privateKey == "" {
		return "", nil
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKey, "0x"))
	if err != nil {
		return "", errors.New("invalid BLOCKCHAIN_PRIVATE_KEY")
	}
	return strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex()), nil
}
