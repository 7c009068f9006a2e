// Package server wires configuration, storage, side-effect workers and the
// lifecycle services into a runnable stack shared by the binaries.
package server

import (
	"context"
	"fmt"
	"sync"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/dharsanguruparan/PartnerGate/internal/api"
	"github.com/dharsanguruparan/PartnerGate/internal/application"
	"github.com/dharsanguruparan/PartnerGate/internal/auth"
	"github.com/dharsanguruparan/PartnerGate/internal/config"
	"github.com/dharsanguruparan/PartnerGate/internal/database"
	"github.com/dharsanguruparan/PartnerGate/internal/draft"
	"github.com/dharsanguruparan/PartnerGate/internal/email"
	"github.com/dharsanguruparan/PartnerGate/internal/form"
	"github.com/dharsanguruparan/PartnerGate/internal/geo"
	"github.com/dharsanguruparan/PartnerGate/internal/logging"
	"github.com/dharsanguruparan/PartnerGate/internal/processing"
	"github.com/dharsanguruparan/PartnerGate/internal/queue"
	"github.com/dharsanguruparan/PartnerGate/internal/repository"
	"github.com/dharsanguruparan/PartnerGate/internal/s3storage"
	"github.com/dharsanguruparan/PartnerGate/internal/signing"
	"github.com/dharsanguruparan/PartnerGate/internal/storage"
	"github.com/dharsanguruparan/PartnerGate/internal/terms"
	"github.com/dharsanguruparan/PartnerGate/internal/upload"
	"github.com/dharsanguruparan/PartnerGate/internal/verification"
	"github.com/dharsanguruparan/PartnerGate/internal/wizard"
	"github.com/dharsanguruparan/PartnerGate/internal/worker"
)

// Stack is the fully wired application. With the memory store everything
// runs in process, contract PDFs included; with postgres it uses Postgres,
// Redis, MinIO and the asynq queue.
type Stack struct {
	Config *config.Config
	Logger logging.Logger

	Store   repository.Store
	Drafts  draft.Store
	Objects s3storage.ObjectStore
	Side    *processing.Processor

	Applications *application.Service
	Terms        *terms.Service
	Verification *verification.Service
	Contracts    *worker.Processor
	Auth         *auth.Issuer
	API          *api.Server

	closers []func()
	once    sync.Once
}

// inlineQueue generates contracts in process when no queue is configured.
type inlineQueue struct {
	contracts *worker.Processor
}

func (q inlineQueue) EnqueueContractPDF(ctx context.Context, payload queue.ContractPayload) error {
	return q.contracts.GenerateContract(ctx, payload)
}

// Build constructs the stack described by cfg.
func Build(ctx context.Context, cfg *config.Config, logger logging.Logger) (*Stack, error) {
	if logger == nil {
		logger = logging.Nop{}
	}
	s := &Stack{Config: cfg, Logger: logger}
	if err := s.buildInfra(ctx); err != nil {
		s.Close()
		return nil, err
	}

	transport := email.Transport(email.LogTransport{Logger: logger})
	if cfg.SMTPHost != "" {
		transport = email.NewSMTPTransport(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPFrom)
	}
	mailer, err := email.NewMailer(transport, logger)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("init mailer: %w", err)
	}

	templates, err := terms.LoadTemplates(cfg.TemplatesDir)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Side = processing.New(cfg.SideJobs, logger)
	renderer := terms.DefaultRenderer{Clauses: templates}
	s.Contracts = worker.NewProcessor(s.Store, s.Objects, renderer, logger)

	var contractQueue terms.ContractQueue = inlineQueue{contracts: s.Contracts}
	if cfg.Store == config.StorePostgres {
		client := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		s.closers = append(s.closers, func() { _ = client.Close() })
		contractQueue = queue.NewClient(client)
	}

	s.Terms = terms.NewService(terms.Config{
		Validity:        cfg.TermsValidity,
		ContractVersion: cfg.ContractVersion,
		Links:           terms.Links{Canonical: cfg.CanonicalURL, Public: cfg.PublicURL},
	}, terms.Deps{
		Store:    s.Store,
		Signer:   signing.NewSigner(cfg.SigningSecret),
		Mail:     mailer,
		Side:     s.Side,
		Geo:      geo.NewClient(cfg.GeoEndpoint, cfg.GeoTimeout),
		Queue:    contractQueue,
		Drafts:   s.Drafts,
		Renderer: renderer,
		Objects:  s.Objects,
		Logger:   logger,
	})
	s.Applications = application.NewService(application.Deps{
		Store:           s.Store,
		Terms:           s.Terms,
		Mail:            mailer,
		Side:            s.Side,
		AdminRecipients: cfg.AdminRecipients,
		Objects:         s.Objects,
		Logger:          logger,
	})
	s.Verification = verification.NewService(verification.Deps{
		Store:  s.Store,
		Terms:  s.Terms,
		Mail:   mailer,
		Side:   s.Side,
		Logger: logger,
	})
	s.Auth = auth.NewIssuer(cfg.StaffJWTSecret, cfg.StaffTokenTTL)

	formOpts := []form.Option{
		form.WithDrafts(s.Drafts, cfg.DraftDebounce),
		form.WithCheckTimeout(cfg.ExistenceCheckTimeout),
		form.WithLogger(logger),
	}
	s.API = api.New(api.Config{
		Address:       cfg.Address,
		SignedURLTTL:  cfg.SignedURLTTL,
		MaxUploadSize: max(cfg.MaxCVSize, cfg.MaxDocumentSize),
	}, api.Deps{
		Applications:    s.Applications,
		Terms:           s.Terms,
		Verification:    s.Verification,
		ApplicationForm: wizard.NewApplicationForm(s.Applications.EmailTaken, formOpts...),
		TermsForm:       wizard.NewTermsForm(formOpts...),
		Uploads:         upload.NewService(s.Objects, upload.Policies(cfg), logger),
		Objects:         s.Objects,
		Auth:            s.Auth,
		Logger:          logger,
	})
	return s, nil
}

func (s *Stack) buildInfra(ctx context.Context) error {
	cfg := s.Config
	if cfg.Store != config.StorePostgres {
		s.Store = storage.NewMemoryStore()
		s.Drafts = draft.NewMemoryStore()
		s.Objects = s3storage.NewMemory()
		return nil
	}

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	s.closers = append(s.closers, pool.Close)
	db := database.OpenDB(pool)
	s.closers = append(s.closers, func() { _ = db.Close() })
	if err := database.Migrate(ctx, db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	s.Store = repository.NewPostgresStore(db)

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	s.closers = append(s.closers, func() { _ = rdb.Close() })
	s.Drafts = draft.NewRedisStore(rdb, cfg.DraftsTTL)

	objects, err := s3storage.New(cfg)
	if err != nil {
		return err
	}
	if err := objects.EnsureBuckets(ctx); err != nil {
		return fmt.Errorf("ensure buckets: %w", err)
	}
	s.Objects = objects
	return nil
}

// Serve starts the side-effect workers and the HTTP server, and blocks until
// ctx is cancelled and queued side effects have drained.
func (s *Stack) Serve(ctx context.Context) error {
	s.once.Do(func() {
		s.Side.Start(ctx)
	})
	err := s.API.Run(ctx)
	s.Side.Wait()
	return err
}

// Close releases connections in reverse order of creation.
func (s *Stack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
