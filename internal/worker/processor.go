// Package worker hosts the asynq handlers run by cmd/worker.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/PartnerGate/internal/common"
	"github.com/dharsanguruparan/PartnerGate/internal/contractpdf"
	"github.com/dharsanguruparan/PartnerGate/internal/logging"
	pdfutil "github.com/dharsanguruparan/PartnerGate/internal/pdf"
	"github.com/dharsanguruparan/PartnerGate/internal/queue"
	"github.com/dharsanguruparan/PartnerGate/internal/repository"
	"github.com/dharsanguruparan/PartnerGate/internal/s3storage"
	"github.com/dharsanguruparan/PartnerGate/internal/terms"
)

// Processor is plugged into the asynq worker loop.
type Processor struct {
	store    repository.Store
	objects  s3storage.ObjectStore
	renderer terms.ContractRenderer
	logger   logging.Logger
}

// NewProcessor constructs a worker processor.
func NewProcessor(store repository.Store, objects s3storage.ObjectStore, renderer terms.ContractRenderer, logger logging.Logger) *Processor {
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Processor{store: store, objects: objects, renderer: renderer, logger: logger}
}

// Handler registers the contract job handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.GenerateContractTask, p.handleContract)
	return mux
}

func (p *Processor) handleContract(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.ParseContractPayload(task.Payload())
	if err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	return p.GenerateContract(ctx, payload)
}

// GenerateContract renders the accepted contract of one record to PDF,
// checks it, stores it in the contracts bucket and records the reference.
// Errors that a retry cannot fix wrap asynq.SkipRetry.
func (p *Processor) GenerateContract(ctx context.Context, payload queue.ContractPayload) error {
	log := p.logger.With("application_id", payload.ApplicationID, "record_id", payload.AcceptanceID)
	permanent := func(err error) error {
		log.Error(ctx, "contract generation failed", "error", err)
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	rec, err := p.store.Terms().Get(ctx, payload.AcceptanceID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return permanent(err)
		}
		return err
	}
	if rec.ApplicationID != payload.ApplicationID {
		return permanent(fmt.Errorf("record belongs to application %s", rec.ApplicationID))
	}
	if !rec.Accepted() || rec.Acceptance == nil {
		return permanent(fmt.Errorf("record not accepted"))
	}
	if rec.ContractPDFRef != "" {
		log.Info(ctx, "contract already generated", "ref", rec.ContractPDFRef)
		return nil
	}
	app, err := p.store.Applications().Get(ctx, rec.ApplicationID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return permanent(err)
		}
		return err
	}

	acc := *rec.Acceptance
	text, err := p.renderer.Render(app, rec, &acc)
	if err != nil {
		return permanent(err)
	}
	if hash := terms.Hash(text); hash != acc.ContractHash {
		return permanent(fmt.Errorf("contract hash mismatch: stored %s, rendered %s", acc.ContractHash, hash))
	}

	data, err := contractpdf.Render(contractpdf.Input{
		ApplicationID: app.ID,
		RecordID:      rec.ID,
		Text:          text,
		Hash:          acc.ContractHash,
		AcceptedAt:    *rec.AcceptedAt,
		Acceptance:    &acc,
	})
	if err != nil {
		return permanent(err)
	}
	missing, err := pdfutil.ContainsAll(data, acc.ContractHash, acc.LegalName)
	if err != nil {
		return permanent(fmt.Errorf("read back pdf: %w", err))
	}
	if len(missing) > 0 {
		return permanent(fmt.Errorf("pdf is missing %s", strings.Join(missing, ", ")))
	}

	key := contractpdf.ObjectKey(app.ID, rec.ID)
	if err := s3storage.PutBytes(ctx, p.objects, s3storage.Contracts, key, data, "application/pdf"); err != nil {
		return err
	}
	if err := p.store.Terms().SetContractPDF(ctx, rec.ID, key); err != nil {
		return err
	}
	log.Info(ctx, "contract generated", "ref", key, "bytes", len(data))
	return nil
}
