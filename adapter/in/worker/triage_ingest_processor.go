package worker

import (
	"context"

	"triage_server/core/domain"
	"triage_server/core/port/in"
	"triage_server/pkg/apperr"
	"triage_server/pkg/logger"
)

// IngestProcessor runs the ingest pipeline for triage.ingest jobs.
type IngestProcessor struct {
	ingest in.IngestUseCase
}

func NewIngestProcessor(ingest in.IngestUseCase) *IngestProcessor {
	return &IngestProcessor{ingest: ingest}
}

func (p *IngestProcessor) ProcessIngest(ctx context.Context, msg *Message) error {
	payload, err := ParsePayload[domain.InboundMessage](msg)
	if err != nil {
		// a payload that cannot be decoded will never succeed
		return apperr.BadRequest("invalid ingest payload").WithError(err)
	}

	result, err := p.ingest.Ingest(ctx, payload, msg.IsRetry())
	if err != nil {
		return err
	}

	logger.WithFields(map[string]any{
		"job_id":     msg.ID,
		"message_id": payload.ExternalID,
		"outcome":    string(result.Outcome),
		"resumed":    result.Resumed,
	}).Info("ingest job finished")
	return nil
}
