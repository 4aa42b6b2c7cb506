package out

import (
	"context"

	"triage_server/core/domain"
)

// IngestQueue hands inbound messages to the asynchronous ingest pipeline.
type IngestQueue interface {
	Enqueue(ctx context.Context, in *domain.InboundMessage) error
}
