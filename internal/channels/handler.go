package channels

import (
	"context"

	"github.com/fractalmind-ai/translatebot/internal/dispatch"
	"github.com/fractalmind-ai/translatebot/internal/pipeline"
)

// TranslationHandler drives the translate, confirm and share flow for inbound
// chat messages. Channel implementations are responsible for delivering the
// acknowledgements back to the user.
type TranslationHandler interface {
	ProcessIncomingText(ctx context.Context, msg pipeline.Message, opts ...pipeline.ProcessOption) (pipeline.ProcessResult, error)
	RequestConfirmation(ctx context.Context, conversationID string, res pipeline.ProcessResult) (pipeline.Prompt, error)
	ConfirmSharing(ctx context.Context, conversationID string) (dispatch.Outcome, error)
	DenySharing(ctx context.Context, conversationID string) error
	HasPending(conversationID string) bool
	Status() pipeline.Status
}
