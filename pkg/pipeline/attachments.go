package pipeline

import (
	"context"
	"regexp"

	"github.com/pkg/errors"
)

// attachmentRefPattern matches attachment references embedded in message
// text, e.g. "attachment://a1b2c3".
var attachmentRefPattern = regexp.MustCompile(`attachment://([A-Za-z0-9_-]+)`)

// AttachmentResolver turns an attachment id into its text transcription
// (OCR, audio transcript, ...). Implementations live outside this core.
type AttachmentResolver interface {
	Transcribe(ctx context.Context, attachmentID string) (string, error)
}

// NewAttachmentProcessor replaces attachment references in message contents
// with their transcriptions. An unresolvable reference is left in place and
// reported after the remaining references have been handled.
func NewAttachmentProcessor(resolver AttachmentResolver) Processor {
	return Processor{
		ID:             "attachments",
		Name:           "resolve attachment transcriptions",
		Priority:       PriorityAttachments,
		DefaultEnabled: true,
		Execute: func(ctx context.Context, pctx *Context) error {
			if resolver == nil {
				return nil
			}
			var firstErr error
			for i := range pctx.Messages {
				pctx.Messages[i].Content = attachmentRefPattern.ReplaceAllStringFunc(
					pctx.Messages[i].Content,
					func(ref string) string {
						id := attachmentRefPattern.FindStringSubmatch(ref)[1]
						transcription, err := resolver.Transcribe(ctx, id)
						if err != nil {
							if firstErr == nil {
								firstErr = errors.Wrapf(err, "attachment %s", id)
							}
							return ref
						}
						return transcription
					},
				)
			}
			return firstErr
		},
	}
}
