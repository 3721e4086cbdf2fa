package pipeline

import (
	"context"
	"sort"
)

// WorldEntry is one ranked knowledge entry supplied by the worldbook
// collaborator. Lower rank means earlier in the injected block.
type WorldEntry struct {
	ID   string
	Name string
	Text string
	Rank int
}

// WorldbookProvider supplies the entries relevant to the current context.
// Storage and matching of entries live outside this core.
type WorldbookProvider interface {
	Entries(ctx context.Context, pctx *Context) ([]WorldEntry, error)
}

// NewInjectionProcessor merges the worldbook entries into the pipeline
// scratch state, rank order. The formatter folds the injected block into
// the system message.
func NewInjectionProcessor(provider WorldbookProvider) Processor {
	return Processor{
		ID:             "injection",
		Name:           "assemble injected content",
		Priority:       PriorityInjection,
		DefaultEnabled: true,
		Execute: func(ctx context.Context, pctx *Context) error {
			if provider == nil {
				return nil
			}
			entries, err := provider.Entries(ctx, pctx)
			if err != nil {
				return err
			}
			sort.SliceStable(entries, func(i, j int) bool {
				return entries[i].Rank < entries[j].Rank
			})
			for _, entry := range entries {
				if entry.Text == "" {
					continue
				}
				pctx.Injected = append(pctx.Injected, entry.Text)
			}
			return nil
		},
	}
}
