package pipeline

import (
	"context"
	"regexp"

	"github.com/pkg/errors"
)

// assetRefPattern matches asset references in formatted output, e.g.
// "asset://avatar-7".
var assetRefPattern = regexp.MustCompile(`asset://([A-Za-z0-9_-]+)`)

// AssetResolver maps an asset id to its final payload form (a URL, a data
// URI, ...). Asset storage lives outside this core.
type AssetResolver interface {
	Resolve(ctx context.Context, assetID string) (string, error)
}

// NewAssetProcessor rewrites asset references in the formatted output to
// their final payload form. Resolutions are cached in the pipeline context
// so repeated references only hit the resolver once.
func NewAssetProcessor(resolver AssetResolver) Processor {
	return Processor{
		ID:             "assets",
		Name:           "resolve asset references",
		Priority:       PriorityAssets,
		DefaultEnabled: true,
		Execute: func(ctx context.Context, pctx *Context) error {
			if resolver == nil {
				return nil
			}
			var firstErr error
			for i := range pctx.Output {
				if pctx.Output[i].Content == "" {
					continue
				}
				pctx.Output[i].Content = assetRefPattern.ReplaceAllStringFunc(
					pctx.Output[i].Content,
					func(ref string) string {
						id := assetRefPattern.FindStringSubmatch(ref)[1]
						if resolved, ok := pctx.ResolvedAssets[id]; ok {
							return resolved
						}
						resolved, err := resolver.Resolve(ctx, id)
						if err != nil {
							if firstErr == nil {
								firstErr = errors.Wrapf(err, "asset %s", id)
							}
							return ref
						}
						pctx.ResolvedAssets[id] = resolved
						return resolved
					},
				)
			}
			return firstErr
		},
	}
}
