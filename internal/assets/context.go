package assets

import (
	"context"
	"strings"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog/log"
)

// liveReloadScript subscribes to esbuild's change events. Stylesheet-only
// changes swap the link tags, everything else reloads the page.
const liveReloadScript = `(() => {
  if (typeof EventSource === "undefined") return;
  new EventSource("/esbuild").addEventListener("change", (e) => {
    const { added, removed, updated } = JSON.parse(e.data);
    if (!added.length && !removed.length && updated.length > 0 && updated.every((p) => p.endsWith(".css"))) {
      for (const link of document.querySelectorAll('link[rel="stylesheet"]')) {
        const url = new URL(link.href);
        if (url.host === location.host) {
          const next = link.cloneNode();
          next.href = url.pathname + "?" + Math.random().toString(36).slice(2);
          next.onload = () => link.remove();
          link.parentNode.insertBefore(next, link.nextSibling);
        }
      }
      return;
    }
    location.reload();
  });
})();`

// RebuildFunc receives the outcome of every build run by a watch context.
type RebuildFunc func(res *Result, err error)

// Context creates an incremental esbuild context. Every build it runs, first
// or watch-triggered, goes through the post-build plugins before onRebuild
// is called.
func (p *Pipeline) Context(ctx context.Context, onRebuild RebuildFunc) (api.BuildContext, error) {
	p.mu.Lock()
	p.ctx = ctx
	p.mu.Unlock()

	opts := p.Options()
	opts.Plugins = append(opts.Plugins, p.rebuildPlugin(onRebuild))

	buildCtx, ctxErr := api.Context(opts)
	if ctxErr != nil {
		return nil, messagesError(ErrBuildFailed, ctxErr.Errors)
	}

	return buildCtx, nil
}

func (p *Pipeline) rebuildPlugin(onRebuild RebuildFunc) api.Plugin {
	var started time.Time

	return api.Plugin{
		Name: "bundlekit-rebuild",
		Setup: func(build api.PluginBuild) {
			build.OnStart(func() (api.OnStartResult, error) {
				started = time.Now()
				return api.OnStartResult{}, nil
			})
			build.OnEnd(func(result *api.BuildResult) (api.OnEndResult, error) {
				res, err := p.finish(p.runContext(), result, started)
				if err == nil && p.config.Write {
					err = p.write(res)
				}
				if err != nil {
					log.Error().Err(err).Msg("Rebuild failed")
				} else {
					log.Info().Str("files", strings.Join(res.Paths(), ",")).Msg("Rebuilt")
				}
				if onRebuild != nil {
					onRebuild(res, err)
				}
				return api.OnEndResult{}, nil
			})
		},
	}
}
