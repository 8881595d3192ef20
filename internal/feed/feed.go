// Package feed publishes an RSS feed of recent public generations for the
// gallery surface.
package feed

import (
	"context"
	"time"

	"github.com/gorilla/feeds"
	"github.com/samber/do"
	"github.com/samber/lo"

	"ghiblify/internal/history"
	"ghiblify/internal/log"
)

const recentLimit = 50

type Generator struct {
	history *history.Log
	baseURL string
}

func NewGenerator(i *do.Injector) (*Generator, error) {
	return &Generator{
		history: do.MustInvoke[*history.Log](i),
		baseURL: do.MustInvokeNamed[string](i, "base_url"),
	}, nil
}

func (g *Generator) Generate(ctx context.Context) ([]byte, error) {
	log.FromContextOrDiscard(ctx).WithGroup("feed").Info("generating rss feed")

	records, err := g.history.Recent(ctx, recentLimit)
	if err != nil {
		return nil, err
	}

	feed := feeds.Feed{
		Title:       "Ghiblify",
		Description: "Recent Ghibli-style renderings",
		Link:        &feeds.Link{Href: g.baseURL},
		Updated:     time.Now().UTC(),
	}
	feed.Items = lo.Map(records, func(r history.Record, _ int) *feeds.Item {
		title := "Ghibli-style rendering"
		if r.Background != "" {
			title += " - " + r.Background
		}
		return &feeds.Item{
			Id:      r.ID,
			Title:   title,
			Link:    &feeds.Link{Href: r.GeneratedURL},
			Updated: r.Timestamp,
		}
	})

	rss, err := feed.ToRss()
	return []byte(rss), err
}
