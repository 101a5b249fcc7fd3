package rag

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mudler/faqrecall/rag/faq"
	"github.com/mudler/faqrecall/rag/sources"
	"github.com/mudler/faqrecall/rag/types"
	"github.com/mudler/xlog"
)

// PageFetcher downloads the pages of a source.
type PageFetcher interface {
	Fetch(ctx context.Context, source string) ([]sources.Page, error)
}

// IngestStats counts what an ingestion run did.
type IngestStats struct {
	Pages   int `json:"pages"`
	Skipped int `json:"skipped"`
	Records int `json:"records"`
	Failed  int `json:"failed"`
}

func (s *IngestStats) add(o IngestStats) {
	s.Pages += o.Pages
	s.Skipped += o.Skipped
	s.Records += o.Records
	s.Failed += o.Failed
}

// Ingestor extracts FAQ records from pages, embeds them with every configured
// provider and upserts them into the document store.
type Ingestor struct {
	store     DocumentStore
	embedder  EmbeddingProvider
	providers []types.Provider
	extractor faq.Extractor
	fetcher   PageFetcher
	state     *IngestState
}

func NewIngestor(store DocumentStore, embedder EmbeddingProvider, providers []types.Provider, extractor faq.Extractor, fetcher PageFetcher, state *IngestState) *Ingestor {
	return &Ingestor{
		store:     store,
		embedder:  embedder,
		providers: providers,
		extractor: extractor,
		fetcher:   fetcher,
		state:     state,
	}
}

// RecordID derives a stable record id from the page URL and the question, so
// re-ingesting a page replaces its records.
func RecordID(pageURL, question string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(pageURL+"\n"+question)).String()
}

// IngestSource fetches a source and ingests its pages.
func (in *Ingestor) IngestSource(ctx context.Context, source string) (IngestStats, error) {
	pages, err := in.fetcher.Fetch(ctx, source)
	if err != nil {
		return IngestStats{}, fmt.Errorf("failed to fetch %s: %w", source, err)
	}
	return in.ingestPages(ctx, source, pages)
}

// IngestSources ingests several sources. A source that cannot be fetched does
// not stop the others; its error is returned with the combined stats.
func (in *Ingestor) IngestSources(ctx context.Context, srcs ...string) (IngestStats, error) {
	var (
		total IngestStats
		errs  []error
	)
	for _, src := range srcs {
		stats, err := in.IngestSource(ctx, src)
		total.add(stats)
		if err != nil {
			xlog.Error("Error ingesting source", "source", src, "error", err)
			errs = append(errs, err)
		}
	}
	return total, errors.Join(errs...)
}

// IngestPages ingests pages whose content changed since the last run.
// A page that fails is logged and counted; the run continues with the next page.
func (in *Ingestor) IngestPages(ctx context.Context, pages ...sources.Page) (IngestStats, error) {
	return in.ingestPages(ctx, "", pages)
}

func (in *Ingestor) ingestPages(ctx context.Context, source string, pages []sources.Page) (IngestStats, error) {
	var stats IngestStats
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		hash := ContentHash(page.Title + "\n" + page.Text)
		if in.state != nil && in.state.Unchanged(page.URL, hash) {
			xlog.Debug("Skipping unchanged page", "url", page.URL)
			stats.Skipped++
			continue
		}

		ids, err := in.ingestPage(ctx, page)
		if err != nil {
			xlog.Error("Error ingesting page", "url", page.URL, "error", err)
			stats.Failed++
			continue
		}

		if err := in.pruneStale(ctx, page.URL, ids); err != nil {
			xlog.Error("Error removing stale records", "url", page.URL, "error", err)
			stats.Failed++
			continue
		}

		stats.Pages++
		stats.Records += len(ids)

		if in.state != nil {
			if err := in.state.MarkIngested(source, page.URL, hash, ids); err != nil {
				return stats, fmt.Errorf("failed to save ingest state: %w", err)
			}
		}
	}

	xlog.Info("Ingestion finished", "pages", stats.Pages, "skipped", stats.Skipped, "records", stats.Records, "failed", stats.Failed)
	return stats, nil
}

// pruneStale deletes the records a previous run created from the page that the
// current run did not produce again.
func (in *Ingestor) pruneStale(ctx context.Context, url string, current []string) error {
	if in.state == nil {
		return nil
	}
	previous, ok := in.state.Page(url)
	if !ok {
		return nil
	}

	stale := make([]string, 0, len(previous.RecordIDs))
	for _, id := range previous.RecordIDs {
		if !slices.Contains(current, id) {
			stale = append(stale, id)
		}
	}
	if len(stale) == 0 {
		return nil
	}

	xlog.Debug("Removing stale records", "url", url, "count", len(stale))
	return in.store.Delete(ctx, stale...)
}

// RemoveSource deletes every record ingested from source and forgets its pages.
func (in *Ingestor) RemoveSource(ctx context.Context, source string) error {
	if in.state == nil {
		return nil
	}

	ids := in.state.SourceRecordIDs(source)
	if err := in.store.Delete(ctx, ids...); err != nil {
		return fmt.Errorf("failed to delete records of %s: %w", source, err)
	}
	xlog.Info("Removed source records", "source", source, "records", len(ids))
	return in.state.ForgetSource(source)
}

func (in *Ingestor) ingestPage(ctx context.Context, page sources.Page) ([]string, error) {
	items, err := in.extractor.Extract(ctx, page)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		xlog.Warn("No FAQ found in page", "url", page.URL)
		return nil, nil
	}

	records := make([]types.FaqRecord, 0, len(items))
	for _, item := range items {
		question := strings.TrimSpace(item.Question)
		record := types.NewFaqRecord(question, strings.TrimSpace(item.Answer), page.URL, page.Title)
		record.ID = RecordID(page.URL, question)

		for _, p := range in.providers {
			vector, err := in.embedder.Embed(ctx, record.Content, p)
			if err != nil {
				return nil, err
			}
			record.SetEmbedding(p, vector)
		}
		records = append(records, record)
	}

	if err := in.store.Upsert(ctx, records...); err != nil {
		return nil, fmt.Errorf("failed to store records: %w", err)
	}

	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	return ids, nil
}

// SourceManager periodically re-ingests registered external sources.
type SourceManager struct {
	ingestor *Ingestor
	state    *IngestState
	mu       sync.Mutex
	running  map[string]bool
}

// NewSourceManager creates a new source manager
func NewSourceManager(ingestor *Ingestor, state *IngestState) *SourceManager {
	return &SourceManager{
		ingestor: ingestor,
		state:    state,
		running:  map[string]bool{},
	}
}

// AddSource registers a source and triggers an immediate update.
func (sm *SourceManager) AddSource(ctx context.Context, url string, updateInterval time.Duration) error {
	source := ExternalSource{
		URL:            url,
		UpdateInterval: updateInterval,
	}
	if err := sm.state.AddExternalSource(source); err != nil {
		return err
	}

	go sm.updateSource(ctx, source)
	return nil
}

// RemoveSource unregisters a source and deletes the records ingested from it.
func (sm *SourceManager) RemoveSource(ctx context.Context, url string) error {
	if err := sm.state.RemoveExternalSource(url); err != nil {
		return err
	}
	return sm.ingestor.RemoveSource(ctx, url)
}

// Sources returns the registered sources.
func (sm *SourceManager) Sources() []ExternalSource {
	return sm.state.ExternalSources()
}

// UpdateDue updates every source whose interval elapsed and waits for them to finish.
func (sm *SourceManager) UpdateDue(ctx context.Context) {
	var wg sync.WaitGroup
	for _, source := range sm.state.ExternalSources() {
		if time.Since(source.LastUpdate) < source.UpdateInterval {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			sm.updateSource(ctx, source)
		}()
	}
	wg.Wait()
}

// updateSource updates a single source. Concurrent updates of the same source are skipped.
func (sm *SourceManager) updateSource(ctx context.Context, source ExternalSource) {
	sm.mu.Lock()
	if sm.running[source.URL] {
		sm.mu.Unlock()
		return
	}
	sm.running[source.URL] = true
	sm.mu.Unlock()

	defer func() {
		sm.mu.Lock()
		delete(sm.running, source.URL)
		sm.mu.Unlock()
	}()

	xlog.Info("Updating source", "url", source.URL)
	stats, err := sm.ingestor.IngestSource(ctx, source.URL)
	if err != nil {
		xlog.Error("Error updating source", "url", source.URL, "error", err)
		return
	}

	if err := sm.state.TouchExternalSource(source.URL, time.Now()); err != nil {
		xlog.Warn("Error saving source state", "url", source.URL, "error", err)
	}
	xlog.Info("Source updated", "url", source.URL, "pages", stats.Pages, "records", stats.Records)
}

// Start checks the registered sources every minute until ctx is done.
func (sm *SourceManager) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(1 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sm.UpdateDue(ctx)
			}
		}
	}()
}
