package retrieve

import (
	"context"
	"log/slog"
	"path/filepath"
	"strconv"
	"time"

	"github.com/open-access-policies/policy-crew/internal/chunk"
	"github.com/open-access-policies/policy-crew/internal/config"
	"github.com/open-access-policies/policy-crew/internal/corpus"
	"github.com/open-access-policies/policy-crew/internal/embed"
	herrors "github.com/open-access-policies/policy-crew/internal/errors"
	"github.com/open-access-policies/policy-crew/internal/store"
)

// Persisted index file names under paths.index_dir.
const (
	hnswFileName   = "vectors.hnsw"
	memoryFileName = "vectors.mem"
	chunkDBName    = "chunks.db"
)

// Build metadata keys recorded in the chunk store. The corpus fingerprint
// is written last: until it lands, a persisted index never matches and is
// rebuilt, so a crash mid-build cannot leave a reusable half-index.
const (
	metaCorpusFingerprint = "corpus_fingerprint"
	metaChunkSize         = "chunk_size"
	metaChunkOverlap      = "chunk_overlap"
	metaEmbedderModel     = "embedder_model"
	metaDimensions        = "dimensions"
	metaBuiltAt           = "built_at"
)

// Index is a built, searchable knowledge base.
type Index struct {
	Vectors store.VectorStore
	Chunks  *store.ChunkStore

	// Keywords is non-nil only when the configured strategy needs it.
	Keywords store.KeywordIndex

	// CorpusFingerprint identifies the document set the index was built
	// from.
	CorpusFingerprint string

	ChunkCount int

	// Reused reports that a persisted index was loaded instead of built.
	Reused bool
}

// Close releases every component of the index.
func (ix *Index) Close() error {
	var first error
	if ix.Vectors != nil {
		if err := ix.Vectors.Close(); err != nil && first == nil {
			first = err
		}
	}
	if ix.Keywords != nil {
		if err := ix.Keywords.Close(); err != nil && first == nil {
			first = err
		}
	}
	if ix.Chunks != nil {
		if err := ix.Chunks.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Builder turns the configured knowledge base into an Index: load, split,
// embed, store. With vector_store.persist enabled it reuses a persisted
// index when the corpus fingerprint, splitter parameters, and embedding
// model all match, and rebuilds otherwise.
type Builder struct {
	cfg      *config.Config
	embedder embed.Embedder
	logger   *slog.Logger
}

// NewBuilder creates an index builder.
func NewBuilder(cfg *config.Config, embedder embed.Embedder, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{cfg: cfg, embedder: embedder, logger: logger}
}

// Build produces a searchable index for the configured knowledge base.
func (b *Builder) Build(ctx context.Context) (*Index, error) {
	start := time.Now()

	loader := corpus.NewLoader(b.cfg.Paths.KBDir, b.cfg.Loader, b.logger)
	docs, err := loader.Load(ctx)
	if err != nil {
		return nil, err
	}

	splitter, err := chunk.NewSplitter(b.cfg.Splitter.ChunkSize, b.cfg.Splitter.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	var chunks []chunk.Chunk
	for _, doc := range docs {
		chunks = append(chunks, splitter.Split(doc.Path, doc.Content)...)
	}

	corpusFP := corpus.Fingerprint(docs)
	persist := b.cfg.VectorStore.Persist

	chunkPath := ""
	vectorPath := ""
	if persist {
		chunkPath = filepath.Join(b.cfg.Paths.IndexDir, chunkDBName)
		vectorPath = filepath.Join(b.cfg.Paths.IndexDir, vectorFileName(b.cfg.VectorStore.Type))
	}

	chunkStore, err := store.NewChunkStore(chunkPath, b.logger)
	if err != nil {
		return nil, err
	}

	index := &Index{Chunks: chunkStore, CorpusFingerprint: corpusFP, ChunkCount: len(chunks)}

	if persist {
		if vectors, ok := b.tryReuse(ctx, chunkStore, vectorPath, corpusFP, len(chunks)); ok {
			index.Vectors = vectors
			index.Reused = true
		}
	}

	if index.Vectors == nil {
		vectors, err := b.rebuild(ctx, chunkStore, chunks, corpusFP, vectorPath)
		if err != nil {
			_ = chunkStore.Close()
			return nil, err
		}
		index.Vectors = vectors
	}

	if b.cfg.Retriever.Strategy == StrategyHybrid {
		keywords, err := buildKeywordIndex(ctx, chunks)
		if err != nil {
			_ = index.Close()
			return nil, err
		}
		index.Keywords = keywords
	}

	b.logger.Info("index ready",
		slog.Int("documents", len(docs)),
		slog.Int("chunks", len(chunks)),
		slog.Bool("reused", index.Reused),
		slog.Bool("persisted", persist),
		slog.Duration("elapsed", time.Since(start)))
	return index, nil
}

// tryReuse loads a persisted vector store when the stored build metadata
// matches the current corpus, splitter parameters, and embedding model.
func (b *Builder) tryReuse(ctx context.Context, chunkStore *store.ChunkStore, vectorPath, corpusFP string, chunkCount int) (store.VectorStore, bool) {
	checks := []struct {
		key  string
		want string
	}{
		{metaCorpusFingerprint, corpusFP},
		{metaChunkSize, strconv.Itoa(b.cfg.Splitter.ChunkSize)},
		{metaChunkOverlap, strconv.Itoa(b.cfg.Splitter.ChunkOverlap)},
		{metaEmbedderModel, b.embedder.ModelName()},
		{metaDimensions, strconv.Itoa(b.embedder.Dimensions())},
	}
	for _, check := range checks {
		got, ok, err := chunkStore.GetMeta(ctx, check.key)
		if err != nil || !ok || got != check.want {
			b.logger.Debug("persisted index not reusable",
				slog.String("key", check.key),
				slog.String("want", check.want),
				slog.String("got", got))
			return nil, false
		}
	}

	count, err := chunkStore.Count(ctx)
	if err != nil || count != chunkCount {
		b.logger.Warn("persisted chunk count does not match corpus, rebuilding",
			slog.Int("stored", count),
			slog.Int("expected", chunkCount))
		return nil, false
	}

	vectors, err := store.NewVectorStore(b.cfg.VectorStore.Type, store.VectorStoreConfig{Dimensions: b.embedder.Dimensions()})
	if err != nil {
		return nil, false
	}
	if err := vectors.Load(vectorPath); err != nil {
		b.logger.Warn("persisted vector store unusable, rebuilding",
			slog.String("path", vectorPath),
			slog.String("error", err.Error()))
		_ = vectors.Close()
		return nil, false
	}
	if vectors.Count() != chunkCount || vectors.Dimensions() != b.embedder.Dimensions() {
		b.logger.Warn("persisted vector store does not match corpus, rebuilding",
			slog.Int("vectors", vectors.Count()),
			slog.Int("chunks", chunkCount))
		_ = vectors.Close()
		return nil, false
	}

	b.logger.Info("reusing persisted index",
		slog.String("fingerprint", corpusFP),
		slog.Int("chunks", chunkCount))
	return vectors, true
}

// rebuild embeds every chunk and populates fresh stores, persisting them
// when a vector path is set.
func (b *Builder) rebuild(ctx context.Context, chunkStore *store.ChunkStore, chunks []chunk.Chunk, corpusFP, vectorPath string) (store.VectorStore, error) {
	if err := chunkStore.Clear(ctx); err != nil {
		return nil, herrors.Wrap(herrors.ErrCodeIndexBuild, err)
	}
	if err := chunkStore.Put(ctx, chunks); err != nil {
		return nil, herrors.Wrap(herrors.ErrCodeIndexBuild, err)
	}

	ids := make([]string, len(chunks))
	contents := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
		contents[i] = c.Content
	}

	embedStart := time.Now()
	vecs, err := b.embedder.EmbedBatch(ctx, contents)
	if err != nil {
		return nil, err
	}
	b.logger.Debug("corpus embedded",
		slog.Int("chunks", len(chunks)),
		slog.Duration("elapsed", time.Since(embedStart)))

	vectors, err := store.NewVectorStore(b.cfg.VectorStore.Type, store.VectorStoreConfig{Dimensions: b.embedder.Dimensions()})
	if err != nil {
		return nil, err
	}
	if err := vectors.Add(ctx, ids, vecs); err != nil {
		_ = vectors.Close()
		return nil, herrors.Wrap(herrors.ErrCodeIndexBuild, err)
	}

	if vectorPath != "" {
		if err := vectors.Save(vectorPath); err != nil {
			_ = vectors.Close()
			return nil, err
		}
		meta := []struct {
			key   string
			value string
		}{
			{metaChunkSize, strconv.Itoa(b.cfg.Splitter.ChunkSize)},
			{metaChunkOverlap, strconv.Itoa(b.cfg.Splitter.ChunkOverlap)},
			{metaEmbedderModel, b.embedder.ModelName()},
			{metaDimensions, strconv.Itoa(b.embedder.Dimensions())},
			{metaBuiltAt, time.Now().UTC().Format(time.RFC3339)},
			{metaCorpusFingerprint, corpusFP},
		}
		for _, m := range meta {
			if err := chunkStore.SetMeta(ctx, m.key, m.value); err != nil {
				_ = vectors.Close()
				return nil, herrors.Wrap(herrors.ErrCodeIndexPersist, err)
			}
		}
	}

	return vectors, nil
}

// buildKeywordIndex indexes every chunk for the hybrid strategy.
func buildKeywordIndex(ctx context.Context, chunks []chunk.Chunk) (store.KeywordIndex, error) {
	keywords, err := store.NewKeywordIndex()
	if err != nil {
		return nil, herrors.Wrap(herrors.ErrCodeIndexBuild, err)
	}
	docs := make([]store.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = store.Document{ID: c.ID, Content: c.Content}
	}
	if err := keywords.Index(ctx, docs); err != nil {
		_ = keywords.Close()
		return nil, herrors.Wrap(herrors.ErrCodeIndexBuild, err)
	}
	return keywords, nil
}

// vectorFileName maps a backend type to its persisted file name.
func vectorFileName(backend string) string {
	if backend == store.BackendMemory {
		return memoryFileName
	}
	return hnswFileName
}
