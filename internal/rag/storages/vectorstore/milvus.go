package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"docpilot/internal/rag/interfaces"
	"docpilot/internal/rag/schema"
	"docpilot/pkg/logger"
)

// Schema fields of the Milvus collection.
const (
	FieldID          = "id"
	FieldEmbedding   = "embedding"
	FieldText        = "text"
	FieldSource      = "source"
	FieldSessionID   = "session_id"
	FieldIsSample    = "is_sample"
	FieldChunkNumber = "chunk_number"
	FieldUploadedAt  = "uploaded_at"
)

const (
	maxIDLength     = 64
	maxTextLength   = 4096
	maxStringLength = 512
)

// MilvusStore implements VectorStore on a Milvus collection. Chunk text and
// provenance metadata live in scalar columns next to the embedding so both
// filtered search and delete-by-filter run server-side.
type MilvusStore struct {
	log        *logger.Logger
	client     client.Client
	collection string
	dim        int
}

// NewMilvusStore connects to Milvus, creates the collection and its index
// if missing, and loads it for search. Connection failure here is fatal to
// the whole pipeline at startup.
func NewMilvusStore(ctx context.Context, address, collection string, dim int, log *logger.Logger) (*MilvusStore, error) {
	c, err := client.NewClient(ctx, client.Config{Address: address})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus at %s: %w", address, err)
	}

	s := &MilvusStore{log: log, client: c, collection: collection, dim: dim}
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MilvusStore) ensureCollection(ctx context.Context) error {
	has, err := s.client.HasCollection(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection %s: %w", s.collection, err)
	}
	if !has {
		collSchema := &entity.Schema{
			CollectionName: s.collection,
			Description:    "docpilot chunk index",
			Fields: []*entity.Field{
				entity.NewField().WithName(FieldID).WithDataType(entity.FieldTypeVarChar).WithMaxLength(maxIDLength).WithIsPrimaryKey(true),
				entity.NewField().WithName(FieldEmbedding).WithDataType(entity.FieldTypeFloatVector).WithDim(int64(s.dim)),
				entity.NewField().WithName(FieldText).WithDataType(entity.FieldTypeVarChar).WithMaxLength(maxTextLength),
				entity.NewField().WithName(FieldSource).WithDataType(entity.FieldTypeVarChar).WithMaxLength(maxStringLength),
				entity.NewField().WithName(FieldSessionID).WithDataType(entity.FieldTypeVarChar).WithMaxLength(maxStringLength),
				entity.NewField().WithName(FieldIsSample).WithDataType(entity.FieldTypeBool),
				entity.NewField().WithName(FieldChunkNumber).WithDataType(entity.FieldTypeInt64),
				entity.NewField().WithName(FieldUploadedAt).WithDataType(entity.FieldTypeVarChar).WithMaxLength(maxStringLength),
			},
		}
		if err := s.client.CreateCollection(ctx, collSchema, 1); err != nil {
			return fmt.Errorf("failed to create collection %s: %w", s.collection, err)
		}
		idx, err := entity.NewIndexHNSW(entity.COSINE, 8, 200)
		if err != nil {
			return fmt.Errorf("failed to build index definition: %w", err)
		}
		if err := s.client.CreateIndex(ctx, s.collection, FieldEmbedding, idx, false); err != nil {
			return fmt.Errorf("failed to create index on %s: %w", s.collection, err)
		}
	}
	if err := s.client.LoadCollection(ctx, s.collection, false); err != nil {
		return fmt.Errorf("failed to load collection %s: %w", s.collection, err)
	}
	return nil
}

// Add inserts documents and flushes, so the write is durable before Add
// returns. Either the whole batch lands or the error propagates with no
// partial state the caller has to reason about.
func (s *MilvusStore) Add(ctx context.Context, docs []*schema.Document) error {
	if len(docs) == 0 {
		return nil
	}

	ids := make([]string, len(docs))
	embeddings := make([][]float32, len(docs))
	texts := make([]string, len(docs))
	sources := make([]string, len(docs))
	sessions := make([]string, len(docs))
	samples := make([]bool, len(docs))
	chunkNumbers := make([]int64, len(docs))
	uploadedAts := make([]string, len(docs))

	for i, doc := range docs {
		ids[i] = doc.ID
		embeddings[i] = doc.Embedding
		texts[i] = truncateRunes(doc.Text, maxTextLength)
		if len(texts[i]) < len(doc.Text) {
			s.log.Warn(fmt.Sprintf("chunk %s text truncated from %d to %d bytes for storage", doc.ID, len(doc.Text), len(texts[i])))
		}
		sources[i] = doc.Source()
		sessions[i] = doc.Owner()
		samples[i] = doc.IsSample()
		if n, ok := doc.Metadata[schema.MetadataKeyChunkNumber].(int); ok {
			chunkNumbers[i] = int64(n)
		}
		if ts, ok := doc.Metadata[schema.MetadataKeyUploadedAt].(string); ok {
			uploadedAts[i] = ts
		}
	}

	s.log.Info(fmt.Sprintf("Inserting %d chunks into Milvus collection %s", len(docs), s.collection))
	_, err := s.client.Insert(ctx, s.collection, "",
		entity.NewColumnVarChar(FieldID, ids),
		entity.NewColumnFloatVector(FieldEmbedding, s.dim, embeddings),
		entity.NewColumnVarChar(FieldText, texts),
		entity.NewColumnVarChar(FieldSource, sources),
		entity.NewColumnVarChar(FieldSessionID, sessions),
		entity.NewColumnBool(FieldIsSample, samples),
		entity.NewColumnInt64(FieldChunkNumber, chunkNumbers),
		entity.NewColumnVarChar(FieldUploadedAt, uploadedAts),
	)
	if err != nil {
		return fmt.Errorf("failed to insert into milvus: %w", err)
	}
	if err := s.client.Flush(ctx, s.collection, false); err != nil {
		return fmt.Errorf("failed to flush collection %s: %w", s.collection, err)
	}
	return nil
}

// Query runs a cosine nearest-neighbor search, optionally restricted by a
// metadata filter expression evaluated server-side.
func (s *MilvusStore) Query(ctx context.Context, embedding []float32, topK int, filters map[string]interface{}) ([]*schema.Document, error) {
	expr := buildFilterExpression(filters)
	sp, err := entity.NewIndexHNSWSearchParam(64)
	if err != nil {
		return nil, fmt.Errorf("failed to build search params: %w", err)
	}
	outputFields := []string{FieldID, FieldText, FieldSource, FieldSessionID, FieldIsSample, FieldChunkNumber, FieldUploadedAt}

	searchResults, err := s.client.Search(
		ctx, s.collection, nil, expr, outputFields,
		[]entity.Vector{entity.FloatVector(embedding)},
		FieldEmbedding, entity.COSINE, topK, sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search milvus: %w", err)
	}

	var results []*schema.Document
	for _, res := range searchResults {
		findColumn := func(name string) entity.Column {
			for _, field := range res.Fields {
				if field.Name() == name {
					return field
				}
			}
			return nil
		}

		idCol, ok := findColumn(FieldID).(*entity.ColumnVarChar)
		if !ok {
			s.log.Warn("Search result is missing the id field, skipping")
			continue
		}
		textCol, _ := findColumn(FieldText).(*entity.ColumnVarChar)
		sourceCol, _ := findColumn(FieldSource).(*entity.ColumnVarChar)
		sessionCol, _ := findColumn(FieldSessionID).(*entity.ColumnVarChar)
		sampleCol, _ := findColumn(FieldIsSample).(*entity.ColumnBool)
		chunkCol, _ := findColumn(FieldChunkNumber).(*entity.ColumnInt64)
		uploadedCol, _ := findColumn(FieldUploadedAt).(*entity.ColumnVarChar)

		for i := 0; i < res.ResultCount; i++ {
			doc := &schema.Document{
				ID:       idCol.Data()[i],
				Metadata: map[string]interface{}{"score": res.Scores[i]},
			}
			if textCol != nil {
				doc.Text = textCol.Data()[i]
			}
			if sourceCol != nil {
				doc.Metadata[schema.MetadataKeySource] = sourceCol.Data()[i]
			}
			if sessionCol != nil {
				doc.Metadata[schema.MetadataKeySessionID] = sessionCol.Data()[i]
			}
			if sampleCol != nil {
				doc.Metadata[schema.MetadataKeyIsSample] = sampleCol.Data()[i]
			}
			if chunkCol != nil {
				doc.Metadata[schema.MetadataKeyChunkNumber] = int(chunkCol.Data()[i])
			}
			if uploadedCol != nil {
				doc.Metadata[schema.MetadataKeyUploadedAt] = uploadedCol.Data()[i]
			}
			results = append(results, doc)
		}
	}
	return results, nil
}

// Delete removes every chunk matching the filter. Milvus treats a delete
// with no matching rows as a no-op, which gives us idempotence for free.
func (s *MilvusStore) Delete(ctx context.Context, filters map[string]interface{}) error {
	expr := buildFilterExpression(filters)
	if expr == "" {
		return fmt.Errorf("refusing to delete with an empty filter")
	}
	s.log.Info(fmt.Sprintf("Deleting chunks from %s where %s", s.collection, expr))
	if err := s.client.Delete(ctx, s.collection, "", expr); err != nil {
		return fmt.Errorf("failed to delete from milvus: %w", err)
	}
	return nil
}

// buildFilterExpression creates a Milvus boolean expression from metadata
// equality filters, with deterministic key order.
func buildFilterExpression(filters map[string]interface{}) string {
	if len(filters) == 0 {
		return ""
	}
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var conditions []string
	for _, key := range keys {
		switch v := filters[key].(type) {
		case string:
			conditions = append(conditions, fmt.Sprintf(`%s == "%s"`, key, strings.ReplaceAll(v, `"`, `\"`)))
		case bool:
			conditions = append(conditions, fmt.Sprintf("%s == %t", key, v))
		}
	}
	return strings.Join(conditions, " and ")
}

// truncateRunes caps s at limit bytes without splitting a multi-byte rune,
// so the stored VarChar is always valid UTF-8.
func truncateRunes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

var _ interfaces.VectorStore = (*MilvusStore)(nil)
