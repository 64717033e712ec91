package schema

import "time"

const (
	// MetadataKeySource is the key for the source document's logical name
	// (usually the uploaded file's base name).
	MetadataKeySource = "source"
	// MetadataKeyPageLabel is the key for the page number or label from the
	// source document, when the loader can determine one.
	MetadataKeyPageLabel = "page_label"
	// MetadataKeyChunkNumber is the key for the 1-based position of a chunk
	// within its source document.
	MetadataKeyChunkNumber = "chunk_number"
	// MetadataKeySessionID is the key for the session token that owns the
	// chunk, or SampleOwner for shared sample documents.
	MetadataKeySessionID = "session_id"
	// MetadataKeyIsSample is the key for the sample flag. Sample chunks are
	// visible to every session and never expire.
	MetadataKeyIsSample = "is_sample"
	// MetadataKeyUploadedAt is the key for the RFC3339 ingestion timestamp.
	MetadataKeyUploadedAt = "uploaded_at"

	// SampleOwner is the sentinel session value for sample documents.
	SampleOwner = "sample"
)

// Document is the central data structure representing a chunk of text and
// its associated data. It is the primary data carrier throughout the
// ingestion and retrieval pipelines.
type Document struct {
	// ID is the unique identifier for this document chunk.
	ID string

	// Text is the string content of the chunk.
	Text string

	// Embedding is the vector representation of the text.
	Embedding []float32

	// Metadata holds provenance data about the chunk: source, session
	// owner, sample flag, chunk number, ingestion time.
	Metadata map[string]interface{}
}

// Source returns the chunk's source document name, or "" when untagged.
func (d *Document) Source() string {
	s, _ := d.Metadata[MetadataKeySource].(string)
	return s
}

// Owner returns the session token that owns the chunk.
func (d *Document) Owner() string {
	s, _ := d.Metadata[MetadataKeySessionID].(string)
	return s
}

// IsSample reports whether the chunk belongs to a shared sample document.
func (d *Document) IsSample() bool {
	b, _ := d.Metadata[MetadataKeyIsSample].(bool)
	return b
}

// Tag stamps ownership metadata onto the chunk. Sample chunks are owned by
// the SampleOwner sentinel regardless of the token passed in.
func (d *Document) Tag(sessionToken string, isSample bool, now time.Time) {
	if d.Metadata == nil {
		d.Metadata = make(map[string]interface{})
	}
	owner := sessionToken
	if isSample {
		owner = SampleOwner
	}
	d.Metadata[MetadataKeySessionID] = owner
	d.Metadata[MetadataKeyIsSample] = isSample
	d.Metadata[MetadataKeyUploadedAt] = now.UTC().Format(time.RFC3339)
}
