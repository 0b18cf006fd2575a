package domain

import "time"

// Document is an ingested source file.
type Document struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	MimeType   string    `json:"mime_type"`
	Size       int64     `json:"size"`
	Checksum   string    `json:"checksum"`
	ChunkCount int       `json:"chunk_count"`
	IngestedAt time.Time `json:"ingested_at"`
}

// Chunk is one bounded-size segment of a document's extracted text.
type Chunk struct {
	ID      string `json:"id"`
	DocID   string `json:"doc_id"`
	Index   int    `json:"index"`
	Source  string `json:"source"`
	Content string `json:"content"`
}

type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

type PackedContext struct {
	Query       string    `json:"query"`
	BudgetChars int       `json:"budget_chars"`
	UsedChars   int       `json:"used_chars"`
	Snippets    []Snippet `json:"snippets"`
}

type Snippet struct {
	Source string  `json:"source"`
	Score  float64 `json:"score"`
	Why    string  `json:"why"`
	Text   string  `json:"text"`
}

type Stats struct {
	TotalDocs   int     `json:"total_docs"`
	TotalChunks int     `json:"total_chunks"`
	AvgChunkLen float64 `json:"avg_chunk_len"`
}
