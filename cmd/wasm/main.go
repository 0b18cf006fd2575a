//go:build js && wasm

package main

import (
	"context"
	"encoding/json"
	"syscall/js"

	"docrag/internal/adapter/chunker"
	"docrag/internal/adapter/embedding"
	"docrag/internal/adapter/extract"
	"docrag/internal/adapter/memstore"
	"docrag/internal/adapter/retriever"
	"docrag/internal/usecase"
)

const dimension = 256

var (
	store    *memstore.MemoryStore
	ingest   *usecase.IngestUseCase
	retrieve *usecase.RetrieveUseCase
)

func init() {
	reset()
}

// reset builds a fresh in-memory index.
func reset() {
	store = memstore.NewMemoryStore()
	vectors := memstore.NewMemoryVectorStore(dimension)
	embedder := embedding.NewMockEmbedder(dimension)
	chk, _ := chunker.NewTextChunker(chunker.DefaultMaxSize, chunker.DefaultOverlap)

	ingest = usecase.NewIngestUseCase(store, vectors, extract.NewRegistry(), chk, embedder, nil, usecase.IngestOptions{})
	retrieve = usecase.NewRetrieveUseCase(
		retriever.NewSemanticRetriever(vectors, embedder, store),
		retriever.NewMMRReranker(0.7, 0.8),
		0,
	)
}

func main() {
	c := make(chan struct{})

	js.Global().Set("docragIngest", js.FuncOf(ingestContent))
	js.Global().Set("docragQuery", js.FuncOf(queryContent))
	js.Global().Set("docragChunk", js.FuncOf(chunkContent))
	js.Global().Set("docragClear", js.FuncOf(clearIndex))
	js.Global().Set("docragStats", js.FuncOf(getStats))

	<-c
}

func ingestContent(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return makeError("usage: docragIngest(filename, content)")
	}

	filename := args[0].String()
	content := args[1].String()

	res, err := ingest.IngestFile(context.Background(), filename, []byte(content))
	if err != nil {
		return makeError("ingestion failed: " + err.Error())
	}

	return makeResult(map[string]interface{}{
		"success":  true,
		"id":       res.Document.ID,
		"chunks":   res.Chunks,
		"skipped":  res.Skipped,
		"filename": filename,
	})
}

func queryContent(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return makeError("usage: docragQuery(query, [topK])")
	}

	query := args[0].String()
	topK := 5
	if len(args) > 1 {
		topK = args[1].Int()
	}

	results, err := retrieve.Retrieve(context.Background(), query, topK)
	if err != nil {
		return makeError("search failed: " + err.Error())
	}

	output := make([]map[string]interface{}, 0, len(results))
	for _, r := range results {
		output = append(output, map[string]interface{}{
			"source": r.Chunk.Source,
			"score":  r.Score,
			"text":   r.Chunk.Content,
		})
	}

	return makeResult(map[string]interface{}{
		"results": output,
		"query":   query,
	})
}

func chunkContent(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return makeError("usage: docragChunk(text, [maxSize, overlap])")
	}

	maxSize, overlap := chunker.DefaultMaxSize, chunker.DefaultOverlap
	if len(args) > 1 {
		maxSize = args[1].Int()
	}
	if len(args) > 2 {
		overlap = args[2].Int()
	}

	chunks, err := chunker.Chunk(args[0].String(), maxSize, overlap)
	if err != nil {
		return makeError(err.Error())
	}

	return makeResult(map[string]interface{}{
		"chunks": chunks,
	})
}

func clearIndex(this js.Value, args []js.Value) interface{} {
	reset()
	return makeResult(map[string]interface{}{
		"success": true,
	})
}

func getStats(this js.Value, args []js.Value) interface{} {
	stats, _ := store.GetStats()
	docs, _ := store.ListDocs()

	filenames := make([]string, len(docs))
	for i, doc := range docs {
		filenames[i] = doc.Name
	}

	return makeResult(map[string]interface{}{
		"totalDocs":   stats.TotalDocs,
		"totalChunks": stats.TotalChunks,
		"avgChunkLen": stats.AvgChunkLen,
		"files":       filenames,
	})
}

func makeError(msg string) interface{} {
	result, _ := json.Marshal(map[string]interface{}{
		"error": msg,
	})
	return string(result)
}

func makeResult(data map[string]interface{}) interface{} {
	result, _ := json.Marshal(data)
	return string(result)
}
