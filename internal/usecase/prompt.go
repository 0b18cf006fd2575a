package usecase

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"sort"
	"text/template"
	"unicode/utf8"

	"docrag/internal/domain"
	"docrag/internal/port"
)

//go:embed templates/*.tmpl
var promptTemplates embed.FS

var templates = template.Must(
	template.New("prompt").
		Funcs(template.FuncMap{"inc": func(i int) int { return i + 1 }}).
		ParseFS(promptTemplates, "templates/*.tmpl"),
)

const systemPrompt = "You are a helpful assistant that answers questions about the user's documents. Cite sources."

// Pack selects chunks for a prompt of at most budget characters. Chunks are
// taken greedily by score, skipping any that no longer fit; the selection
// keeps retrieval order.
func Pack(query string, chunks []domain.ScoredChunk, budget int) domain.PackedContext {
	packed := domain.PackedContext{
		Query:       query,
		BudgetChars: budget,
		Snippets:    []domain.Snippet{},
	}

	order := make([]int, len(chunks))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return chunks[order[a]].Score > chunks[order[b]].Score
	})

	selected := make([]bool, len(chunks))
	for _, i := range order {
		size := utf8.RuneCountInString(chunks[i].Chunk.Content)
		if packed.UsedChars+size > budget {
			continue
		}
		selected[i] = true
		packed.UsedChars += size
	}

	for i, c := range chunks {
		if !selected[i] {
			continue
		}
		packed.Snippets = append(packed.Snippets, domain.Snippet{
			Source: c.Chunk.Source,
			Score:  c.Score,
			Why:    fmt.Sprintf("cosine similarity %.3f", c.Score),
			Text:   c.Chunk.Content,
		})
	}

	return packed
}

// Render fills the named prompt template ("answer" or "context").
func Render(name string, packed domain.PackedContext) (string, error) {
	tmpl := templates.Lookup(name + ".tmpl")
	if tmpl == nil {
		return "", fmt.Errorf("unknown prompt template %q", name)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, packed); err != nil {
		return "", fmt.Errorf("failed to render template: %w", err)
	}
	return buf.String(), nil
}

// PromptUseCase assembles prompts from retrieved context and asks the LLM.
type PromptUseCase struct {
	retrieve *RetrieveUseCase
	llm      port.LLM
	topK     int
	budget   int
	template string
}

func NewPromptUseCase(retrieve *RetrieveUseCase, llm port.LLM, topK, budget int, templateName string) *PromptUseCase {
	return &PromptUseCase{
		retrieve: retrieve,
		llm:      llm,
		topK:     topK,
		budget:   budget,
		template: templateName,
	}
}

// Answer is the result of Ask.
type Answer struct {
	Query   string               `json:"query"`
	Answer  string               `json:"answer"`
	Model   string               `json:"model"`
	Context domain.PackedContext `json:"context"`
}

// Build retrieves context for query and renders the configured template.
func (u *PromptUseCase) Build(ctx context.Context, query string) (string, domain.PackedContext, error) {
	results, err := u.retrieve.Retrieve(ctx, query, u.topK)
	if err != nil {
		return "", domain.PackedContext{}, err
	}
	packed := Pack(query, results, u.budget)
	prompt, err := Render(u.template, packed)
	if err != nil {
		return "", packed, err
	}
	return prompt, packed, nil
}

// Ask answers query from the indexed documents. It always uses the answer
// template regardless of the configured one.
func (u *PromptUseCase) Ask(ctx context.Context, query string) (*Answer, error) {
	results, err := u.retrieve.Retrieve(ctx, query, u.topK)
	if err != nil {
		return nil, err
	}
	packed := Pack(query, results, u.budget)
	prompt, err := Render("answer", packed)
	if err != nil {
		return nil, err
	}

	text, err := u.llm.Generate(ctx, systemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	return &Answer{
		Query:   query,
		Answer:  text,
		Model:   u.llm.ModelName(),
		Context: packed,
	}, nil
}
