package rag

import (
	"context"
	"fmt"
	"os"

	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/textsplitter"
)

// documentLoader extracts and splits a staged document into text pieces.
type documentLoader func(ctx context.Context, path string, splitter textsplitter.TextSplitter) ([]string, error)

func loadPDF(ctx context.Context, path string, splitter textsplitter.TextSplitter) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open staged file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat staged file: %w", err)
	}

	docs, err := documentloaders.NewPDF(f, info.Size()).LoadAndSplit(ctx, splitter)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PDF: %w", err)
	}

	pieces := make([]string, 0, len(docs))
	for _, doc := range docs {
		if doc.PageContent == "" {
			continue
		}
		pieces = append(pieces, doc.PageContent)
	}
	return pieces, nil
}
