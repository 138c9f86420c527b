package index

import (
	"context"
	"fmt"
	"os"

	"mira/internal/embedding"
	"mira/internal/logging"
	"mira/internal/store"
)

// Result summarizes a project-wide index run.
type Result struct {
	FilesIndexed int
	FilesFailed  int
}

// IndexProject is the project-wide re-index: a fold over IndexFile for
// every file discovery turns up (spec.md §4.4: "Project-wide re-index is
// a fold over index(file)"). When embed is non-nil, each indexed file's
// symbols are chunked and enqueued for embedding per spec.md §4.4's code
// embeddings step.
func (ix *Indexer) IndexProject(ctx context.Context, projectID int64, root string, embed *embedding.Service, chunkVec *store.VectorIndex) (Result, error) {
	files, err := Discover(root, ix.reg)
	if err != nil {
		return Result{}, err
	}

	var res Result
	for _, path := range files {
		content, err := os.ReadFile(path)
		if err != nil {
			res.FilesFailed++
			logging.IndexError("index: read failed for %s: %v", path, err)
			continue
		}
		if err := ix.IndexFile(ctx, projectID, path, content); err != nil {
			res.FilesFailed++
			continue
		}
		res.FilesIndexed++

		if embed != nil && chunkVec != nil {
			ix.enqueueChunks(ctx, projectID, path, embed, chunkVec)
		}
	}
	logging.Index("indexed project %s: %d files ok, %d failed", root, res.FilesIndexed, res.FilesFailed)
	return res, nil
}

const maxChunkLines = 200

// enqueueChunks re-reads the just-written symbols for path and enqueues a
// text form per spec.md §4.4: "{qualified_name}\n{doc?}\n{signature?}\n
// {body snippet}", splitting any symbol larger than maxChunkLines lines
// into multiple chunks.
func (ix *Indexer) enqueueChunks(ctx context.Context, projectID int64, path string, embed *embedding.Service, chunkVec *store.VectorIndex) {
	content, err := os.ReadFile(path)
	if err != nil {
		return
	}
	p := ix.reg.For(path)
	if p == nil {
		return
	}
	result, err := p.Parse(path, content)
	if err != nil {
		return
	}
	lines := splitLines(string(content))

	for _, sym := range result.Symbols {
		start, end := sym.StartLine, sym.EndLine
		if end < start {
			end = start
		}
		for s := start; s <= end; s += maxChunkLines {
			e := s + maxChunkLines - 1
			if e > end {
				e = end
			}
			body := sliceLines(lines, s, e)
			text := fmt.Sprintf("%s\n%s\n%s\n%s", sym.QualifiedName, sym.Documentation, sym.Signature, body)

			id, insertErr := insertChunk(ctx, ix.db, projectID, path, s, e, text)
			if insertErr != nil {
				logging.IndexError("index: insert chunk failed for %s: %v", path, insertErr)
				continue
			}
			embed.EnqueueWrite(id, text, chunkVec)
		}
	}
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	lines = append(lines, s[start:])
	return lines
}

func sliceLines(lines []string, start, end int) string {
	if start < 1 {
		start = 1
	}
	if end > len(lines) {
		end = len(lines)
	}
	if start > end {
		return ""
	}
	out := lines[start-1 : end]
	joined := ""
	for i, l := range out {
		if i > 0 {
			joined += "\n"
		}
		joined += l
	}
	return joined
}
