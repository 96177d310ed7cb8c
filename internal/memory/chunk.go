package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"

	"github.com/convoyrt/convoy/pkg/convoymodel"
)

// ChunkingConfig mirrors the three tunables named in spec.md §4.5, with
// the original implementation's defaults (~400 target tokens, ~80 overlap
// tokens, ~4 chars per token).
type ChunkingConfig struct {
	TargetTokens  int
	OverlapTokens int
	CharsPerToken int
}

// DefaultChunkingConfig returns the spec's named defaults.
func DefaultChunkingConfig() ChunkingConfig {
	return ChunkingConfig{TargetTokens: 400, OverlapTokens: 80, CharsPerToken: 4}
}

func (c ChunkingConfig) maxChars() int {
	if c.TargetTokens <= 0 || c.CharsPerToken <= 0 {
		return DefaultChunkingConfig().TargetTokens * DefaultChunkingConfig().CharsPerToken
	}
	return c.TargetTokens * c.CharsPerToken
}

func (c ChunkingConfig) overlapChars() int {
	if c.OverlapTokens <= 0 || c.CharsPerToken <= 0 {
		return 0
	}
	return c.OverlapTokens * c.CharsPerToken
}

// hashText returns the sha-256 hex digest of text.
func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// ChunkText splits text into paragraph-bounded, token-budget-sized chunks
// with line-number tracking and inter-chunk overlap, per spec.md §4.5's
// chunking algorithm: paragraphs (blank-line-separated) are greedily
// concatenated until the next paragraph would exceed maxChars, at which
// point the current chunk is emitted, carrying the trailing overlapChars of
// its text forward as the next chunk's prefix.
func ChunkText(text string, path string, source convoymodel.MemorySource, cfg ChunkingConfig, updatedAtMs int64) []convoymodel.MemoryChunk {
	paragraphs, paraStartLines, paraEndLines := splitParagraphs(text)
	if len(paragraphs) == 0 {
		return nil
	}

	maxChars := cfg.maxChars()
	overlapChars := cfg.overlapChars()

	var chunks []convoymodel.MemoryChunk
	var builder strings.Builder
	var startLine, endLine int
	started := false

	flush := func() {
		if !started {
			return
		}
		chunkText := builder.String()
		chunks = append(chunks, convoymodel.MemoryChunk{
			ID:          uuid.NewString(),
			Path:        path,
			Source:      source,
			StartLine:   startLine,
			EndLine:     endLine,
			Text:        chunkText,
			Hash:        hashText(chunkText),
			UpdatedAtMs: updatedAtMs,
		})
	}

	for i, para := range paragraphs {
		candidate := para
		if started {
			candidate = builder.String() + "\n\n" + para
		}
		if started && len(candidate) > maxChars {
			flush()

			// carry overlap forward as the new chunk's seed text
			prevText := builder.String()
			overlap := tailChars(prevText, overlapChars)
			builder.Reset()
			builder.WriteString(overlap)
			if overlap != "" {
				builder.WriteString("\n\n")
			}
			builder.WriteString(para)
			startLine = paraStartLines[i]
			endLine = paraEndLines[i]
			started = true
			continue
		}

		if !started {
			builder.WriteString(para)
			startLine = paraStartLines[i]
			endLine = paraEndLines[i]
			started = true
		} else {
			builder.WriteString("\n\n")
			builder.WriteString(para)
			endLine = paraEndLines[i]
		}
	}
	flush()

	return chunks
}

// tailChars returns the last n characters of s (fewer if s is shorter),
// trimmed of leading/trailing whitespace.
func tailChars(s string, n int) string {
	if n <= 0 || s == "" {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(string(runes[len(runes)-n:]))
}

// splitParagraphs splits text on blank lines into paragraphs, tracking the
// 1-indexed (start_line, end_line) span each paragraph occupies in the
// original text.
func splitParagraphs(text string) (paragraphs []string, startLines, endLines []int) {
	lines := strings.Split(text, "\n")

	var current []string
	currentStart := 0
	lineNo := 0

	flush := func(endLineNo int) {
		if len(current) == 0 {
			return
		}
		joined := strings.TrimSpace(strings.Join(current, "\n"))
		if joined == "" {
			current = nil
			return
		}
		paragraphs = append(paragraphs, joined)
		startLines = append(startLines, currentStart)
		endLines = append(endLines, endLineNo)
		current = nil
	}

	for _, line := range lines {
		lineNo++
		if strings.TrimSpace(line) == "" {
			flush(lineNo - 1)
			continue
		}
		if len(current) == 0 {
			currentStart = lineNo
		}
		current = append(current, line)
	}
	flush(lineNo)

	return paragraphs, startLines, endLines
}

// ExtractSessionTranscript parses a JSONL session transcript's already-
// decoded (role, content) pairs into the `[role]: content` text form used
// for SESSIONS-source chunking, keeping only user/assistant turns with
// non-empty content and collapsing runs of blank lines to at most one, per
// spec.md §4.5.
func ExtractSessionTranscript(turns []TranscriptTurn) string {
	var parts []string
	for _, t := range turns {
		if t.Role != "user" && t.Role != "assistant" {
			continue
		}
		content := strings.TrimSpace(t.Content)
		if content == "" {
			continue
		}
		parts = append(parts, "["+t.Role+"]: "+content)
	}
	return normalizeBlankLines(strings.Join(parts, "\n\n"))
}

// TranscriptTurn is one decoded line of a .jsonl session transcript.
type TranscriptTurn struct {
	Role    string
	Content string
}

// normalizeBlankLines collapses runs of blank lines to at most one.
func normalizeBlankLines(text string) string {
	lines := strings.Split(text, "\n")
	var out []string
	blank := false
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			if blank {
				continue
			}
			blank = true
			out = append(out, "")
			continue
		}
		blank = false
		out = append(out, l)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
