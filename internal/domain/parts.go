package domain

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/shilvister/devochat/internal/observability"
)

// PartResolver turns file/image content-part references into inline payloads.
// A part that fails to resolve is dropped with a logged error; a single bad
// part never fails the whole message.
type PartResolver struct {
	root string
}

// NewPartResolver creates a resolver rooted at the upload directory.
func NewPartResolver(root string) *PartResolver {
	return &PartResolver{root: root}
}

func (r *PartResolver) path(ref string) string {
	return filepath.Join(r.root, strings.TrimPrefix(ref, "/"))
}

// Text resolves a text-bearing part (text, url, file) to its inline text.
// Returns ok=false when the part is not text-bearing or its file is missing.
func (r *PartResolver) Text(ctx context.Context, part ContentPart) (string, bool) {
	switch part.Type {
	case PartText:
		return part.Text, true
	case PartURL:
		return part.Content, true
	case PartFile:
		data, err := os.ReadFile(r.path(part.Content))
		if err != nil {
			observability.FromContext(ctx).Error("failed to read file part",
				zap.String("path", part.Content),
				zap.Error(err))
			return "", false
		}
		return string(data), true
	default:
		return "", false
	}
}

// ResolveMessages prepares a history for provider dispatch: url and file
// parts become inline text parts, image parts carry their base64 payload in
// Content, and parts that fail to resolve are dropped.
func (r *PartResolver) ResolveMessages(ctx context.Context, history []Message) []Message {
	resolved := make([]Message, 0, len(history))
	for _, msg := range history {
		if msg.Role != RoleUser {
			resolved = append(resolved, msg)
			continue
		}

		parts := make([]ContentPart, 0, len(msg.Parts))
		for _, part := range msg.Parts {
			if part.Type == PartImage {
				data, ok := r.Image(ctx, part)
				if !ok {
					continue
				}
				parts = append(parts, ContentPart{
					Type:    PartImage,
					Name:    part.Name,
					Content: base64.StdEncoding.EncodeToString(data),
				})
				continue
			}

			text, ok := r.Text(ctx, part)
			if !ok {
				continue
			}
			parts = append(parts, ContentPart{Type: PartText, Text: text})
		}

		resolved = append(resolved, Message{Role: RoleUser, Parts: parts})
	}
	return resolved
}

// Image resolves an image part to its raw bytes for base64 embedding.
func (r *PartResolver) Image(ctx context.Context, part ContentPart) ([]byte, bool) {
	if part.Type != PartImage {
		return nil, false
	}

	data, err := os.ReadFile(r.path(part.Content))
	if err != nil {
		observability.FromContext(ctx).Error("failed to read image part",
			zap.String("path", part.Content),
			zap.Error(err))
		return nil, false
	}

	return data, true
}
