package domain_test

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shilvister/devochat/internal/domain"
)

func TestPartResolverResolveMessages(t *testing.T) {
	ctx := context.Background()

	t.Run("should inline file and image parts", func(t *testing.T) {
		root := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("file contents"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(root, "photo.jpg"), []byte{0xff, 0xd8, 0xff}, 0o644))

		resolver := domain.NewPartResolver(root)
		history := []domain.Message{
			{Role: domain.RoleUser, Parts: []domain.ContentPart{
				{Type: domain.PartText, Text: "look at this"},
				{Type: domain.PartURL, Content: "page text already fetched"},
				{Type: domain.PartFile, Name: "notes.txt", Content: "notes.txt"},
				{Type: domain.PartImage, Name: "photo.jpg", Content: "photo.jpg"},
			}},
		}

		resolved := resolver.ResolveMessages(ctx, history)
		require.Len(t, resolved, 1)
		parts := resolved[0].Parts
		require.Len(t, parts, 4)

		require.Equal(t, domain.PartText, parts[0].Type)
		require.Equal(t, "look at this", parts[0].Text)

		require.Equal(t, domain.PartText, parts[1].Type)
		require.Equal(t, "page text already fetched", parts[1].Text)

		require.Equal(t, domain.PartText, parts[2].Type)
		require.Equal(t, "file contents", parts[2].Text)

		require.Equal(t, domain.PartImage, parts[3].Type)
		require.Equal(t, base64.StdEncoding.EncodeToString([]byte{0xff, 0xd8, 0xff}), parts[3].Content)
	})

	t.Run("should drop parts that fail to resolve", func(t *testing.T) {
		resolver := domain.NewPartResolver(t.TempDir())
		history := []domain.Message{
			{Role: domain.RoleUser, Parts: []domain.ContentPart{
				{Type: domain.PartText, Text: "kept"},
				{Type: domain.PartFile, Content: "missing.txt"},
				{Type: domain.PartImage, Content: "missing.jpg"},
			}},
		}

		resolved := resolver.ResolveMessages(ctx, history)
		require.Len(t, resolved[0].Parts, 1)
		require.Equal(t, "kept", resolved[0].Parts[0].Text)
	})

	t.Run("should pass assistant turns through untouched", func(t *testing.T) {
		resolver := domain.NewPartResolver(t.TempDir())
		history := []domain.Message{
			{Role: domain.RoleAssistant, Text: "prior answer"},
		}

		resolved := resolver.ResolveMessages(ctx, history)
		require.Len(t, resolved, 1)
		require.Equal(t, "prior answer", resolved[0].Text)
	})
}
