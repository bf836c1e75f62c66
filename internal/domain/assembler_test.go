package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/minbak/hearth/internal/domain"
)

func TestAssembleTurns_HistoryReplay(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	history := []domain.Message{
		{Role: domain.RoleUser, Content: "Hello", CreatedAt: base},
		{Role: domain.RoleAssistant, Content: "Hi! How can I help?", CreatedAt: base.Add(time.Second)},
		{Role: domain.RoleUser, Content: "Tell me a joke", CreatedAt: base.Add(2 * time.Second)},
		{Role: domain.RoleAssistant, Content: "Why did the gopher cross the road?", CreatedAt: base.Add(3 * time.Second)},
	}

	turns := domain.AssembleTurns(history, "gpt-4o", "", domain.NewInput{Text: "I don't know, why?"})

	require.Len(t, turns, len(history)+2)
	require.Equal(t, domain.RoleSystem, turns[0].Role)

	// Non-system turns reproduce the stored (role, content) sequence in
	// order, with the new turn appended last.
	for i, msg := range history {
		require.Equal(t, msg.Role, turns[i+1].Role)
		require.Equal(t, msg.Content, turns[i+1].Text())
	}
	last := turns[len(turns)-1]
	require.Equal(t, domain.RoleUser, last.Role)
	require.Equal(t, "I don't know, why?", last.Text())
}

func TestAssembleTurns_SystemTurn(t *testing.T) {
	t.Run("default instruction names the active model", func(t *testing.T) {
		turns := domain.AssembleTurns(nil, "gpt-4o-mini", "", domain.NewInput{Text: "hi"})

		require.Equal(t, domain.RoleSystem, turns[0].Role)
		require.Contains(t, turns[0].Text(), "gpt-4o-mini")
	})

	t.Run("persona instruction replaces the default", func(t *testing.T) {
		turns := domain.AssembleTurns(nil, "gpt-4o", "You are a pirate.", domain.NewInput{Text: "hi"})

		require.Equal(t, "You are a pirate.", turns[0].Text())
		require.NotContains(t, turns[0].Text(), "gpt-4o")
	})

	t.Run("stored system turns are never replayed", func(t *testing.T) {
		history := []domain.Message{
			{Role: domain.RoleSystem, Content: "stale instruction"},
			{Role: domain.RoleUser, Content: "hello"},
		}

		turns := domain.AssembleTurns(history, "gpt-4o", "", domain.NewInput{Text: "hi"})

		require.Len(t, turns, 3)
		for _, turn := range turns[1:] {
			require.NotEqual(t, domain.RoleSystem, turn.Role)
		}
	})
}

func TestAssembleTurns_MultimodalFinalTurn(t *testing.T) {
	t.Run("image plus text yields a two-part turn", func(t *testing.T) {
		turns := domain.AssembleTurns(nil, "gpt-4o", "", domain.NewInput{
			Text:     "what is in this picture?",
			ImageRef: "data:image/png;base64,AAAA",
		})

		last := turns[len(turns)-1]
		require.Len(t, last.Parts, 2)
		require.Equal(t, domain.ContentPartText, last.Parts[0].Type)
		require.Equal(t, "what is in this picture?", last.Parts[0].Data)
		require.Equal(t, domain.ContentPartImage, last.Parts[1].Type)
		require.Equal(t, "data:image/png;base64,AAAA", last.Parts[1].Data)
	})

	t.Run("image without text gets the default prompt", func(t *testing.T) {
		turns := domain.AssembleTurns(nil, "gpt-4o", "", domain.NewInput{
			ImageRef: "https://example.com/cat.png",
		})

		last := turns[len(turns)-1]
		require.Len(t, last.Parts, 2)
		require.Equal(t, "Describe this image.", last.Parts[0].Data)
	})

	t.Run("empty input still emits the final turn", func(t *testing.T) {
		turns := domain.AssembleTurns(nil, "gpt-4o", "", domain.NewInput{})

		last := turns[len(turns)-1]
		require.Equal(t, domain.RoleUser, last.Role)
		require.Len(t, last.Parts, 1)
		require.Empty(t, last.Text())
	})
}
