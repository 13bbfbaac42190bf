package moderation

import (
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func BenchmarkModerator_Censor(b *testing.B) {
	words := make([]string, 0, 10_000)
	for i := 0; i < 10_000; i++ {
		words = append(words, fmt.Sprintf("forbidden%d", i))
	}
	mod, err := NewModerator(words, replacementChar, slog.Default())
	require.NoError(b, err)
	text := "a perfectly normal sentence with forbidden42 hidden inside and some more words after it"

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = mod.Censor(text)
	}
}
