package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPersonalityPrompt_UnknownFallsBackToNormal(t *testing.T) {
	require.Equal(t, personalityPrompts["normal"], personalityPrompt("bogus"))
}

func TestSystemPrompt_IncludesNicknameInterestsAndSensorContext(t *testing.T) {
	got := systemPrompt("tsundere", "小明", []string{"篮球", "游戏"}, "当前环境：室温20°C")
	require.Contains(t, got, personalityPrompts["tsundere"])
	require.Contains(t, got, "[mood:xxx]")
	require.Contains(t, got, "主人叫小明。")
	require.Contains(t, got, "主人的兴趣：篮球、游戏。")
	require.Contains(t, got, "当前环境：室温20°C")
}

func TestSystemPrompt_OmitsEmptyOptionalFields(t *testing.T) {
	got := systemPrompt("normal", "", nil, "")
	require.NotContains(t, got, "主人叫")
	require.NotContains(t, got, "主人的兴趣")
}
