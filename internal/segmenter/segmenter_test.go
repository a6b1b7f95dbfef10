package segmenter

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPush_SplitsOnTerminalWithinOneToken(t *testing.T) {
	s := New()
	out := s.Push("你好！")
	require.Equal(t, []string{"你好！"}, out)
}

func TestPush_BuffersUntilTerminalAcrossTokens(t *testing.T) {
	s := New()
	require.Empty(t, s.Push("你"))
	require.Empty(t, s.Push("好"))
	out := s.Push("！")
	require.Equal(t, []string{"你好！"}, out)
}

func TestPush_MultipleSentencesInOneToken(t *testing.T) {
	s := New()
	out := s.Push("你好！再见。")
	require.Equal(t, []string{"你好！", "再见。"}, out)
}

func TestPush_MoodTagDoesNotBreakSegmentation(t *testing.T) {
	s := New()
	out := s.Push("[mood:happy]开始中间结尾。")
	require.Equal(t, []string{"[mood:happy]开始中间结尾。"}, out)
}

func TestFlush_EmitsRemainingAfterMoodStrip(t *testing.T) {
	s := New()
	s.Push("没有标点的结尾 [mood:sad]")
	sentence, ok := s.Flush()
	require.True(t, ok)
	require.Equal(t, "没有标点的结尾", sentence)
}

func TestFlush_EmptyBufferYieldsNothing(t *testing.T) {
	s := New()
	_, ok := s.Flush()
	require.False(t, ok)
}

func TestFlush_WhitespaceOnlyAfterMoodStripYieldsNothing(t *testing.T) {
	s := New()
	s.Push("[mood:sad]")
	_, ok := s.Flush()
	require.False(t, ok)
}
