package orchestrator

import "strings"

// personalityPrompts maps session.Personality to its system-prompt
// opener. Grounded verbatim on original_source/pipeline/llm.py's
// _PERSONALITY_PROMPTS; unknown values fall back to "normal".
var personalityPrompts = map[string]string{
	"normal":    "你是 Wallace，一个温暖可爱的桌面 AI 机器人。你说话简洁有趣，关心主人。",
	"cool":      "你是 Wallace，一个高冷寡言的 AI 机器人。你回答简短，偶尔毒舌但其实很关心主人。",
	"talkative": "你是 Wallace，一个话痨 AI 机器人。你滔滔不绝，什么话题都能聊，非常热情。",
	"tsundere":  "你是 Wallace，一个傲娇的 AI 机器人。你嘴上说不在乎，但行动上很关心主人。经常用「才不是」「哼」等口癖。",
}

const moodInstruction = "\n在回复最末尾加上情绪标签，格式为 [mood:xxx]，" +
	"可选值: happy, sad, thinking, angry, sleepy, surprised, tsundere, neutral。"

func personalityPrompt(personality string) string {
	if p, ok := personalityPrompts[personality]; ok {
		return p
	}
	return personalityPrompts["normal"]
}

// systemPrompt assembles the full system message per spec.md 4.7 step 4.
func systemPrompt(personality, nickname string, interests []string, sensorContext string) string {
	var b strings.Builder
	b.WriteString(personalityPrompt(personality))
	b.WriteString(moodInstruction)
	if nickname != "" {
		b.WriteString("\n主人叫")
		b.WriteString(nickname)
		b.WriteString("。")
	}
	if len(interests) > 0 {
		b.WriteString("\n主人的兴趣：")
		b.WriteString(strings.Join(interests, "、"))
		b.WriteString("。")
	}
	if sensorContext != "" {
		b.WriteString("\n")
		b.WriteString(sensorContext)
	}
	return b.String()
}
