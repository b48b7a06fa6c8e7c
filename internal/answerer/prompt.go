package answerer

import (
	"fmt"
	"strings"

	"github.com/abhisek/answerbot/internal/question"
)

const (
	systemPrompt = "你是一个专业的答题助手，请根据题目给出准确答案。"

	systemPromptReanalyze = "你是一个专业的答题助手，请根据题目给出准确答案。注意第一次答案的置信度较低，请重新仔细分析。"

	systemPromptSearch = "你是一个专业的答题助手，请根据题目、第一次答案的参考和联网搜索的信息给出准确答案。"
)

// outputInstruction asks for the structured reply. Providers without native
// structured output still see the expected shape.
const outputInstruction = `

请以JSON格式返回，包含两个字段：
- answer：答案本身，严格遵循上面的格式要求，不要包含"答案是"等描述
- confidence：0到1之间的数字，表示你认为该答案正确的可能性（0表示完全不可能正确，1表示完全确定正确）`

var typeInstructions = map[question.Type]string{
	question.TypeSingle:     "这是一道单选题，请仅返回正确答案的选项字母（如A、B、C、D），不要有其他解释。",
	question.TypeMultiple:   "这是一道多选题，请返回所有正确答案的选项字母，用#号分隔（如A#C#D），不要有其他解释。",
	question.TypeJudgement:  `这是一道判断题，请仅返回"正确"或"错误"，不要有其他解释。`,
	question.TypeCompletion: "这是一道填空题，请直接给出填空答案，如果有多个空，用#号分隔。",
	question.TypeOther:      "请直接给出答案。",
}

// buildQuestionPrompt renders the question with its per-type instruction.
func buildQuestionPrompt(q question.Question) string {
	var b strings.Builder
	fmt.Fprintf(&b, "题目：%s\n", q.Title)
	if opts := q.OptionsText(); opts != "" {
		fmt.Fprintf(&b, "\n选项：\n%s\n", opts)
	}
	instr, ok := typeInstructions[q.Type]
	if !ok {
		instr = typeInstructions[question.TypeOther]
	}
	b.WriteString("\n")
	b.WriteString(instr)
	return b.String()
}

// buildPrompts returns the system prompt and user message for a call.
func buildPrompts(q question.Question, extra *Extra) (system, user string) {
	base := buildQuestionPrompt(q)
	if extra == nil {
		return systemPrompt, base + outputInstruction
	}

	var b strings.Builder
	b.WriteString("注意：这是第二次回答此问题。\n\n")
	fmt.Fprintf(&b, "第一次回答的答案是：%s，置信度评估：%.2f（置信度较低，低于阈值 %.2f）\n\n",
		displayAnswer(extra.Prior.Answer), extra.Prior.Confidence, extra.Threshold)

	if extra.Searched() {
		b.WriteString("由于置信度较低，通过联网搜索获取到以下相关参考信息：\n\n")
		b.WriteString(strings.Join(extra.Snippets, "\n\n"))
		b.WriteString("\n\n---\n\n")
		b.WriteString(base)
		b.WriteString("\n\n请结合搜索信息和首次回答的答案和对应的置信度，重新仔细分析题目，给出更准确的答案。")
		b.WriteString(outputInstruction)
		return systemPromptSearch, b.String()
	}

	b.WriteString("由于置信度较低，请重新仔细分析题目，给出更准确的答案。\n\n")
	b.WriteString(base)
	b.WriteString(outputInstruction)
	return systemPromptReanalyze, b.String()
}

func displayAnswer(s string) string {
	if strings.TrimSpace(s) == "" {
		return "（无）"
	}
	return s
}
