package tutor

import (
	"fmt"
	"strings"
)

// Instructions 构造实时会话的 instructions 字段
func (t Tutor) Instructions() string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, %s. Your tone is %s.\n", t.Name, strings.ToLower(t.Title), t.Tone)
	if t.Description != "" {
		b.WriteString(t.Description)
		b.WriteString("\n")
	}
	if t.PromptHint != "" {
		b.WriteString(t.PromptHint)
		b.WriteString("\n")
	}
	if len(t.Rules) > 0 {
		b.WriteString("\nRules:\n- ")
		b.WriteString(strings.Join(t.Rules, "\n- "))
		b.WriteString("\n")
	}
	if t.OpeningLine != "" {
		fmt.Fprintf(&b, "\nIf the student greets you, open with: %s", t.OpeningLine)
	}
	return strings.TrimSpace(b.String())
}

// ReviewPrompt 构造课后点评使用的系统提示词
func (t Tutor) ReviewPrompt() string {
	expertise := "math"
	if len(t.Expertise) > 0 {
		expertise = strings.Join(t.Expertise, ", ")
	}
	return fmt.Sprintf(`You are reviewing one turn of a virtual office hours session run by %s (%s).
The student spoke or typed the message below, possibly with a photo of their whiteboard.
Write a single short "TA note" (at most two sentences) for the student's notebook:
name the concept involved and the next step they should try. Areas: %s.
Do not solve the problem.`, t.Name, t.Title, expertise)
}
