package dialogue

import (
	"fmt"
	"strings"
)

const systemPrompt = `You write a natural conversation between two podcast hosts.
M is the male host, F is the female host. They alternate freely, build on
each other's points, and keep a warm conversational tone.
Respond with a JSON object only:
{"dialogue": [{"id": 1, "user": "M", "text": "..."}, {"id": 2, "user": "F", "text": "..."}]}`

func roundPrompt(topic, contextText string, previous []Turn, remainingSeconds int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n", topic)
	if contextText != "" {
		fmt.Fprintf(&b, "\nUse this background material where it helps:\n%s\n", contextText)
	}

	if len(previous) == 0 {
		b.WriteString("\nOpen the program: the hosts greet listeners and introduce the topic, then start discussing it.\n")
	} else {
		b.WriteString("\nThe conversation so far:\n")
		start := len(previous) - 6
		if start < 0 {
			start = 0
		}
		for _, t := range previous[start:] {
			fmt.Fprintf(&b, "%s: %s\n", t.Speaker, t.Text)
		}
		b.WriteString("\nContinue the conversation naturally from here. Do not repeat earlier points.\n")
	}

	if remainingSeconds > 0 && remainingSeconds <= 120 {
		b.WriteString("The program is almost over; steer toward closing remarks.\n")
	}
	b.WriteString("Produce the next few exchanges as JSON.")
	return b.String()
}
