package rag

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

const answerTemplate = `You have to reply in markdown format. You are an empathetic {{.Support.CompanyName}} customer agent. Address the question first and then answer the question based only on the following context.
If the person is having a normal conversation then go ahead; however, if the user is asking any question and there is no relevant content in the context to answer the question, respond that you don't have enough information to answer accurately.

In that case, guide them to talk to customer care using the information below:
Live Chat: Contact us via chat from your account ({{.Support.Hours}}). Response Time: 2 minutes
Email: Contact us at {{.Support.Email}}. Response Time: 24 hours
Phone: Call us at {{.Support.Phone}} ({{.Support.Hours}}). Response times may vary, press 2 if you'd like us to call you back once you're at the front of the queue
If you have any questions during this process or need additional support, please don't hesitate to reach out. We're here to ensure you have everything you need.

Context:
{{.Context}}

Question: {{.Question}}

Provide a clear, direct answer based solely on the context provided. Do not make assumptions or add information not present in the context.`

// contextSeparator joins retrieved record contents in the prompt.
const contextSeparator = "\n\n"

var answerPrompt = template.Must(template.New("answer").Parse(answerTemplate))

// SupportContacts fills the escalation block of the answer prompt.
type SupportContacts struct {
	CompanyName string
	Email       string
	Phone       string
	Hours       string
}

type promptData struct {
	Support  SupportContacts
	Context  string
	Question string
}

// BuildPrompt renders the answer prompt for a question and the retrieved contents, in retrieval order.
func BuildPrompt(support SupportContacts, question string, contents []string) (string, error) {
	var buf bytes.Buffer
	err := answerPrompt.Execute(&buf, promptData{
		Support:  support,
		Context:  strings.Join(contents, contextSeparator),
		Question: question,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return buf.String(), nil
}
