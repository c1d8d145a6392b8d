// Package prompt renders the prompts sent to responders.
package prompt

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/xiaot623/conclave/internal/domain"
)

// ExpertAnswer is one labeled answer embedded in a synthesis prompt.
type ExpertAnswer struct {
	Role domain.RoleName
	Text string
}

type expertProfile struct {
	Persona string
	Ask     string
	Points  []string
	Closing string
}

var profiles = map[domain.RoleName]expertProfile{
	domain.RoleFinance: {
		Persona: "You are a financial expert.",
		Ask:     "Answer the following question with professional financial advice:",
		Points: []string{
			"Clear explanation of the financial concept",
			"Relevant examples or data points",
			"Practical implications or recommendations",
			"Risk considerations where applicable",
		},
		Closing: "Keep your response informative but accessible to a general audience.",
	},
	domain.RoleTechnical: {
		Persona: "You are a technical expert and software engineer.",
		Ask:     "Answer the following question with professional technical guidance:",
		Points: []string{
			"Clear technical explanation",
			"Code examples where relevant",
			"Best practices and recommendations",
			"Common pitfalls to avoid",
			"Related concepts or technologies",
		},
		Closing: "Keep your response technical but accessible to developers of varying skill levels.",
	},
	domain.RoleGeneral: {
		Persona: "You are a knowledgeable and helpful AI assistant.",
		Ask:     "Answer the following question thoughtfully:",
		Points: []string{
			"Addresses the question directly and completely",
			"Provides relevant context and background information",
			"Offers practical insights or examples where applicable",
			"Maintains a helpful and engaging tone",
		},
		Closing: "Be informative, accurate, and helpful in your response.",
	},
}

var (
	classifierTmpl = template.Must(template.New("classifier").Parse(`Analyze this query and determine which expert(s) should handle it.

Query: {{.Query}}

Available experts:
- finance_expert: For finance, investment, stock market, economics, business questions
- technical_expert: For programming, technology, software, coding, technical questions
- general_expert: For general knowledge, creative writing, casual conversation

Respond with a JSON object containing:
{
    "route_to": ["list", "of", "expert", "names"],
    "reasoning": "brief explanation of routing decision"
}

Only include relevant experts. If unsure, default to general_expert.
`))

	expertTmpl = template.Must(template.New("expert").Parse(`{{.Persona}} {{.Ask}}

Question: {{.Query}}

Provide a comprehensive, well-structured response that includes:
{{range .Points}}- {{.}}
{{end}}
{{.Closing}}
`))

	enhanceTmpl = template.Must(template.New("enhance").Parse(`You are an expert editor. Take this expert response and enhance it to be more comprehensive and well-structured.

Original Question: {{.Query}}
Expert Response: {{.Answer}}

Enhance the response by:
1. Ensuring it directly answers the user's question
2. Adding relevant context or background information
3. Structuring it in a clear, logical flow
4. Making it more engaging and informative

Provide an enhanced version that maintains the expert's authority while improving clarity and completeness.
`))

	synthesizeTmpl = template.Must(template.New("synthesize").Parse(`You are an expert synthesizer. Combine the following expert responses into a coherent, comprehensive answer.

Original Question: {{.Query}}
{{- if .Rationale}}
Routing Decision: {{.Rationale}}
{{- end}}

Expert Responses:
{{range .Answers}}{{.Role}}: {{.Text}}
{{end}}
Your task is to:
1. Identify the key insights from each expert
2. Eliminate redundancy while preserving important information
3. Create a well-structured, flowing response
4. Ensure the final answer directly addresses the user's question
5. Maintain the expertise and authority of the original responses

Provide a comprehensive, well-organized answer that synthesizes all expert perspectives.
`))
)

func render(t *template.Template, data any) string {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		// Templates are fixed at compile time; a failure here is a programming error.
		panic(fmt.Sprintf("render %s: %v", t.Name(), err))
	}
	return buf.String()
}

// Classifier asks the routing model for a JSON routing decision.
func Classifier(query string) string {
	return render(classifierTmpl, struct{ Query string }{query})
}

// Expert builds the role-specific prompt. Unknown roles use the general wording.
func Expert(role domain.RoleName, query string) string {
	p, ok := profiles[role]
	if !ok {
		p = profiles[domain.RoleGeneral]
	}
	return render(expertTmpl, struct {
		Persona, Ask, Closing, Query string
		Points                       []string
	}{p.Persona, p.Ask, p.Closing, query, p.Points})
}

// Enhance asks the aggregator to edit a single expert answer.
func Enhance(query, answer string) string {
	return render(enhanceTmpl, struct{ Query, Answer string }{query, answer})
}

// Synthesize asks the aggregator to combine answers. Answers appear in the given order.
func Synthesize(query, rationale string, answers []ExpertAnswer) string {
	return render(synthesizeTmpl, struct {
		Query     string
		Rationale string
		Answers   []ExpertAnswer
	}{query, strings.TrimSpace(rationale), answers})
}
