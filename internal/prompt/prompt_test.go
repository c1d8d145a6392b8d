package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xiaot623/conclave/internal/domain"
)

func TestClassifier(t *testing.T) {
	p := Classifier("What stocks should I buy?")
	assert.Contains(t, p, "Query: What stocks should I buy?")
	assert.Contains(t, p, `"route_to"`)
	assert.Contains(t, p, "general_expert")
}

func TestExpertPromptsAreRoleSpecific(t *testing.T) {
	fin := Expert(domain.RoleFinance, "q")
	tech := Expert(domain.RoleTechnical, "q")
	gen := Expert(domain.RoleGeneral, "q")

	assert.Contains(t, fin, "financial expert")
	assert.Contains(t, fin, "- Risk considerations where applicable\n")
	assert.Contains(t, tech, "software engineer")
	assert.Contains(t, gen, "knowledgeable and helpful")
	assert.Equal(t, gen, Expert("unknown_expert", "q"))
}

func TestSynthesizeKeepsOrder(t *testing.T) {
	p := Synthesize("q", "mixed topic", []ExpertAnswer{
		{Role: domain.RoleTechnical, Text: "tech answer"},
		{Role: domain.RoleFinance, Text: "finance answer"},
	})
	assert.Contains(t, p, "Routing Decision: mixed topic")
	ti := strings.Index(p, "technical_expert: tech answer")
	fi := strings.Index(p, "finance_expert: finance answer")
	assert.True(t, ti >= 0 && fi > ti, "answers out of order:\n%s", p)

	assert.Equal(t, p, Synthesize("q", "mixed topic", []ExpertAnswer{
		{Role: domain.RoleTechnical, Text: "tech answer"},
		{Role: domain.RoleFinance, Text: "finance answer"},
	}))
	assert.NotContains(t, Synthesize("q", "", nil), "Routing Decision")
}

func TestEnhance(t *testing.T) {
	p := Enhance("what is a bond?", "a loan")
	assert.Contains(t, p, "expert editor")
	assert.Contains(t, p, "Original Question: what is a bond?")
	assert.Contains(t, p, "Expert Response: a loan")
}
