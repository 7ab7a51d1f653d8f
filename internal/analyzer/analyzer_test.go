package analyzer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/FranksOps/rivalscout/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedClient answers by matching a marker in the prompt.
type scriptedClient struct {
	answers  map[string]string
	err      error
	prompts  []string
	requests []llm.Request
}

func (s *scriptedClient) Complete(ctx context.Context, req llm.Request) (string, error) {
	s.prompts = append(s.prompts, req.Prompt)
	s.requests = append(s.requests, req)
	if s.err != nil {
		return "", s.err
	}
	for marker, answer := range s.answers {
		if strings.Contains(req.Prompt, marker) {
			return answer, nil
		}
	}
	return "not json", nil
}

func longContent(extra string) string {
	return strings.Repeat("Jasper is an AI writing assistant for marketers. ", 5) + extra
}

func TestExtract_AllSections(t *testing.T) {
	c := &scriptedClient{answers: map[string]string{
		"产品信息": `{"product_name":"Jasper"}`,
		"核心功能": "```json\n{\"core_features\":[{\"name\":\"Templates\"}]}\n```",
		"价格信息": `{"pricing_model":"订阅制"}`,
		"用户反馈": `{"summary":"好用"}`,
	}}

	got := New(c, nil).Extract(context.Background(), longContent("Pricing from $39. 用户评价很好用。"), "Jasper")

	require.Len(t, c.prompts, 4)
	assert.Equal(t, "Jasper", got.ProductInfo["product_name"])
	assert.NotEmpty(t, got.Features["core_features"])
	assert.Equal(t, "订阅制", got.Pricing["pricing_model"])
	assert.Equal(t, "好用", got.Reviews["summary"])

	for _, req := range c.requests {
		assert.True(t, req.JSONObject)
		assert.InDelta(t, 0.3, req.Temperature, 1e-6)
	}
}

func TestExtract_GatesPricingAndReviews(t *testing.T) {
	c := &scriptedClient{answers: map[string]string{"产品信息": `{"product_name":"Jasper"}`}}

	got := New(c, nil).Extract(context.Background(), longContent("Nothing about money or opinions."), "Jasper")

	assert.Len(t, c.prompts, 2, "only product info and features should be requested")
	assert.Empty(t, got.Pricing)
	assert.Empty(t, got.Reviews)
	assert.NotNil(t, got.Pricing)
	assert.Empty(t, got.Features, "malformed answer leaves the section empty")
}

func TestExtract_ShortContentSkipped(t *testing.T) {
	c := &scriptedClient{}
	got := New(c, nil).Extract(context.Background(), strings.Repeat("短", MinContentLength-1), "Jasper")

	assert.Empty(t, c.prompts)
	assert.NotNil(t, got.ProductInfo)
	assert.Empty(t, got.ProductInfo)
}

func TestExtract_ModelFailure(t *testing.T) {
	c := &scriptedClient{err: errors.New("rate limited")}
	got := New(c, nil).Extract(context.Background(), longContent("price review"), "Jasper")

	assert.Len(t, c.prompts, 4)
	assert.Empty(t, got.ProductInfo)
	assert.Empty(t, got.Features)
	assert.Empty(t, got.Pricing)
	assert.Empty(t, got.Reviews)
}

func TestExtract_ClipsContent(t *testing.T) {
	c := &scriptedClient{}
	content := strings.Repeat("文", 5000)
	New(c, nil).Extract(context.Background(), content, "X")

	require.Len(t, c.prompts, 2)
	assert.Contains(t, c.prompts[0], strings.Repeat("文", 3000))
	assert.NotContains(t, c.prompts[0], strings.Repeat("文", 3001))
	assert.Contains(t, c.prompts[1], strings.Repeat("文", 4000))
	assert.NotContains(t, c.prompts[1], strings.Repeat("文", 4001))
}
