// Package analyzer extracts structured competitor attributes from acquired
// content with a language model.
package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/FranksOps/rivalscout/internal/llm"
)

const (
	// MinContentLength is the shortest content worth analysing, in characters.
	MinContentLength = 200
	temperature      = 0.3
	maxTokens        = 2000
)

var (
	// PriceTerms gate the pricing extraction.
	PriceTerms = []string{"price", "pricing", "价格", "定价", "¥", "$"}
	// ReviewTerms gate the reviews extraction.
	ReviewTerms = []string{"评价", "体验", "使用", "review", "推荐", "好用"}
)

// Attributes is the structured profile of one competitor. Sections that were
// skipped or failed are empty maps, never nil.
type Attributes struct {
	ProductInfo map[string]any `json:"product_info"`
	Features    map[string]any `json:"features"`
	Pricing     map[string]any `json:"pricing"`
	Reviews     map[string]any `json:"reviews"`
}

// Empty returns attributes with every section present and empty.
func Empty() Attributes {
	return Attributes{
		ProductInfo: map[string]any{},
		Features:    map[string]any{},
		Pricing:     map[string]any{},
		Reviews:     map[string]any{},
	}
}

// Analyzer runs the attribute extractions.
type Analyzer struct {
	client llm.Client
	logger *slog.Logger
}

func New(client llm.Client, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{client: client, logger: logger}
}

// Extract returns the attributes of competitor found in content. Content
// shorter than MinContentLength is skipped. Pricing is only requested when
// content mentions a price term and reviews only when it mentions a review
// term. Model failures leave the affected section empty.
func (a *Analyzer) Extract(ctx context.Context, content, competitor string) Attributes {
	out := Empty()
	if a.client == nil || utf8.RuneCountInString(content) < MinContentLength {
		a.logger.Debug("content too short, skipping extraction", "competitor", competitor)
		return out
	}

	out.ProductInfo = a.section(ctx, "product_info", productInfoPrompt(competitor, clip(content, 3000)))
	out.Features = a.section(ctx, "features", featuresPrompt(competitor, clip(content, 4000)))
	if MentionsAny(content, PriceTerms) {
		out.Pricing = a.section(ctx, "pricing", pricingPrompt(competitor, clip(content, 4000)))
	}
	if MentionsAny(content, ReviewTerms) {
		out.Reviews = a.section(ctx, "reviews", reviewsPrompt(competitor, clip(content, 4000)))
	}
	return out
}

func (a *Analyzer) section(ctx context.Context, name, prompt string) map[string]any {
	text, err := a.client.Complete(ctx, llm.Request{
		Prompt:      prompt,
		JSONObject:  true,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		a.logger.Warn("attribute extraction failed", "section", name, "error", err)
		return map[string]any{}
	}
	m, err := llm.ParseJSON[map[string]any](text)
	if err != nil || m == nil {
		a.logger.Warn("attribute extraction returned malformed JSON", "section", name, "error", err)
		return map[string]any{}
	}
	return m
}

// clip returns at most n runes of s.
func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func productInfoPrompt(competitor, content string) string {
	return fmt.Sprintf(`你是一位专业的产品分析师。请从以下内容中提取 %s 的产品信息。

内容：
%s

请按照以下JSON格式输出：
{"product_name": "产品名称", "company": "公司名称", "tagline": "产品定位/slogan", "target_users": ["目标用户群"], "founding_year": "成立年份（如果提到）", "description": "产品简介（100字内）"}

注意：如果信息缺失，字段值设为null；保持客观。`, competitor, content)
}

func featuresPrompt(competitor, content string) string {
	return fmt.Sprintf(`你是一位专业的产品分析师。请从以下内容中提取 %s 的核心功能。

内容：
%s

请按照以下JSON格式输出：
{"core_features": [{"name": "功能名称", "description": "功能描述（简短）", "category": "基础功能/核心功能/高级功能", "unique": true}]}

注意：只提取实际提到的功能，不要臆造；unique 表示是否是差异化功能。`, competitor, content)
}

func pricingPrompt(competitor, content string) string {
	return fmt.Sprintf(`你是一位专业的产品分析师。请从以下内容中提取 %s 的价格信息。

内容：
%s

请按照以下JSON格式输出：
{"pricing_model": "订阅制/买断制/免费+增值/其他", "price_tiers": [{"name": "套餐名称", "price": 0, "currency": "CNY/USD", "billing_cycle": "月付/年付/一次性", "features": ["包含功能"]}], "trial": {"available": true, "duration": "试用时长"}}

注意：如果没有明确价格信息，返回空对象；价格用数字表示。`, competitor, content)
}

func reviewsPrompt(competitor, content string) string {
	return fmt.Sprintf(`你是一位专业的产品分析师。请从以下用户评价内容中总结 %s 的用户反馈。

内容：
%s

请按照以下JSON格式输出：
{"sentiment": {"positive": 0.0, "neutral": 0.0, "negative": 0.0}, "key_praise": ["优点"], "key_complaints": ["缺点"], "common_keywords": ["高频词"], "summary": "整体评价摘要（100字内）"}

注意：sentiment 三个值之和为 1.0；基于实际内容，避免臆造。`, competitor, content)
}
