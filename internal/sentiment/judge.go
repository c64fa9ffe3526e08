package sentiment

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// TextJudge scores social posts and headlines on the 0..1 bearish-to-
// bullish scale. With an API key it asks the LLM and falls back to the
// keyword heuristic when the call fails; without a key it is heuristic
// only, so the pipeline keeps working offline.
type TextJudge struct {
	llm   openAIChatClient
	model string
}

type openAIChatClient interface {
	CreateChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)
}

func NewTextJudge(apiKey, model string) *TextJudge {
	judge := &TextJudge{model: strings.TrimSpace(model)}
	if judge.model == "" {
		judge.model = "gpt-4o-mini"
	}
	if apiKey = strings.TrimSpace(apiKey); apiKey != "" {
		client := openai.NewClient(option.WithAPIKey(apiKey))
		judge.llm = &openAIClient{client: client}
	}
	return judge
}

func (j *TextJudge) ScoreTexts(ctx context.Context, symbol string, texts []string) (float64, error) {
	if len(texts) == 0 {
		return 0.5, nil
	}
	if j.llm == nil {
		return HeuristicScore(texts), nil
	}
	score, err := j.scoreLLM(ctx, symbol, texts)
	if err != nil {
		log.Printf("Warning: LLM judge failed for %s, using heuristic: %v", symbol, err)
		return HeuristicScore(texts), nil
	}
	return score, nil
}

var (
	scorePattern = regexp.MustCompile(`(?i)SENTIMENT_SCORE:\s*([0-9.]+)`)
)

func (j *TextJudge) scoreLLM(ctx context.Context, symbol string, texts []string) (float64, error) {
	completion, err := j.llm.CreateChatCompletion(ctx, openai.ChatCompletionNewParams{
		Model: j.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(judgeSystemPrompt),
			openai.UserMessage(buildJudgePrompt(symbol, texts)),
		},
	})
	if err != nil {
		return 0, err
	}
	if len(completion.Choices) == 0 {
		return 0, fmt.Errorf("empty judge completion")
	}

	raw := completion.Choices[0].Message.Content
	match := scorePattern.FindStringSubmatch(raw)
	if match == nil {
		return 0, fmt.Errorf("judge response missing SENTIMENT_SCORE")
	}
	score, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, fmt.Errorf("parse judge score: %w", err)
	}
	return clamp(score, 0, 1), nil
}

const judgeSystemPrompt = "You are a financial sentiment analysis expert. " +
	"Score the provided texts about a stock and respond in this EXACT format:\n" +
	"SENTIMENT_SCORE: [number between 0.0 and 1.0]\n" +
	"CONFIDENCE: [number between 0.0 and 1.0]\n" +
	"REASONING: [brief explanation]\n" +
	"Scale: 0.0-0.3 very negative, 0.4-0.6 neutral, 0.7-1.0 very positive. " +
	"Be conservative with extreme scores."

func buildJudgePrompt(symbol string, texts []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Analyzing sentiment for %s (%d items):\n\n", symbol, len(texts))
	for _, text := range texts {
		sb.WriteString("- ")
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	// Stay well inside the model's context window.
	if sb.Len() > 6000 {
		return truncateUTF8(sb.String(), 6000) + "...[truncated]"
	}
	return sb.String()
}

// truncateUTF8 cuts s to at most limit bytes without splitting a rune.
func truncateUTF8(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := s[:limit]
	for len(cut) > 0 {
		r, size := utf8.DecodeLastRuneInString(cut)
		if r != utf8.RuneError || size > 1 {
			break
		}
		cut = cut[:len(cut)-1]
	}
	return cut
}

var (
	bullishWords = []string{"beat", "upgrade", "rally", "surge", "growth", "bullish", "buy", "record", "outperform", "breakout", "strong", "soar", "jump"}
	bearishWords = []string{"miss", "downgrade", "lawsuit", "crash", "bearish", "sell", "decline", "cut", "recall", "plunge", "weak", "drop", "fraud"}
)

// HeuristicScore counts bullish and bearish keywords across the texts
// and maps the balance onto the 0..1 scale. Tagged posts (bullish or
// bearish labels embedded in the text) count like any other keyword.
func HeuristicScore(texts []string) float64 {
	text := strings.ToLower(strings.Join(texts, " "))
	if strings.TrimSpace(text) == "" {
		return 0.5
	}

	bull := countMatches(text, bullishWords)
	bear := countMatches(text, bearishWords)

	raw := float64(bull-bear) / float64(bull+bear+1)
	return clamp(0.5+raw/2, 0, 1)
}

func countMatches(text string, tokens []string) int {
	count := 0
	for _, token := range tokens {
		count += strings.Count(text, token)
	}
	return count
}

type openAIClient struct {
	client openai.Client
}

func (c *openAIClient) CreateChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	return c.client.Chat.Completions.New(ctx, params)
}
