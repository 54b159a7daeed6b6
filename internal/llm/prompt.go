package llm

import (
	"fmt"

	"google.golang.org/genai"

	"github.com/marketlens/marketlens/internal/session"
)

// agentSystemPrompt instructs the model how to use the tool catalogue. The
// viewed ticker is interpolated so the model defaults its tool calls to it.
const agentSystemPrompt = `You are an expert stock market analyst assistant for MarketLens.
You have access to tools that provide real-time stock data, financial statements,
news, sentiment analysis, and price forecasts.

When answering questions:
- Use your tools to fetch relevant data before answering. Do not guess prices or financial figures.
- You may call multiple tools if the question requires different types of data.
- Be concise and data-driven. Cite specific numbers from tool results.
- Format numbers with proper units (e.g., $1.5B, 10.5M shares).
- If a tool returns an error, acknowledge the issue and work with whatever data you have.
- Do not include markdown formatting syntax. Write in plain text.
- The user is currently viewing the stock ticker: %s. Use this ticker for tool calls unless the user explicitly asks about a different stock.
- For general questions that do not require data (e.g., "what is a P/E ratio?"), respond directly without calling tools.`

// AgentSystemPrompt returns the ticker-parameterized system instruction.
func AgentSystemPrompt(ticker string) string {
	return fmt.Sprintf(agentSystemPrompt, ticker)
}

// UserContent wraps a user message as a genai Content.
func UserContent(text string) *genai.Content {
	return genai.NewContentFromText(text, genai.RoleUser)
}

// HistoryContents converts stored session messages to genai transcript turns.
// The assistant role maps to the provider's model role.
func HistoryContents(msgs []session.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(msgs))
	for _, msg := range msgs {
		role := genai.Role(genai.RoleUser)
		if msg.Role == session.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}
	return contents
}
