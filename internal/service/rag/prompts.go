package rag

import (
	"fmt"

	"github.com/Eagleeye1811/insightify-sub000/internal/domain"
)

// Generation settings used for chat answers.
const (
	ChatTemperature     = 0.7
	ChatTopK            = 40
	ChatTopP            = 0.95
	ChatMaxOutputTokens = 1024
)

const chatSystemTemplate = `You are Insightify AI Assistant, an expert in app analytics and user feedback analysis.

Your role:
- Help developers understand their app reviews and user feedback
- Provide actionable insights based on data
- Answer questions about bugs, features, sentiment, and statistics
- Be friendly, professional, and concise

Context available:
%s

Rules:
1. If data is available, use it to provide specific, data-driven answers
2. If no data is available, provide general helpful advice and suggest the user add their app
3. Be concise but thorough
4. Use bullet points for lists
5. Provide actionable recommendations when appropriate
6. If asked about specific metrics, calculate them from the data
7. For sensitive topics, be empathetic and constructive

User Intent: %s
`

// ChatPrompt assembles the full chat prompt from a rendered context block.
func ChatPrompt(contextBlock string, intent domain.Intent, message string) string {
	system := fmt.Sprintf(chatSystemTemplate, contextBlock, intent)
	return system + "\n\nUser Question: " + message + "\n\nProvide a helpful, data-driven response:"
}

const analysisTemplate = `
You are an expert App Store Analyst. Analyze the following user reviews for the app "%s" (Category: %s).

Reviews:
%s

Task:
Extract insights and return STRICT JSON with this exact structure:
{
  "bugs": [
    { "name": "Short title", "description": "Details", "severity": "High|Medium|Low", "frequency": 0-100 (estimated %%), "affectedUsers": estimated_count }
  ],
  "features": [
    { "name": "Feature Request", "type": "UX|Functionality|Performance", "frequency": 0-100 (estimated %%), "impact": "High|Medium|Low" }
  ],
  "uninstallReasons": [
    { "reason": "Reason", "count": estimated_count, "percentage": 0-100 }
  ],
  "sentiment": {
    "summary": "1-2 sentence executive summary of user sentiment",
    "keywords": ["keyword1", "keyword2", "keyword3", "keyword4", "keyword5"]
  },
  "recommendations": [
    { "title": "Actionable Title", "description": "What to do", "impact": "High|Medium|Low", "action": "Specific step" }
  ]
}

Focus on:
1. Recurring technical issues (bugs).
2. Missing features users are asking for.
3. Why users are leaving (uninstall reasons).
4. Strategic recommendations for the developer.

Return ONLY the valid JSON object. Do not wrap in markdown code blocks.
`

// AnalysisPrompt builds the structured-analysis prompt for app over the
// sampled reviews.
func AnalysisPrompt(app domain.AppProfile, reviews []domain.ReviewRecord) string {
	return fmt.Sprintf(analysisTemplate, app.Title, app.Genre, FormatSampled(SampleReviews(reviews)))
}
