package memory

import "triage_server/core/domain"

// DefaultTeams mirrors the seed migration.
func DefaultTeams() []domain.Team {
	return []domain.Team{
		{ID: 1, Name: "Tech", EmailAlias: "tech@neem.com", SlackChannel: "#tech-alerts"},
		{ID: 2, Name: "Ops", EmailAlias: "ops@neem.com", SlackChannel: "#ops-alerts"},
		{ID: 3, Name: "Product", EmailAlias: "product@neem.com", SlackChannel: "#product-alerts"},
		{ID: 4, Name: "Finance", EmailAlias: "finance@neem.com", SlackChannel: "#finance-alerts"},
		{ID: 5, Name: "Sales", EmailAlias: "sales@neem.com", SlackChannel: "#sales-alerts"},
		{ID: 6, Name: "Tech Lead", EmailAlias: "techlead@neem.com", SlackChannel: "#tech-lead-alerts"},
	}
}

func category(s string) *string { return &s }

// DefaultArticles mirrors the seed migration.
func DefaultArticles() []domain.KnowledgeArticle {
	return []domain.KnowledgeArticle{
		{
			ID:       1,
			Title:    "API Authentication Guide",
			Content:  "Our API uses OAuth 2.0 for authentication. To get started, you need to obtain a client ID and client secret from your developer dashboard. Exchange these credentials for an access token by making a POST request to `/oauth/token` with `grant_type=client_credentials`. Tokens expire after 1 hour. Refresh tokens are not supported for client credentials flow. Ensure your API key is passed in the `X-API-KEY` header for all subsequent requests. Common error codes include 401 (Unauthorized) and 403 (Forbidden).",
			Keywords: []string{"API", "authentication", "OAuth", "token", "client ID", "client secret", "error 401", "error 403"},
			Category: category("API"),
			IsActive: true,
		},
		{
			ID:       2,
			Title:    "Understanding Transaction Delays",
			Content:  "Transaction delays can occur due to various reasons, including network congestion, bank processing times, or system maintenance. Most transactions are processed within 5-10 minutes. If a transaction is delayed by more than 30 minutes, please provide the transaction ID, sender details, and recipient details for investigation. We recommend checking our status page at https://status.neem.com for any ongoing system-wide issues.",
			Keywords: []string{"transaction", "delay", "processing", "status", "issue", "slow"},
			Category: category("Transactions"),
			IsActive: true,
		},
		{
			ID:       3,
			Title:    "Onboarding Process for New Partners",
			Content:  "Welcome to Neem! Our onboarding process typically takes 3-5 business days. It involves account setup, KYC verification, API key generation, and initial integration support. You will receive a welcome email with your dedicated account manager's contact details. Please ensure all required documents are submitted via the partner portal to avoid delays.",
			Keywords: []string{"onboarding", "new partner", "setup", "KYC", "integration"},
			Category: category("Onboarding"),
			IsActive: true,
		},
		{
			ID:       4,
			Title:    "Product Feature: Real-time Notifications",
			Content:  "Neem offers real-time notifications for various events (e.g., successful transactions, failed payments, account updates). You can configure webhook endpoints in your developer dashboard to receive these notifications. Ensure your endpoint is publicly accessible and configured to handle POST requests with JSON payloads.",
			Keywords: []string{"notifications", "webhooks", "real-time", "product", "feature"},
			Category: category("Product Flows"),
			IsActive: true,
		},
		{
			ID:       5,
			Title:    "Troubleshooting Common API Errors",
			Content:  "Experiencing issues with our API?\n**400 Bad Request:** Check your request payload for missing or incorrect parameters. Refer to the API documentation for required fields.\n**404 Not Found:** Ensure the endpoint URL is correct and the resource ID (if any) exists.\n**500 Internal Server Error:** This is usually a server-side issue. Please report with request ID.\nFor detailed error codes, visit our API docs: https://docs.neem.com/api-errors.",
			Keywords: []string{"API", "errors", "troubleshooting", "400", "404", "500", "bug", "issue"},
			Category: category("API"),
			IsActive: true,
		},
	}
}

// NewSeededStore returns a store populated with the default teams and articles.
func NewSeededStore() *Store {
	s := NewStore()
	s.SeedTeams(DefaultTeams()...)
	s.SeedArticles(DefaultArticles()...)
	return s
}
