package messages

import (
	"encoding/json"
	"fmt"
	"os"
)

type MessageText struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Messages is the user-facing copy of the client core.
type Messages struct {
	Welcome            MessageText `json:"welcome"`
	SuggestedQuestions []string    `json:"suggested_questions"`
	SendFailed         MessageText `json:"send_failed"`
	ClearConfirm       MessageText `json:"clear_confirm"`
	BackendWaiting     MessageText `json:"backend_waiting"`
	BackendDegraded    MessageText `json:"backend_degraded"`
	LinkPrompt         MessageText `json:"link_prompt"`
	LinkCancelled      MessageText `json:"link_cancelled"`
	LinkFailed         MessageText `json:"link_failed"`
	SessionExpired     MessageText `json:"session_expired"`
	DeleteConfirm      MessageText `json:"delete_confirm"`
}

// Default returns the built-in copy.
func Default() *Messages {
	return &Messages{
		Welcome: MessageText{
			Title: "Financial Advisor",
			Body: "Hi! I'm your financial advisor. I can look at your linked accounts and " +
				"transactions to help you understand your spending, savings and debt. " +
				"Ask me anything, or start with one of these questions:",
		},
		SuggestedQuestions: []string{
			"How much did I spend last month?",
			"What are my biggest spending categories?",
			"What's my debt-to-income ratio?",
			"How can I improve my savings rate?",
			"Am I on track with my budget this month?",
		},
		SendFailed: MessageText{
			Title: "Something went wrong",
			Body:  "Sorry, I couldn't process your question right now. Please try again.",
		},
		ClearConfirm: MessageText{
			Title: "Clear conversation?",
			Body:  "This permanently deletes your entire chat history. This cannot be undone.",
		},
		BackendWaiting: MessageText{
			Title: "Connecting",
			Body:  "Waiting for the server to start (attempt %d)...",
		},
		BackendDegraded: MessageText{
			Title: "Server is taking longer than usual",
			Body:  "We're still trying to reach the server. You can keep waiting or come back later.",
		},
		LinkPrompt: MessageText{
			Title: "Connect your bank",
			Body:  "Link a bank account to see your balances, transactions and personalized advice.",
		},
		LinkCancelled: MessageText{
			Title: "Linking cancelled",
			Body:  "No account was connected. You can try again at any time.",
		},
		LinkFailed: MessageText{
			Title: "Linking failed",
			Body:  "We couldn't connect your bank. Please try again.",
		},
		SessionExpired: MessageText{
			Title: "Session expired",
			Body:  "Your session has expired. Please log in again.",
		},
		DeleteConfirm: MessageText{
			Title: "Delete account",
			Body:  "This permanently deletes your account and all linked data. Type DELETE to confirm.",
		},
	}
}

// Load reads a JSON override file on top of the built-in copy. Fields absent
// from the file keep their defaults. An empty path returns the defaults.
func Load(path string) (*Messages, error) {
	msgs := Default()
	if path == "" {
		return msgs, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read messages file: %w", err)
	}

	var override Messages
	if err := json.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("failed to parse messages file: %w", err)
	}

	merge(&msgs.Welcome, override.Welcome)
	merge(&msgs.SendFailed, override.SendFailed)
	merge(&msgs.ClearConfirm, override.ClearConfirm)
	merge(&msgs.BackendWaiting, override.BackendWaiting)
	merge(&msgs.BackendDegraded, override.BackendDegraded)
	merge(&msgs.LinkPrompt, override.LinkPrompt)
	merge(&msgs.LinkCancelled, override.LinkCancelled)
	merge(&msgs.LinkFailed, override.LinkFailed)
	merge(&msgs.SessionExpired, override.SessionExpired)
	merge(&msgs.DeleteConfirm, override.DeleteConfirm)
	if len(override.SuggestedQuestions) > 0 {
		msgs.SuggestedQuestions = override.SuggestedQuestions
	}

	return msgs, nil
}

func merge(dst *MessageText, src MessageText) {
	if src.Title != "" {
		dst.Title = src.Title
	}
	if src.Body != "" {
		dst.Body = src.Body
	}
}
