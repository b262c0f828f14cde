package llm

// AgentKind names one specialist role in the research pipeline. Each kind
// is bound to the model best suited for its task.
type AgentKind string

const (
	AgentAnalyst     AgentKind = "analyst"
	AgentSummarizer  AgentKind = "summarizer"
	AgentFactChecker AgentKind = "fact-checker"
	AgentClassifier  AgentKind = "classifier"
	AgentSynthesizer AgentKind = "synthesizer"
)

// ModelBinding describes the model assigned to an agent kind, plus display
// metadata surfaced in agent events.
type ModelBinding struct {
	Model       string `json:"model"`
	Provider    string `json:"provider"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
}

// defaultBindings maps each agent kind to its specialized model.
var defaultBindings = map[AgentKind]ModelBinding{
	AgentAnalyst: {
		Model:       "gpt-4-turbo-preview",
		Provider:    "OpenAI",
		DisplayName: "GPT-4 Analyst",
		Description: "Deep analysis and detailed insights",
	},
	AgentSummarizer: {
		Model:       "claude-3-5-sonnet-20241022",
		Provider:    "Anthropic",
		DisplayName: "Claude Summarizer",
		Description: "Concise summaries and key points",
	},
	AgentFactChecker: {
		Model:       "gemini-1.5-pro",
		Provider:    "Google",
		DisplayName: "Gemini Fact-Checker",
		Description: "Validates claims and checks accuracy",
	},
	AgentClassifier: {
		Model:       "mistral-large-latest",
		Provider:    "Mistral AI",
		DisplayName: "Mistral Classifier",
		Description: "Categorizes and classifies content",
	},
	AgentSynthesizer: {
		Model:       "gpt-4-turbo-preview",
		Provider:    "OpenAI",
		DisplayName: "GPT-4 Synthesizer",
		Description: "Combines insights from all agents",
	},
}

// BindingFor returns the model binding for an agent kind. Unknown kinds
// fall back to the synthesizer binding.
func BindingFor(kind AgentKind) ModelBinding {
	if b, ok := defaultBindings[kind]; ok {
		return b
	}
	return defaultBindings[AgentSynthesizer]
}

// AllAgentKinds returns the agent kinds in their pipeline display order.
func AllAgentKinds() []AgentKind {
	return []AgentKind{
		AgentAnalyst,
		AgentSummarizer,
		AgentFactChecker,
		AgentClassifier,
		AgentSynthesizer,
	}
}
