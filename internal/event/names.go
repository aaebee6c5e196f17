package event

// Categories of events emitted by the terminal host.
const (
	// CategoryClaude groups AI-assistant session lifecycle events.
	CategoryClaude = "claude"
	// CategoryTerminal groups terminal tab/pane lifecycle events.
	CategoryTerminal = "terminal"
)

// Well-known event names. Each gets its own exact-match socket by default.
const (
	// ClaudeSessionStart is emitted when an assistant session attaches to a terminal.
	ClaudeSessionStart = "claude.sessionStart"
	// ClaudeSessionEnd is emitted when the assistant session exits.
	ClaudeSessionEnd = "claude.sessionEnd"
	// ClaudePromptSubmit is emitted when the user submits a prompt.
	ClaudePromptSubmit = "claude.promptSubmit"
	// ClaudeResponseComplete is emitted when the assistant finishes a turn.
	ClaudeResponseComplete = "claude.responseComplete"
	// ClaudeToolUse is emitted when the assistant invokes a tool.
	ClaudeToolUse = "claude.toolUse"

	// TerminalCreated is emitted when a terminal is opened.
	TerminalCreated = "terminal.created"
	// TerminalClosed is emitted when a terminal is closed.
	TerminalClosed = "terminal.closed"
	// TerminalTitleChanged is emitted when the shell updates the terminal title.
	TerminalTitleChanged = "terminal.titleChanged"
)

// DefaultCategories returns the aggregator categories served by default.
func DefaultCategories() []string {
	return []string{CategoryClaude, CategoryTerminal}
}

// WellKnown returns the event names that get exact-match sockets by default.
func WellKnown() []string {
	return []string{
		ClaudeSessionStart,
		ClaudeSessionEnd,
		ClaudePromptSubmit,
		ClaudeResponseComplete,
		ClaudeToolUse,
		TerminalCreated,
		TerminalClosed,
		TerminalTitleChanged,
	}
}
