package cmd

import "github.com/charmbracelet/lipgloss"

var (
	mutedColor   = lipgloss.AdaptiveColor{Light: "#666666", Dark: "#696969"} // Timestamps, paths
	nameColor    = lipgloss.AdaptiveColor{Light: "#0B6E99", Dark: "#54A0FF"} // Event names
	successColor = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"} // Live sockets
	errorColor   = lipgloss.AdaptiveColor{Light: "#FF8787", Dark: "#FF8787"} // Stale sockets

	mutedStyle   = lipgloss.NewStyle().Foreground(mutedColor)
	nameStyle    = lipgloss.NewStyle().Foreground(nameColor).Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(successColor)
	errorStyle   = lipgloss.NewStyle().Foreground(errorColor)
)
