package cmd

import "github.com/charmbracelet/lipgloss"

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
)

func okLine(msg string) string { return successStyle.Render("✔ " + msg) }

func errorLine(err error) string { return errorStyle.Render("✖ " + err.Error()) }
