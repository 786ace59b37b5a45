package realtime

import (
	"fmt"
	"strings"
)

// InstructionInput carries everything the instruction builder needs to
// compose the session's system instructions.
type InstructionInput struct {
	// Persona is the free-text assistant persona from backend configuration.
	// When empty, a built-in default persona is used.
	Persona string

	// UserName is an optional display name to address the caller by.
	UserName string

	// Locales lists the BCP 47 locales the assistant may respond in. The
	// first entry is the preferred locale.
	Locales []string

	// BargeIn indicates whether the user can interrupt mid-response; the
	// assistant is told to keep answers short when it is enabled.
	BargeIn bool

	// ToolNames lists the tools available this session, for the capability
	// preamble. Tool schemas travel separately in the session update frame.
	ToolNames []string
}

// defaultPersona is used when the backend config carries no instructions.
const defaultPersona = "You are a knowledgeable, friendly voice assistant for a " +
	"real-estate investment platform. You help investors understand properties, " +
	"projected returns, and portfolio performance. Keep a conversational tone " +
	"suitable for spoken replies."

// BuildInstructions composes the system instruction string for a session.
//
// The builder is pure: no I/O, no side effects, safe for concurrent use.
// Empty sections are omitted entirely rather than rendering as blank lines.
func BuildInstructions(in InstructionInput) string {
	var sb strings.Builder

	persona := strings.TrimSpace(in.Persona)
	if persona == "" {
		persona = defaultPersona
	}
	sb.WriteString(persona)

	if in.UserName != "" {
		fmt.Fprintf(&sb, "\n\nThe caller's name is %s; address them naturally by name when appropriate.", in.UserName)
	}

	if len(in.Locales) > 0 {
		sb.WriteString("\n\nSupported languages: ")
		sb.WriteString(strings.Join(in.Locales, ", "))
		fmt.Fprintf(&sb, ". Default to %s, and switch only when the caller clearly speaks another supported language.", in.Locales[0])
	}

	if in.BargeIn {
		sb.WriteString("\n\nThe caller may interrupt you at any time. Keep spoken answers concise and pause naturally between points.")
	}

	if len(in.ToolNames) > 0 {
		sb.WriteString("\n\nYou can call the following tools to answer with live data: ")
		sb.WriteString(strings.Join(in.ToolNames, ", "))
		sb.WriteString(". Prefer tool results over guessing figures, and never invent prices or returns.")
	}

	return sb.String()
}
