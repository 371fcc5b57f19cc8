// Package protocol parses the tagged block format the language model uses to
// request text, speech, images, order payloads and confirmations.
//
// A block is [KIND_FORMAT]payload[/END]. Blocks may repeat and interleave with
// prose, which is ignored. Output without any recognized block is taken as a
// single implicit TEXT block.
package protocol

import (
	"regexp"
	"strings"
)

type Kind string

const (
	KindText         Kind = "TEXT"
	KindVoice        Kind = "VOICE"
	KindImage        Kind = "IMAGE"
	KindJSON         Kind = "JSON"
	KindConfirmation Kind = "CONFIRMATION"
)

const endTag = "[/END]"

// Kinds lists the block kinds in canonical serialization order.
var Kinds = []Kind{KindText, KindVoice, KindImage, KindJSON, KindConfirmation}

// OpenTag returns the canonical opening tag of k, e.g. [TEXT_FORMAT].
func OpenTag(k Kind) string {
	return "[" + string(k) + "_FORMAT]"
}

// blockPattern matches any block, accepting the bare [TEXT] alias as well.
// The body is non-greedy so each block stops at the first [/END].
var blockPattern = regexp.MustCompile(`(?s)\[(TEXT|VOICE|IMAGE|JSON|CONFIRMATION)(?:_FORMAT)?\](.*?)\[/END\]`)

// Blocks is the structured result of parsing one model output.
type Blocks struct {
	Text         string
	Voice        string
	ImageIDs     []string
	JSON         string
	Confirmation string

	HasText         bool
	HasVoice        bool
	HasJSON         bool
	HasConfirmation bool
	// Implicit is set when no block was recognized and the raw output was
	// promoted to TEXT.
	Implicit bool
}

// Parse extracts the blocks of s. It never fails.
func Parse(s string) Blocks {
	var (
		out   Blocks
		texts []string
	)
	for _, m := range blockPattern.FindAllStringSubmatch(s, -1) {
		body := strings.TrimSpace(m[2])
		switch Kind(m[1]) {
		case KindText:
			out.HasText = true
			if body != "" {
				texts = append(texts, body)
			}
		case KindVoice:
			if !out.HasVoice {
				out.HasVoice = true
				out.Voice = body
			}
		case KindImage:
			if body != "" {
				out.ImageIDs = append(out.ImageIDs, body)
			}
		case KindJSON:
			if !out.HasJSON {
				out.HasJSON = true
				out.JSON = stripCodeFence(body)
			}
		case KindConfirmation:
			if !out.HasConfirmation {
				out.HasConfirmation = true
				out.Confirmation = body
			}
		}
	}
	out.Text = strings.Join(texts, "\n\n")

	if !out.any() {
		// An orphan [/END] would close the block on the next round trip.
		out.Text = strings.TrimSpace(strings.ReplaceAll(s, endTag, ""))
		out.HasText = out.Text != ""
		out.Implicit = true
	}
	return out
}

func (b Blocks) any() bool {
	return b.HasText || b.HasVoice || len(b.ImageIDs) > 0 || b.HasJSON || b.HasConfirmation
}

// Serialize renders b back into canonical wire form.
func Serialize(b Blocks) string {
	var sb strings.Builder
	write := func(k Kind, body string) {
		sb.WriteString(OpenTag(k))
		sb.WriteString(body)
		sb.WriteString(endTag)
		sb.WriteString("\n")
	}
	if b.HasText {
		write(KindText, b.Text)
	}
	if b.HasVoice {
		write(KindVoice, b.Voice)
	}
	for _, id := range b.ImageIDs {
		write(KindImage, id)
	}
	if b.HasJSON {
		write(KindJSON, b.JSON)
	}
	if b.HasConfirmation {
		write(KindConfirmation, b.Confirmation)
	}
	return sb.String()
}

// StripBlocks removes every block from s, leaving only surrounding prose.
func StripBlocks(s string) string {
	return strings.TrimSpace(blockPattern.ReplaceAllString(s, ""))
}

// Models sometimes wrap the JSON payload in a markdown fence.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
