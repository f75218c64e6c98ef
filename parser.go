package tg

import "strings"

// commandPrefix is the literal prefix identifying a potential directive
// line; anything else, including an unrecognised keyword after this
// prefix, is forwarded as plain text.
const commandPrefix = "//"

var directiveKeywords = map[string]bool{
	"send":                   true,
	"edit":                   true,
	"delete":                 true,
	"inline-button":          true,
	"remove-inline-keyboard": true,
	"download-file":          true,
	"chat-action":            true,
	"send-photo":             true,
	"send-file":              true,
	"heredoc":                true,
}

// OutputParser is a stateful, pure line scanner that turns handler stdout
// into a stream of Directive events. It performs no I/O: callers feed it
// byte chunks and drain the produced directives.
type OutputParser struct {
	buf               []byte
	heredocTerminator string
	inHeredoc         bool

	onInvalid func(reason string)
}

// NewOutputParser constructs a parser. onInvalid, if non-nil, is called for
// directives that parse structurally but fail validation (unknown
// chat-action kind, unknown button kind); such lines emit no Directive.
func NewOutputParser(onInvalid func(reason string)) *OutputParser {
	return &OutputParser{onInvalid: onInvalid}
}

// Feed appends data to the internal buffer and returns the Directives
// produced by every complete (newline-terminated) line now available.
func (p *OutputParser) Feed(data []byte) []Directive {
	p.buf = append(p.buf, data...)

	var out []Directive
	for {
		i := indexByte(p.buf, '\n')
		if i < 0 {
			break
		}
		line := string(p.buf[:i])
		p.buf = p.buf[i+1:]
		line = strings.TrimSuffix(line, "\r")
		out = append(out, p.processLine(line)...)
	}
	return out
}

// Close flushes any unterminated trailing fragment as text and resets
// parser state.
func (p *OutputParser) Close() []Directive {
	var out []Directive
	if len(p.buf) > 0 {
		line := strings.TrimSuffix(string(p.buf), "\r")
		out = append(out, Directive{Kind: DirectiveText, Text: line})
		p.buf = nil
	}
	p.inHeredoc = false
	p.heredocTerminator = ""
	return out
}

func (p *OutputParser) processLine(line string) []Directive {
	if p.inHeredoc {
		if line == p.heredocTerminator {
			p.inHeredoc = false
			p.heredocTerminator = ""
			return nil
		}
		return []Directive{{Kind: DirectiveText, Text: line}}
	}

	if !strings.HasPrefix(line, commandPrefix) {
		return []Directive{{Kind: DirectiveText, Text: line}}
	}

	rest := line[len(commandPrefix):]
	keyword, arg, hasArg := cutFirstToken(rest)
	if !directiveKeywords[keyword] {
		// Unrecognised //-prefixed line: forward verbatim as text.
		return []Directive{{Kind: DirectiveText, Text: line}}
	}
	if !hasArg {
		arg = ""
	}

	switch keyword {
	case "send":
		return []Directive{{Kind: DirectiveSend}}
	case "edit":
		return []Directive{{Kind: DirectiveEdit}}
	case "delete":
		return []Directive{{Kind: DirectiveDelete}}
	case "remove-inline-keyboard":
		return []Directive{{Kind: DirectiveRemoveKeyboard}}
	case "download-file":
		if arg == "" {
			p.invalid("download-file: missing file id")
			return nil
		}
		return []Directive{{Kind: DirectiveDownloadFile, FileID: FileID(arg)}}
	case "send-photo":
		if arg == "" {
			p.invalid("send-photo: missing path")
			return nil
		}
		return []Directive{{Kind: DirectiveSendPhoto, Path: arg}}
	case "send-file":
		if arg == "" {
			p.invalid("send-file: missing path")
			return nil
		}
		return []Directive{{Kind: DirectiveSendFile, Path: arg}}
	case "chat-action":
		ca := ChatAction(arg)
		if !validChatActions[ca] {
			p.invalid("chat-action: unknown kind " + arg)
			return nil
		}
		return []Directive{{Kind: DirectiveChatAction, Action: ca}}
	case "heredoc":
		if arg == "" {
			p.invalid("heredoc: missing terminator")
			return nil
		}
		p.inHeredoc = true
		p.heredocTerminator = arg
		return nil
	case "inline-button":
		return p.parseInlineButton(arg)
	}
	return nil
}

// parseInlineButton parses "<kind> <payload> <label...>" where label is the
// remainder of the line after the third token and may contain spaces.
func (p *OutputParser) parseInlineButton(arg string) []Directive {
	kindTok, rest, ok := cutFirstToken(arg)
	if !ok {
		p.invalid("inline-button: missing kind")
		return nil
	}
	payload, label, ok := cutFirstToken(rest)
	if !ok {
		p.invalid("inline-button: missing payload")
		return nil
	}

	var btn InlineButton
	btn.Label = label
	switch kindTok {
	case "url":
		btn.Kind = ButtonKindURL
		btn.Href = payload
	case "callback":
		btn.Kind = ButtonKindCallback
		btn.Data = payload
	default:
		p.invalid("inline-button: unknown kind " + kindTok)
		return nil
	}
	return []Directive{{Kind: DirectiveButton, Button: btn}}
}

func (p *OutputParser) invalid(reason string) {
	if p.onInvalid != nil {
		p.onInvalid(reason)
	}
}

// cutFirstToken splits s on the first run of spaces, returning the first
// token and the remainder with its leading spaces trimmed (trailing spaces
// are kept). ok is false if s has no non-space content.
func cutFirstToken(s string) (token, rest string, ok bool) {
	s = strings.TrimLeft(s, " ")
	if s == "" {
		return "", "", false
	}
	i := strings.IndexByte(s, ' ')
	if i < 0 {
		return s, "", true
	}
	return s[:i], strings.TrimLeft(s[i+1:], " "), true
}

func indexByte(b []byte, c byte) int {
	for i, x := range b {
		if x == c {
			return i
		}
	}
	return -1
}
