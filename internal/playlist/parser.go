package playlist

import (
	"bufio"
	"io"
	"regexp"
	"strings"
)

const (
	extinfPrefix = "#EXTINF:"

	// Some providers put very long logo URLs on #EXTINF lines.
	maxLineSize = 1024 * 1024
)

// attribute binds a tvg-* attribute pattern to the Channel field it fills.
type attribute struct {
	name    string
	pattern *regexp.Regexp
	set     func(ch *Channel, value string)
}

// newAttribute matches name at the start of the line or after whitespace, a
// comma or the closing quote of a previous attribute.
func newAttribute(name string, set func(ch *Channel, value string)) attribute {
	return attribute{
		name:    name,
		pattern: regexp.MustCompile(`(?i)(?:^|[\s,"'])` + regexp.QuoteMeta(name) + `=("[^"]*"|'[^']*'|[^\s,"']+)`),
		set:     set,
	}
}

const titleAttribute = "tvg-name"

var attributes = []attribute{
	newAttribute(titleAttribute, func(ch *Channel, v string) { ch.Title = v }),
	newAttribute("tvg-logo", func(ch *Channel, v string) { ch.Logo = v }),
	newAttribute("group-title", func(ch *Channel, v string) { ch.Group = v }),
	newAttribute("tvg-id", func(ch *Channel, v string) { ch.ID = v }),
	newAttribute("tvg-language", func(ch *Channel, v string) { ch.Language = v }),
	newAttribute("tvg-country", func(ch *Channel, v string) { ch.Country = v }),
}

// parserState is the state of the single pending-channel slot.
type parserState int

const (
	stateIdle parserState = iota
	statePending
)

type parser struct {
	state    parserState
	pending  Channel
	channels []Channel
}

// Parse converts playlist text into channels. See ParseReader.
func Parse(content string) (Result, error) {
	return ParseReader(strings.NewReader(content))
}

// ParseReader reads an extended M3U playlist line by line.
//
// An #EXTINF line opens a pending channel, replacing any pending channel that
// never received its URL. The next http(s) line completes it. URL lines without
// a pending channel, the #EXTM3U header, blank lines and any other lines are
// skipped. Missing or malformed attributes leave their field empty.
//
// The only error is a *ParseError raised when the input cannot be iterated.
func ParseReader(r io.Reader) (Result, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var (
		p        parser
		lineNum  int
		lastLine string
	)

	for scanner.Scan() {
		lineNum++
		lastLine = scanner.Text()
		p.feed(strings.TrimSpace(lastLine))
	}

	if err := scanner.Err(); err != nil {
		return Result{}, &ParseError{LineNumber: lineNum, Line: lastLine, Err: err}
	}

	return Result{Channels: p.channels}, nil
}

func (p *parser) feed(line string) {
	switch {
	case line == "":
		return
	case strings.HasPrefix(line, extinfPrefix):
		p.pending = parseExtinf(line)
		p.state = statePending
	case isStreamURL(line):
		if p.state != statePending {
			return
		}
		p.pending.StreamURL = line
		p.channels = append(p.channels, p.pending)
		p.pending = Channel{}
		p.state = stateIdle
	}
}

// parseExtinf builds a channel from the attributes of an #EXTINF line.
// Without tvg-name the title is the text after the last comma. A present but
// empty tvg-name keeps the title empty.
func parseExtinf(line string) Channel {
	var (
		ch    Channel
		named bool
	)
	for _, attr := range attributes {
		m := attr.pattern.FindStringSubmatch(line)
		if len(m) < 2 {
			continue
		}
		attr.set(&ch, cleanValue(m[1]))
		if attr.name == titleAttribute {
			named = true
		}
	}

	if !named {
		if idx := strings.LastIndex(line, ","); idx >= 0 {
			ch.Title = cleanValue(line[idx+1:])
		}
	}

	return ch
}

func cleanValue(v string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(v), `"'`))
}
