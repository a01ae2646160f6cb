// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package mutate generates new test inputs by splicing fragments of existing ones.
// Inputs are parsed into delimiter trees: every (), [] and {} group is a node,
// everything between delimiters is a text leaf. Rendering a parsed tree gives
// back exactly the source it was parsed from.
package mutate

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/matthiaskrgr/icemaker-sub000/pkg/log"
)

// Node is either a text leaf (Open == 0 and no children) or a delimited group.
// Close is 0 for a group that is not closed before the end of the input.
type Node struct {
	Text     string
	Open     byte
	Close    byte
	Children []*Node
}

func (n *Node) IsGroup() bool {
	return n.Open != 0
}

func (n *Node) clone() *Node {
	n1 := &Node{Text: n.Text, Open: n.Open, Close: n.Close}
	if n.Children != nil {
		n1.Children = make([]*Node, len(n.Children))
		for i, c := range n.Children {
			n1.Children[i] = c.clone()
		}
	}
	return n1
}

func (n *Node) render(buf *bytes.Buffer) {
	if !n.IsGroup() {
		buf.WriteString(n.Text)
	} else {
		buf.WriteByte(n.Open)
	}
	for _, c := range n.Children {
		c.render(buf)
	}
	if n.Close != 0 {
		buf.WriteByte(n.Close)
	}
}

// walk calls fn for n and all its descendants in pre-order.
func (n *Node) walk(fn func(*Node)) {
	fn(n)
	for _, c := range n.Children {
		c.walk(fn)
	}
}

type Tree struct {
	File string
	// Root is a synthetic node without delimiters that holds the top-level nodes.
	Root *Node
}

func (t *Tree) Render() []byte {
	buf := new(bytes.Buffer)
	for _, c := range t.Root.Children {
		c.render(buf)
	}
	return buf.Bytes()
}

func (t *Tree) Clone() *Tree {
	return &Tree{File: t.File, Root: t.Root.clone()}
}

// Groups returns all delimited groups of the tree in pre-order.
func (t *Tree) Groups() []*Node {
	var groups []*Node
	t.Root.walk(func(n *Node) {
		if n.IsGroup() {
			groups = append(groups, n)
		}
	})
	return groups
}

var closers = map[byte]byte{'(': ')', '[': ']', '{': '}'}

// Number of bytes parsed between deadline checks.
const checkInterval = 4 << 10

// Parse builds the delimiter tree of src. String literals, character literals and
// comments are kept inside text leaves, so delimiters in them do not open groups.
// A stray closing delimiter becomes text. Parsing stops with an error when ctx is done.
func Parse(ctx context.Context, src []byte) (*Tree, error) {
	p := &parser{src: src}
	root := &Node{}
	stack := []*Node{root}
	for p.pos < len(src) {
		if p.pos >= p.nextCheck {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("parsing aborted at offset %v: %w", p.pos, err)
			}
			p.nextCheck = p.pos + checkInterval
		}
		top := stack[len(stack)-1]
		ch := src[p.pos]
		if _, ok := closers[ch]; ok {
			p.flush(top)
			group := &Node{Open: ch}
			top.Children = append(top.Children, group)
			stack = append(stack, group)
			p.pos++
			p.start = p.pos
			continue
		}
		if len(stack) > 1 && ch == closers[top.Open] {
			p.flush(top)
			top.Close = ch
			stack = stack[:len(stack)-1]
			p.pos++
			p.start = p.pos
			continue
		}
		p.skipToken()
	}
	p.flush(stack[len(stack)-1])
	return &Tree{Root: root}, nil
}

type parser struct {
	src       []byte
	pos       int
	start     int
	nextCheck int
}

// flush appends the pending text as a leaf of n.
func (p *parser) flush(n *Node) {
	if p.pos > p.start {
		n.Children = append(n.Children, &Node{Text: string(p.src[p.start:p.pos])})
	}
	p.start = p.pos
}

// skipToken advances over one byte, or over a whole literal or comment.
func (p *parser) skipToken() {
	src, pos := p.src, p.pos
	switch {
	case bytes.HasPrefix(src[pos:], []byte("//")):
		end := bytes.IndexByte(src[pos:], '\n')
		if end == -1 {
			end = len(src) - pos
		}
		p.pos += end
	case bytes.HasPrefix(src[pos:], []byte("/*")):
		p.pos = skipBlockComment(src, pos)
	case src[pos] == '"':
		p.pos = skipString(src, pos+1)
	case src[pos] == 'r' && isRawStringStart(src, pos+1) && isRawStringPrefix(src, pos):
		p.pos = skipRawString(src, pos+1)
	case src[pos] == '\'':
		p.pos = skipChar(src, pos)
	default:
		p.pos++
	}
}

// skipBlockComment handles nested comments.
func skipBlockComment(src []byte, pos int) int {
	depth := 0
	for pos < len(src) {
		switch {
		case bytes.HasPrefix(src[pos:], []byte("/*")):
			depth++
			pos += 2
		case bytes.HasPrefix(src[pos:], []byte("*/")):
			depth--
			pos += 2
			if depth == 0 {
				return pos
			}
		default:
			pos++
		}
	}
	return pos
}

func skipString(src []byte, pos int) int {
	for pos < len(src) {
		switch src[pos] {
		case '\\':
			pos += 2
		case '"':
			return pos + 1
		default:
			pos++
		}
	}
	return len(src)
}

// isRawStringPrefix says if the r at pos starts a raw literal: r"", br"" or cr"",
// but not the tail of an identifier.
func isRawStringPrefix(src []byte, pos int) bool {
	if pos == 0 || !isIdent(src[pos-1]) {
		return true
	}
	if src[pos-1] != 'b' && src[pos-1] != 'c' {
		return false
	}
	return pos == 1 || !isIdent(src[pos-2])
}

func isRawStringStart(src []byte, pos int) bool {
	for pos < len(src) && src[pos] == '#' {
		pos++
	}
	return pos < len(src) && src[pos] == '"'
}

func skipRawString(src []byte, pos int) int {
	hashes := 0
	for src[pos] == '#' {
		hashes++
		pos++
	}
	terminator := append([]byte{'"'}, bytes.Repeat([]byte{'#'}, hashes)...)
	end := bytes.Index(src[pos+1:], terminator)
	if end == -1 {
		return len(src)
	}
	return pos + 1 + end + len(terminator)
}

// skipChar skips a character literal, or just the quote of a lifetime.
func skipChar(src []byte, pos int) int {
	if pos+1 < len(src) && src[pos+1] == '\\' {
		if pos+3 > len(src) {
			return pos + 1
		}
		end := bytes.IndexByte(src[pos+3:min(len(src), pos+16)], '\'')
		if end != -1 {
			return pos + 3 + end + 1
		}
		return pos + 1
	}
	// 'x' where x is a single (possibly multi-byte) character.
	for n := 2; n <= 5 && pos+n < len(src); n++ {
		if src[pos+n] == '\'' {
			if n == 2 || src[pos+1] >= 0x80 {
				return pos + n + 1
			}
			break
		}
	}
	return pos + 1
}

func isIdent(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

const (
	DefaultMaxLines     = 1000
	DefaultParseTimeout = 10 * time.Second
)

type Limits struct {
	// MaxLines is the maximum size of a seed, larger seeds are skipped.
	MaxLines int
	// ParseTimeout bounds parsing of a single seed, seeds that take longer are skipped.
	ParseTimeout time.Duration
}

// ParseSeeds parses the files that fit into limits. Files that can't be read,
// are too large or take too long to parse are skipped.
func ParseSeeds(ctx context.Context, files []string, limits Limits) []*Tree {
	if limits.MaxLines == 0 {
		limits.MaxLines = DefaultMaxLines
	}
	if limits.ParseTimeout == 0 {
		limits.ParseTimeout = DefaultParseTimeout
	}
	var trees []*Tree
	for _, file := range files {
		src, err := os.ReadFile(file)
		if err != nil {
			log.Logf(1, "skipping seed %v: %v", file, err)
			continue
		}
		if lines := bytes.Count(src, []byte{'\n'}); lines > limits.MaxLines {
			log.Logf(2, "skipping seed %v: %v lines", file, lines)
			continue
		}
		tree, err := parseWithTimeout(ctx, src, limits.ParseTimeout)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			log.Logf(1, "skipping seed %v: %v", file, err)
			continue
		}
		tree.File = file
		trees = append(trees, tree)
	}
	return trees
}

func parseWithTimeout(ctx context.Context, src []byte, timeout time.Duration) (*Tree, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return Parse(ctx, src)
}
