// Package triplet turns the linearized output of a relation-extraction model
// into head/relation/tail records.
package triplet

import (
	"strings"

	"github.com/OFFIS-RIT/threadgraph/pkg/common"
)

// Markers emitted by the model between free-text tokens.
const (
	MarkerTriplet = "<triplet>"
	MarkerSubject = "<subj>"
	MarkerObject  = "<obj>"
)

var sentinelReplacer = strings.NewReplacer("<s>", "", "<pad>", "", "</s>", "")

// Tokenize strips padding and sequence sentinels from decoded model output
// and splits it on whitespace.
func Tokenize(decoded string) []string {
	return strings.Fields(sentinelReplacer.Replace(decoded))
}

// ParseDecoded is Tokenize followed by Parse.
func ParseDecoded(decoded string) []common.Triple {
	return Parse(Tokenize(decoded))
}

type role int

const (
	roleNone role = iota
	roleHead
	roleTail
	roleRelation
)

type parser struct {
	head, tail, relation strings.Builder
	target               role
	out                  []common.Triple
}

// Parse runs the marker state machine over tokens.
//
// Text after <triplet> accumulates into the head, text after <subj> into the
// tail and text after <obj> into the relation. A pending triple is emitted
// when a new <triplet> or <subj> arrives and a relation has been collected.
// <triplet> clears all three fields, <subj> clears head and tail but keeps
// the relation, and <obj> clears only the relation. At the end of input a
// triple is emitted only if all three fields are non-empty.
func Parse(tokens []string) []common.Triple {
	p := &parser{}
	for _, tok := range tokens {
		switch tok {
		case MarkerTriplet:
			if p.relation.Len() > 0 {
				p.emit()
				p.head.Reset()
				p.tail.Reset()
				p.relation.Reset()
			}
			p.target = roleHead
		case MarkerSubject:
			if p.relation.Len() > 0 {
				p.emit()
				p.head.Reset()
				p.tail.Reset()
			}
			p.target = roleTail
		case MarkerObject:
			p.relation.Reset()
			p.target = roleRelation
		default:
			p.append(tok)
		}
	}

	if p.head.Len() > 0 && p.tail.Len() > 0 && p.relation.Len() > 0 {
		p.emit()
	}
	return p.out
}

func (p *parser) append(tok string) {
	var b *strings.Builder
	switch p.target {
	case roleHead:
		b = &p.head
	case roleTail:
		b = &p.tail
	case roleRelation:
		b = &p.relation
	default:
		return
	}
	b.WriteByte(' ')
	b.WriteString(tok)
}

func (p *parser) emit() {
	p.out = append(p.out, common.Triple{
		Head:     strings.TrimSpace(p.head.String()),
		Relation: strings.TrimSpace(p.relation.String()),
		Tail:     strings.TrimSpace(p.tail.String()),
	})
}
