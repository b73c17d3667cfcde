package common

// Triple is a (head, relation, tail) record parsed from the output of the
// relation-extraction model. The relation is serialized as "type" to stay
// compatible with the raw triple artifacts written by the triplet stage.
type Triple struct {
	Head     string `json:"head"`
	Relation string `json:"type"`
	Tail     string `json:"tail"`
}

// LinkedTriple is a Triple whose head and tail were both resolved to
// canonical knowledge-base labels. The original mentions are kept for
// provenance.
type LinkedTriple struct {
	LinkedHead   string `json:"linked_head"`
	OriginalHead string `json:"original_head"`
	Relation     string `json:"type"`
	LinkedTail   string `json:"linked_tail"`
	OriginalTail string `json:"original_tail"`
}

// Stage names a pipeline step. The names double as queue prefixes and
// lease keys.
type Stage string

const (
	StageExtract  Stage = "extract"
	StageClean    Stage = "clean"
	StageTriplets Stage = "triplets"
	StageLink     Stage = "link"
	StageGraph    Stage = "graph"
)

// Stages lists the line-based stages in execution order. The graph stage
// runs once over all link outputs and is not part of this list.
var Stages = []Stage{StageExtract, StageClean, StageTriplets, StageLink}

// Next returns the stage that consumes this stage's output.
func (s Stage) Next() (Stage, bool) {
	switch s {
	case StageExtract:
		return StageClean, true
	case StageClean:
		return StageTriplets, true
	case StageTriplets:
		return StageLink, true
	case StageLink:
		return StageGraph, true
	}
	return "", false
}

// ParseStage validates a stage name.
func ParseStage(name string) (Stage, bool) {
	switch Stage(name) {
	case StageExtract, StageClean, StageTriplets, StageLink, StageGraph:
		return Stage(name), true
	}
	return "", false
}
