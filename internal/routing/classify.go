package routing

import "strings"

// TaskKind is the coarse complexity label of a task.
type TaskKind string

const (
	TaskSimple  TaskKind = "simple"
	TaskComplex TaskKind = "complex"
)

var complexIndicators = []string{
	"and then",
	"also need to",
	"multiple",
	"several",
	"workflow",
	"step",
	"first",
	"then",
	"after that",
	"subtask",
}

// ClassifyTask labels content as complex when it contains any of the
// complexity indicator phrases (case-insensitive), simple otherwise.
// Plain substring matching: "steps" and "firstly" count as indicators.
func ClassifyTask(content string) TaskKind {
	lower := strings.ToLower(content)
	for _, ind := range complexIndicators {
		if strings.Contains(lower, ind) {
			return TaskComplex
		}
	}
	return TaskSimple
}
