// Package agent runs the KQML agents: the module lifecycle, the serial
// request worker and the BioSense and DTDA request handlers.
package agent

import (
	"fmt"
	"strings"
)

// Task identifies a request task by the head of the request content.
type Task int

const (
	TaskUnknown Task = iota
	TaskChooseSense
	TaskIsDrugTarget
	TaskFindTargetDrug
	TaskFindDrugTargets
	TaskFindDiseaseTargets
	TaskFindTreatment
)

var taskNames = map[Task]string{
	TaskChooseSense:        "CHOOSE-SENSE",
	TaskIsDrugTarget:       "IS-DRUG-TARGET",
	TaskFindTargetDrug:     "FIND-TARGET-DRUG",
	TaskFindDrugTargets:    "FIND-DRUG-TARGETS",
	TaskFindDiseaseTargets: "FIND-DISEASE-TARGETS",
	TaskFindTreatment:      "FIND-TREATMENT",
}

// String returns the KQML name of the task.
func (t Task) String() string {
	if name, ok := taskNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseTask resolves a content head such as "is-drug-target".
func ParseTask(s string) (Task, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for t, n := range taskNames {
		if n == name {
			return t, nil
		}
	}
	return TaskUnknown, fmt.Errorf("unknown request task %s", s)
}
