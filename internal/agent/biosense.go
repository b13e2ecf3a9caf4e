package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/johnbachman/bioagents/internal/domain"
	"github.com/johnbachman/bioagents/pkg/ekb"
	"github.com/johnbachman/bioagents/pkg/kqml"
)

// BioSenseName is the name the BioSense agent registers under.
const BioSenseName = "BIOSENSE"

// BioSenseHandler grounds EKB terms to agents and reports ambiguous ones.
type BioSenseHandler struct {
	ekb    *ekb.Processor
	logger *logrus.Logger
}

// NewBioSenseHandler creates a BioSenseHandler.
func NewBioSenseHandler(processor *ekb.Processor, logger *logrus.Logger) *BioSenseHandler {
	return &BioSenseHandler{ekb: processor, logger: logger}
}

// Name implements Handler.
func (h *BioSenseHandler) Name() string { return BioSenseName }

// Tasks implements Handler.
func (h *BioSenseHandler) Tasks() []Task {
	return []Task{TaskChooseSense}
}

// HandleRequest implements Handler.
func (h *BioSenseHandler) HandleRequest(ctx context.Context, task Task, content *kqml.List) (kqml.Object, error) {
	switch task {
	case TaskChooseSense:
		return h.respondChooseSense(ctx, content)
	default:
		return nil, domain.NewAgentError(domain.ErrCodeUnknownTask, fmt.Sprintf("unknown request task %s", task), "", "")
	}
}

// HandleTell implements Handler.
func (h *BioSenseHandler) HandleTell(_ context.Context, content *kqml.List) {
	if strings.EqualFold(content.Head(), "START-CONVERSATION") {
		h.logger.Info("BioSense resetting")
	}
}

func (h *BioSenseHandler) respondChooseSense(ctx context.Context, content *kqml.List) (kqml.Object, error) {
	doc, err := ekb.Parse(content.Gets("ekb-term"))
	if err != nil {
		return nil, domain.NewAgentError(domain.ErrCodeInvalidRequest, "could not parse :ekb-term", err.Error(), "")
	}

	agents := h.ekb.Agents(ctx, doc)
	ambiguities := ekb.Ambiguities(doc)

	reply := kqml.NewList("OK")
	if len(agents) > 0 {
		list := kqml.NewList()
		for _, ta := range agents {
			entry := kqml.NewList()
			entry.Append(symbol(ta.TermID))
			entry.Sets("name", ta.Agent.Name)
			entry.Sets("ids", ta.Agent.RefString())
			list.Append(entry)
		}
		reply.Set("agents", list)
	}

	if len(ambiguities) > 0 {
		list := kqml.NewList()
		for _, t := range doc.Terms {
			amb, ok := ambiguities[t.ID]
			if !ok {
				continue
			}
			// One entry per term: the first competing sense.
			entry := kqml.NewList()
			entry.Append(symbol(t.ID))
			entry.Set("preferred", senseList(amb[0].Preferred))
			entry.Set("alternative", senseList(amb[0].Alternative))
			list.Append(entry)
		}
		reply.Set("ambiguities", list)
	}

	h.logger.WithFields(logrus.Fields{
		"agents":      len(agents),
		"ambiguities": len(ambiguities),
	}).Debug("Chose senses")
	return reply, nil
}

func senseList(s domain.Sense) *kqml.List {
	l := kqml.NewList("term")
	l.SetToken("ont-type", s.OntType)
	l.Sets("ids", domain.FormatRefs(s.DBRefs))
	l.Sets("name", s.Name)
	return l
}
