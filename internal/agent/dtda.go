package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/johnbachman/bioagents/internal/domain"
	"github.com/johnbachman/bioagents/internal/dtda"
	"github.com/johnbachman/bioagents/pkg/ekb"
	"github.com/johnbachman/bioagents/pkg/kqml"
)

// DTDAName is the name the DTDA agent registers under.
const DTDAName = "DTDA"

// DTDAHandler answers drug, target and disease requests.
type DTDAHandler struct {
	dtda   *dtda.DTDA
	ekb    *ekb.Processor
	logger *logrus.Logger
}

// NewDTDAHandler creates a DTDAHandler.
func NewDTDAHandler(d *dtda.DTDA, processor *ekb.Processor, logger *logrus.Logger) *DTDAHandler {
	return &DTDAHandler{dtda: d, ekb: processor, logger: logger}
}

// Name implements Handler.
func (h *DTDAHandler) Name() string { return DTDAName }

// Tasks implements Handler.
func (h *DTDAHandler) Tasks() []Task {
	return []Task{
		TaskIsDrugTarget,
		TaskFindTargetDrug,
		TaskFindDrugTargets,
		TaskFindDiseaseTargets,
		TaskFindTreatment,
	}
}

// HandleRequest implements Handler.
func (h *DTDAHandler) HandleRequest(ctx context.Context, task Task, content *kqml.List) (kqml.Object, error) {
	switch task {
	case TaskIsDrugTarget:
		return h.respondIsDrugTarget(ctx, content)
	case TaskFindTargetDrug:
		return h.respondFindTargetDrug(ctx, content)
	case TaskFindDrugTargets:
		return h.respondFindDrugTargets(ctx, content)
	case TaskFindDiseaseTargets:
		return h.respondFindDiseaseTargets(ctx, content)
	case TaskFindTreatment:
		return h.respondFindTreatment(ctx, content)
	default:
		return nil, domain.NewAgentError(domain.ErrCodeUnknownTask, fmt.Sprintf("Unknown task %s", task), "", "")
	}
}

// HandleTell implements Handler. DTDA keeps no conversation state.
func (h *DTDAHandler) HandleTell(_ context.Context, content *kqml.List) {
	h.logger.WithField("tell", content.Head()).Debug("Ignoring tell")
}

func (h *DTDAHandler) respondIsDrugTarget(ctx context.Context, content *kqml.List) (kqml.Object, error) {
	drug, err := h.ekb.FirstAgent(ctx, content.Gets("drug"))
	if err != nil {
		h.logger.WithError(err).Warn("Could not resolve drug")
		return failure(domain.ReasonDrugNotFound), nil
	}
	target, err := h.argumentAgent(ctx, content, "target")
	if err != nil {
		return nil, err
	}

	isTarget, err := h.dtda.IsNominalDrugTarget(ctx, drug, target.Name)
	if err != nil {
		if reason, ok := domain.FailureReasonOf(err); ok {
			return failure(reason), nil
		}
		return nil, err
	}

	reply := kqml.NewList("SUCCESS")
	if isTarget {
		reply.SetToken("is-target", "TRUE")
	} else {
		reply.SetToken("is-target", "FALSE")
	}
	return reply, nil
}

func (h *DTDAHandler) respondFindTargetDrug(ctx context.Context, content *kqml.List) (kqml.Object, error) {
	target, err := h.argumentAgent(ctx, content, "target")
	if err != nil {
		return nil, err
	}
	drugs, err := h.dtda.FindTargetDrugs(ctx, target)
	if err != nil {
		return nil, err
	}

	reply := kqml.NewList("SUCCESS")
	reply.Set("drugs", drugList(drugs))
	return reply, nil
}

func (h *DTDAHandler) respondFindDrugTargets(ctx context.Context, content *kqml.List) (kqml.Object, error) {
	drug, err := h.ekb.FirstAgent(ctx, content.Gets("drug"))
	if err != nil {
		h.logger.WithError(err).Warn("Could not resolve drug")
		return failure(domain.ReasonDrugNotFound), nil
	}
	targets, err := h.dtda.FindDrugTargets(ctx, drug)
	if err != nil {
		return nil, err
	}

	list := kqml.NewList()
	for _, t := range targets {
		entry := kqml.NewList()
		entry.Set("name", symbol(t))
		list.Append(entry)
	}
	reply := kqml.NewList("SUCCESS")
	reply.Set("targets", list)
	return reply, nil
}

func (h *DTDAHandler) respondFindDiseaseTargets(ctx context.Context, content *kqml.List) (kqml.Object, error) {
	top, fail, err := h.topMutation(ctx, content)
	if err != nil {
		return nil, err
	}
	if fail != nil {
		return fail, nil
	}
	return proteinReply(top), nil
}

func (h *DTDAHandler) respondFindTreatment(ctx context.Context, content *kqml.List) (kqml.Object, error) {
	top, fail, err := h.topMutation(ctx, content)
	if err != nil {
		return nil, err
	}
	if fail != nil {
		return fail, nil
	}

	drugs, err := h.dtda.FindTargetDrugs(ctx, domain.NewAgent(top.Gene, nil))
	if err != nil {
		return nil, err
	}
	drugReply := kqml.NewList("SUCCESS")
	drugReply.Set("drugs", drugList(drugs))

	reply := kqml.NewList()
	reply.Append(proteinReply(top))
	reply.Append(drugReply)
	return reply, nil
}

// topMutation resolves the :disease argument to its most prevalent mutated
// gene. Domain failures come back as a FAILURE list.
func (h *DTDAHandler) topMutation(ctx context.Context, content *kqml.List) (*domain.TopMutation, *kqml.List, error) {
	disease, err := ekb.ParseDisease(content.Gets("disease"))
	if err != nil {
		h.logger.WithError(err).Warn("Could not parse disease")
		return nil, failure(domain.ReasonInvalidDisease), nil
	}
	if !disease.IsCancer() {
		h.logger.WithFields(logrus.Fields{"disease": disease.Name, "type": disease.Type}).Info("Disease is not a cancer")
		return nil, failure(domain.ReasonDiseaseNotFound), nil
	}

	top, err := h.dtda.GetTopMutation(ctx, disease.Name)
	if err != nil {
		if reason, ok := domain.FailureReasonOf(err); ok {
			return nil, failure(reason), nil
		}
		return nil, nil, err
	}
	h.logger.WithFields(logrus.Fields{
		"disease": disease.Name,
		"gene":    top.Gene,
		"percent": top.Percent,
		"effect":  top.Effect,
	}).Info("Found top mutation")
	return top, nil, nil
}

// argumentAgent resolves a required EKB argument. A missing or unreadable
// argument makes the request malformed.
func (h *DTDAHandler) argumentAgent(ctx context.Context, content *kqml.List, keyword string) (*domain.Agent, error) {
	agent, err := h.ekb.FirstAgent(ctx, content.Gets(keyword))
	if err != nil {
		return nil, domain.NewAgentError(domain.ErrCodeInvalidRequest,
			fmt.Sprintf("could not resolve :%s", keyword), err.Error(), "")
	}
	return agent, nil
}

func failure(reason domain.FailureReason) *kqml.List {
	reply := kqml.NewList("FAILURE")
	reply.SetToken("reason", string(reason))
	return reply
}

func proteinReply(top *domain.TopMutation) *kqml.List {
	protein := kqml.NewList()
	protein.Set("name", symbol(top.Gene))
	protein.Set("hgnc", symbol(top.Gene))

	reply := kqml.NewList("SUCCESS")
	reply.Set("protein", protein)
	reply.SetToken("prevalence", fmt.Sprintf("%.2f", float64(top.Percent)/100.0))
	// Effects are reported as ACTIVE whatever the classifier found.
	reply.SetToken("functional-effect", "ACTIVE")
	return reply
}

func drugList(drugs []domain.Drug) *kqml.List {
	list := kqml.NewList()
	for _, d := range drugs {
		entry := kqml.NewList()
		entry.Set("name", symbol(strings.ReplaceAll(d.Name, " ", "-")))
		if d.PubChemID != "" {
			entry.Set("pubchem_id", symbol(d.PubChemID))
		}
		list.Append(entry)
	}
	return list
}

// symbol renders s as a bare token when that is unambiguous and as a
// quoted string otherwise.
func symbol(s string) kqml.Object {
	if s == "" || strings.ContainsAny(s, " \t\n\r()\"\\;") {
		return kqml.Quoted(s)
	}
	return kqml.Token(s)
}
