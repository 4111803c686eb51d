package usecase

import (
	"bytes"
	_ "embed"
	"text/template"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/reviewsage/pkg/domain/model"
	"github.com/secmon-lab/reviewsage/pkg/domain/types"
)

//go:embed prompt/agent_system.md
var agentSystemPromptTmpl string

var agentSystemPrompt = template.Must(template.New("agent_system").Parse(agentSystemPromptTmpl))

//go:embed prompt/rag_system.md
var ragSystemPromptTmpl string

var ragSystemPrompt = template.Must(template.New("rag_system").Parse(ragSystemPromptTmpl))

type promptGroup struct {
	Group   types.GroupTag
	Name    string
	Records int
}

type agentPromptData struct {
	Groups   []promptGroup
	MaxSteps int
}

// BuildAgentSystemPrompt renders the orchestrator system prompt for the registered groups.
// names optionally maps a group tag to a display name.
func BuildAgentSystemPrompt(groups []model.GroupStat, names map[types.GroupTag]string, maxSteps int) (string, error) {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}

	data := agentPromptData{Groups: make([]promptGroup, len(groups)), MaxSteps: maxSteps}
	for i, g := range groups {
		data.Groups[i] = promptGroup{Group: g.Group, Name: names[g.Group], Records: g.Records}
	}

	var buf bytes.Buffer
	if err := agentSystemPrompt.Execute(&buf, data); err != nil {
		return "", goerr.Wrap(err, "failed to render agent system prompt")
	}
	return buf.String(), nil
}

func buildRAGSystemPrompt(context string) (string, error) {
	var buf bytes.Buffer
	if err := ragSystemPrompt.Execute(&buf, struct{ Context string }{Context: context}); err != nil {
		return "", goerr.Wrap(err, "failed to render RAG system prompt")
	}
	return buf.String(), nil
}
