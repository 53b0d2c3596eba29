package tailoring

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jonathan/job-agent/internal/llm"
	"github.com/jonathan/job-agent/internal/prompts"
	"github.com/jonathan/job-agent/internal/providers"
	"github.com/jonathan/job-agent/internal/schemas"
	"github.com/jonathan/job-agent/internal/types"
)

type tailorResponse struct {
	Content   string   `json:"content"`
	ChangeLog []string `json:"change_log"`
}

// LLMTailor rewrites resumes with a language model.
type LLMTailor struct {
	Client llm.Client
	Tier   llm.ModelTier
	// Vocabulary is the skill list guarded against invention. Nil means DefaultSkillVocabulary.
	Vocabulary []string
}

var _ providers.Tailor = (*LLMTailor)(nil)

// NewLLMTailor creates a tailor on the advanced tier.
func NewLLMTailor(client llm.Client) *LLMTailor {
	return &LLMTailor{Client: client, Tier: llm.TierAdvanced}
}

// Tailor implements providers.Tailor.
func (t *LLMTailor) Tailor(ctx context.Context, req providers.TailorRequest) (*types.TailoredDocument, error) {
	if strings.TrimSpace(req.Resume) == "" {
		return nil, &providers.TailorError{Message: "base resume is empty"}
	}

	emphasis := "Not specified"
	if len(req.Emphasis) > 0 {
		emphasis = strings.Join(req.Emphasis, ", ")
	}
	prompt, err := prompts.Render("tailoring.json", "tailor-resume", map[string]string{
		"Emphasis":    emphasis,
		"Title":       req.Job.Title,
		"Company":     req.Job.Company,
		"Description": req.Job.Description,
		"Resume":      req.Resume,
	})
	if err != nil {
		return nil, err
	}

	tier := t.Tier
	if tier == "" {
		tier = llm.TierAdvanced
	}
	raw, err := t.Client.GenerateJSON(ctx, prompt, tier)
	if err != nil {
		return nil, &providers.ProviderError{Provider: "tailor", Message: "LLM generation failed", Cause: err}
	}
	raw = llm.CleanJSONBlock(raw)

	if err := schemas.Validate(schemas.TailorResponse, raw); err != nil {
		return nil, &providers.ProviderError{Provider: "tailor", Message: "malformed model response", Cause: err}
	}
	var resp tailorResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, &providers.ProviderError{Provider: "tailor", Message: "failed to parse model response", Cause: err}
	}

	vocab := t.Vocabulary
	if vocab == nil {
		vocab = DefaultSkillVocabulary
	}
	if v := Violations(req.Resume, resp.Content, vocab); len(v) > 0 {
		return nil, &providers.TailorError{
			Message:    fmt.Sprintf("rewrite for %s introduced facts not in the resume", req.Job.Key()),
			Violations: v,
		}
	}

	changeLog := make([]string, 0, len(resp.ChangeLog))
	for _, c := range resp.ChangeLog {
		if c = strings.TrimSpace(c); c != "" {
			changeLog = append(changeLog, c)
		}
	}
	return &types.TailoredDocument{Content: resp.Content, ChangeLog: changeLog}, nil
}
