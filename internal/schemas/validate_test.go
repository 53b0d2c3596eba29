package schemas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_MatchResponse(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr bool
	}{
		{name: "valid", doc: `{"score": 0.82, "reasoning": "Strong Go overlap", "red_flags": []}`},
		{name: "score above one", doc: `{"score": 1.4, "reasoning": "x"}`, wantErr: true},
		{name: "score as string", doc: `{"score": "0.8", "reasoning": "x"}`, wantErr: true},
		{name: "missing reasoning", doc: `{"score": 0.5}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(MatchResponse, tt.doc)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.NotEmpty(t, ve.Errors)
			assert.Equal(t, MatchResponse, ve.Schema)
		})
	}
}

func TestValidate_TailorResponseNeedsChangeLog(t *testing.T) {
	assert.NoError(t, Validate(TailorResponse, `{"content": "resume", "change_log": ["moved skills up"]}`))

	err := Validate(TailorResponse, `{"content": "resume", "change_log": []}`)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "change_log", ve.Errors[0].Field)
}

func TestValidate_OutcomeEvent(t *testing.T) {
	assert.NoError(t, Validate(OutcomeEvent, `{"application_id": "a1", "outcome": "interview"}`))
	assert.Error(t, Validate(OutcomeEvent, `{"application_id": "a1", "outcome": "ghosted"}`))
}

func TestValidate_Errors(t *testing.T) {
	var le *SchemaLoadError
	assert.ErrorAs(t, Validate("nope", `{}`), &le)
	assert.ErrorAs(t, Validate(MatchResponse, `{not json`), &le)
}
