package orchestrator

import (
	"testing"

	"github.com/kalambet/caseflow/internal/search"
	"github.com/kalambet/caseflow/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyAction(t *testing.T) {
	tests := map[string]actionKind{
		"transfer_to_human":        kindTransfer,
		"Transferir_Para_Humano":   kindTransfer,
		"consultar_perfil_cliente": kindAutomatic,
		"inform_customer":          kindSend,
		"link":                     kindSend,
		" ask_customer ":           kindAsk,
		"acao_interna_manual":      kindInternal,
		"webhook":                  kindUnknown,
		"":                         kindUnknown,
	}
	for in, want := range tests {
		assert.Equal(t, want, classifyAction(in), "classifyAction(%q)", in)
	}
	assert.True(t, kindAsk.requiresAI())
	assert.False(t, kindAutomatic.requiresAI())
}

func TestNextAction(t *testing.T) {
	actions := []storage.CaseAction{
		{ID: "c", Sequence: 3, Status: storage.ActionNotStarted},
		{ID: "a", Sequence: 1, Status: storage.ActionCompleted},
		{ID: "b", Sequence: 2, Status: storage.ActionNotStarted},
	}
	next := nextAction(actions)
	require.NotNil(t, next)
	assert.Equal(t, "b", next.ID)

	actions[2].Status = storage.ActionInProgress
	assert.Equal(t, "b", nextAction(actions).ID)

	// An escalated action blocks everything after it.
	actions[2].Status = storage.ActionEscalated
	assert.Nil(t, nextAction(actions))

	assert.Nil(t, nextAction(nil))
}

func TestAllDone(t *testing.T) {
	assert.False(t, allDone(nil))
	assert.True(t, allDone([]storage.CaseAction{{Status: storage.ActionCompleted}, {Status: storage.ActionSkipped}}))
	assert.False(t, allDone([]storage.CaseAction{{Status: storage.ActionCompleted}, {Status: storage.ActionInProgress}}))
}

func TestResolveMessage(t *testing.T) {
	action := storage.CaseAction{
		Message:      "default message",
		Instructions: "default instructions",
		VariationsJSON: search.MarshalVariations([]search.Variation{
			{
				Label:      "vip-br",
				Conditions: []search.Condition{{Variable: "tier", Expected: "vip"}, {Variable: "country", Expected: "BR"}},
				Message:    "vip message",
			},
			{
				Label:        "vip",
				Conditions:   []search.Condition{{Variable: "tier", Expected: "VIP"}},
				Instructions: "be extra kind",
			},
		}),
	}

	tests := []struct {
		name    string
		profile map[string]string
		want    resolvedMessage
	}{
		{
			name:    "all conditions match",
			profile: map[string]string{"tier": "vip", "country": "br"},
			want:    resolvedMessage{Message: "vip message", Instructions: "default instructions", Variation: "vip-br"},
		},
		{
			name:    "first matching variation wins",
			profile: map[string]string{"tier": "Vip", "country": "US"},
			want:    resolvedMessage{Message: "default message", Instructions: "be extra kind", Variation: "vip"},
		},
		{
			name:    "no match uses defaults",
			profile: map[string]string{"tier": "basic"},
			want:    resolvedMessage{Message: "default message", Instructions: "default instructions"},
		},
		{
			name: "missing profile field never matches",
			want: resolvedMessage{Message: "default message", Instructions: "default instructions"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveMessage(action, tt.profile))
		})
	}
}

func TestPlanActions_AssignsSequence(t *testing.T) {
	got := planActions("sol-1", &search.Plan{Actions: []search.PlanAction{
		{Name: "first", Type: "inform_customer"},
		{Name: "second", Type: "ask_customer", Sequence: 7},
	}})
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Sequence)
	assert.Equal(t, 7, got[1].Sequence)
	assert.Equal(t, "[]", got[0].VariationsJSON)
	assert.Equal(t, storage.ActionNotStarted, got[1].Status)
	assert.NotEqual(t, got[0].ID, got[1].ID)
}
