package debate

import (
	"strings"
	"testing"

	"github.com/matryer/is"
)

func TestSide_Other(t *testing.T) {
	is := is.New(t)
	is.Equal(Left.Other(), Right)
	is.Equal(Right.Other(), Left)
}

func TestStage_Phase(t *testing.T) {
	tests := []struct {
		stage Stage
		want  Phase
	}{
		{StageSetup, PhaseSetup},
		{StageConnecting, PhaseSetup},
		{StageOpening, PhaseActive},
		{StageInTurn, PhaseActive},
		{StageHandoff, PhaseActive},
		{StageEnded, PhaseEnded},
	}
	for _, tt := range tests {
		t.Run(tt.stage.String(), func(t *testing.T) {
			is := is.New(t)
			is.Equal(tt.stage.Phase(), tt.want)
		})
	}
}

func TestSideState_Subtitle(t *testing.T) {
	is := is.New(t)

	is.Equal(SideState{Transcript: "one\ntwo", Caption: "thr"}.Subtitle(), "one two thr")
	is.Equal(SideState{Caption: "live"}.Subtitle(), "live")

	long := SideState{Transcript: strings.Repeat("a", 140), Caption: strings.Repeat("b", 20)}
	sub := long.Subtitle()
	is.Equal(len(sub), 150) // only the last 150 characters
	is.True(strings.HasSuffix(sub, strings.Repeat("b", 20)))
}

func TestPrompts(t *testing.T) {
	is := is.New(t)
	is.Equal(OpeningPrompt("Pineapple on pizza"),
		`Start a heated debate about: "Pineapple on pizza". You are in favor of it. State your opening argument now.`)
	is.Equal(RebuttalPrompt("Proper Paul", "Pineapple belongs."),
		`Your opponent Proper Paul said: "Pineapple belongs.". Rebut this!`)
}
