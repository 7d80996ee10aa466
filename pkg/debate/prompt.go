package debate

import (
	"fmt"

	"github.com/chandler767/live-debate-arena/pkg/agent"
	"github.com/chandler767/live-debate-arena/pkg/session"
	"github.com/chandler767/live-debate-arena/pkg/types"
)

// OpeningPrompt asks the opening side for its first argument.
func OpeningPrompt(topic string) string {
	return fmt.Sprintf("Start a heated debate about: \"%s\". You are in favor of it. State your opening argument now.", topic)
}

// RebuttalPrompt forwards the opponent's finished turn.
func RebuttalPrompt(opponent, text string) string {
	return fmt.Sprintf("Your opponent %s said: \"%s\". Rebut this!", opponent, text)
}

// opponentTraits is how each side is told to see the other.
var opponentTraits = [2]string{
	Left:  "loud and wrong",
	Right: "sophisticated but wrong",
}

// SessionConfig builds the session configuration for side.
func SessionConfig(model string, side Side, self, opponent types.AgentProfile) session.Config {
	return session.Config{
		Model:                 model,
		ResponseModality:      session.ModalityAudio,
		Voice:                 self.VoiceID,
		SystemInstructionText: agent.SystemInstruction(self, opponent, opponentTraits[side]),
		RequestTranscription:  true,
	}
}
