package session

import "fmt"

// Modality is the kind of output requested from the agent.
type Modality string

const (
	ModalityAudio Modality = "AUDIO"
	ModalityText  Modality = "TEXT"
)

// Config is fixed for the life of a connection. Changing it requires a
// disconnect and reconnect.
type Config struct {
	Model                 string
	ResponseModality      Modality
	Voice                 string
	SystemInstructionText string
	// RequestTranscription asks the transport to transcribe the agent's audio
	// output. A transport that cannot honour it fails the connection.
	RequestTranscription bool
}

// Validate reports whether the configuration can be used to connect.
func (c Config) Validate() error {
	switch c.ResponseModality {
	case ModalityAudio, ModalityText:
	case "":
		return fmt.Errorf("session: response modality is required")
	default:
		return fmt.Errorf("session: unsupported response modality %q", c.ResponseModality)
	}
	return nil
}
