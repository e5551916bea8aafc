package room

import (
	"github.com/mcdev12/turingroom/go/internal/models"
)

// ConfigureResponder saves or locks a member's responder instruction and profile.
func (r *Registry) ConfigureResponder(code, playerID, instruction, profileID string, lock bool) error {
	if err := checkLen("instruction", instruction, MaxInstructionLen); err != nil {
		return err
	}
	return r.withMember(code, playerID, func(e *entry, _ *models.Player) error {
		return e.machine.ConfigureResponder(playerID, instruction, profileID, lock)
	})
}

func (r *Registry) SubmitQuestion(code, playerID, text string) error {
	if err := checkLen("question", text, MaxTextLen); err != nil {
		return err
	}
	return r.withMember(code, playerID, func(e *entry, _ *models.Player) error {
		return e.machine.SubmitQuestion(playerID, text)
	})
}

// SubmitAnswer accepts the subject's own text, or with OriginGenerated delegates the answer
// to their responder and ignores text.
func (r *Registry) SubmitAnswer(code, playerID string, origin models.AnswerOrigin, text string) error {
	if err := checkLen("answer", text, MaxTextLen); err != nil {
		return err
	}
	return r.withMember(code, playerID, func(e *entry, _ *models.Player) error {
		return e.machine.SubmitAnswer(playerID, origin, text)
	})
}

func (r *Registry) SubmitVote(code, playerID string, choice models.VoteChoice) error {
	return r.withMember(code, playerID, func(e *entry, _ *models.Player) error {
		return e.machine.SubmitVote(playerID, choice)
	})
}
