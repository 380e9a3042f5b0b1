package auth

import (
	"fmt"

	"stageline/internal/access"
	"stageline/internal/domain"
	"stageline/internal/store"
)

// ForbiddenError indicates the actor is not assigned to the stage.
type ForbiddenError struct {
	Actor   string
	StageID string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("%s is not assigned to stage %s", e.Actor, e.StageID)
}

// Guard gates claim and completion on stage assignment. The zero value
// allows everything.
type Guard struct {
	Enforce bool
}

// Check returns ForbiddenError when enforcement is on and actor cannot work
// on stageID of flow.
func (g Guard) Check(state *store.State, flow domain.Flow, stageID, actor string) error {
	if !g.Enforce {
		return nil
	}
	if access.CanUserWorkOnStage(state, flow, stageID, actor) {
		return nil
	}
	return ForbiddenError{Actor: actor, StageID: stageID}
}
