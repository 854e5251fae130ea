package handlers

import "kanbo/internal/automation"

// RegisterAll populates the registry with every built-in handler. Called
// once at process start; the registry is read-only afterwards.
func RegisterAll(reg *automation.Registry, tb *automation.Toolbox) {
	reg.RegisterTrigger(NewCardCreatedTrigger(tb))
	reg.RegisterTrigger(NewCardMovedTrigger(tb))
	reg.RegisterTrigger(NewFieldUpdatedTrigger(tb))
	reg.RegisterTrigger(NewCardAssignedTrigger(tb))

	reg.RegisterAction(NewSetFieldAction(tb))
	reg.RegisterAction(NewMoveCardAction(tb))
	reg.RegisterAction(NewAssignMemberAction(tb))
	reg.RegisterAction(NewAddCommentAction(tb))
	reg.RegisterAction(NewCreateCardAction(tb))
	reg.RegisterAction(NewNotifyAction(tb))
}
