package service

import (
	"errors"

	"github.com/narvanalabs/resque/internal/bus"
	"github.com/narvanalabs/resque/internal/models"
)

// Register installs every command handler and event subscriber on reg.
func Register(reg *bus.Registry, deps Dependencies) error {
	deps = deps.withDefaults()
	users := NewUsers(deps)
	projects := NewProjects(deps)
	reqs := NewRequirements(deps)
	react := NewReactions(deps)

	return errors.Join(
		bus.RegisterCommand(reg, bus.CommandHandlerFunc[RegisterUser, models.User](users.Register)),
		bus.RegisterCommand(reg, bus.CommandHandlerFunc[Login, LoginResult](users.Login)),
		bus.RegisterCommand(reg, bus.CommandHandlerFunc[DeactivateUser, models.User](users.Deactivate)),

		bus.RegisterCommand(reg, bus.CommandHandlerFunc[CreateProject, models.Project](projects.Create)),
		bus.RegisterCommand(reg, bus.CommandHandlerFunc[InviteMember, models.ProjectInvitation](projects.Invite)),
		bus.RegisterCommand(reg, bus.CommandHandlerFunc[AcceptInvitation, models.ProjectMember](projects.Accept)),
		bus.RegisterCommand(reg, bus.CommandHandlerFunc[RevokeInvitation, models.ProjectInvitation](projects.Revoke)),
		bus.RegisterCommand(reg, bus.CommandHandlerFunc[ChangeProjectStatus, models.Project](projects.ChangeStatus)),
		bus.RegisterCommand(reg, bus.CommandHandlerFunc[ChangeMemberRole, models.ProjectMember](projects.ChangeMemberRole)),
		bus.RegisterCommand(reg, bus.CommandHandlerFunc[RemoveMember, models.Project](projects.RemoveMember)),

		bus.RegisterCommand(reg, bus.CommandHandlerFunc[CreateRequirement, models.Requirement](reqs.Create)),
		bus.RegisterCommand(reg, bus.CommandHandlerFunc[ChangeRequirementStatus, models.Requirement](reqs.ChangeStatus)),
		bus.RegisterCommand(reg, bus.CommandHandlerFunc[SetRequirementPriority, models.Requirement](reqs.SetPriority)),
		bus.RegisterCommand(reg, bus.CommandHandlerFunc[TagRequirement, models.Requirement](reqs.Tag)),
		bus.RegisterCommand(reg, bus.CommandHandlerFunc[UntagRequirement, models.Requirement](reqs.Untag)),
		bus.RegisterCommand(reg, bus.CommandHandlerFunc[LinkRequirement, models.Requirement](reqs.Link)),
		bus.RegisterCommand(reg, bus.CommandHandlerFunc[UnlinkRequirement, models.Requirement](reqs.Unlink)),
		bus.RegisterCommand(reg, bus.CommandHandlerFunc[AddComment, models.RequirementComment](reqs.AddComment)),
		bus.RegisterCommand(reg, bus.CommandHandlerFunc[EditComment, models.RequirementComment](reqs.EditComment)),
		bus.RegisterCommand(reg, bus.CommandHandlerFunc[AssignRequirement, models.Requirement](reqs.Assign)),

		bus.SubscribeEvent(reg, "welcome", bus.EventHandlerFunc[UserRegistered](react.WelcomeUser)),
		bus.SubscribeEvent(reg, "send_invitation", bus.EventHandlerFunc[MemberInvited](react.SendInvitation)),
		bus.SubscribeEvent(reg, "unassign_deactivated", bus.EventHandlerFunc[UserDeactivated](react.UnassignDeactivatedUser)),
		bus.SubscribeEvent(reg, "unassign_removed", bus.EventHandlerFunc[MemberRemoved](react.UnassignRemovedMember)),
		bus.SubscribeEvent(reg, "unblock_successors", bus.EventHandlerFunc[RequirementStatusChanged](react.UnblockSuccessors)),
		bus.SubscribeEvent(reg, "notify_unblocked", bus.EventHandlerFunc[RequirementUnblocked](react.NotifyUnblocked)),
	)
}
