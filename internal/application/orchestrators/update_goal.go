package orchestrators

import (
	"context"
	"slices"

	"github.com/rs/zerolog/log"

	"coachhub/internal/adapters/api"
	"coachhub/internal/application/querycache"
	"coachhub/internal/domain/goal"
	"coachhub/internal/domain/rbac"
)

// GoalAPI defines the API interface needed by the goal orchestrators.
type GoalAPI interface {
	UpdateGoalProgress(ctx context.Context, id string, progress int) (goal.Goal, error)
	UpdateMilestone(ctx context.Context, goalID, milestoneID string, in api.MilestoneUpdate) (goal.Goal, error)
}

// GoalDeps holds dependencies for the goal orchestrators.
type GoalDeps struct {
	API   GoalAPI
	Cache Invalidator
}

// UpdateGoalProgressInput carries input for the update goal progress orchestrator.
type UpdateGoalProgressInput struct {
	Actor    rbac.Context
	GoalID   string
	Progress int
}

// ExecuteUpdateGoalProgress stores a new progress value.
// POST: The value sent is clamped to 0..100; on success the goals cache is invalidated
func ExecuteUpdateGoalProgress(ctx context.Context, input UpdateGoalProgressInput, deps GoalDeps) (goal.Goal, error) {
	if !rbac.Can(input.Actor, rbac.ActionEdit, rbac.SubjectGoals) {
		return goal.Goal{}, ErrForbidden
	}
	progress := goal.ClampProgress(input.Progress)
	updated, err := deps.API.UpdateGoalProgress(ctx, input.GoalID, progress)
	if err != nil {
		return goal.Goal{}, err
	}
	deps.Cache.Invalidate(querycache.ResourceGoals)
	log.Info().Str("goal_id", input.GoalID).Int("progress", progress).Msg("goal_progress_updated")
	return updated, nil
}

// UpdateMilestoneInput carries input for the update milestone orchestrator.
type UpdateMilestoneInput struct {
	Actor       rbac.Context
	GoalID      string
	MilestoneID string
	Status      string
	Notes       string
}

// ExecuteUpdateMilestone changes the status of one milestone.
// PRE: input.Status is a milestone status
// POST: On success the goals cache is invalidated
func ExecuteUpdateMilestone(ctx context.Context, input UpdateMilestoneInput, deps GoalDeps) (goal.Goal, error) {
	if !rbac.Can(input.Actor, rbac.ActionEdit, rbac.SubjectGoals) {
		return goal.Goal{}, ErrForbidden
	}
	if !slices.Contains(goal.ValidMilestoneStatuses, input.Status) {
		return goal.Goal{}, goal.ErrInvalidMilestoneStatus
	}
	updated, err := deps.API.UpdateMilestone(ctx, input.GoalID, input.MilestoneID, api.MilestoneUpdate{
		Status: input.Status,
		Notes:  input.Notes,
	})
	if err != nil {
		return goal.Goal{}, err
	}
	deps.Cache.Invalidate(querycache.ResourceGoals)
	log.Info().
		Str("goal_id", input.GoalID).
		Str("milestone_id", input.MilestoneID).
		Str("status", input.Status).
		Msg("milestone_updated")
	return updated, nil
}
