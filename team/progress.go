// Sub-goal tracking for a team run.
//
// Information Hiding:
// - Status bookkeeping and rendering of the progress board

package team

import (
	"fmt"
	"strings"
)

type subGoalDeclaration struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

type subGoalStatus int

const (
	subGoalPending subGoalStatus = iota
	subGoalInProgress
	subGoalCompleted
	subGoalFailed
)

type subGoal struct {
	ID          string
	Description string
	Status      subGoalStatus
	Member      string
}

// taskProgress keeps sub-goals by id plus their declaration order.
type taskProgress struct {
	goalsByID      map[string]*subGoal
	order          []string
	completedCount int
	failedCount    int
}

func newTaskProgress() *taskProgress {
	return &taskProgress{goalsByID: make(map[string]*subGoal)}
}

func (p *taskProgress) addSubGoal(id, description string) {
	if _, exists := p.goalsByID[id]; exists {
		return
	}
	p.goalsByID[id] = &subGoal{ID: id, Description: description}
	p.order = append(p.order, id)
}

func (p *taskProgress) hasGoal(id string) bool {
	_, exists := p.goalsByID[id]
	return exists
}

func (p *taskProgress) markInProgress(id, member string) {
	if g, ok := p.goalsByID[id]; ok {
		g.Status = subGoalInProgress
		g.Member = member
	}
}

func (p *taskProgress) markCompleted(id string) {
	if g, ok := p.goalsByID[id]; ok && g.Status != subGoalCompleted {
		if g.Status == subGoalFailed {
			p.failedCount--
		}
		g.Status = subGoalCompleted
		p.completedCount++
	}
}

func (p *taskProgress) markFailed(id string) {
	if g, ok := p.goalsByID[id]; ok && g.Status != subGoalFailed && g.Status != subGoalCompleted {
		g.Status = subGoalFailed
		p.failedCount++
	}
}

func (p *taskProgress) summary() string {
	total := len(p.goalsByID)
	if total == 0 {
		return "Progress: 0/0 sub-goals completed (0%), 0 failed"
	}
	pct := (p.completedCount * 100) / total
	return fmt.Sprintf("Progress: %d/%d sub-goals completed (%d%%), %d failed",
		p.completedCount, total, pct, p.failedCount)
}

func (p *taskProgress) board() string {
	var b strings.Builder
	fmt.Fprintf(&b, "\nTask Progress (%d/%d):\n", p.completedCount, len(p.goalsByID))
	for _, id := range p.order {
		g := p.goalsByID[id]
		icon := "[ ]"
		switch g.Status {
		case subGoalInProgress:
			icon = "[→]"
		case subGoalCompleted:
			icon = "[✓]"
		case subGoalFailed:
			icon = "[✗]"
		}
		fmt.Fprintf(&b, "  %s %s\n", icon, g.Description)
	}
	return b.String()
}
