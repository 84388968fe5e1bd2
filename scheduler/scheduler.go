package scheduler

import (
	"github.com/preesm/spider2-sub002/firing"
	"github.com/preesm/spider2-sub002/platform"
)

// Result is the outcome of one list-scheduling pass: the fully ordered and
// mapped task list plus the last-scheduled/last-schedulable cursors the
// engine uses to resume scheduling once more parameters resolve.
type Result struct {
	Tasks []*ListTask
	// LastScheduled is the index (into Tasks) of the last task successfully
	// mapped to a PE.
	LastScheduled int
	// LastSchedulable is the index of the last task whose dependencies were
	// all resolved, even if mapping itself failed past LastScheduled.
	LastSchedulable int
}

// Schedule flattens the hierarchy under root, computes schedule levels,
// sorts descending by level with the tie-break chain, then maps each task
// in order using policy. A task whose dependencies are not yet resolved is
// marked NotSchedulable and skipped (without error) while the remaining
// tasks are still considered, so the engine can call Schedule again once
// pending CONFIG feedback arrives.
func Schedule(root *firing.Handler, plat *platform.Platform, policy MappingPolicy) (*Result, error) {
	tasks, err := BuildTaskList(root, DefaultExecTime)
	if err != nil {
		return nil, err
	}
	SortDescendingLevel(tasks)

	s := newState(plat)
	res := &Result{Tasks: tasks, LastScheduled: -1, LastSchedulable: -1}

	for i, t := range tasks {
		if !dependenciesReady(t, res.Tasks[:i]) {
			t.State = NotSchedulable
			continue
		}
		res.LastSchedulable = i
		t.State = Ready

		peIx, clusterIx, start, err := policy.Map(t, s)
		if err != nil {
			return res, err
		}
		s.commit(t, peIx, clusterIx, start)
		// State stays Ready: Schedule only maps the task to a PE and a time
		// slot. The launcher drives Ready -> Running -> {Finished|Skipped}
		// as it dispatches the job and receives the runner's completion ack.
		res.LastScheduled = i
	}
	return res, nil
}

// dependenciesReady reports whether every predecessor of t already appears,
// mapped, among the tasks scheduled so far. A predecessor living under a
// still-unresolved handler was never added to the task list at all, so
// this only guards against a predecessor whose own mapping is
// still pending in this pass.
func dependenciesReady(t *ListTask, scheduledSoFar []*ListTask) bool {
	if len(t.Predecessors) == 0 {
		return true
	}
	done := make(map[TaskRef]bool, len(scheduledSoFar))
	for _, s := range scheduledSoFar {
		if s.State == Ready {
			done[s.Ref()] = true
		}
	}
	for _, dep := range t.Predecessors {
		if !done[dep] {
			return false
		}
	}
	return true
}
