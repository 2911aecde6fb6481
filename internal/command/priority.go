package command

import "sort"

// Candidate is a command offered by one plugin for an invocation.
type Candidate struct {
	Plugin  Plugin
	Command *Command
	// Context is the context the command would run in.
	Context *Context

	priority int
}

// Pick returns the candidate with the highest priority. Equal priorities
// keep the order in which candidates were collected. Pick reports false
// for an empty list.
func Pick(candidates []*Candidate) (*Candidate, bool) {
	return PickBy(candidates, func(c *Candidate) int {
		return c.Command.PriorityFor(c.Context)
	})
}

// PickBy is Pick with the priority of each candidate computed by rank. rank
// is not called when there is only one candidate.
func PickBy(candidates []*Candidate, rank func(c *Candidate) int) (*Candidate, bool) {
	switch len(candidates) {
	case 0:
		return nil, false
	case 1:
		return candidates[0], true
	}

	ranked := make([]*Candidate, len(candidates))
	copy(ranked, candidates)
	for _, c := range ranked {
		c.priority = rank(c)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].priority > ranked[j].priority
	})
	return ranked[0], true
}
