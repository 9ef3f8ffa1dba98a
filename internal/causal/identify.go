package causal

import (
	"fmt"
	"slices"
)

// AdjustmentResult is a set satisfying the backdoor criterion for
// (Treatment, Outcome). Minimal is false when the set came from the fallback
// after the bounded subset search found nothing smaller.
type AdjustmentResult struct {
	Treatment     string     `json:"treatment"`
	Outcome       string     `json:"outcome"`
	Set           []string   `json:"set"`
	Minimal       bool       `json:"minimal"`
	BackdoorPaths [][]string `json:"backdoor_paths"`
	Iterations    int        `json:"iterations"`
}

// FindAdjustmentSet searches for a smallest set Z of observed non-descendants
// of treatment that blocks every backdoor path to outcome. Candidate subsets
// are tried by increasing size, and within a size in declaration order, so the
// result is deterministic: among equally small sets the one whose members were
// declared earliest wins.
//
// The search is bounded by MaxAdjustmentSetSize and MaxSearchIterations. When
// it ends without a hit, the ancestral candidate set and then the full
// candidate set are tried, and a hit there is returned with Minimal=false.
func (e *DoCalculusEngine) FindAdjustmentSet(g *Graph, treatment, outcome string) (*AdjustmentResult, error) {
	if err := g.requireAll([]string{treatment, outcome}); err != nil {
		return nil, err
	}
	if treatment == outcome {
		return nil, &InvalidValueError{Variable: treatment, Reason: "treatment and outcome must differ"}
	}

	cands := g.adjustmentCandidates(treatment, outcome)
	under := g.removeOutgoing([]string{treatment})
	blocks := func(z []string) bool {
		return under.dSeparated(toSet([]string{treatment}), toSet([]string{outcome}), toSet(z))
	}

	res := &AdjustmentResult{
		Treatment:     treatment,
		Outcome:       outcome,
		BackdoorPaths: g.backdoorPaths(treatment, outcome, e.opts.MaxPaths, e.opts.MaxSearchIterations),
	}
	if res.BackdoorPaths == nil {
		res.BackdoorPaths = [][]string{}
	}

	budget := e.opts.MaxSearchIterations
	set, exhausted := searchSubsets(cands, 0, e.opts.MaxAdjustmentSetSize, &budget, blocks)
	res.Iterations = e.opts.MaxSearchIterations - budget
	if set != nil {
		res.Set = set
		res.Minimal = true
		return res, nil
	}

	if exhausted || len(cands) > e.opts.MaxAdjustmentSetSize {
		anc := g.ancestorsOf([]string{treatment, outcome})
		ancestral := slices.DeleteFunc(slices.Clone(cands), func(id string) bool { return !anc[id] })
		for _, z := range [][]string{ancestral, cands} {
			res.Iterations++
			if blocks(z) {
				res.Set = z
				return res, nil
			}
		}
	}

	return nil, &NotIdentifiableError{
		Treatment: treatment,
		Outcome:   outcome,
		OpenPaths: g.openPaths(res.BackdoorPaths, toSet(cands)),
		Exhausted: exhausted,
	}
}

// IsValidAdjustment reports whether z satisfies the backdoor criterion for
// (treatment, outcome).
func (e *DoCalculusEngine) IsValidAdjustment(g *Graph, treatment, outcome string, z []string) (bool, error) {
	if err := g.requireAll(append([]string{treatment, outcome}, z...)); err != nil {
		return false, err
	}
	if _, err := e.checkAdjustment(g, treatment, outcome, z); err != nil {
		return false, nil
	}
	return true, nil
}

// adjustmentCandidates lists the observed variables, in declaration order,
// that are neither treatment, outcome, nor a descendant of treatment.
func (g *Graph) adjustmentCandidates(treatment, outcome string) []string {
	desc := g.descendantsOf(treatment)
	out := make([]string, 0, len(g.vars))
	for _, v := range g.vars {
		if v.ID == treatment || v.ID == outcome || v.Latent || desc[v.ID] {
			continue
		}
		out = append(out, v.ID)
	}
	return out
}

// checkAdjustment validates a caller-supplied adjustment set and returns it
// deduplicated in declaration order.
func (e *DoCalculusEngine) checkAdjustment(g *Graph, treatment, outcome string, z []string) ([]string, error) {
	if err := g.requireAll(z); err != nil {
		return nil, err
	}
	set := toSet(z)
	ids := g.ordered(set)

	desc := g.descendantsOf(treatment)
	for _, id := range ids {
		var reason string
		switch {
		case id == treatment || id == outcome:
			reason = "cannot contain the treatment or outcome"
		case desc[id]:
			reason = fmt.Sprintf("%q is a descendant of %s", id, treatment)
		case g.vars[g.index[id]].Latent:
			reason = fmt.Sprintf("%q is latent", id)
		}
		if reason != "" {
			return nil, &UnidentifiableEffectError{
				Treatment: treatment,
				Outcome:   outcome,
				Err:       fmt.Errorf("%w: adjustment set %s", ErrNotIdentifiable, reason),
			}
		}
	}

	under := g.removeOutgoing([]string{treatment})
	if under.dSeparated(toSet([]string{treatment}), toSet([]string{outcome}), set) {
		return ids, nil
	}
	open := g.openPaths(g.backdoorPaths(treatment, outcome, e.opts.MaxPaths, e.opts.MaxSearchIterations), set)
	return nil, &UnidentifiableEffectError{
		Treatment:   treatment,
		Outcome:     outcome,
		Confounders: g.confoundersOn(open),
		OpenPaths:   open,
		Err:         fmt.Errorf("%w: adjustment set {%s} leaves backdoor paths open", ErrNotIdentifiable, joinIDs(ids)),
	}
}

// findFrontDoorSet looks for a smallest set of observed mediators M such that
// M intercepts every directed path treatment -> outcome, no backdoor path
// from treatment to M is open, and every backdoor path from M to outcome is
// blocked by treatment.
func (e *DoCalculusEngine) findFrontDoorSet(g *Graph, treatment, outcome string) ([]string, bool) {
	desc := g.descendantsOf(treatment)
	anc := g.ancestorsOf([]string{outcome})
	var cands []string
	for _, v := range g.vars {
		if desc[v.ID] && anc[v.ID] && v.ID != outcome && !v.Latent {
			cands = append(cands, v.ID)
		}
	}
	if len(cands) == 0 {
		return nil, false
	}

	x := toSet([]string{treatment})
	y := toSet([]string{outcome})
	under := g.removeOutgoing([]string{treatment})

	budget := e.opts.MaxSearchIterations
	set, _ := searchSubsets(cands, 1, e.opts.MaxAdjustmentSetSize, &budget, func(m []string) bool {
		ms := toSet(m)
		if g.directedPath(treatment, outcome, ms) != nil {
			return false
		}
		if !under.dSeparated(x, ms, nil) {
			return false
		}
		return g.removeOutgoing(m).dSeparated(ms, y, x)
	})
	return set, set != nil
}

// confoundersOn names the interior variables of the given paths, in
// declaration order. Latent variables are the usual culprits, so when any
// are present only they are reported.
func (g *Graph) confoundersOn(paths [][]string) []string {
	all := make(map[string]bool)
	latent := make(map[string]bool)
	for _, p := range paths {
		for _, id := range p[1 : len(p)-1] {
			all[id] = true
			if g.vars[g.index[id]].Latent {
				latent[id] = true
			}
		}
	}
	if len(latent) > 0 {
		return g.ordered(latent)
	}
	return g.ordered(all)
}

// searchSubsets calls ok on subsets of cands of size minSize..maxSize, by
// increasing size and in lexicographic index order within a size, and returns
// the first accepted subset. Each call consumes one unit of budget; exhausted
// reports that the budget ran out before the search space did.
func searchSubsets(cands []string, minSize, maxSize int, budget *int, ok func([]string) bool) (found []string, exhausted bool) {
	maxSize = min(maxSize, len(cands))
	for k := minSize; k <= maxSize; k++ {
		idx := make([]int, k)
		for i := range idx {
			idx[i] = i
		}
		for {
			if *budget <= 0 {
				return nil, true
			}
			*budget--

			subset := make([]string, k)
			for i, j := range idx {
				subset[i] = cands[j]
			}
			if ok(subset) {
				return subset, false
			}

			// Advance to the next combination.
			i := k - 1
			for i >= 0 && idx[i] == len(cands)-k+i {
				i--
			}
			if i < 0 {
				break
			}
			idx[i]++
			for j := i + 1; j < k; j++ {
				idx[j] = idx[j-1] + 1
			}
		}
	}
	return nil, false
}
