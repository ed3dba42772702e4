package pipeline

// Splice re-applies a recorded graph mutation after a rebuild, so a
// pipeline reconstructed for a new device model ends up identical.
type Splice func(p *Pipeline)

// startTransform is the sentinel at the head of the graph; its guard
// always skips so entities flow straight into the first real transform.
type startTransform struct{ Base }

func newStartTransform() *startTransform {
	return &startTransform{Base: NewBase("Start", Always(Skip))}
}

func (s *startTransform) Apply(v any) (any, error) { return s.Forward(v) }

// Pipeline is the builder and runtime for one rooted transform graph. All
// operations are serialized on the pipeline's strand.
type Pipeline struct {
	start   *startTransform
	context *Context
	strand  *Strand
	splices []Splice
	started bool
}

func New(context *Context, strand *Strand) *Pipeline {
	return &Pipeline{
		start:   newStartTransform(),
		context: context,
		strand:  strand,
	}
}

func (p *Pipeline) Context() *Context { return p.context }

func (p *Pipeline) Contract() Contract { return p.context.Contract }

func (p *Pipeline) Strand() *Strand { return p.strand }

func (p *Pipeline) Started() bool { return p.started }

// Bind attaches a transform to the start sentinel.
func (p *Pipeline) Bind(t Transform) Transform {
	return p.start.Bind(t)
}

// Run sends an entity through the pipeline on the caller's goroutine; use
// Post to route through the strand.
func (p *Pipeline) Run(v any) (any, error) {
	return p.start.Forward(v)
}

// Post schedules an entity through the pipeline on the strand.
func (p *Pipeline) Post(v any, report func(any, error)) {
	p.strand.Post(func() {
		out, err := p.start.Forward(v)
		if report != nil {
			report(out, err)
		}
	})
}

// Start starts all transforms on the strand; timers attach here.
func (p *Pipeline) Start() {
	p.strand.Start()
	p.start.Start(p.strand)
	p.started = true
}

// Stop cancels timers and breaks the chains. Idempotent.
func (p *Pipeline) Stop() {
	p.Clear()
	p.started = false
}

// Clear unlinks every transform. While the strand is running the clear is
// dispatched through it so no transform is executing when Clear returns.
func (p *Pipeline) Clear() {
	if len(p.start.nextList()) == 0 {
		return
	}
	if p.strand.Running() {
		p.strand.Dispatch(p.clearTransforms)
	} else {
		p.clearTransforms()
	}
}

func (p *Pipeline) clearTransforms() {
	p.start.Stop()
	p.start.Clear()
}

// ApplySplices replays the recorded mutations after a rebuild.
func (p *Pipeline) ApplySplices() {
	for _, splice := range p.splices {
		splice(p)
	}
}

// Find returns all (parent, target) pairs whose target has the given name.
func (p *Pipeline) Find(target string) []transformPair {
	var matches []transformPair
	if p.start.Name() == target {
		matches = append(matches, transformPair{target: p.start})
	}
	findRec(p.start, target, &matches)
	return matches
}

// SpliceBefore inserts t between each match's parent and the match.
func (p *Pipeline) SpliceBefore(target string, t Transform, reapplied bool) bool {
	matches := p.Find(target)
	if len(matches) == 0 {
		return false
	}
	t.Unlink()
	for _, m := range matches {
		if m.parent == nil {
			continue
		}
		spliceBefore(m.parent, m.target, t)
	}
	if !reapplied {
		p.splices = append(p.splices, func(pipe *Pipeline) {
			pipe.SpliceBefore(target, t, true)
		})
	}
	return true
}

// SpliceAfter moves each match's next list onto t and links the match to t.
func (p *Pipeline) SpliceAfter(target string, t Transform, reapplied bool) bool {
	matches := p.Find(target)
	if len(matches) == 0 {
		return false
	}
	t.Unlink()
	for _, m := range matches {
		spliceAfter(m.target, t)
	}
	if !reapplied {
		p.splices = append(p.splices, func(pipe *Pipeline) {
			pipe.SpliceAfter(target, t, true)
		})
	}
	return true
}

// FirstAfter prepends t to each match's next list.
func (p *Pipeline) FirstAfter(target string, t Transform, reapplied bool) bool {
	matches := p.Find(target)
	if len(matches) == 0 {
		return false
	}
	for _, m := range matches {
		firstAfter(m.target, t)
	}
	if !reapplied {
		p.splices = append(p.splices, func(pipe *Pipeline) {
			pipe.FirstAfter(target, t, true)
		})
	}
	return true
}

// LastAfter appends t to each match's next list.
func (p *Pipeline) LastAfter(target string, t Transform, reapplied bool) bool {
	matches := p.Find(target)
	if len(matches) == 0 {
		return false
	}
	for _, m := range matches {
		m.target.Bind(t)
	}
	if !reapplied {
		p.splices = append(p.splices, func(pipe *Pipeline) {
			pipe.LastAfter(target, t, true)
		})
	}
	return true
}

// Replace substitutes t for each match, inheriting the match's next list.
func (p *Pipeline) Replace(target string, t Transform, reapplied bool) bool {
	matches := p.Find(target)
	if len(matches) == 0 {
		return false
	}
	t.Unlink()
	for _, m := range matches {
		if m.parent == nil {
			continue
		}
		replace(m.parent, m.target, t)
	}
	if !reapplied {
		p.splices = append(p.splices, func(pipe *Pipeline) {
			pipe.Replace(target, t, true)
		})
	}
	return true
}

// Remove unlinks each match, merging its next list into its parent's.
func (p *Pipeline) Remove(target string) bool {
	matches := p.Find(target)
	if len(matches) == 0 {
		return false
	}
	for _, m := range matches {
		if m.parent == nil {
			continue
		}
		remove(m.parent, m.target)
	}
	p.splices = append(p.splices, func(pipe *Pipeline) {
		pipe.Remove(target)
	})
	return true
}
