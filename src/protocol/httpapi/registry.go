package httpapi

import (
	"sort"

	cmap "github.com/orcaman/concurrent-map"

	"streamripper/src/analyzer"
)

// Run is a finished analysis and the directory its files were saved in.
type Run struct {
	Result *analyzer.Result
	Dir    string
}

// Registry holds the runs the API can serve, keyed by run id.
type Registry struct {
	runs cmap.ConcurrentMap
}

func NewRegistry() *Registry {
	return &Registry{runs: cmap.New()}
}

func (reg *Registry) Add(res *analyzer.Result, dir string) {
	reg.runs.Set(res.RunID, &Run{Result: res, Dir: dir})
}

func (reg *Registry) Get(id string) (*Run, bool) {
	v, ok := reg.runs.Get(id)
	if !ok {
		return nil, false
	}
	return v.(*Run), true
}

// List returns all runs, oldest first.
func (reg *Registry) List() []*Run {
	runs := make([]*Run, 0, reg.runs.Count())
	for _, v := range reg.runs.Items() {
		runs = append(runs, v.(*Run))
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Result.StartedAt.Before(runs[j].Result.StartedAt)
	})
	return runs
}
