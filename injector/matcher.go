package injector

import (
	"sort"

	"github.com/yucer/userscript-proxy/internal/globtree"
	"github.com/yucer/userscript-proxy/userscript"
)

// scriptIndex answers "which loaded scripts apply to this URL?" with one
// tree traversal per request instead of one pattern scan per script. Scripts
// are keyed by their position in the load order, which the result preserves.
type scriptIndex struct {
	scripts  []*userscript.Userscript
	include  *globtree.Tree[int]
	exclude  *globtree.Tree[int]
	unscoped []int
}

func newScriptIndex(scripts []*userscript.Userscript) *scriptIndex {
	ix := &scriptIndex{
		scripts: scripts,
		include: globtree.New[int](),
		exclude: globtree.New[int](),
	}
	for i, s := range scripts {
		for _, p := range s.MatchPatterns() {
			ix.include.Insert(p, i)
		}
		for _, p := range s.IncludePatterns() {
			ix.include.Insert(p, i)
		}
		for _, p := range s.ExcludePatterns() {
			ix.exclude.Insert(p, i)
		}
		if s.Unscoped() {
			ix.unscoped = append(ix.unscoped, i)
		}
	}
	ix.include.Compact()
	ix.exclude.Compact()
	return ix
}

// applicable returns the scripts applying to the URL, in load order. With
// applyUnscoped set, scripts declaring no match/include patterns apply to
// every page (still subject to their exclude patterns).
func (ix *scriptIndex) applicable(url string, applyUnscoped bool) []*userscript.Userscript {
	matched := ix.include.Match(url)
	if applyUnscoped {
		matched = append(matched, ix.unscoped...)
	}
	if len(matched) == 0 {
		return nil
	}

	excluded := make(map[int]struct{})
	for _, i := range ix.exclude.Match(url) {
		excluded[i] = struct{}{}
	}

	sort.Ints(matched)
	result := make([]*userscript.Userscript, 0, len(matched))
	for _, i := range matched {
		if _, ok := excluded[i]; ok {
			continue
		}
		result = append(result, ix.scripts[i])
	}
	return result
}
