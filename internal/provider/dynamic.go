package provider

import (
	"sort"
	"sync/atomic"
)

type snapshot struct {
	byID map[string]Config
	list []Config
}

// Dynamic：通过 atomic.Value 热切换的配置集合，读路径无锁
type Dynamic struct{ v atomic.Value }

func NewDynamic(cs []Config) *Dynamic {
	d := &Dynamic{}
	d.Set(cs)
	return d
}

func (d *Dynamic) load() *snapshot {
	x := d.v.Load()
	if x == nil {
		return &snapshot{byID: map[string]Config{}}
	}
	return x.(*snapshot)
}

func (d *Dynamic) Lookup(id string) (Config, bool) {
	c, ok := d.load().byID[id]
	return c, ok
}

func (d *Dynamic) All() []Config {
	return append([]Config(nil), d.load().list...)
}

// Set：替换配置集合，返回被移除的提供方 id（按字典序）
func (d *Dynamic) Set(cs []Config) []string {
	next := &snapshot{byID: make(map[string]Config, len(cs))}
	for _, c := range cs {
		if _, dup := next.byID[c.SystemID]; dup {
			continue
		}
		next.byID[c.SystemID] = c
		next.list = append(next.list, c)
	}
	prev := d.load()
	d.v.Store(next)
	var removed []string
	for id := range prev.byID {
		if _, ok := next.byID[id]; !ok {
			removed = append(removed, id)
		}
	}
	sort.Strings(removed)
	return removed
}
