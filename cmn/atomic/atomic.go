// Package atomic provides thin, allocation-free wrappers around sync/atomic
// so that call sites read as `x.Load()` / `x.Add(1)` instead of bare
// functions over pointers, the way AIStore's cmn/atomic is used
// throughout (e.g. `atomic.Int64`, `atomic.Bool` fields on hot structs).
package atomic

import "sync/atomic"

type Int64 struct{ v atomic.Int64 }

func (i *Int64) Load() int64        { return i.v.Load() }
func (i *Int64) Store(val int64)    { i.v.Store(val) }
func (i *Int64) Add(delta int64) int64 { return i.v.Add(delta) }
func (i *Int64) Inc() int64         { return i.v.Add(1) }
func (i *Int64) Swap(val int64) int64 { return i.v.Swap(val) }
func (i *Int64) CAS(old, new int64) bool { return i.v.CompareAndSwap(old, new) }

type Uint64 struct{ v atomic.Uint64 }

func (i *Uint64) Load() uint64          { return i.v.Load() }
func (i *Uint64) Store(val uint64)      { i.v.Store(val) }
func (i *Uint64) Add(delta uint64) uint64 { return i.v.Add(delta) }
func (i *Uint64) Inc() uint64           { return i.v.Add(1) }

type Uint32 struct{ v atomic.Uint32 }

func (i *Uint32) Load() uint32          { return i.v.Load() }
func (i *Uint32) Store(val uint32)      { i.v.Store(val) }
func (i *Uint32) Add(delta uint32) uint32 { return i.v.Add(delta) }

type Bool struct{ v atomic.Bool }

func (b *Bool) Load() bool       { return b.v.Load() }
func (b *Bool) Store(val bool)   { b.v.Store(val) }
func (b *Bool) CAS(old, new bool) bool { return b.v.CompareAndSwap(old, new) }

type Value struct{ v atomic.Value }

func (a *Value) Load() any     { return a.v.Load() }
func (a *Value) Store(val any) { a.v.Store(val) }
