// Package sample 提供均匀随机抽取：单个抽取与不放回的多次抽取。
package sample

import (
	"errors"
	"math/rand/v2"

	"github.com/John-Robertt/DBPick/internal/domain"
)

// ErrExhausted 仅在严格模式下返回：候选不足 count 个（仍会返回已抽到的部分）。
var ErrExhausted = errors.New("sample: candidates exhausted before count reached")

// Rand 是随机源的最小接口；*rand.Rand（math/rand/v2）直接满足。
type Rand interface {
	IntN(n int) int
}

// NewRand 返回一个非确定性的随机源（PCG，种子来自 runtime 随机数）。
func NewRand() Rand {
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

// Seeded 返回可复现的随机源（测试/调试用）。
func Seeded(seed uint64) Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// One 从 items 中均匀抽取一个；items 为空时返回 domain.ErrEmptySelection。
func One[T any](r Rand, items []T) (T, error) {
	var zero T
	if len(items) == 0 {
		return zero, domain.ErrEmptySelection
	}
	return items[r.IntN(len(items))], nil
}

// N 不放回地抽取 count 个（count<1 视为 1）。
//
// 每次从工作副本中均匀抽取一个并移除；候选耗尽时提前结束并返回已抽到的部分。
// strict=true 时，提前耗尽额外返回 ErrExhausted；items 为空时返回 domain.ErrEmptySelection。
func N[T any](r Rand, items []T, count int, strict bool) ([]T, error) {
	if count < 1 {
		count = 1
	}
	if len(items) == 0 {
		return nil, domain.ErrEmptySelection
	}

	pool := append([]T(nil), items...)
	out := make([]T, 0, min(count, len(pool)))
	for len(out) < count && len(pool) > 0 {
		i := r.IntN(len(pool))
		out = append(out, pool[i])
		pool = append(pool[:i], pool[i+1:]...)
	}

	if strict && len(out) < count {
		return out, ErrExhausted
	}
	return out, nil
}
