package sample

import (
	"errors"
	"testing"

	"github.com/John-Robertt/DBPick/internal/domain"
)

// fixedRand 按顺序返回预设下标（对 n 取模），用于验证抽取过程。
type fixedRand struct {
	seq []int
	i   int
}

func (f *fixedRand) IntN(n int) int {
	v := f.seq[f.i%len(f.seq)]
	f.i++
	return v % n
}

func TestN_DistinctMembers(t *testing.T) {
	items := []string{"a", "b", "c", "d", "e"}
	members := map[string]bool{}
	for _, it := range items {
		members[it] = true
	}

	for seed := uint64(0); seed < 50; seed++ {
		got, err := N(Seeded(seed), items, 3, false)
		if err != nil {
			t.Fatalf("不期望错误：%v", err)
		}
		if len(got) != 3 {
			t.Fatalf("期望 3 个，实际 %d", len(got))
		}
		seen := map[string]bool{}
		for _, g := range got {
			if !members[g] {
				t.Fatalf("结果包含非候选元素：%q", g)
			}
			if seen[g] {
				t.Fatalf("结果重复：%v", got)
			}
			seen[g] = true
		}
	}
}

func TestN_ExhaustedReturnsPartial(t *testing.T) {
	items := []int{1, 2, 3}
	got, err := N(Seeded(7), items, 10, false)
	if err != nil {
		t.Fatalf("非严格模式不应报错：%v", err)
	}
	if len(got) != 3 {
		t.Fatalf("期望恰好 3 个（不补齐），实际 %d：%v", len(got), got)
	}
	seen := map[int]bool{}
	for _, g := range got {
		if seen[g] {
			t.Fatalf("结果重复：%v", got)
		}
		seen[g] = true
	}
}

func TestN_StrictModeReportsExhausted(t *testing.T) {
	got, err := N(Seeded(1), []int{1, 2}, 3, true)
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("期望 ErrExhausted，实际 %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("严格模式仍应返回已抽到的部分：%v", got)
	}
}

func TestN_RemovesDrawnElement(t *testing.T) {
	// 每次都取下标 0：工作副本逐个移除，结果应是原顺序。
	got, err := N(&fixedRand{seq: []int{0}}, []string{"x", "y", "z"}, 3, false)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if got[0] != "x" || got[1] != "y" || got[2] != "z" {
		t.Fatalf("抽取顺序不符合预期：%v", got)
	}
}

func TestN_CountFloorAndInputUntouched(t *testing.T) {
	items := []string{"a", "b"}
	got, err := N(&fixedRand{seq: []int{1}}, items, 0, false)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(got) != 1 || got[0] != "b" {
		t.Fatalf("count<1 应视为 1：%v", got)
	}
	if items[0] != "a" || items[1] != "b" {
		t.Fatalf("输入被修改：%v", items)
	}
}

func TestOne_Empty(t *testing.T) {
	_, err := One[string](NewRand(), nil)
	if !errors.Is(err, domain.ErrEmptySelection) {
		t.Fatalf("期望 ErrEmptySelection，实际 %v", err)
	}
	if _, err := N[string](NewRand(), nil, 2, false); !errors.Is(err, domain.ErrEmptySelection) {
		t.Fatalf("期望 ErrEmptySelection，实际 %v", err)
	}
}

func TestOne_Uniformish(t *testing.T) {
	items := []int{0, 1, 2, 3}
	counts := make([]int, len(items))
	r := Seeded(42)
	for i := 0; i < 4000; i++ {
		v, err := One(r, items)
		if err != nil {
			t.Fatalf("不期望错误：%v", err)
		}
		counts[v]++
	}
	for i, c := range counts {
		if c < 800 || c > 1200 {
			t.Fatalf("分布偏差过大：idx=%d count=%d all=%v", i, c, counts)
		}
	}
}
