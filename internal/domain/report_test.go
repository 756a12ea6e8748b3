package domain

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"
)

func TestPickReport_Finalize_SummaryAndUTC(t *testing.T) {
	opts := DefaultFilterOptions()
	opts.Bucket = BucketThousands
	r := PickReport{
		Source:     "movie_info.csv",
		Kind:       "movies",
		StartedAt:  time.Date(2026, 2, 9, 10, 0, 0, 0, time.FixedZone("X", 8*3600)),
		FinishedAt: time.Date(2026, 2, 9, 10, 0, 1, 0, time.FixedZone("X", 8*3600)),
		Options:    &opts,
		Items: []PickItem{
			{URL: "https://movie.douban.com/subject/1/", Status: ItemStatusOpened},
			{URL: "https://movie.douban.com/subject/2/", Status: ItemStatusFailed, Error: "boom"},
		},
	}

	r.Finalize()

	if r.Summary.Opened != 1 || r.Summary.Failed != 1 {
		t.Fatalf("summary 统计不正确：%+v", r.Summary)
	}
	if r.Status != StatusPartial {
		t.Fatalf("期望 status=%q，实际=%q", StatusPartial, r.Status)
	}

	b, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("json.Marshal 失败：%v", err)
	}
	if !bytes.Contains(b, []byte("\"started_at\":\"2026-02-09T02:00:00Z\"")) {
		t.Fatalf("started_at 不是 UTC RFC3339：%s", string(b))
	}
	if !bytes.Contains(b, []byte("\"review_bucket\":\"thousands\"")) {
		t.Fatalf("review_bucket 应输出名称：%s", string(b))
	}
}

func TestPickReport_Finalize_KeepsPresetStatus(t *testing.T) {
	r := PickReport{Status: StatusEmpty, ErrorCode: ErrCodeEmptySelection}
	r.Finalize()
	if r.Status != StatusEmpty {
		t.Fatalf("已设置的 status 不应被覆盖：%q", r.Status)
	}
	if r.Items == nil {
		t.Fatalf("items 应输出 [] 而不是 null")
	}
}

func TestParseReviewBucket(t *testing.T) {
	cases := map[string]ReviewBucket{
		"":                      BucketAll,
		"0":                     BucketAll,
		"3":                     BucketTensOfThousands,
		"tens-of-thousands":     BucketTensOfThousands,
		"HUNDREDS_OF_THOUSANDS": BucketHundredsOfThousands,
		"millions":              BucketMillions,
	}
	for in, want := range cases {
		got, err := ParseReviewBucket(in)
		if err != nil {
			t.Fatalf("ParseReviewBucket(%q) 不期望错误：%v", in, err)
		}
		if got != want {
			t.Fatalf("ParseReviewBucket(%q)=%v，期望 %v", in, got, want)
		}
	}

	for _, bad := range []string{"6", "-1", "lots"} {
		if _, err := ParseReviewBucket(bad); err == nil {
			t.Fatalf("ParseReviewBucket(%q) 期望错误", bad)
		}
	}
}

func TestParseLinkType(t *testing.T) {
	if lt, err := ParseLinkType("photo"); err != nil || lt != LinkPhotos {
		t.Fatalf("photo 应解析为 photos：lt=%q err=%v", lt, err)
	}
	if lt, err := ParseLinkType(""); err != nil || lt != LinkMovie {
		t.Fatalf("空值应默认 movie：lt=%q err=%v", lt, err)
	}
	if _, err := ParseLinkType("poster"); err == nil {
		t.Fatalf("期望错误，但得到 nil")
	}

	m := MovieRecord{MovieLink: "m", PhotoLink: "p"}
	if m.Link(LinkPhotos) != "p" || m.Link(LinkMovie) != "m" {
		t.Fatalf("Link 选择错误")
	}
}
