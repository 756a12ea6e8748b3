package douban

import "strconv"

// MovieType 是排行接口的分类（type 参数）。
type MovieType struct {
	Name string
	ID   int
}

// MovieTypes 是排行页的全部 28 个分类。
var MovieTypes = []MovieType{
	{"剧情", 11}, {"喜剧", 24}, {"动作", 5}, {"爱情", 13},
	{"科幻", 17}, {"动画", 25}, {"悬疑", 10}, {"惊悚", 19},
	{"恐怖", 20}, {"纪录片", 1}, {"短片", 23}, {"情色", 6},
	{"音乐", 14}, {"歌舞", 7}, {"家庭", 28}, {"儿童", 8},
	{"传记", 2}, {"历史", 4}, {"战争", 22}, {"犯罪", 3},
	{"西部", 27}, {"奇幻", 16}, {"冒险", 15}, {"灾难", 12},
	{"武侠", 29}, {"古装", 30}, {"运动", 18}, {"黑色电影", 31},
}

// Intervals 是评分区间（interval_id 参数），从 100:90 到 10:0。
var Intervals = []string{
	"100:90", "90:80", "80:70", "70:60",
	"60:50", "50:40", "40:30", "30:20",
	"20:10", "10:0",
}

// TypeByName 按中文名或数字 ID 查找分类。
func TypeByName(s string) (MovieType, bool) {
	for _, t := range MovieTypes {
		if t.Name == s {
			return t, true
		}
	}
	for _, t := range MovieTypes {
		if strconv.Itoa(t.ID) == s {
			return t, true
		}
	}
	return MovieType{}, false
}

