package domain

// MovieRecord 是 movie_info.csv 中的一行（解析后的最小可用集）。
//
// 约束：Rating 与 ReviewCount 必须解析成功，否则该行在解析阶段直接丢弃。
type MovieRecord struct {
	ID          string  `json:"movie_id"`
	MovieLink   string  `json:"movie_link"`
	PhotoLink   string  `json:"photo_link"`
	Rating      float64 `json:"rating"`
	ReviewCount int     `json:"review_count"`
}

// URLRecord 是 URL 列表中的一条绝对 URL（http/https）。
type URLRecord string

// Link 按 LinkType 选择要打开的链接。
func (m MovieRecord) Link(t LinkType) string {
	if t == LinkPhotos {
		return m.PhotoLink
	}
	return m.MovieLink
}
