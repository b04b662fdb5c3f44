package narration

import (
	"fmt"
	"strings"
)

func scriptPrompt(p Product, targetLength int) string {
	var b strings.Builder
	b.WriteString("Bạn là người viết kịch bản lồng tiếng cho video TikTok bán hàng.\n")
	fmt.Fprintf(&b, "Sản phẩm: %s\n", p.Name)
	if p.VideoCount > 0 {
		fmt.Fprintf(&b, "Video gồm %d đoạn clip", p.VideoCount)
		if p.Duration > 0 {
			fmt.Fprintf(&b, ", tổng thời lượng %.0f giây", p.Duration)
		}
		b.WriteString(".\n")
	}
	fmt.Fprintf(&b, "Viết một đoạn lời thoại tiếng Việt tự nhiên, dài khoảng %d ký tự.\n", targetLength)
	b.WriteString("Chỉ trả về lời thoại, không tiêu đề, không ghi chú, không emoji.")
	return b.String()
}

func overlayPrompt(p Product, script string) string {
	var b strings.Builder
	b.WriteString("Viết một câu tiêu đề ngắn (tối đa 50 ký tự) thu hút người xem cho video TikTok bán hàng.\n")
	fmt.Fprintf(&b, "Sản phẩm: %s\n", p.Name)
	if script != "" {
		fmt.Fprintf(&b, "Lời thoại: %s\n", script)
	}
	b.WriteString("Chỉ trả về đúng một dòng tiêu đề.")
	return b.String()
}

// cleanText trims whitespace and the quotes models tend to wrap answers in.
func cleanText(s string) string {
	s = strings.TrimSpace(s)
	for len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') || (first == '`' && last == '`') {
			s = strings.TrimSpace(s[1 : len(s)-1])
			continue
		}
		break
	}
	return s
}
