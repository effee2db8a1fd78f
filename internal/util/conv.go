package util

// Percentage 得分百分比，满分为 0 时返回 0
func Percentage(score, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(score) / float64(total) * 100
}
